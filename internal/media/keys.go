package media

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
	"time"
)

// Prefix is the top level directory of persisted dashcam media.
const Prefix = "dashcam-media"

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SourceID identifies the upstream object behind a media URL. Query strings
// carry expiring signatures, so only the file name takes part.
func SourceID(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" && u.Path != "/" {
		base := path.Base(u.Path)
		return md5Hex(strings.TrimSuffix(base, path.Ext(base)))[:12]
	}
	return md5Hex(rawURL)[:12]
}

// LogicalKey is {vehicle}_{input}_{capture time}_{short source hash}. Parts
// that are missing are left out.
func LogicalKey(vehicleID, input, capturedAt, sourceID string) string {
	parts := []string{vehicleID, input}
	if capturedAt != "" {
		if t, err := time.Parse(time.RFC3339, capturedAt); err == nil {
			parts = append(parts, t.Format("2006-01-02_15-04-05"))
		}
	}
	if sourceID != "" {
		parts = append(parts, md5Hex(sourceID)[:8])
	}
	return strings.Join(parts, "_")
}

// Extension prefers hints in the URL path over the declared media type.
func Extension(mediaType, rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p := strings.ToLower(u.Path)
		switch {
		case strings.Contains(p, ".jpeg"), strings.Contains(p, ".jpg"):
			return "jpg"
		case strings.Contains(p, ".png"):
			return "png"
		case strings.Contains(p, ".mp4"):
			return "mp4"
		case strings.Contains(p, ".webm"):
			return "webm"
		}
	}
	if mediaType == "video" {
		return "mp4"
	}
	return "jpg"
}

// StoragePath is a pure function of the logical key.
func StoragePath(vehicleID, key, ext string) string {
	return path.Join(Prefix, vehicleID, key+"."+ext)
}
