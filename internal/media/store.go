// Package media persists dashcam captures so they outlive upstream signed URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDownloadTimeout = 30 * time.Second
	DefaultParallelism     = 4
)

var ErrInvalidItem = errors.New("media item has no url or input")

var typeDescriptions = map[string]string{
	"dashcamRoadFacing":   "Road-facing camera",
	"dashcamDriverFacing": "Driver-facing camera",
	"photo":               "Photo",
	"video":               "Video",
}

// TypeDescription returns a human readable label for a camera input.
func TypeDescription(input string) string {
	if d, ok := typeDescriptions[input]; ok {
		return d
	}
	return input
}

// KnownInput reports whether input is an accepted media type filter.
func KnownInput(input string) bool {
	_, ok := typeDescriptions[input]
	return ok
}

type Item struct {
	VehicleID     string
	Input         string
	MediaType     string
	CapturedAt    string
	URL           string
	TriggerReason string
}

type Persisted struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	TypeDescription string `json:"typeDescription"`
	MediaType       string `json:"mediaType"`
	Timestamp       string `json:"timestamp"`
	OriginalURL     string `json:"originalUrl"`
	URL             string `json:"localUrl"`
	IsPersisted     bool   `json:"isPersisted"`
	StoragePath     string `json:"storagePath"`
	TriggerReason   string `json:"triggerReason,omitempty"`
}

// Observer is told how each item was resolved: "reused", "downloaded" or "failed".
type Observer interface {
	ObserveMedia(outcome string)
}

type Options struct {
	HTTPClient      *http.Client
	DownloadTimeout time.Duration
	Parallelism     int
	Logger          *slog.Logger
	Observer        Observer
}

type Store struct {
	blobs       BlobStore
	httpClient  *http.Client
	timeout     time.Duration
	parallelism int
	logger      *slog.Logger
	observer    Observer
	inflight    singleflight.Group
}

func NewStore(blobs BlobStore, opts Options) *Store {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = DefaultDownloadTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		blobs:       blobs,
		httpClient:  opts.HTTPClient,
		timeout:     opts.DownloadTimeout,
		parallelism: opts.Parallelism,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}
}

func (s *Store) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveMedia(outcome)
	}
}

// Persist returns a reference to the stored copy of item, downloading it only
// when no blob exists at its storage path. Download failures fall back to the
// original URL and are not returned as errors.
func (s *Store) Persist(ctx context.Context, item Item) (Persisted, error) {
	if item.URL == "" || item.Input == "" {
		return Persisted{}, ErrInvalidItem
	}
	sourceID := SourceID(item.URL)
	key := LogicalKey(item.VehicleID, item.Input, item.CapturedAt, sourceID)
	storagePath := StoragePath(item.VehicleID, key, Extension(item.MediaType, item.URL))

	out := Persisted{
		ID:              sourceID,
		Type:            item.Input,
		TypeDescription: TypeDescription(item.Input),
		MediaType:       item.MediaType,
		Timestamp:       item.CapturedAt,
		OriginalURL:     item.URL,
		StoragePath:     storagePath,
		TriggerReason:   item.TriggerReason,
	}
	if out.MediaType == "" {
		out.MediaType = "image"
	}

	exists, err := s.blobs.Exists(ctx, storagePath)
	if err != nil {
		s.logger.Warn("media existence check failed", "path", storagePath, "error", err)
	}
	if exists {
		s.observe("reused")
		out.URL, out.IsPersisted = s.blobs.URL(storagePath), true
		return out, nil
	}

	_, err, _ = s.inflight.Do(storagePath, func() (any, error) {
		return nil, s.download(ctx, item.URL, storagePath)
	})
	if err != nil {
		s.observe("failed")
		s.logger.Warn("media download failed, using original url", "path", storagePath, "error", err)
		out.URL = item.URL
		return out, nil
	}
	s.observe("downloaded")
	out.URL, out.IsPersisted = s.blobs.URL(storagePath), true
	return out, nil
}

func (s *Store) download(ctx context.Context, rawURL, storagePath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build media request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch media: HTTP %d", resp.StatusCode)
	}
	return s.blobs.Put(ctx, storagePath, resp.Body)
}

// PersistAll persists items in parallel and keeps their order. Invalid items are dropped.
func (s *Store) PersistAll(ctx context.Context, items []Item) []Persisted {
	results := make([]Persisted, len(items))
	valid := make([]bool, len(items))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, item := range items {
		g.Go(func() error {
			p, err := s.Persist(ctx, item)
			if err != nil {
				s.logger.Debug("skipping media item", "vehicle_id", item.VehicleID, "error", err)
				return nil
			}
			results[i], valid[i] = p, true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Persisted, 0, len(items))
	for i, p := range results {
		if valid[i] {
			out = append(out, p)
		}
	}
	return out
}
