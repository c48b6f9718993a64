// Package catalog keeps local copies of the upstream tag and vehicle directories.
package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gwi.com/fleet-copilot/internal/utils"
)

// DefaultSyncInterval is how long a synced directory is considered fresh.
const DefaultSyncInterval = 300 * time.Second

type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

func (r SyncResult) String() string {
	return fmt.Sprintf("Sync completed: %d created, %d updated, %d unchanged.", r.Created, r.Updated, r.Unchanged)
}

// Observer receives the outcome of every sync run.
type Observer interface {
	ObserveSync(kind string, result SyncResult, err error)
}

// gate decides when a directory needs a refresh. The last sync time lives in
// the shared cache so every holder of the cache sees the same freshness.
type gate struct {
	cache    utils.Cache
	clock    utils.Clock
	key      string
	interval time.Duration
}

func (g gate) lastSync() (time.Time, bool) {
	v, ok := g.cache.Get(g.key)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

func (g gate) due() bool {
	last, ok := g.lastSync()
	if !ok {
		return true
	}
	return g.clock.Now().Sub(last) >= g.interval
}

func (g gate) mark() {
	g.cache.Put(g.key, g.clock.Now())
}

// DataHash is the md5 of the canonical JSON form of an upstream payload.
// Decoding into generic values and re-encoding sorts every object's keys.
func DataHash(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func payload(raw json.RawMessage, fallback any) (json.RawMessage, error) {
	if len(raw) > 0 {
		return raw, nil
	}
	return json.Marshal(fallback)
}
