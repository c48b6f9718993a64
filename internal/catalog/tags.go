package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

// MaxHierarchyDepth bounds parent traversal.
const MaxHierarchyDepth = 32

var ErrHierarchyCycle = errors.New("tag hierarchy contains a cycle")

type TagSource interface {
	Tags(ctx context.Context) ([]telematics.Tag, error)
}

type TagStore interface {
	GetTagHash(ctx context.Context, id string) (string, error)
	UpsertTag(ctx context.Context, t *store.Tag) error
	GetTagByID(ctx context.Context, id string) (*store.Tag, error)
	ListTags(ctx context.Context, f store.TagFilter) ([]store.Tag, int, error)
	GetTagChildren(ctx context.Context, parentID string) ([]store.Tag, error)
	GetTagSummary(ctx context.Context) (store.TagSummary, error)
}

type Options struct {
	Cache    utils.Cache
	Clock    utils.Clock
	Interval int // seconds; zero means DefaultSyncInterval
	Logger   *slog.Logger
	Observer Observer
}

func (o *Options) defaults() error {
	if o.Cache == nil {
		c, err := utils.NewLRUCache(64)
		if err != nil {
			return err
		}
		o.Cache = c
	}
	if o.Clock == nil {
		o.Clock = utils.SystemClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

// TagCatalog serves tag reads from the local store and refreshes it from
// upstream at most once per interval.
type TagCatalog struct {
	source   TagSource
	store    TagStore
	gate     gate
	mu       sync.Mutex
	logger   *slog.Logger
	observer Observer
}

func NewTagCatalog(source TagSource, st TagStore, opts Options) (*TagCatalog, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &TagCatalog{
		source:   source,
		store:    st,
		gate:     gate{cache: opts.Cache, clock: opts.Clock, key: "tags:last_sync", interval: interval(opts.Interval)},
		logger:   opts.Logger,
		observer: opts.Observer,
	}, nil
}

// ShouldSync is true if tags were never synced or the interval has elapsed.
func (c *TagCatalog) ShouldSync(_ context.Context) bool {
	return c.gate.due()
}

// LastSync reports when the tags were last synced.
func (c *TagCatalog) LastSync() (t time.Time, ok bool) {
	return c.gate.lastSync()
}

// SyncNow pulls every upstream tag and rewrites only those whose hash changed.
// Concurrent calls are serialized.
func (c *TagCatalog) SyncNow(ctx context.Context) (SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.sync(ctx)
	if c.observer != nil {
		c.observer.ObserveSync("tags", res, err)
	}
	if err != nil {
		c.logger.Error("tag sync failed", "error", err)
		return res, err
	}
	c.gate.mark()
	c.logger.Info("tag sync completed", "created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged)
	return res, nil
}

func (c *TagCatalog) sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	tags, err := c.source.Tags(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to fetch tags: %w", err)
	}
	for _, t := range tags {
		raw, err := payload(t.Raw, t)
		if err != nil {
			return res, fmt.Errorf("failed to encode tag %s: %w", t.ID, err)
		}
		hash, err := DataHash(raw)
		if err != nil {
			return res, err
		}
		stored, err := c.store.GetTagHash(ctx, t.ID)
		if err != nil {
			return res, err
		}
		if stored == hash {
			res.Unchanged++
			continue
		}
		if err := c.store.UpsertTag(ctx, tagRecord(t, hash)); err != nil {
			return res, err
		}
		if stored == "" {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// EnsureFresh syncs when forced or due. It reports whether a sync ran.
func (c *TagCatalog) EnsureFresh(ctx context.Context, force bool) (bool, SyncResult, error) {
	if !force && !c.ShouldSync(ctx) {
		return false, SyncResult{}, nil
	}
	res, err := c.SyncNow(ctx)
	return true, res, err
}

func tagRecord(t telematics.Tag, hash string) *store.Tag {
	members := func(refs []telematics.Ref) []store.TagMember {
		out := make([]store.TagMember, 0, len(refs))
		for _, r := range refs {
			out = append(out, store.TagMember{ID: r.ID, Name: r.Name})
		}
		return out
	}
	return &store.Tag{
		SamsaraID:   t.ID,
		Name:        t.Name,
		ParentTagID: t.ParentTagID,
		Vehicles:    members(t.Vehicles),
		Drivers:     members(t.Drivers),
		Assets:      members(t.Assets),
		DataHash:    hash,
	}
}

func (c *TagCatalog) Search(ctx context.Context, f store.TagFilter) ([]store.Tag, int, error) {
	return c.store.ListTags(ctx, f)
}

func (c *TagCatalog) Get(ctx context.Context, id string) (*store.Tag, error) {
	return c.store.GetTagByID(ctx, id)
}

func (c *TagCatalog) Children(ctx context.Context, id string) ([]store.Tag, error) {
	return c.store.GetTagChildren(ctx, id)
}

func (c *TagCatalog) Summary(ctx context.Context) (store.TagSummary, error) {
	return c.store.GetTagSummary(ctx)
}

// HierarchyPath returns tag names from the root down to t. A dangling parent
// ends the walk. On a cycle, or a chain deeper than MaxHierarchyDepth, the
// path collected so far is returned with ErrHierarchyCycle.
func (c *TagCatalog) HierarchyPath(ctx context.Context, t store.Tag) ([]string, error) {
	path := []string{t.Name}
	visited := map[string]bool{t.SamsaraID: true}
	cur := t
	for cur.ParentTagID != "" {
		if len(path) >= MaxHierarchyDepth || visited[cur.ParentTagID] {
			return path, fmt.Errorf("tag %s: %w", t.SamsaraID, ErrHierarchyCycle)
		}
		parent, err := c.store.GetTagByID(ctx, cur.ParentTagID)
		if err != nil {
			return path, err
		}
		if parent == nil {
			break
		}
		visited[parent.SamsaraID] = true
		path = append([]string{parent.Name}, path...)
		cur = *parent
	}
	return path, nil
}

func interval(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultSyncInterval
	}
	return time.Duration(seconds) * time.Second
}
