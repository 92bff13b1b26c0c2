// Package subscriber exposes the category to destination mappings the
// broadcaster reads once per tick.
package subscriber

import (
	"context"
	"sync"
	"time"

	"sage/internal/catalog"
	"sage/internal/storage"
	logx "sage/pkg/logx"
)

// Snapshot maps each category to the destination identifiers subscribed to it.
type Snapshot map[catalog.Category][]string

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for c, dests := range s {
		out[c] = append([]string(nil), dests...)
	}
	return out
}

// Destinations counts all destination entries.
func (s Snapshot) Destinations() int {
	n := 0
	for _, d := range s {
		n += len(d)
	}
	return n
}

// Reader returns the current snapshot. ok is false while no snapshot has
// been loaded yet; that is "not ready", not an error.
type Reader interface {
	Snapshot(ctx context.Context) (snap Snapshot, ok bool, err error)
}

// Source is the read side of storage.Store.
type Source interface {
	Subscriptions(ctx context.Context) ([]storage.Subscription, error)
}

const defaultRefreshEvery = time.Minute

// Cache keeps the last successfully loaded snapshot in memory.
type Cache struct {
	src          Source
	log          logx.Logger
	refreshEvery time.Duration

	mu     sync.RWMutex
	snap   Snapshot
	loaded bool
}

func NewCache(src Source, refreshEvery time.Duration, log logx.Logger) *Cache {
	if refreshEvery <= 0 {
		refreshEvery = defaultRefreshEvery
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{src: src, refreshEvery: refreshEvery, log: log}
}

// Snapshot implements Reader. The returned map is a copy.
func (c *Cache) Snapshot(ctx context.Context) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, false, nil
	}
	return c.snap.Clone(), true, nil
}

// Refresh reloads the snapshot from the source. On error the previous
// snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	subs, err := c.src.Subscriptions(ctx)
	if err != nil {
		return err
	}
	snap := group(subs)

	c.mu.Lock()
	c.snap = snap
	c.loaded = true
	c.mu.Unlock()

	c.log.Debug("subscriber snapshot refreshed",
		logx.Int("categories", len(snap)),
		logx.Int("destinations", snap.Destinations()),
	)
	return nil
}

// Run refreshes immediately and then every refreshEvery until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		c.log.Warn("subscriber refresh failed", logx.Err(err))
	}
	t := time.NewTicker(c.refreshEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("subscriber refresh failed", logx.Err(err))
			}
		}
	}
}

// group keeps source order within a category and drops duplicates.
func group(subs []storage.Subscription) Snapshot {
	out := make(Snapshot)
	seen := make(map[storage.Subscription]struct{}, len(subs))
	for _, s := range subs {
		key := storage.Subscription{Category: s.Category, Destination: s.Destination}
		if s.Category == "" || s.Destination == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cat := catalog.Category(s.Category)
		out[cat] = append(out[cat], s.Destination)
	}
	return out
}
