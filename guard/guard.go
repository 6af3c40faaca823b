// Package guard tracks, per destination, the highest record offset already
// written to it so redelivered records can be dropped after a restart.
package guard

import (
	"fmt"
	"sync"

	log "github.com/CefBoud/monsink/logging"
)

// OffsetGuard maps a destination key (a segment path) to its high-water-mark.
// It is safe for concurrent use; writers sharing one guard touch disjoint keys.
type OffsetGuard struct {
	marks map[string]int64
	dirty map[string]struct{}
	store Store
	sync.RWMutex
}

// New returns an empty, memory-only guard.
func New() *OffsetGuard {
	return &OffsetGuard{
		marks: make(map[string]int64),
		dirty: make(map[string]struct{}),
	}
}

// Open returns a guard seeded with the marks persisted in store.
// Sync writes changed marks back to it.
func Open(store Store) (*OffsetGuard, error) {
	g := New()
	marks, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load offset marks: %w", err)
	}
	for k, v := range marks {
		g.marks[k] = v
	}
	g.store = store
	log.Info("offset guard loaded %v destination marks", len(marks))
	return g, nil
}

// Update records that offset was written to key. The mark only moves up.
func (g *OffsetGuard) Update(key string, offset int64) {
	g.Lock()
	defer g.Unlock()
	if mark, ok := g.marks[key]; ok && offset <= mark {
		return
	}
	g.marks[key] = offset
	g.dirty[key] = struct{}{}
}

// Predicate reports whether offset is new for key, i.e. above the stored mark.
func (g *OffsetGuard) Predicate(key string, offset int64) bool {
	g.RLock()
	defer g.RUnlock()
	mark, ok := g.marks[key]
	return !ok || offset > mark
}

// HighWaterMark returns the mark stored for key, if any.
func (g *OffsetGuard) HighWaterMark(key string) (int64, bool) {
	g.RLock()
	defer g.RUnlock()
	mark, ok := g.marks[key]
	return mark, ok
}

// Len returns the number of tracked destinations.
func (g *OffsetGuard) Len() int {
	g.RLock()
	defer g.RUnlock()
	return len(g.marks)
}

// Snapshot returns a copy of all marks.
func (g *OffsetGuard) Snapshot() map[string]int64 {
	g.RLock()
	defer g.RUnlock()
	out := make(map[string]int64, len(g.marks))
	for k, v := range g.marks {
		out[k] = v
	}
	return out
}

// Sync persists the marks changed since the last Sync. It is a no-op for memory-only guards.
func (g *OffsetGuard) Sync() error {
	g.Lock()
	defer g.Unlock()
	if g.store == nil || len(g.dirty) == 0 {
		return nil
	}
	changed := make(map[string]int64, len(g.dirty))
	for k := range g.dirty {
		changed[k] = g.marks[k]
	}
	if err := g.store.Save(changed); err != nil {
		return fmt.Errorf("persist offset marks: %w", err)
	}
	g.dirty = make(map[string]struct{})
	log.Debug("offset guard persisted %v marks", len(changed))
	return nil
}

// Close syncs and releases the backing store.
func (g *OffsetGuard) Close() error {
	if err := g.Sync(); err != nil {
		return err
	}
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}
