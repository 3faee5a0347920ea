package stamper

import (
	"image"
	"sort"
	"sync"

	"github.com/Faultbox/terrastamp/pkg/compositor"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// Cache holds the last preview and the tiles it was computed from.
type Cache struct {
	mu     sync.Mutex
	result *compositor.Result
	before map[string]*heightfield.HeightField
}

// Result returns the cached preview, or nil.
func (c *Cache) Result() *compositor.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Invalidate drops the cached preview.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = nil
	c.before = nil
}

func (c *Cache) store(res *compositor.Result, tiles []compositor.Tile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = res
	c.before = make(map[string]*heightfield.HeightField, len(tiles))
	for _, t := range tiles {
		c.before[t.ID] = t.Field
	}
}

// snapshot captures the before and after state of every tile res changes.
func (c *Cache) snapshot(res *compositor.Result) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &Snapshot{Tiles: make(map[string]SnapshotTile, len(res.Changed))}
	for _, id := range res.Changed {
		before, ok := c.before[id]
		if !ok {
			continue
		}
		snap.Tiles[id] = SnapshotTile{
			Dirty:  res.Dirty[id],
			Before: before,
			After:  res.Fields[id],
		}
	}
	return snap
}

// SnapshotTile is one tile's state around an Apply.
type SnapshotTile struct {
	Dirty  image.Rectangle
	Before *heightfield.HeightField
	After  *heightfield.HeightField
}

func (t SnapshotTile) region(before bool) *heightfield.HeightField {
	if before {
		return t.Before.Region(t.Dirty)
	}
	return t.After.Region(t.Dirty)
}

// Snapshot is the single level of undo.
type Snapshot struct {
	Tiles  map[string]SnapshotTile
	undone bool
}

// IDs returns the snapshot's tile IDs in sorted order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Tiles))
	for id := range s.Tiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Snapshot) fields(before bool) map[string]*heightfield.HeightField {
	out := make(map[string]*heightfield.HeightField, len(s.Tiles))
	for id, t := range s.Tiles {
		if before {
			out[id] = t.Before
		} else {
			out[id] = t.After
		}
	}
	return out
}

// HeightTracker keeps the height range of every known tile. It feeds the
// terrain min/max of the mask context and stays current as a Notifier.
type HeightTracker struct {
	mu     sync.Mutex
	ranges map[string][2]float32
}

// NewHeightTracker creates an empty tracker.
func NewHeightTracker() *HeightTracker {
	return &HeightTracker{ranges: make(map[string][2]float32)}
}

// Track records the range of each tile.
func (h *HeightTracker) Track(tiles []compositor.Tile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range tiles {
		if t.Field.Empty() {
			continue
		}
		min, max := t.Field.MinMax()
		h.ranges[t.ID] = [2]float32{min, max}
	}
}

// TilesChanged implements compositor.Notifier.
func (h *HeightTracker) TilesChanged(ids []string, fields map[string]*heightfield.HeightField) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		f := fields[id]
		if f.Empty() {
			continue
		}
		min, max := f.MinMax()
		h.ranges[id] = [2]float32{min, max}
	}
}

// Empty reports whether no tile has been tracked.
func (h *HeightTracker) Empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ranges) == 0
}

// Tile returns the range of one tile.
func (h *HeightTracker) Tile(id string) (min, max float32, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.ranges[id]
	return r[0], r[1], ok
}

// HeightRange implements compositor.HeightRanger.
func (h *HeightTracker) HeightRange() (min, max float32, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	first := true
	for _, r := range h.ranges {
		if first || r[0] < min {
			min = r[0]
		}
		if first || r[1] > max {
			max = r[1]
		}
		first = false
	}
	return min, max, !first
}
