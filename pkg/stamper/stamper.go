// Package stamper holds the editing state around a stamp: settings, masks,
// the cached preview and a single level of undo.
package stamper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastamp/pkg/compositor"
	"github.com/Faultbox/terrastamp/pkg/geom"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/mask"
	"github.com/Faultbox/terrastamp/pkg/stamp"
)

// Stamper errors.
var (
	ErrBusy    = errors.New("stamper is applying")
	ErrNoStamp = errors.New("no stamp loaded")
)

// TileStore is the terrain storage the stamper reads from and writes to.
type TileStore interface {
	// Load returns the tiles intersecting area; an empty area means all tiles.
	Load(ctx context.Context, area geom.Rect) ([]compositor.Tile, error)
	// Write replaces the samples of tile id starting at pixel at.
	Write(ctx context.Context, id string, at image.Point, f *heightfield.HeightField) error
}

// Stamper owns one stamp being edited and applied to terrain.
//
// Any edit marks it dirty. Preview recomputes only when dirty; Apply writes
// the preview through the store and keeps a snapshot for Undo. Only one
// level of undo is kept: a new Apply replaces the previous snapshot.
type Stamper struct {
	store TileStore
	comp  *compositor.Compositor
	log   *zap.Logger

	mu        sync.Mutex
	settings  *stamp.Settings
	stack     *mask.Stack
	stamp     *stamp.Stamp
	cache     *Cache
	snapshot  *Snapshot
	tracker   *HeightTracker
	notifiers []compositor.Notifier
	dirty     bool
	complete  bool
	applied   bool
}

// New creates a stamper with default settings. A nil logger discards output.
func New(store TileStore, comp *compositor.Compositor, log *zap.Logger) *Stamper {
	if log == nil {
		log = zap.NewNop()
	}
	if comp == nil {
		comp = compositor.New(log)
	}
	tracker := NewHeightTracker()
	comp.Heights = tracker

	s := &Stamper{
		store:    store,
		comp:     comp,
		log:      log,
		settings: stamp.DefaultSettings(),
		cache:    &Cache{},
		tracker:  tracker,
		dirty:    true,
		complete: true,
	}
	s.notifiers = []compositor.Notifier{tracker}
	return s
}

// AddNotifier registers n to be told about tiles written by Apply, Undo and Redo.
func (s *Stamper) AddNotifier(n compositor.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Settings returns a copy of the current settings.
func (s *Stamper) Settings() *stamp.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// Tracker returns the height tracker feeding the mask context.
func (s *Stamper) Tracker() *HeightTracker {
	return s.tracker
}

// Update edits the settings. Out of range values are clamped and returned.
func (s *Stamper) Update(fn func(*stamp.Settings)) []stamp.ParameterError {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.Clone()
	fn(next)
	clamped, fixes := next.Clamp()
	for _, f := range fixes {
		s.log.Warn("stamp parameter clamped", zap.String("field", f.Field),
			zap.Float64("value", f.Value), zap.Float64("clamped", f.Clamped))
	}
	s.settings = clamped
	s.dirty = true
	return fixes
}

// SetStamp replaces the stamp.
func (s *Stamper) SetStamp(st *stamp.Stamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp = st
	s.dirty = true
}

// SetMasks replaces the mask stack.
func (s *Stamper) SetMasks(stack *mask.Stack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = stack
	s.dirty = true
}

// Invalidate drops the cached preview so the next Preview recomputes.
func (s *Stamper) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Invalidate()
	s.dirty = true
}

// Dirty reports whether an edit happened since the last preview.
func (s *Stamper) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Complete reports whether no Apply is running.
func (s *Stamper) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Preview returns the result of applying the stamp without writing it.
// A clean stamper returns the cached result.
func (s *Stamper) Preview(ctx context.Context) (*compositor.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview(ctx)
}

// preview must be called with mu held.
func (s *Stamper) preview(ctx context.Context) (*compositor.Result, error) {
	if res := s.cache.Result(); res != nil && !s.dirty {
		return res, nil
	}
	if s.stamp == nil {
		return nil, ErrNoStamp
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.tracker.Empty() {
		all, err := s.store.Load(ctx, geom.Rect{})
		if err != nil {
			return nil, fmt.Errorf("loading terrain: %w", err)
		}
		s.tracker.Track(all)
	}

	fp := s.settings.Footprint()
	tiles, err := s.store.Load(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("loading terrain: %w", err)
	}
	// neighbours touching the context margin feed slopes and field operations
	if area := compositor.ContextArea(s.settings, tiles); area != fp {
		if tiles, err = s.store.Load(ctx, area); err != nil {
			return nil, fmt.Errorf("loading terrain: %w", err)
		}
	}

	res, err := s.comp.Apply(s.stamp, s.settings, s.stack, tiles)
	if err != nil {
		return nil, err
	}
	if res.Warning != nil {
		s.log.Warn("stamp preview", zap.Error(res.Warning))
	}

	s.cache.store(res, tiles)
	s.dirty = false
	s.applied = false
	return res, nil
}

// begin marks an operation that writes terrain as running.
func (s *Stamper) begin() error {
	if !s.complete {
		return ErrBusy
	}
	s.complete = false
	return nil
}

func (s *Stamper) end() {
	s.mu.Lock()
	s.complete = true
	s.mu.Unlock()
}

// Apply writes the previewed result to the terrain. Applying again without
// an edit in between is a no-op.
func (s *Stamper) Apply(ctx context.Context) (*compositor.Result, error) {
	s.mu.Lock()
	if err := s.begin(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.applied && !s.dirty && s.cache.Result() != nil {
		res := s.cache.Result()
		s.mu.Unlock()
		s.end()
		return res, nil
	}

	res, err := s.preview(ctx)
	if err != nil {
		s.mu.Unlock()
		s.end()
		return nil, err
	}
	snap := s.cache.snapshot(res)
	notifiers := append([]compositor.Notifier(nil), s.notifiers...)
	s.mu.Unlock()
	defer s.end()

	if len(snap.Tiles) == 0 {
		s.mu.Lock()
		s.applied = true
		s.mu.Unlock()
		return res, nil
	}

	if err := s.write(ctx, snap, false); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.snapshot = snap
	s.applied = true
	s.mu.Unlock()

	notify(notifiers, res.Changed, res.Fields)
	s.log.Info("stamp applied", zap.Strings("tiles", res.Changed))
	return res, nil
}

// Undo restores the terrain from before the last Apply. It is a no-op when
// there is nothing to undo.
func (s *Stamper) Undo(ctx context.Context) error {
	s.mu.Lock()
	if err := s.begin(); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot
	notifiers := append([]compositor.Notifier(nil), s.notifiers...)
	s.mu.Unlock()
	defer s.end()

	if snap == nil || snap.undone {
		return nil
	}
	if err := s.write(ctx, snap, true); err != nil {
		return err
	}

	s.mu.Lock()
	snap.undone = true
	s.applied = false
	s.mu.Unlock()

	notify(notifiers, snap.IDs(), snap.fields(true))
	s.log.Info("stamp undone", zap.Strings("tiles", snap.IDs()))
	return nil
}

// Redo writes the undone result again and discards the snapshot. It is a
// no-op unless Undo ran last.
func (s *Stamper) Redo(ctx context.Context) error {
	s.mu.Lock()
	if err := s.begin(); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot
	notifiers := append([]compositor.Notifier(nil), s.notifiers...)
	s.mu.Unlock()
	defer s.end()

	if snap == nil || !snap.undone {
		return nil
	}
	if err := s.write(ctx, snap, false); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = nil
	s.applied = !s.dirty && s.cache.Result() != nil
	s.mu.Unlock()

	notify(notifiers, snap.IDs(), snap.fields(false))
	s.log.Info("stamp redone", zap.Strings("tiles", snap.IDs()))
	return nil
}

// LastSnapshot returns the snapshot kept by the last Apply, or nil.
func (s *Stamper) LastSnapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// CanUndo reports whether Undo would change the terrain.
func (s *Stamper) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot != nil && !s.snapshot.undone
}

// CanRedo reports whether Redo would change the terrain.
func (s *Stamper) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot != nil && s.snapshot.undone
}

// write stores one side of a snapshot. On failure the tiles already written
// are rolled back.
func (s *Stamper) write(ctx context.Context, snap *Snapshot, before bool) error {
	ids := snap.IDs()
	for i, id := range ids {
		t := snap.Tiles[id]
		if err := s.store.Write(ctx, id, t.Dirty.Min, t.region(before)); err != nil {
			for _, done := range ids[:i] {
				d := snap.Tiles[done]
				if rerr := s.store.Write(ctx, done, d.Dirty.Min, d.region(!before)); rerr != nil {
					s.log.Error("rollback failed", zap.String("tile", done), zap.Error(rerr))
				}
			}
			return fmt.Errorf("writing tile %s: %w", id, err)
		}
	}
	return nil
}

func notify(ns []compositor.Notifier, ids []string, fields map[string]*heightfield.HeightField) {
	for _, n := range ns {
		n.TilesChanged(ids, fields)
	}
}
