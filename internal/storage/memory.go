package storage

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

type memoryTile struct {
	info  TileInfo
	field *heightfield.HeightField
}

// Memory keeps tiles in a map.
type Memory struct {
	mu    sync.RWMutex
	tiles map[string]*memoryTile
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tiles: make(map[string]*memoryTile)}
}

// List implements Store.
func (m *Memory) List(ctx context.Context) ([]TileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TileInfo, 0, len(m.tiles))
	for _, t := range m.tiles {
		out = append(out, t.info)
	}
	sortTiles(out)
	return out, nil
}

// Read implements Store.
func (m *Memory) Read(ctx context.Context, id string, region image.Rectangle) (*heightfield.HeightField, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tiles[id]
	if !ok {
		return nil, notFound(id)
	}
	return readRegion(t.field, region), nil
}

// Write implements Store.
func (m *Memory) Write(ctx context.Context, id string, at image.Point, f *heightfield.HeightField) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tiles[id]
	if !ok {
		return notFound(id)
	}
	t.field = t.field.Paste(f, at)
	return nil
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, info TileInfo, f *heightfield.HeightField) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := checkCreate(info, f)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tiles[info.ID]; ok {
		return fmt.Errorf("%w: %s", ErrTileExists, info.ID)
	}
	m.tiles[info.ID] = &memoryTile{info: info, field: f.Clone()}
	return nil
}
