package storage

import (
	"context"
	"fmt"
	"image"

	"github.com/Faultbox/terrastamp/pkg/compositor"
	"github.com/Faultbox/terrastamp/pkg/geom"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// Terrain exposes a Store as the tile source of a stamper.
type Terrain struct {
	Store Store
}

// NewTerrain wraps s.
func NewTerrain(s Store) *Terrain {
	return &Terrain{Store: s}
}

// Load reads every tile intersecting area. An empty area loads all tiles.
func (t *Terrain) Load(ctx context.Context, area geom.Rect) ([]compositor.Tile, error) {
	infos, err := t.Store.List(ctx)
	if err != nil {
		return nil, err
	}

	var tiles []compositor.Tile
	for _, info := range infos {
		if !area.Empty() && !info.Bounds.Intersects(area) {
			continue
		}
		f, err := t.Store.Read(ctx, info.ID, image.Rectangle{})
		if err != nil {
			return nil, fmt.Errorf("reading tile %s: %w", info.ID, err)
		}
		tiles = append(tiles, compositor.Tile{ID: info.ID, Bounds: info.Bounds, Field: f})
	}
	return tiles, nil
}

// Write passes through to the store.
func (t *Terrain) Write(ctx context.Context, id string, at image.Point, f *heightfield.HeightField) error {
	return t.Store.Write(ctx, id, at, f)
}

// CreateGrid fills s with a countX by countZ grid of flat tiles, each
// width x height samples covering size x size world units, starting at the
// origin. Tile IDs are "x<col>_z<row>".
func CreateGrid(ctx context.Context, s Store, countX, countZ, width, height int, size, scale float64, level float32) ([]TileInfo, error) {
	if countX <= 0 || countZ <= 0 || width <= 0 || height <= 0 || size <= 0 {
		return nil, fmt.Errorf("%w: invalid grid %dx%d of %dx%d tiles", heightfield.ErrData, countX, countZ, width, height)
	}
	length := size * float64(height) / float64(width)
	var out []TileInfo
	for z := 0; z < countZ; z++ {
		for x := 0; x < countX; x++ {
			info := TileInfo{
				ID:     fmt.Sprintf("x%d_z%d", x, z),
				Bounds: geom.RectFrom(float64(x)*size, float64(z)*length, size, length),
			}
			f := heightfield.Flat(width, height, scale, level)
			if err := s.Create(ctx, info, f); err != nil {
				return out, fmt.Errorf("creating tile %s: %w", info.ID, err)
			}
			info.Width, info.Height, info.Scale = width, height, scale
			out = append(out, info)
		}
	}
	return out, nil
}
