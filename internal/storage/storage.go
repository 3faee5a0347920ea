// Package storage keeps terrain tiles: an in-memory store for tests and
// tools, a directory of tile blobs, and an S3 bucket holding the same layout.
package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/Faultbox/terrastamp/pkg/geom"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

var json = jsoniter.Config{
	IndentionStep:          2,
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Storage errors.
var (
	ErrTileNotFound = errors.New("tile not found")
	ErrTileExists   = errors.New("tile already exists")
)

// TileInfo describes one stored tile.
type TileInfo struct {
	ID     string    `json:"id"`
	Bounds geom.Rect `json:"bounds"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Scale  float64   `json:"scale"`
}

// Store reads and writes terrain tiles.
type Store interface {
	// List returns every tile, sorted by ID.
	List(ctx context.Context) ([]TileInfo, error)
	// Read returns the samples of tile id inside region. An empty region
	// reads the whole tile; other regions are clipped to it.
	Read(ctx context.Context, id string, region image.Rectangle) (*heightfield.HeightField, error)
	// Write replaces the samples of tile id starting at pixel at. Samples
	// falling outside the tile are dropped.
	Write(ctx context.Context, id string, at image.Point, f *heightfield.HeightField) error
	// Create adds a new tile.
	Create(ctx context.Context, info TileInfo, f *heightfield.HeightField) error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendS3     = "s3"
)

// Config selects and locates a store.
type Config struct {
	Backend string
	Dir     string
	S3      S3Config
}

// Open creates the store cfg describes.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendDisk:
		if cfg.Dir == "" {
			return nil, errors.New("disk storage needs a directory")
		}
		return NewDisk(cfg.Dir), nil
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return nil, errors.New("s3 storage needs a bucket")
		}
		return OpenS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// manifest is the index stored next to the tile blobs.
type manifest struct {
	Version int        `json:"version"`
	Tiles   []TileInfo `json:"tiles"`
}

const manifestVersion = 1

func (m *manifest) find(id string) (int, bool) {
	for i, t := range m.Tiles {
		if t.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (m *manifest) add(info TileInfo) {
	m.Tiles = append(m.Tiles, info)
	sortTiles(m.Tiles)
}

func sortTiles(tiles []TileInfo) {
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].ID < tiles[j].ID })
}

// checkCreate validates a new tile against its field.
func checkCreate(info TileInfo, f *heightfield.HeightField) (TileInfo, error) {
	if info.ID == "" || info.ID == "." || info.ID == ".." || strings.ContainsAny(info.ID, `/\`) {
		return info, fmt.Errorf("%w: invalid tile id %q", heightfield.ErrData, info.ID)
	}
	if f.Empty() {
		return info, fmt.Errorf("%w: tile %s has no samples", heightfield.ErrData, info.ID)
	}
	if info.Bounds.Empty() {
		return info, fmt.Errorf("%w: tile %s has empty bounds", heightfield.ErrData, info.ID)
	}
	info.Width, info.Height, info.Scale = f.Width, f.Height, f.Scale
	return info, nil
}

// readRegion clips region to f; an empty region reads everything.
func readRegion(f *heightfield.HeightField, region image.Rectangle) *heightfield.HeightField {
	if region.Empty() {
		return f.Clone()
	}
	return f.Region(region)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrTileNotFound, id)
}
