package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// errNoBlob is returned by a blob layer for missing keys.
var errNoBlob = errors.New("no such blob")

const (
	manifestKey     = "manifest.json"
	tileExt         = ".tile"
	jsonContentType = "application/json"
	tileContentType = "application/octet-stream"
)

// blobs is the object layer under the disk and S3 stores.
type blobs interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, data []byte, contentType string) error
}

// blobStore keeps a manifest and one tile blob per tile on top of blobs.
type blobStore struct {
	mu sync.Mutex
	b  blobs
}

func tileKey(id string) string {
	return id + tileExt
}

func (s *blobStore) manifest(ctx context.Context) (*manifest, error) {
	data, err := s.b.get(ctx, manifestKey)
	if errors.Is(err, errNoBlob) {
		return &manifest{Version: manifestVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", heightfield.ErrData, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", heightfield.ErrData, m.Version)
	}
	return &m, nil
}

func (s *blobStore) tile(ctx context.Context, id string) (*heightfield.HeightField, error) {
	data, err := s.b.get(ctx, tileKey(id))
	if errors.Is(err, errNoBlob) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading tile %s: %w", id, err)
	}
	f, err := DecodeTile(data)
	if err != nil {
		return nil, fmt.Errorf("decoding tile %s: %w", id, err)
	}
	return f, nil
}

// List implements Store.
func (s *blobStore) List(ctx context.Context) ([]TileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.manifest(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]TileInfo(nil), m.Tiles...)
	sortTiles(out)
	return out, nil
}

// Read implements Store.
func (s *blobStore) Read(ctx context.Context, id string, region image.Rectangle) (*heightfield.HeightField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.tile(ctx, id)
	if err != nil {
		return nil, err
	}
	return readRegion(f, region), nil
}

// Write implements Store.
func (s *blobStore) Write(ctx context.Context, id string, at image.Point, f *heightfield.HeightField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.tile(ctx, id)
	if err != nil {
		return err
	}
	return s.b.put(ctx, tileKey(id), EncodeTile(cur.Paste(f, at)), tileContentType)
}

// Create implements Store. The blob is written before the manifest so a
// failed create never lists a missing tile.
func (s *blobStore) Create(ctx context.Context, info TileInfo, f *heightfield.HeightField) error {
	info, err := checkCreate(info, f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.manifest(ctx)
	if err != nil {
		return err
	}
	if _, ok := m.find(info.ID); ok {
		return fmt.Errorf("%w: %s", ErrTileExists, info.ID)
	}

	if err := s.b.put(ctx, tileKey(info.ID), EncodeTile(f), tileContentType); err != nil {
		return fmt.Errorf("writing tile %s: %w", info.ID, err)
	}
	m.add(info)
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.b.put(ctx, manifestKey, data, jsonContentType); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
