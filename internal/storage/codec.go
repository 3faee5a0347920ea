package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// Tile blob errors.
var (
	ErrInvalidTileMagic       = errors.New("invalid tile magic: expected 'TSTL'")
	ErrUnsupportedTileVersion = errors.New("unsupported tile version")
	ErrTruncatedTileData      = errors.New("truncated tile data")
)

const (
	tileMagic   = "TSTL"
	tileVersion = 1

	// magic, version, width, height, scale
	tileHeaderSize = 4 + 2 + 4 + 4 + 8

	maxTileSide = 1 << 14
)

// EncodeTile serialises a field as a tile blob: the "TSTL" magic, a uint16
// version, uint32 width and height, a float64 height scale and the samples
// as little endian float32 in row order.
func EncodeTile(f *heightfield.HeightField) []byte {
	buf := make([]byte, tileHeaderSize+4*len(f.Data))
	copy(buf, tileMagic)
	binary.LittleEndian.PutUint16(buf[4:], tileVersion)
	binary.LittleEndian.PutUint32(buf[6:], uint32(f.Width))
	binary.LittleEndian.PutUint32(buf[10:], uint32(f.Height))
	binary.LittleEndian.PutUint64(buf[14:], math.Float64bits(f.Scale))

	off := tileHeaderSize
	for _, v := range f.Data {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return buf
}

// DecodeTile parses a tile blob.
func DecodeTile(data []byte) (*heightfield.HeightField, error) {
	if len(data) < tileHeaderSize {
		return nil, ErrTruncatedTileData
	}
	if string(data[0:4]) != tileMagic {
		return nil, ErrInvalidTileMagic
	}

	r := bytes.NewReader(data[4:])

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: reading version", ErrTruncatedTileData)
	}
	if version != tileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTileVersion, version)
	}

	var width, height uint32
	if err := binary.Read(r, binary.LittleEndian, &width); err != nil {
		return nil, fmt.Errorf("%w: reading width", ErrTruncatedTileData)
	}
	if err := binary.Read(r, binary.LittleEndian, &height); err != nil {
		return nil, fmt.Errorf("%w: reading height", ErrTruncatedTileData)
	}
	if width == 0 || height == 0 || width > maxTileSide || height > maxTileSide {
		return nil, fmt.Errorf("%w: invalid tile dimensions %dx%d", heightfield.ErrData, width, height)
	}

	var scale float64
	if err := binary.Read(r, binary.LittleEndian, &scale); err != nil {
		return nil, fmt.Errorf("%w: reading scale", ErrTruncatedTileData)
	}

	f := heightfield.New(int(width), int(height), scale)
	if err := binary.Read(r, binary.LittleEndian, f.Data); err != nil {
		return nil, fmt.Errorf("%w: reading %d samples", ErrTruncatedTileData, len(f.Data))
	}
	return f, nil
}
