package storage

import (
	"errors"
	"testing"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

func TestTileCodec(t *testing.T) {
	src := ramp(7, 5)
	src.Data[3] = -0.25

	data := EncodeTile(src)
	if len(data) != tileHeaderSize+4*7*5 {
		t.Fatalf("blob is %d bytes", len(data))
	}
	if string(data[:4]) != "TSTL" {
		t.Errorf("magic = %q", data[:4])
	}

	got, err := DecodeTile(data)
	if err != nil {
		t.Fatal(err)
	}
	if !heightfield.Equal(got, src, 0) || got.Scale != 100 {
		t.Error("decoded tile differs")
	}
}

func TestDecodeTileErrors(t *testing.T) {
	good := EncodeTile(ramp(2, 2))

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 9

	zero := EncodeTile(ramp(2, 2))
	zero[6], zero[7], zero[8], zero[9] = 0, 0, 0, 0

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", good[:10], ErrTruncatedTileData},
		{"magic", append([]byte("XXXX"), good[4:]...), ErrInvalidTileMagic},
		{"version", badVersion, ErrUnsupportedTileVersion},
		{"samples", good[:len(good)-1], ErrTruncatedTileData},
		{"dimensions", zero, heightfield.ErrData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTile(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
