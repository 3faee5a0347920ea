package stamplib

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/mask"
	"github.com/Faultbox/terrastamp/pkg/stamp"
)

// writePNG writes a small ramp heightmap and returns its path.
func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	f := heightfield.New(6, 4, 1)
	for i := range f.Data {
		f.Data[i] = float32(i) / float32(len(f.Data)-1)
	}
	p := filepath.Join(dir, name)
	file, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if err := heightfield.Encode(file, f); err != nil {
		t.Fatal(err)
	}
	return p
}

// copyFetcher serves every download from one local file and counts calls.
type copyFetcher struct {
	from  string
	calls int
}

func (c *copyFetcher) fetch(_ context.Context, dst, _ string) error {
	c.calls++
	data, err := os.ReadFile(c.from)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func TestLocalStampIsCached(t *testing.T) {
	ctx := context.Background()
	p := writePNG(t, t.TempDir(), "ridge.png")
	lib := New(t.TempDir(), nil, nil)

	a, err := lib.Stamp(ctx, p, stamp.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if w, h := a.Size(); w != 6 || h != 4 {
		t.Errorf("stamp is %dx%d", w, h)
	}
	b, err := lib.Stamp(ctx, p, stamp.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same source and options built a new stamp")
	}

	inv, err := lib.Stamp(ctx, p, stamp.Options{Invert: true})
	if err != nil {
		t.Fatal(err)
	}
	if inv == a || inv.Field.At(0, 0) != 1 {
		t.Errorf("inverted stamp starts at %v", inv.Field.At(0, 0))
	}

	lib.Invalidate()
	c, err := lib.Stamp(ctx, p, stamp.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !heightfield.Equal(a.Field, c.Field, 0) {
		t.Error("reloading after invalidate changed the stamp")
	}
}

func TestLibraryNames(t *testing.T) {
	ctx := context.Background()
	src := writePNG(t, t.TempDir(), "ridge.png")
	fetcher := &copyFetcher{from: src}

	lib := New(t.TempDir(), map[string]string{
		"ridge": "https://stamps.example.com/ridge.png",
		"mesa":  "s3::https://s3.amazonaws.com/stamps/mesa.png",
	}, nil)
	lib.SetFetcher(fetcher.fetch)

	if got := lib.Names(); len(got) != 2 || got[0] != "mesa" || got[1] != "ridge" {
		t.Errorf("Names = %v", got)
	}

	p, err := lib.Resolve(ctx, "lib:ridge")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(p) != ".png" {
		t.Errorf("cached path %s lost the extension", p)
	}
	if _, err := lib.Resolve(ctx, "lib:ridge"); err != nil || fetcher.calls != 1 {
		t.Errorf("second resolve fetched again (%d calls, %v)", fetcher.calls, err)
	}
	if _, err := lib.Fetch(ctx, "ridge"); err != nil || fetcher.calls != 2 {
		t.Errorf("Fetch did not download (%d calls, %v)", fetcher.calls, err)
	}

	if _, err := lib.Stamp(ctx, "lib:mesa", stamp.Options{}); err != nil {
		t.Errorf("stamp from library: %v", err)
	}

	if _, err := lib.Resolve(ctx, "lib:nope"); !errors.Is(err, ErrUnknownStamp) {
		t.Errorf("expected ErrUnknownStamp, got %v", err)
	}
}

func TestGetterFetchesFileURL(t *testing.T) {
	src := writePNG(t, t.TempDir(), "ridge.png")
	lib := New(t.TempDir(), nil, nil)

	st, err := lib.Stamp(context.Background(), "file://"+filepath.ToSlash(src), stamp.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if w, _ := st.Size(); w != 6 {
		t.Errorf("fetched stamp width %d", w)
	}
}

func TestMissingLocalSource(t *testing.T) {
	lib := New(t.TempDir(), nil, nil)
	_, err := lib.Stamp(context.Background(), filepath.Join(t.TempDir(), "missing.png"), stamp.Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMasksResolveImages(t *testing.T) {
	ctx := context.Background()
	p := writePNG(t, t.TempDir(), "falloff.png")
	lib := New(t.TempDir(), nil, nil)

	defs := []mask.Definition{
		{Kind: mask.KindDistance},
		{Kind: mask.KindImage, Image: &mask.Image{Source: p}},
	}
	stack, err := lib.Masks(ctx, defs)
	if err != nil {
		t.Fatal(err)
	}
	if stack.Len() != 2 {
		t.Errorf("stack has %d operators", stack.Len())
	}
	if err := stack.Validate(6, 4); err != nil {
		t.Errorf("resolved stack invalid: %v", err)
	}
	if defs[1].Image.Field != nil {
		t.Error("Masks modified the definitions")
	}

	if _, err := lib.Masks(ctx, []mask.Definition{{Kind: mask.KindImage, Image: &mask.Image{}}}); !errors.Is(err, heightfield.ErrData) {
		t.Errorf("image mask without source: expected ErrData, got %v", err)
	}
}

func TestExtOf(t *testing.T) {
	tests := []struct{ src, want string }{
		{"https://example.com/a/ridge.png", ".png"},
		{"https://example.com/ridge.tif?version=2", ".tif"},
		{"s3::https://s3.amazonaws.com/bucket/mesa.png", ".png"},
		{"git::https://github.com/org/stamps.git//dunes.png?ref=v1", ".png"},
		{"https://example.com/stamp", ""},
	}
	for _, tt := range tests {
		if got := extOf(tt.src); got != tt.want {
			t.Errorf("extOf(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}
