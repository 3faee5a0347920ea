// Package preview renders heightfields and mask weights to images.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"

	"github.com/Faultbox/terrastamp/pkg/compositor"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/mask"
)

// Band is one colour stop of the terrain palette. Heights are relative:
// 0 is sea level, -1 the lowest point below it and 1 the highest above it.
type Band struct {
	At    float32
	Color color.RGBA
}

// DefaultPalette goes from deep water through sand, grass and rock to snow.
var DefaultPalette = []Band{
	{-1, color.RGBA{18, 40, 92, 255}},
	{0, color.RGBA{64, 128, 190, 255}},
	{0.0001, color.RGBA{214, 200, 146, 255}},
	{0.05, color.RGBA{196, 186, 130, 255}},
	{0.12, color.RGBA{92, 148, 70, 255}},
	{0.5, color.RGBA{54, 104, 46, 255}},
	{0.7, color.RGBA{128, 116, 104, 255}},
	{0.88, color.RGBA{170, 166, 160, 255}},
	{0.92, color.RGBA{244, 244, 248, 255}},
	{1, color.RGBA{255, 255, 255, 255}},
}

// Options controls rendering.
type Options struct {
	SeaLevel float32 // normalized
	Size     int     // longest side in pixels, 0 keeps the field size
	Colour   bool    // palette bands instead of grayscale
	Palette  []Band  // nil uses DefaultPalette
}

// Render draws f.
func Render(f *heightfield.HeightField, opts Options) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	palette := opts.Palette
	if palette == nil {
		palette = DefaultPalette
	}
	min, max := f.MinMax()

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			h := f.At(x, y)
			if opts.Colour {
				img.SetRGBA(x, y, bandColour(palette, relative(h, opts.SeaLevel, min, max)))
				continue
			}
			g := uint8(clamp01(h) * 255)
			img.SetRGBA(x, y, color.RGBA{g, g, g, 255})
		}
	}
	return resize(img, opts.Size)
}

// relative maps h to [-1, 1] around the sea level.
func relative(h, sea, min, max float32) float32 {
	if h < sea {
		if sea-min <= 0 {
			return 0
		}
		return -(sea - h) / (sea - min)
	}
	if max-sea <= 0 {
		return 0
	}
	return (h - sea) / (max - sea)
}

func bandColour(bands []Band, t float32) color.RGBA {
	if len(bands) == 0 {
		return color.RGBA{A: 255}
	}
	if t <= bands[0].At {
		return bands[0].Color
	}
	for i := 1; i < len(bands); i++ {
		if t <= bands[i].At {
			a, b := bands[i-1], bands[i]
			span := b.At - a.At
			if span <= 0 {
				return b.Color
			}
			return mix(a.Color, b.Color, (t-a.At)/span)
		}
	}
	return bands[len(bands)-1].Color
}

func mix(a, b color.RGBA, t float32) color.RGBA {
	l := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(float32(x) + (float32(y)-float32(x))*t)))
	}
	return color.RGBA{l(a.R, b.R), l(a.G, b.G), l(a.B, b.B), l(a.A, b.A)}
}

// Overlay tints img by weights, one per pixel in row order, with c at full
// weight. It is a no-op when the sizes differ.
func Overlay(img *image.RGBA, weights []float32, c color.RGBA) {
	b := img.Bounds()
	if len(weights) != b.Dx()*b.Dy() {
		return
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			w := clamp01(weights[y*b.Dx()+x]) * float32(c.A) / 255
			px := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			img.SetRGBA(b.Min.X+x, b.Min.Y+y, mix(px, color.RGBA{c.R, c.G, c.B, px.A}, w))
		}
	}
}

// MaskWeights evaluates the result weight of stack over a w x h grid in
// stamp space with an empty terrain context.
func MaskWeights(stack *mask.Stack, w, h int) []float32 {
	samples := make([]mask.Sample, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			samples[y*w+x] = mask.Sample{
				U: (float64(x) + 0.5) / float64(w),
				V: (float64(y) + 0.5) / float64(h),
			}
		}
	}
	weights := stack.EvaluateGrid(w, h, samples)
	out := make([]float32, len(weights))
	for i, wt := range weights {
		out[i] = wt.Result
	}
	return out
}

// RenderMask draws the result weight of stack as a grayscale image.
func RenderMask(stack *mask.Stack, w, h, size int) *image.RGBA {
	f := heightfield.New(w, h, 1)
	copy(f.Data, MaskWeights(stack, w, h))
	return Render(f, Options{Size: size})
}

// Mosaic stitches tiles sharing a pixel spacing into one field, placed by
// their bounds. Gaps are left at the lowest height found.
func Mosaic(tiles []compositor.Tile) (*heightfield.HeightField, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: no tiles", heightfield.ErrData)
	}
	dx, dz := tiles[0].Spacing()
	originX, originZ := tiles[0].Bounds.MinX, tiles[0].Bounds.MinZ
	for _, t := range tiles {
		originX = math.Min(originX, t.Bounds.MinX)
		originZ = math.Min(originZ, t.Bounds.MinZ)
	}

	var span image.Rectangle
	at := make([]image.Point, len(tiles))
	low := float32(math.Inf(1))
	for i, t := range tiles {
		tdx, tdz := t.Spacing()
		if math.Abs(tdx-dx) > 1e-9 || math.Abs(tdz-dz) > 1e-9 {
			return nil, fmt.Errorf("%w: tile %s has a different pixel spacing", heightfield.ErrData, t.ID)
		}
		at[i] = image.Pt(int(math.Round((t.Bounds.MinX-originX)/dx)), int(math.Round((t.Bounds.MinZ-originZ)/dz)))
		span = span.Union(t.Field.Bounds().Add(at[i]))
		if min, _ := t.Field.MinMax(); min < low {
			low = min
		}
	}

	out := heightfield.Flat(span.Dx(), span.Dy(), tiles[0].Field.Scale, low)
	for i, t := range tiles {
		out = out.Paste(t.Field, at[i])
	}
	return out, nil
}

// Save writes img as a PNG.
func Save(path string, img image.Image) error {
	return imgio.Save(path, img, imgio.PNGEncoder())
}

func resize(img *image.RGBA, size int) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if size <= 0 || w == 0 || h == 0 || (w == size && h <= size) || (h == size && w <= size) {
		return img
	}
	if w >= h {
		h = int(math.Max(1, math.Round(float64(h)*float64(size)/float64(w))))
		w = size
	} else {
		w = int(math.Max(1, math.Round(float64(w)*float64(size)/float64(h))))
		h = size
	}
	return transform.Resize(img, w, h, transform.Linear)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
