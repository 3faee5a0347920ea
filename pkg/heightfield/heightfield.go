// Package heightfield provides 2D grids of normalized height samples and the
// pure transforms applied to them.
package heightfield

import (
	"errors"
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Heightfield errors.
var (
	ErrData         = errors.New("heightfield data error")
	ErrSizeMismatch = fmt.Errorf("%w: dimension mismatch", ErrData)
)

// HeightField is a width x height grid of samples in [0,1], stored row-major.
// Scale is the world height represented by a sample of 1.0.
//
// Fields are treated as immutable once shared: every transform returns a new
// field. Set is only for building fields and working copies.
type HeightField struct {
	Width  int
	Height int
	Scale  float64
	Data   []float32
}

// New creates a zeroed field.
func New(width, height int, scale float64) *HeightField {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &HeightField{
		Width:  width,
		Height: height,
		Scale:  scale,
		Data:   make([]float32, width*height),
	}
}

// Flat creates a field with every sample set to v.
func Flat(width, height int, scale float64, v float32) *HeightField {
	f := New(width, height, scale)
	for i := range f.Data {
		f.Data[i] = v
	}
	return f
}

// Clone returns a deep copy of f.
func (f *HeightField) Clone() *HeightField {
	out := &HeightField{
		Width:  f.Width,
		Height: f.Height,
		Scale:  f.Scale,
		Data:   make([]float32, len(f.Data)),
	}
	copy(out.Data, f.Data)
	return out
}

// Bounds returns the field's pixel rectangle.
func (f *HeightField) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Empty reports whether f has no samples.
func (f *HeightField) Empty() bool {
	return f == nil || f.Width == 0 || f.Height == 0
}

// At returns the sample at (x, y) with coordinates clamped to the grid.
func (f *HeightField) At(x, y int) float32 {
	if f.Empty() {
		return 0
	}
	x = clampInt(x, 0, f.Width-1)
	y = clampInt(y, 0, f.Height-1)
	return f.Data[y*f.Width+x]
}

// Set writes a sample. Out of range coordinates are ignored.
func (f *HeightField) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	f.Data[y*f.Width+x] = v
}

// MinMax returns the lowest and highest sample.
func (f *HeightField) MinMax() (min, max float32) {
	if f.Empty() {
		return 0, 0
	}
	min, max = f.Data[0], f.Data[0]
	for _, v := range f.Data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Normalize returns a copy rescaled so that min=0 and max=1.
// A constant field normalizes to all zeros.
func (f *HeightField) Normalize() *HeightField {
	out := f.Clone()
	min, max := f.MinMax()
	span := max - min
	for i, v := range out.Data {
		if span <= 0 {
			out.Data[i] = 0
			continue
		}
		out.Data[i] = (v - min) / span
	}
	return out
}

// Invert returns a copy with every sample replaced by 1-sample.
func (f *HeightField) Invert() *HeightField {
	out := f.Clone()
	for i, v := range out.Data {
		out.Data[i] = 1 - v
	}
	return out
}

// Smooth returns a copy blurred by iterations passes of a 3x3 box filter.
// Edge pixels reuse their nearest neighbour.
func (f *HeightField) Smooth(iterations int) *HeightField {
	out := f.Clone()
	if iterations <= 0 || f.Empty() {
		return out
	}

	tmp := make([]float32, len(out.Data))
	for iter := 0; iter < iterations; iter++ {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				var sum float32
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sum += out.At(x+dx, y+dy)
					}
				}
				tmp[y*out.Width+x] = sum / 9
			}
		}
		out.Data, tmp = tmp, out.Data
	}
	return out
}

// BoxBlur returns a copy blurred by a separable box filter of the given
// radius in pixels. Edges clamp.
func (f *HeightField) BoxBlur(radius int) *HeightField {
	out := f.Clone()
	if radius <= 0 || f.Empty() {
		return out
	}

	w, h := f.Width, f.Height
	n := float32(2*radius + 1)
	tmp := make([]float32, len(f.Data))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for k := -radius; k <= radius; k++ {
				sum += f.Data[y*w+clampInt(x+k, 0, w-1)]
			}
			tmp[y*w+x] = sum / n
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for k := -radius; k <= radius; k++ {
				sum += tmp[clampInt(y+k, 0, h-1)*w+x]
			}
			out.Data[y*w+x] = sum / n
		}
	}
	return out
}

// SampleBilinear returns the interpolated height at normalized coordinates.
// u=0 is the centre of the first column and u=1 the centre of the last;
// coordinates outside [0,1] are clamped.
func (f *HeightField) SampleBilinear(u, v float64) float32 {
	if f.Empty() {
		return 0
	}

	fx := float32(clamp01(u)) * float32(f.Width-1)
	fy := float32(clamp01(v)) * float32(f.Height-1)

	x0 := int(fx)
	y0 := int(fy)
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	c00 := f.At(x0, y0)
	c10 := f.At(x0+1, y0)
	c01 := f.At(x0, y0+1)
	c11 := f.At(x0+1, y0+1)

	top := lerp(c00, c10, tx)
	bottom := lerp(c01, c11, tx)
	return lerp(top, bottom, ty)
}

// Region copies the samples inside r (clipped to the field) into a new field.
func (f *HeightField) Region(r image.Rectangle) *HeightField {
	r = r.Intersect(f.Bounds())
	out := New(r.Dx(), r.Dy(), f.Scale)
	for y := 0; y < out.Height; y++ {
		src := (r.Min.Y+y)*f.Width + r.Min.X
		copy(out.Data[y*out.Width:(y+1)*out.Width], f.Data[src:src+out.Width])
	}
	return out
}

// Paste returns a copy of f with src written at offset at. Samples falling
// outside f are dropped.
func (f *HeightField) Paste(src *HeightField, at image.Point) *HeightField {
	out := f.Clone()
	dst := image.Rectangle{Min: at, Max: at.Add(image.Pt(src.Width, src.Height))}.Intersect(out.Bounds())
	for y := dst.Min.Y; y < dst.Max.Y; y++ {
		for x := dst.Min.X; x < dst.Max.X; x++ {
			out.Data[y*out.Width+x] = src.Data[(y-at.Y)*src.Width+(x-at.X)]
		}
	}
	return out
}

// Equal reports whether a and b have the same shape and samples within eps.
func Equal(a, b *HeightField, eps float32) bool {
	if a.Width != b.Width || a.Height != b.Height {
		return false
	}
	for i := range a.Data {
		if math32.Abs(a.Data[i]-b.Data[i]) > eps {
			return false
		}
	}
	return true
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
