package stamp

import (
	"fmt"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/chewxy/math32"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// Region is a working buffer gathered from one or more tiles. Adj, Raw and
// Weight are row-major with the same shape as Dest.
type Region struct {
	Dest    *heightfield.HeightField
	Adj     []float32
	Raw     []float32
	Weight  []float32
	Inside  []bool  // pixel lies inside the stamp rectangle
	Spacing float64 // world units per pixel
}

// NewRegion allocates per-pixel buffers for dest.
func NewRegion(dest *heightfield.HeightField, spacing float64) *Region {
	n := dest.Width * dest.Height
	return &Region{
		Dest:    dest,
		Adj:     make([]float32, n),
		Raw:     make([]float32, n),
		Weight:  make([]float32, n),
		Inside:  make([]bool, n),
		Spacing: spacing,
	}
}

func (r *Region) validate() error {
	if r.Dest.Empty() {
		return fmt.Errorf("%w: empty region", heightfield.ErrData)
	}
	n := r.Dest.Width * r.Dest.Height
	if len(r.Adj) != n || len(r.Raw) != n || len(r.Weight) != n || len(r.Inside) != n {
		return fmt.Errorf("%w: region buffers do not match %dx%d", heightfield.ErrSizeMismatch, r.Dest.Width, r.Dest.Height)
	}
	return nil
}

// Run applies op to every pixel of the region and returns the new heights.
// Pointwise operations are split by rows across goroutines; field operations
// process the region as one unit.
func Run(op Operation, r *Region, base BaseLevel, p *Params) (*heightfield.HeightField, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if op.IsField() {
		return ApplyField(op, r, base, p), nil
	}

	out := r.Dest.Clone()
	w := r.Dest.Width
	parallel.Line(r.Dest.Height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if !r.Inside[i] {
					continue
				}
				out.Data[i] = Apply(op, Pixel{
					Dest:   r.Dest.Data[i],
					Adj:    r.Adj[i],
					Raw:    r.Raw[i],
					Weight: r.Weight[i],
				}, base, p)
			}
		}
	})
	return out, nil
}

// ApplyField computes the transformed region for a field operation, then
// blends it into the destination by the mask weight. Pixels outside the
// stamp or gated by the base level keep their height.
func ApplyField(op Operation, r *Region, base BaseLevel, p *Params) *heightfield.HeightField {
	var target *heightfield.HeightField
	switch op {
	case Contrast:
		target = contrast(r.Dest, p.FeatureSize, p.ContrastStrength)
	case Terrace:
		target = r.Dest.Clone()
		for i, v := range target.Data {
			target.Data[i] = terrace(v, p.TerraceCount, p.TerraceJitter, p.TerraceBevel)
		}
	case SharpenRidges:
		target = sharpenRidges(r.Dest, p.RidgeIterations, p.RidgeStrength)
	case Smooth:
		target = smooth(r.Dest, p.SmoothRadius, p.SmoothVerticality)
	case HydraulicErosion:
		target = erode(r.Dest, p.Erosion, r.Spacing)
	default:
		return r.Dest.Clone()
	}

	out := r.Dest.Clone()
	for i := range out.Data {
		if !r.Inside[i] || base.Gates(r.Raw[i]) {
			continue
		}
		out.Data[i] = clamp01(lerp(r.Dest.Data[i], target.Data[i], r.Weight[i]))
	}
	return out
}

// contrast pushes heights away from their local mean. featureSize is the
// blur radius that defines "local".
func contrast(f *heightfield.HeightField, featureSize int, strength float32) *heightfield.HeightField {
	if featureSize < 1 {
		featureSize = 1
	}
	mean := f.BoxBlur(featureSize)
	out := f.Clone()
	for i, v := range f.Data {
		m := mean.Data[i]
		out.Data[i] = clamp01(m + (v-m)*(1+strength))
	}
	return out
}

// sharpenRidges lifts pixels above their neighbourhood mean, repeatedly.
func sharpenRidges(f *heightfield.HeightField, iterations int, strength float32) *heightfield.HeightField {
	out := f.Clone()
	for it := 0; it < iterations; it++ {
		mean := out.BoxBlur(1)
		for i, v := range out.Data {
			if d := v - mean.Data[i]; d > 0 {
				out.Data[i] = clamp01(v + d*strength)
			}
		}
	}
	return out
}

// smooth blurs with a bias: verticality -1 only lowers, +1 only raises.
func smooth(f *heightfield.HeightField, radius int, verticality float32) *heightfield.HeightField {
	blurred := f.BoxBlur(radius)
	raise := math32.Min(1, 1+verticality)
	lower := math32.Min(1, 1-verticality)

	out := f.Clone()
	for i, v := range f.Data {
		d := blurred.Data[i] - v
		if d > 0 {
			out.Data[i] = v + d*raise
		} else {
			out.Data[i] = v + d*lower
		}
	}
	return out
}

// terrace quantises h into count steps. Jitter shifts each step level by a
// deterministic per-step amount; bevel is the fraction of each step that
// ramps towards the next one.
func terrace(h float32, count int, jitter, bevel float32) float32 {
	if count < 1 {
		return h
	}
	n := float32(count)
	s := h * n
	k := math32.Floor(s)
	frac := s - k

	level := func(step float32) float32 {
		return clamp01((step + jitter*(stepHash(step)-0.5)) / n)
	}

	lo := level(k)
	if bevel <= 0 || frac < 1-bevel {
		return lo
	}
	t := (frac - (1 - bevel)) / bevel
	return lerp(lo, level(k+1), t)
}

// stepHash maps a step index to [0,1).
func stepHash(k float32) float32 {
	v := math32.Sin(k*12.9898+78.233) * 43758.5453
	return v - math32.Floor(v)
}
