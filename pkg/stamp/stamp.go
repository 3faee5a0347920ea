// Package stamp defines stamps, the operations that combine them with
// terrain, and the settings that place them in the world.
package stamp

import (
	"fmt"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// Options are the pre-processing steps applied to a stamp source.
type Options struct {
	Invert           bool `yaml:"invert,omitempty" json:"invert,omitempty"`
	Normalize        bool `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	SmoothIterations int  `yaml:"smooth_iterations,omitempty" json:"smooth_iterations,omitempty"`
}

// Stamp is a prepared source heightfield.
type Stamp struct {
	Field   *heightfield.HeightField
	Options Options
}

// New builds a stamp from source: normalize, then invert, then smooth.
// The same source and options always give the same field.
func New(source *heightfield.HeightField, opts Options) (*Stamp, error) {
	if source.Empty() {
		return nil, fmt.Errorf("%w: empty stamp source", heightfield.ErrData)
	}

	f := source
	if opts.Normalize {
		f = f.Normalize()
	}
	if opts.Invert {
		f = f.Invert()
	}
	if opts.SmoothIterations > 0 {
		f = f.Smooth(opts.SmoothIterations)
	}
	if f == source {
		f = source.Clone()
	}
	return &Stamp{Field: f, Options: opts}, nil
}

// Size returns the stamp's pixel dimensions.
func (s *Stamp) Size() (width, height int) {
	return s.Field.Width, s.Field.Height
}

// Sample returns the raw stamp value at (u, v) across the stamp rectangle,
// where texel i covers [i/W, (i+1)/W) and is sampled at its centre.
func (s *Stamp) Sample(u, v float64) float32 {
	return s.Field.SampleBilinear(texel(u, s.Field.Width), texel(v, s.Field.Height))
}

// texel maps a rectangle coordinate to SampleBilinear's centre-to-centre space.
func texel(u float64, n int) float64 {
	if n <= 1 {
		return 0
	}
	return (u*float64(n) - 0.5) / float64(n-1)
}
