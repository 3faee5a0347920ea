package mask

import (
	"fmt"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// Kind names an operator variant in a Definition.
type Kind int

// Operator kinds.
const (
	KindNoise Kind = iota
	KindDistance
	KindImage
	KindHeight
	KindSlope
	KindCollision
	KindSmooth
)

var kindNames = []string{"noise", "distance", "image", "height", "slope", "collision", "smooth"}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	i, err := parseName("mask kind", kindNames, string(text))
	if err != nil {
		return err
	}
	*k = Kind(i)
	return nil
}

// Definition is the serialisable form of an operator:
//
//	- kind: noise
//	  blend: multiply
//	  noise: {type: simplex, seed: 7, octaves: 4}
//
// Only the block matching Kind is used. A missing block means defaults.
type Definition struct {
	Kind   Kind `yaml:"kind" json:"kind"`
	Common `yaml:",inline"`

	Noise     *Noise       `yaml:"noise,omitempty" json:"noise,omitempty"`
	Distance  *Distance    `yaml:"distance,omitempty" json:"distance,omitempty"`
	Image     *Image       `yaml:"image,omitempty" json:"image,omitempty"`
	Height    *HeightRange `yaml:"height,omitempty" json:"height,omitempty"`
	Slope     *Slope       `yaml:"slope,omitempty" json:"slope,omitempty"`
	Collision *Collision   `yaml:"collision,omitempty" json:"collision,omitempty"`
	Smooth    *Smooth      `yaml:"smooth,omitempty" json:"smooth,omitempty"`
}

// Build creates a fresh operator from d. The definition is not shared with
// the operator, so preparing the operator leaves d untouched.
func (d *Definition) Build() (Operator, error) {
	switch d.Kind {
	case KindNoise:
		var o Noise
		if d.Noise != nil {
			o = *d.Noise
		} else {
			o = Noise{Octaves: 4, Persistence: 0.5, Frequency: 0.01, Lacunarity: 2}
		}
		o.perlin, o.simplex = nil, nil
		o.Common = d.Common
		return &o, nil
	case KindDistance:
		var o Distance
		if d.Distance != nil {
			o = *d.Distance
			o.Curve = append(Curve(nil), d.Distance.Curve...)
		}
		o.Common = d.Common
		return &o, nil
	case KindImage:
		if d.Image == nil {
			return nil, fmt.Errorf("%w: image mask without image block", heightfield.ErrData)
		}
		o := *d.Image
		o.prepared = nil
		o.Common = d.Common
		return &o, nil
	case KindHeight:
		o := HeightRange{Max: 1}
		if d.Height != nil {
			o = *d.Height
		}
		o.Common = d.Common
		return &o, nil
	case KindSlope:
		o := Slope{MaxDegrees: 90}
		if d.Slope != nil {
			o = *d.Slope
		}
		o.Common = d.Common
		return &o, nil
	case KindCollision:
		var o Collision
		if d.Collision != nil {
			o = *d.Collision
			o.Circles = append([]Circle(nil), d.Collision.Circles...)
		}
		o.Common = d.Common
		return &o, nil
	case KindSmooth:
		o := Smooth{Radius: 1}
		if d.Smooth != nil {
			o = *d.Smooth
		}
		o.Common = d.Common
		return &o, nil
	default:
		return nil, fmt.Errorf("%w: unknown mask kind %s", heightfield.ErrData, d.Kind)
	}
}

// Build creates a stack from definitions in order.
func Build(defs []Definition) (*Stack, error) {
	ops := make([]Operator, 0, len(defs))
	for i := range defs {
		op, err := defs[i].Build()
		if err != nil {
			return nil, fmt.Errorf("mask %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return NewStack(ops...), nil
}
