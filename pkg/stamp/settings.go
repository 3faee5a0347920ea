package stamp

import (
	"fmt"
	"math"

	"github.com/jinzhu/copier"

	"github.com/Faultbox/terrastamp/pkg/geom"
	"github.com/Faultbox/terrastamp/pkg/mask"
)

// Settings places a stamp in the world and selects how it is applied.
// Position is the centre of the stamp; Y is the world height of the base
// level.
type Settings struct {
	Source string `yaml:"source,omitempty" json:"source,omitempty"`

	X        float64 `yaml:"x" json:"x"`
	Y        float64 `yaml:"y" json:"y"`
	Z        float64 `yaml:"z" json:"z"`
	Width    float64 `yaml:"width" json:"width"`   // extent along X
	Length   float64 `yaml:"length" json:"length"` // extent along Z
	Height   float64 `yaml:"height" json:"height"` // world height of a full stamp sample
	Rotation float64 `yaml:"rotation" json:"rotation"`

	BaseLevel     float32   `yaml:"base_level" json:"base_level"`
	DrawStampBase bool      `yaml:"draw_stamp_base" json:"draw_stamp_base"`
	Operation     Operation `yaml:"operation" json:"operation"`
	Params        Params    `yaml:"params" json:"params"`

	Stamp Options           `yaml:"stamp,omitempty" json:"stamp,omitempty"`
	Masks []mask.Definition `yaml:"masks,omitempty" json:"masks,omitempty"`
}

// DefaultSettings returns settings for a 100x100 raise stamp at the origin.
func DefaultSettings() *Settings {
	return &Settings{
		Width:     100,
		Length:    100,
		Height:    50,
		Operation: RaiseHeight,
		Params: Params{
			BlendStrength:     0.5,
			Stencil:           1,
			ContrastStrength:  0.5,
			FeatureSize:       4,
			TerraceCount:      8,
			TerraceBevel:      0.2,
			RidgeIterations:   4,
			RidgeStrength:     0.5,
			Exponent:          2,
			SmoothRadius:      2,
			MixMidpoint:       0.5,
			MixStrength:       1,
			Erosion: ErosionParams{
				Iterations:       50,
				RainRate:         0.001,
				FlowRate:         0.5,
				SedimentCapacity: 4,
				BedDissolveRate:  0.3,
				BankDissolveRate: 0.1,
				BedDepositRate:   0.3,
				BankDepositRate:  0.5,
				Evaporation:      0.05,
				TalusAngle:       40,
			},
		},
	}
}

// Center returns the stamp centre on the world plane.
func (s *Settings) Center() geom.Vec2 {
	return geom.Vec2{X: s.X, Z: s.Z}
}

// Footprint returns the axis-aligned world rectangle covered by the rotated stamp.
func (s *Settings) Footprint() geom.Rect {
	return geom.FootprintOf(s.Center(), s.Width, s.Length, s.Rotation)
}

// Base returns the base level gate.
func (s *Settings) Base() BaseLevel {
	return BaseLevel{Level: s.BaseLevel, Draw: s.DrawStampBase}
}

// StampHeightAdj converts a raw stamp sample to a destination height:
// Y + (raw - BaseLevel) * Height, normalized by the terrain height scale.
func (s *Settings) StampHeightAdj(raw float32, terrainScale float64) float32 {
	if terrainScale <= 0 {
		return 0
	}
	world := s.Y + float64(raw-s.BaseLevel)*s.Height
	return float32(world / terrainScale)
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	out := new(Settings)
	if err := copier.CopyWithOption(out, s, copier.Option{DeepCopy: true}); err != nil {
		c := *s
		c.Params.TransformCurve = append(mask.Curve(nil), s.Params.TransformCurve...)
		c.Masks = append([]mask.Definition(nil), s.Masks...)
		return &c
	}
	return out
}

// ParameterError records a value that was out of range and what it was
// clamped to.
type ParameterError struct {
	Field   string
	Value   float64
	Clamped float64
}

func (e ParameterError) Error() string {
	return fmt.Sprintf("%s: %g out of range, clamped to %g", e.Field, e.Value, e.Clamped)
}

type clamper struct {
	errs []ParameterError
}

func (c *clamper) float(field string, v *float32, min, max float32) {
	if math.IsNaN(float64(*v)) {
		c.errs = append(c.errs, ParameterError{Field: field, Value: math.NaN(), Clamped: float64(min)})
		*v = min
		return
	}
	if *v < min || *v > max {
		clamped := *v
		if clamped < min {
			clamped = min
		} else {
			clamped = max
		}
		c.errs = append(c.errs, ParameterError{Field: field, Value: float64(*v), Clamped: float64(clamped)})
		*v = clamped
	}
}

func (c *clamper) double(field string, v *float64, min, max float64) {
	if math.IsNaN(*v) || *v < min || *v > max {
		clamped := math.Max(min, math.Min(max, *v))
		if math.IsNaN(*v) {
			clamped = min
		}
		c.errs = append(c.errs, ParameterError{Field: field, Value: *v, Clamped: clamped})
		*v = clamped
	}
}

func (c *clamper) integer(field string, v *int, min, max int) {
	if *v < min || *v > max {
		clamped := *v
		if clamped < min {
			clamped = min
		} else {
			clamped = max
		}
		c.errs = append(c.errs, ParameterError{Field: field, Value: float64(*v), Clamped: float64(clamped)})
		*v = clamped
	}
}

// Clamp returns a copy with every parameter inside its valid domain and the
// corrections that were made. It never fails.
func (s *Settings) Clamp() (*Settings, []ParameterError) {
	out := s.Clone()
	c := &clamper{}

	c.double("width", &out.Width, 1e-3, math.MaxFloat64)
	c.double("length", &out.Length, 1e-3, math.MaxFloat64)
	c.double("height", &out.Height, 0, math.MaxFloat64)
	if math.IsNaN(out.Rotation) || math.IsInf(out.Rotation, 0) {
		c.errs = append(c.errs, ParameterError{Field: "rotation", Value: out.Rotation})
		out.Rotation = 0
	}
	out.Rotation = math.Mod(out.Rotation, 360)
	if out.Rotation < 0 {
		out.Rotation += 360
	}
	c.float("base_level", &out.BaseLevel, 0, 1)
	if out.Operation < RaiseHeight || out.Operation > HydraulicErosion {
		c.errs = append(c.errs, ParameterError{Field: "operation", Value: float64(out.Operation), Clamped: float64(RaiseHeight)})
		out.Operation = RaiseHeight
	}

	p := &out.Params
	c.float("blend_strength", &p.BlendStrength, 0, 1)
	c.float("stencil", &p.Stencil, 0, 1)
	c.float("contrast_strength", &p.ContrastStrength, -1, 4)
	c.integer("feature_size", &p.FeatureSize, 1, 256)
	c.integer("terrace_count", &p.TerraceCount, 1, 256)
	c.float("terrace_jitter", &p.TerraceJitter, 0, 1)
	c.float("terrace_bevel", &p.TerraceBevel, 0, 1)
	c.integer("ridge_iterations", &p.RidgeIterations, 0, 100)
	c.float("ridge_strength", &p.RidgeStrength, 0, 1)
	c.float("exponent", &p.Exponent, 0.01, 16)
	c.integer("smooth_radius", &p.SmoothRadius, 0, 64)
	c.float("smooth_verticality", &p.SmoothVerticality, -1, 1)
	c.float("mix_midpoint", &p.MixMidpoint, 0, 1)
	c.float("mix_strength", &p.MixStrength, 0, 4)

	e := &p.Erosion
	c.integer("erosion.iterations", &e.Iterations, 0, 1000)
	c.float("erosion.rain_rate", &e.RainRate, 0, 1)
	c.float("erosion.flow_rate", &e.FlowRate, 0, 1)
	c.float("erosion.sediment_capacity", &e.SedimentCapacity, 0, 100)
	c.float("erosion.bed_dissolve_rate", &e.BedDissolveRate, 0, 1)
	c.float("erosion.bank_dissolve_rate", &e.BankDissolveRate, 0, 1)
	c.float("erosion.bed_deposit_rate", &e.BedDepositRate, 0, 1)
	c.float("erosion.bank_deposit_rate", &e.BankDepositRate, 0, 1)
	c.float("erosion.evaporation", &e.Evaporation, 0, 1)
	c.float("erosion.talus_angle", &e.TalusAngle, 0, 89)

	c.integer("stamp.smooth_iterations", &out.Stamp.SmoothIterations, 0, 64)

	return out, c.errs
}
