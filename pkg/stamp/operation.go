package stamp

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/Faultbox/terrastamp/pkg/mask"
)

// Operation selects how stamp heights combine with the destination.
type Operation int

// Operations.
const (
	RaiseHeight Operation = iota
	LowerHeight
	BlendHeight
	SetHeight
	AddHeight
	SubtractHeight
	Contrast
	Terrace
	SharpenRidges
	HeightTransform
	PowerOf
	Smooth
	MixHeight
	HydraulicErosion
)

var operationNames = []string{
	"raise",
	"lower",
	"blend",
	"set",
	"add",
	"subtract",
	"contrast",
	"terrace",
	"sharpen_ridges",
	"height_transform",
	"power_of",
	"smooth",
	"mix_height",
	"hydraulic_erosion",
}

// String returns the operation name.
func (o Operation) String() string {
	if int(o) >= 0 && int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// ParseOperation converts a name to an Operation.
func ParseOperation(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range operationNames {
		if name == s {
			return Operation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operation) UnmarshalText(text []byte) error {
	op, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// IsField reports whether op needs the whole working region before any
// output pixel can be finalized.
func (o Operation) IsField() bool {
	switch o {
	case Contrast, Terrace, SharpenRidges, Smooth, HydraulicErosion:
		return true
	}
	return false
}

// ErosionParams configures HydraulicErosion.
type ErosionParams struct {
	Iterations       int     `yaml:"iterations" json:"iterations"`
	RainRate         float32 `yaml:"rain_rate" json:"rain_rate"`
	FlowRate         float32 `yaml:"flow_rate" json:"flow_rate"`
	SedimentCapacity float32 `yaml:"sediment_capacity" json:"sediment_capacity"`
	BedDissolveRate  float32 `yaml:"bed_dissolve_rate" json:"bed_dissolve_rate"`
	BankDissolveRate float32 `yaml:"bank_dissolve_rate" json:"bank_dissolve_rate"`
	BedDepositRate   float32 `yaml:"bed_deposit_rate" json:"bed_deposit_rate"`
	BankDepositRate  float32 `yaml:"bank_deposit_rate" json:"bank_deposit_rate"`
	Evaporation      float32 `yaml:"evaporation" json:"evaporation"`
	TalusAngle       float32 `yaml:"talus_angle" json:"talus_angle"` // degrees
}

// Params holds the operator specific knobs. Each operation reads only its own.
type Params struct {
	BlendStrength     float32       `yaml:"blend_strength" json:"blend_strength"`
	Stencil           float32       `yaml:"stencil" json:"stencil"`
	ContrastStrength  float32       `yaml:"contrast_strength" json:"contrast_strength"`
	FeatureSize       int           `yaml:"feature_size" json:"feature_size"` // pixels
	TerraceCount      int           `yaml:"terrace_count" json:"terrace_count"`
	TerraceJitter     float32       `yaml:"terrace_jitter" json:"terrace_jitter"`
	TerraceBevel      float32       `yaml:"terrace_bevel" json:"terrace_bevel"`
	RidgeIterations   int           `yaml:"ridge_iterations" json:"ridge_iterations"`
	RidgeStrength     float32       `yaml:"ridge_strength" json:"ridge_strength"`
	TransformCurve    mask.Curve    `yaml:"transform_curve,omitempty" json:"transform_curve,omitempty"`
	Exponent          float32       `yaml:"exponent" json:"exponent"`
	SmoothRadius      int           `yaml:"smooth_radius" json:"smooth_radius"`
	SmoothVerticality float32       `yaml:"smooth_verticality" json:"smooth_verticality"`
	MixMidpoint       float32       `yaml:"mix_midpoint" json:"mix_midpoint"`
	MixStrength       float32       `yaml:"mix_strength" json:"mix_strength"`
	Erosion           ErosionParams `yaml:"erosion" json:"erosion"`
}

// BaseLevel gates stamp pixels below the stamp's ground level.
type BaseLevel struct {
	Level float32 // fraction of the stamp treated as ground
	Draw  bool    // draw pixels below Level anyway
}

// Gates reports whether a raw stamp sample is excluded.
func (b BaseLevel) Gates(raw float32) bool {
	return !b.Draw && raw < b.Level
}

// Pixel is the per-pixel input of a pointwise operation.
type Pixel struct {
	Dest   float32 // existing destination height
	Adj    float32 // stamp height in destination space
	Raw    float32 // raw stamp sample
	Weight float32 // result mask weight
}

// Apply computes the new destination height of one pixel. Base level gating
// happens before dispatch. Field operations other than Terrace return Dest
// unchanged; run them through ApplyField.
func Apply(op Operation, px Pixel, base BaseLevel, p *Params) float32 {
	if base.Gates(px.Raw) {
		return px.Dest
	}

	dest, adj, w := px.Dest, px.Adj, px.Weight
	var out float32
	switch op {
	case RaiseHeight:
		out = dest + math32.Max(0, adj-dest)*w
	case LowerHeight:
		out = dest - math32.Max(0, dest-adj)*w
	case BlendHeight:
		out = lerp(dest, lerp(dest, adj, p.BlendStrength), w)
	case SetHeight:
		out = lerp(dest, dest+adj*p.Stencil, w)
	case AddHeight:
		out = dest + adj*p.Stencil*w
	case SubtractHeight:
		out = dest - adj*p.Stencil*w
	case HeightTransform:
		out = lerp(dest, p.TransformCurve.Eval(dest), w)
	case PowerOf:
		out = lerp(dest, math32.Pow(math32.Max(0, dest), p.Exponent), w)
	case MixHeight:
		out = lerp(dest, dest+(adj-p.MixMidpoint)*p.MixStrength, w)
	case Terrace:
		out = lerp(dest, terrace(dest, p.TerraceCount, p.TerraceJitter, p.TerraceBevel), w)
	default:
		return dest
	}
	return clamp01(out)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
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
