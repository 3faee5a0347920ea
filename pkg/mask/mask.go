// Package mask provides per-pixel weight operators that gate how strongly a
// stamp applies, and the ordered stack that combines them.
package mask

import (
	"fmt"
	"strings"
)

// BlendMode controls how an operator's weight combines with the accumulator.
type BlendMode int

// Blend modes.
const (
	Multiply BlendMode = iota // acc *= w
	Add                       // acc = min(1, acc+w)
	Subtract                  // acc = max(0, acc-w)
	Replace                   // acc = w
)

var blendNames = []string{"multiply", "add", "subtract", "replace"}

// String returns the blend mode name.
func (m BlendMode) String() string {
	if int(m) >= 0 && int(m) < len(blendNames) {
		return blendNames[m]
	}
	return fmt.Sprintf("BlendMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m BlendMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *BlendMode) UnmarshalText(text []byte) error {
	i, err := parseName("blend mode", blendNames, string(text))
	if err != nil {
		return err
	}
	*m = BlendMode(i)
	return nil
}

// Compose applies w to acc.
func (m BlendMode) Compose(acc, w float32) float32 {
	switch m {
	case Add:
		acc += w
		if acc > 1 {
			acc = 1
		}
	case Subtract:
		acc -= w
		if acc < 0 {
			acc = 0
		}
	case Replace:
		acc = w
	default:
		acc *= w
	}
	return acc
}

// Scope selects what an operator's weight influences.
type Scope int

// Scopes.
const (
	// ScopeResult gates how much of the blended result is applied.
	ScopeResult Scope = iota
	// ScopeStamp scales the stamp height itself before the operation runs.
	ScopeStamp
)

var scopeNames = []string{"result", "stamp"}

// String returns the scope name.
func (s Scope) String() string {
	if int(s) >= 0 && int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(text []byte) error {
	i, err := parseName("scope", scopeNames, string(text))
	if err != nil {
		return err
	}
	*s = Scope(i)
	return nil
}

// Common holds the settings every operator shares.
// Strength pulls the weight towards 1; zero is treated as full strength.
type Common struct {
	Blend    BlendMode `yaml:"blend,omitempty" json:"blend,omitempty"`
	Scope    Scope     `yaml:"scope,omitempty" json:"scope,omitempty"`
	Invert   bool      `yaml:"invert,omitempty" json:"invert,omitempty"`
	Strength float32   `yaml:"strength,omitempty" json:"strength,omitempty"`
}

// Context carries per-pixel information about the destination terrain.
// Heights are normalized to the terrain height scale.
type Context struct {
	X, Z       float64 // world position of the pixel centre
	SeaLevel   float32
	MinHeight  float32 // lowest height in the current terrain set
	MaxHeight  float32 // highest height in the current terrain set
	DestHeight float32 // existing destination height at this pixel
	Slope      float32 // destination slope in degrees
}

// Operator is one mask layer. The set of implementations is closed:
// *Noise, *Distance, *Image, *HeightRange, *Slope, *Collision and *Smooth.
type Operator interface {
	common() *Common
}

func (c *Common) common() *Common { return c }

// Weights is the result of evaluating a stack at one pixel.
type Weights struct {
	Result float32 // gates the blended result
	Stamp  float32 // scales the stamp height
}

// Full is the weight of an empty stack.
var Full = Weights{Result: 1, Stamp: 1}

// weight evaluates a single operator at stamp-local (u, v).
func weight(op Operator, u, v float64, ctx *Context) float32 {
	var w float32
	switch o := op.(type) {
	case *Noise:
		w = o.value(ctx.X, ctx.Z)
	case *Distance:
		w = o.value(u, v)
	case *Image:
		w = o.value(u, v, ctx.X, ctx.Z)
	case *HeightRange:
		w = o.value(ctx)
	case *Slope:
		w = o.value(ctx.Slope)
	case *Collision:
		w = o.value(ctx.X, ctx.Z)
	case *Smooth:
		// Smoothing only acts on whole buffers, see Stack.EvaluateGrid
		return -1
	default:
		return 1
	}

	c := op.common()
	w = clamp01(w)
	if c.Invert {
		w = 1 - w
	}
	if c.Strength > 0 && c.Strength < 1 {
		w = 1 - (1-w)*c.Strength
	}
	return w
}

// ramp returns 1 inside [min, max] and falls linearly to 0 over falloff.
func ramp(x, min, max, falloff float32) float32 {
	switch {
	case x >= min && x <= max:
		return 1
	case falloff <= 0:
		return 0
	case x < min:
		return clamp01(1 - (min-x)/falloff)
	default:
		return clamp01(1 - (x-max)/falloff)
	}
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

func parseName(what string, names []string, s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, s)
}
