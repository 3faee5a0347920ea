package mask

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/blur"
	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"

	"github.com/Faultbox/terrastamp/pkg/geom"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// NoiseType selects the noise generator.
type NoiseType int

// Noise types.
const (
	NoisePerlin NoiseType = iota
	NoiseSimplex
)

var noiseNames = []string{"perlin", "simplex"}

// String returns the noise type name.
func (n NoiseType) String() string {
	if int(n) >= 0 && int(n) < len(noiseNames) {
		return noiseNames[n]
	}
	return fmt.Sprintf("NoiseType(%d)", int(n))
}

// MarshalText implements encoding.TextMarshaler.
func (n NoiseType) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NoiseType) UnmarshalText(text []byte) error {
	i, err := parseName("noise type", noiseNames, string(text))
	if err != nil {
		return err
	}
	*n = NoiseType(i)
	return nil
}

// Noise is fractal noise evaluated in world space.
type Noise struct {
	Common      `yaml:"-" json:"-"`
	Type        NoiseType `yaml:"type" json:"type"`
	Seed        int64     `yaml:"seed" json:"seed"`
	Octaves     int       `yaml:"octaves" json:"octaves"`
	Persistence float64   `yaml:"persistence" json:"persistence"`
	Frequency   float64   `yaml:"frequency" json:"frequency"`
	Lacunarity  float64   `yaml:"lacunarity" json:"lacunarity"`
	OffsetX     float64   `yaml:"offset_x,omitempty" json:"offset_x,omitempty"`
	OffsetZ     float64   `yaml:"offset_z,omitempty" json:"offset_z,omitempty"`

	perlin  *perlin.Perlin
	simplex opensimplex.Noise
}

// prepare builds the generator. Out of range parameters fall back to defaults.
func (n *Noise) prepare() {
	if n.Octaves < 1 {
		n.Octaves = 1
	}
	if n.Persistence <= 0 {
		n.Persistence = 0.5
	}
	if n.Lacunarity <= 0 {
		n.Lacunarity = 2
	}
	if n.Frequency <= 0 {
		n.Frequency = 0.01
	}

	switch n.Type {
	case NoiseSimplex:
		n.simplex = opensimplex.New(n.Seed)
	default:
		// go-perlin divides each octave by alpha and multiplies frequency by beta
		n.perlin = perlin.NewPerlin(1/n.Persistence, n.Lacunarity, int32(n.Octaves), n.Seed)
	}
}

func (n *Noise) value(x, z float64) float32 {
	if n.perlin == nil && n.simplex == nil {
		n.prepare()
	}
	x = (x + n.OffsetX) * n.Frequency
	z = (z + n.OffsetZ) * n.Frequency

	if n.simplex != nil {
		var sum, norm float64
		amp, freq := 1.0, 1.0
		for i := 0; i < n.Octaves; i++ {
			sum += n.simplex.Eval2(x*freq, z*freq) * amp
			norm += amp
			amp *= n.Persistence
			freq *= n.Lacunarity
		}
		return float32(sum/norm*0.5 + 0.5)
	}
	return float32(n.perlin.Noise2D(x, z)*0.5 + 0.5)
}

// CurvePoint is one control point of a Curve.
type CurvePoint struct {
	X float32 `yaml:"x" json:"x"`
	Y float32 `yaml:"y" json:"y"`
}

// Curve is a piecewise-linear mapping over [0,1]. An empty curve is the identity.
type Curve []CurvePoint

// Eval returns the curve value at x, clamping to the end points.
func (c Curve) Eval(x float32) float32 {
	if len(c) == 0 {
		return x
	}
	if x <= c[0].X {
		return c[0].Y
	}
	for i := 1; i < len(c); i++ {
		if x <= c[i].X {
			a, b := c[i-1], c[i]
			if b.X == a.X {
				return b.Y
			}
			t := (x - a.X) / (b.X - a.X)
			return a.Y + (b.Y-a.Y)*t
		}
	}
	return c[len(c)-1].Y
}

// Sorted returns a copy of c ordered by X.
func (c Curve) Sorted() Curve {
	out := append(Curve(nil), c...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

// Shape selects how distance from the stamp centre is measured.
type Shape int

// Shapes.
const (
	ShapeCircle Shape = iota
	ShapeSquare
)

var shapeNames = []string{"circle", "square"}

// String returns the shape name.
func (s Shape) String() string {
	if int(s) >= 0 && int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	i, err := parseName("shape", shapeNames, string(text))
	if err != nil {
		return err
	}
	*s = Shape(i)
	return nil
}

// Distance falls off with distance from the stamp centre.
// Distance 0 is the centre and 1 the middle of the stamp's edge.
type Distance struct {
	Common `yaml:"-" json:"-"`
	Shape  Shape `yaml:"shape" json:"shape"`
	Curve  Curve `yaml:"curve,omitempty" json:"curve,omitempty"`
}

func (d *Distance) value(u, v float64) float32 {
	du := math.Abs(u-0.5) * 2
	dv := math.Abs(v-0.5) * 2

	var dist float64
	if d.Shape == ShapeSquare {
		dist = math.Max(du, dv)
	} else {
		dist = math.Hypot(du, dv)
	}
	x := clamp01(float32(dist))

	if len(d.Curve) == 0 {
		return 1 - x
	}
	return d.Curve.Eval(x)
}

// Space selects the coordinate system of an image mask.
type Space int

// Spaces.
const (
	SpaceStamp Space = iota // image covers the stamp rectangle
	SpaceWorld              // image covers Image.World
)

var spaceNames = []string{"stamp", "world"}

// String returns the space name.
func (s Space) String() string {
	if int(s) >= 0 && int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("Space(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Space) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Space) UnmarshalText(text []byte) error {
	i, err := parseName("space", spaceNames, string(text))
	if err != nil {
		return err
	}
	*s = Space(i)
	return nil
}

// Image samples a heightfield as the weight.
type Image struct {
	Common    `yaml:"-" json:"-"`
	Source    string              `yaml:"source,omitempty" json:"source,omitempty"`
	Channel   heightfield.Channel `yaml:"channel,omitempty" json:"channel,omitempty"`
	Normalize bool                `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	FlipX     bool                `yaml:"flip_x,omitempty" json:"flip_x,omitempty"`
	FlipZ     bool                `yaml:"flip_z,omitempty" json:"flip_z,omitempty"`
	Space     Space               `yaml:"space,omitempty" json:"space,omitempty"`
	World     geom.Rect           `yaml:"world,omitempty" json:"world,omitempty"`
	Blur      float64             `yaml:"blur,omitempty" json:"blur,omitempty"`

	// Field is the decoded image, filled in by the stamp library.
	Field *heightfield.HeightField `yaml:"-" json:"-"`

	prepared *heightfield.HeightField
}

func (m *Image) prepare() {
	if m.Field.Empty() {
		m.prepared = nil
		return
	}
	f := m.Field
	if m.Blur > 0 {
		f = blurField(f, m.Blur)
	}
	if m.Normalize {
		f = f.Normalize()
	}
	m.prepared = f
}

// blurField runs a gaussian blur over the field. bild works on 8-bit RGBA,
// which is enough precision for a weight mask.
func blurField(f *heightfield.HeightField, radius float64) *heightfield.HeightField {
	blurred := blur.Gaussian(f.Image(), radius)
	out, err := heightfield.Load(image.Image(blurred), heightfield.ChannelRed)
	if err != nil {
		return f
	}
	out.Scale = f.Scale
	return out
}

func (m *Image) value(u, v, x, z float64) float32 {
	if m.prepared == nil {
		if m.Field.Empty() {
			return 0
		}
		m.prepare()
	}

	if m.Space == SpaceWorld {
		if !m.World.Contains(geom.Vec2{X: x, Z: z}) {
			return 0
		}
		u = (x - m.World.MinX) / m.World.Width()
		v = (z - m.World.MinZ) / m.World.Length()
	}
	if m.FlipX {
		u = 1 - u
	}
	if m.FlipZ {
		v = 1 - v
	}
	return m.prepared.SampleBilinear(u, v)
}

// HeightRange passes destination heights inside [Min, Max].
type HeightRange struct {
	Common        `yaml:"-" json:"-"`
	Min           float32 `yaml:"min" json:"min"`
	Max           float32 `yaml:"max" json:"max"`
	Falloff       float32 `yaml:"falloff,omitempty" json:"falloff,omitempty"`
	RelativeToSea bool    `yaml:"relative_to_sea,omitempty" json:"relative_to_sea,omitempty"`
}

func (h *HeightRange) value(ctx *Context) float32 {
	height := ctx.DestHeight
	if h.RelativeToSea {
		height -= ctx.SeaLevel
	}
	return ramp(height, h.Min, h.Max, h.Falloff)
}

// Slope passes destination slopes inside [MinDegrees, MaxDegrees].
type Slope struct {
	Common     `yaml:"-" json:"-"`
	MinDegrees float32 `yaml:"min_degrees" json:"min_degrees"`
	MaxDegrees float32 `yaml:"max_degrees" json:"max_degrees"`
	Falloff    float32 `yaml:"falloff,omitempty" json:"falloff,omitempty"`
}

func (s *Slope) value(slope float32) float32 {
	return ramp(slope, s.MinDegrees, s.MaxDegrees, s.Falloff)
}

// Circle is a world-space obstacle footprint.
type Circle struct {
	X      float64 `yaml:"x" json:"x"`
	Z      float64 `yaml:"z" json:"z"`
	Radius float64 `yaml:"radius" json:"radius"`
}

// Collision keeps the stamp away from obstacles: weight is 0 inside any
// circle and rises to 1 over Falloff world units.
type Collision struct {
	Common  `yaml:"-" json:"-"`
	Circles []Circle `yaml:"circles" json:"circles"`
	Falloff float64  `yaml:"falloff,omitempty" json:"falloff,omitempty"`
}

func (c *Collision) value(x, z float64) float32 {
	w := 1.0
	p := geom.Vec2{X: x, Z: z}
	for _, circle := range c.Circles {
		d := p.Distance(geom.Vec2{X: circle.X, Z: circle.Z}) - circle.Radius
		var cw float64
		switch {
		case d <= 0:
			cw = 0
		case c.Falloff <= 0:
			cw = 1
		default:
			cw = math.Min(1, d/c.Falloff)
		}
		w = math.Min(w, cw)
	}
	return float32(w)
}

// Smooth blurs the accumulated weights of its scope. It only has an effect
// when a whole grid is evaluated.
type Smooth struct {
	Common `yaml:"-" json:"-"`
	Radius int `yaml:"radius" json:"radius"`
}
