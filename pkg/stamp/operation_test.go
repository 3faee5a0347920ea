package stamp

import (
	"math/rand"
	"testing"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/mask"
)

func near(a, b float32) bool {
	d := a - b
	return d < 1e-5 && d > -1e-5
}

var drawAll = BaseLevel{Draw: true}

func TestApplyScenarios(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		px   Pixel
		p    Params
		want float32
	}{
		{"blend", BlendHeight, Pixel{Dest: 0.5, Adj: 0.8, Weight: 1}, Params{BlendStrength: 0.5}, 0.65},
		{"blend half weight", BlendHeight, Pixel{Dest: 0.5, Adj: 0.8, Weight: 0.5}, Params{BlendStrength: 1}, 0.65},
		{"blend half strength", BlendHeight, Pixel{Dest: 0.5, Adj: 0.9, Weight: 1}, Params{BlendStrength: 0.5}, 0.7},
		{"set", SetHeight, Pixel{Dest: 0.2, Adj: 0.3, Weight: 0.5}, Params{Stencil: 1}, 0.35},
		{"raise above", RaiseHeight, Pixel{Dest: 0.2, Adj: 0.6, Weight: 0.5}, Params{}, 0.4},
		{"raise below", RaiseHeight, Pixel{Dest: 0.6, Adj: 0.2, Weight: 1}, Params{}, 0.6},
		{"lower", LowerHeight, Pixel{Dest: 0.6, Adj: 0.2, Weight: 1}, Params{}, 0.2},
		{"lower above", LowerHeight, Pixel{Dest: 0.2, Adj: 0.6, Weight: 1}, Params{}, 0.2},
		{"add", AddHeight, Pixel{Dest: 0.2, Adj: 0.4, Weight: 0.5}, Params{Stencil: 1}, 0.4},
		{"subtract", SubtractHeight, Pixel{Dest: 0.5, Adj: 0.4, Weight: 0.5}, Params{Stencil: 0.5}, 0.4},
		{"subtract clamps", SubtractHeight, Pixel{Dest: 0.1, Adj: 1, Weight: 1}, Params{Stencil: 1}, 0},
		{"power", PowerOf, Pixel{Dest: 0.5, Weight: 1}, Params{Exponent: 2}, 0.25},
		{"mix", MixHeight, Pixel{Dest: 0.5, Adj: 0.7, Weight: 1}, Params{MixMidpoint: 0.5, MixStrength: 0.5}, 0.6},
		{"transform", HeightTransform, Pixel{Dest: 0.5, Weight: 0.5},
			Params{TransformCurve: mask.Curve{{X: 0, Y: 0}, {X: 1, Y: 0}}}, 0.25},
		{"zero weight", RaiseHeight, Pixel{Dest: 0.1, Adj: 0.9, Weight: 0}, Params{}, 0.1},
		{"field op is identity", Contrast, Pixel{Dest: 0.3, Adj: 0.9, Weight: 1}, Params{ContrastStrength: 1}, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.op, tt.px, drawAll, &tt.p)
			if !near(got, tt.want) {
				t.Errorf("Apply(%s) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}

func TestRaiseNeverLowers(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	p := &Params{}
	for i := 0; i < 1000; i++ {
		px := Pixel{Dest: r.Float32(), Adj: r.Float32()*2 - 0.5, Raw: r.Float32(), Weight: r.Float32()}
		if got := Apply(RaiseHeight, px, drawAll, p); got < px.Dest {
			t.Fatalf("raise lowered %v to %v (adj %v, w %v)", px.Dest, got, px.Adj, px.Weight)
		}
		if got := Apply(LowerHeight, px, drawAll, p); got > px.Dest {
			t.Fatalf("lower raised %v to %v (adj %v, w %v)", px.Dest, got, px.Adj, px.Weight)
		}
	}
}

func TestBaseLevelGating(t *testing.T) {
	px := Pixel{Dest: 0.3, Adj: 0.9, Raw: 0.1, Weight: 1}
	gate := BaseLevel{Level: 0.2}

	for op := RaiseHeight; op <= HydraulicErosion; op++ {
		if got := Apply(op, px, gate, &Params{Stencil: 1, BlendStrength: 1}); got != px.Dest {
			t.Errorf("%s: gated pixel changed to %v", op, got)
		}
	}

	gate.Draw = true
	if got := Apply(RaiseHeight, px, gate, &Params{}); !near(got, 0.9) {
		t.Errorf("drawing the base: got %v, want 0.9", got)
	}
}

func TestParseOperation(t *testing.T) {
	for op := RaiseHeight; op <= HydraulicErosion; op++ {
		got, err := ParseOperation(op.String())
		if err != nil || got != op {
			t.Errorf("ParseOperation(%q) = %v, %v", op.String(), got, err)
		}
	}
	if _, err := ParseOperation("melt"); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestTerrace(t *testing.T) {
	tests := []struct {
		name         string
		h            float32
		count        int
		jitter, bevel float32
		want         float32
	}{
		{"first step", 0.1, 4, 0, 0, 0},
		{"second step", 0.3, 4, 0, 0, 0.25},
		{"top", 1, 4, 0, 0, 1},
		{"inside bevel", 0.45, 4, 0, 0.4, 0.375},
		{"before bevel", 0.3, 4, 0, 0.4, 0.25},
		{"no steps", 0.37, 0, 0, 0, 0.37},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := terrace(tt.h, tt.count, tt.jitter, tt.bevel); !near(got, tt.want) {
				t.Errorf("terrace(%v) = %v, want %v", tt.h, got, tt.want)
			}
		})
	}

	// jitter moves levels but stays deterministic
	a := terrace(0.3, 4, 0.5, 0)
	b := terrace(0.3, 4, 0.5, 0)
	if a != b {
		t.Errorf("jittered terrace not deterministic: %v vs %v", a, b)
	}
}

// slopeRegion builds a region over a tilted plane with every pixel inside.
func slopeRegion(w, h int) *Region {
	dest := heightfield.New(w, h, 100)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dest.Set(x, y, 0.2+0.6*float32(x)/float32(w-1))
		}
	}
	r := NewRegion(dest, 1)
	for i := range r.Inside {
		r.Inside[i] = true
		r.Weight[i] = 1
		r.Raw[i] = 1
	}
	return r
}

func TestRunPointwiseMatchesApply(t *testing.T) {
	r := slopeRegion(16, 9)
	for i := range r.Adj {
		r.Adj[i] = 0.5
		r.Weight[i] = float32(i%5) / 4
	}
	r.Inside[3] = false

	p := &Params{BlendStrength: 0.7}
	out, err := Run(BlendHeight, r, drawAll, p)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out.Data {
		want := r.Dest.Data[i]
		if r.Inside[i] {
			want = Apply(BlendHeight, Pixel{Dest: r.Dest.Data[i], Adj: r.Adj[i], Raw: r.Raw[i], Weight: r.Weight[i]}, drawAll, p)
		}
		if out.Data[i] != want {
			t.Fatalf("pixel %d: got %v, want %v", i, out.Data[i], want)
		}
	}
}

func TestRunRejectsMismatchedBuffers(t *testing.T) {
	r := slopeRegion(4, 4)
	r.Adj = r.Adj[:3]
	if _, err := Run(RaiseHeight, r, drawAll, &Params{}); err == nil {
		t.Error("expected error for short buffers")
	}
}

func TestFieldOperationsRespectMask(t *testing.T) {
	p := DefaultSettings().Params
	p.Erosion.Iterations = 10
	p.Erosion.RainRate = 0.01

	for _, op := range []Operation{Contrast, Terrace, SharpenRidges, Smooth, HydraulicErosion} {
		t.Run(op.String(), func(t *testing.T) {
			r := slopeRegion(12, 12)
			for i := range r.Weight {
				if i%12 < 6 {
					r.Weight[i] = 0
				}
			}
			r.Inside[12*12-1] = false

			out := ApplyField(op, r, drawAll, &p)
			for y := 0; y < 12; y++ {
				for x := 0; x < 6; x++ {
					if out.At(x, y) != r.Dest.At(x, y) {
						t.Fatalf("zero-weight pixel (%d,%d) changed", x, y)
					}
				}
			}
			if out.At(11, 11) != r.Dest.At(11, 11) {
				t.Error("pixel outside the stamp changed")
			}
			for _, v := range out.Data {
				if v < 0 || v > 1 {
					t.Fatalf("height %v out of [0,1]", v)
				}
			}
		})
	}
}

func TestSmoothVerticality(t *testing.T) {
	f := heightfield.New(5, 5, 1)
	f.Set(2, 2, 1) // peak surrounded by a flat floor

	lowerOnly := smooth(f, 1, -1)
	if lowerOnly.At(2, 2) >= 1 {
		t.Error("verticality -1 should lower the peak")
	}
	if lowerOnly.At(1, 1) != 0 {
		t.Error("verticality -1 must not raise the floor")
	}

	raiseOnly := smooth(f, 1, 1)
	if raiseOnly.At(2, 2) != 1 {
		t.Error("verticality +1 must not lower the peak")
	}
	if raiseOnly.At(1, 1) <= 0 {
		t.Error("verticality +1 should raise the floor")
	}
}

func TestContrastIncreasesSpread(t *testing.T) {
	r := slopeRegion(16, 4)
	before := spread(r.Dest)
	after := spread(contrast(r.Dest, 2, 1))
	if after <= before {
		t.Errorf("contrast spread %v, want more than %v", after, before)
	}
}

func spread(f *heightfield.HeightField) float32 {
	var mean float32
	for _, v := range f.Data {
		mean += v
	}
	mean /= float32(len(f.Data))
	var s float32
	for _, v := range f.Data {
		d := v - mean
		s += d * d
	}
	return s
}

func TestErosionWithoutIterationsIsIdentity(t *testing.T) {
	r := slopeRegion(8, 8)
	got := erode(r.Dest, ErosionParams{TalusAngle: 89}, 1)
	if !heightfield.Equal(r.Dest, got, 1e-6) {
		t.Error("erosion with no iterations and no talus excess changed the field")
	}
}

func TestErosionCarvesSlope(t *testing.T) {
	r := slopeRegion(16, 16)
	p := DefaultSettings().Params.Erosion
	p.Iterations = 30
	p.RainRate = 0.01
	p.TalusAngle = 89

	got := erode(r.Dest, p, 1)
	if heightfield.Equal(r.Dest, got, 1e-7) {
		t.Error("erosion did not change a sloped field")
	}

	// The simulation only moves material, apart from clamping
	var before, after float32
	for i := range got.Data {
		before += r.Dest.Data[i]
		after += got.Data[i]
	}
	if d := before - after; d > 0.01 || d < -0.01 {
		t.Errorf("erosion changed total material from %v to %v", before, after)
	}
}

func TestThermalRelaxesCliff(t *testing.T) {
	f := heightfield.New(4, 1, 1)
	f.Set(0, 0, 1)
	thermal(f, 0.1)
	if f.At(0, 0) >= 1 || f.At(1, 0) <= 0 {
		t.Errorf("thermal pass did not move material: %v", f.Data)
	}
}
