package mask

import (
	"fmt"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

// Stack is an ordered list of operators.
type Stack struct {
	Ops []Operator
}

// NewStack creates a stack from operators in evaluation order.
func NewStack(ops ...Operator) *Stack {
	return &Stack{Ops: ops}
}

// Len returns the number of operators. A nil stack is empty.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Ops)
}

// Prepare builds noise generators and pre-processes image masks. EvaluateGrid
// calls it; callers of Evaluate from several goroutines must call it first.
func (s *Stack) Prepare() {
	if s == nil {
		return
	}
	for _, op := range s.Ops {
		switch o := op.(type) {
		case *Noise:
			o.prepare()
		case *Image:
			o.prepare()
		case *Distance:
			o.Curve = o.Curve.Sorted()
		}
	}
}

// Validate checks the stack against a stamp of the given size.
func (s *Stack) Validate(stampW, stampH int) error {
	if s == nil {
		return nil
	}
	for i, op := range s.Ops {
		switch o := op.(type) {
		case nil:
			return fmt.Errorf("%w: mask %d is nil", heightfield.ErrData, i)
		case *Image:
			if o.Field.Empty() {
				return fmt.Errorf("%w: image mask %d has no data", heightfield.ErrData, i)
			}
			if o.Space == SpaceStamp && (o.Field.Width != stampW || o.Field.Height != stampH) {
				return fmt.Errorf("%w: image mask %d is %dx%d, stamp is %dx%d",
					heightfield.ErrSizeMismatch, i, o.Field.Width, o.Field.Height, stampW, stampH)
			}
			if o.Space == SpaceWorld && o.World.Empty() {
				return fmt.Errorf("%w: world image mask %d has an empty rectangle", heightfield.ErrData, i)
			}
		case *Smooth:
			if o.Radius < 0 {
				return fmt.Errorf("%w: smooth mask %d has negative radius", heightfield.ErrData, i)
			}
		}
	}
	return nil
}

// Evaluate returns the weights at stamp-local (u, v). Smooth operators are
// identity here.
func (s *Stack) Evaluate(u, v float64, ctx *Context) Weights {
	if s.Len() == 0 {
		return Full
	}

	acc := [2]float32{1, 1}
	var touched [2]bool
	for _, op := range s.Ops {
		w := weight(op, u, v, ctx)
		if w < 0 {
			continue
		}
		sc := op.common().Scope
		if sc != ScopeStamp {
			sc = ScopeResult
		}
		if !touched[sc] {
			acc[sc] *= w
			touched[sc] = true
			continue
		}
		acc[sc] = op.common().Blend.Compose(acc[sc], w)
	}
	return Weights{Result: acc[ScopeResult], Stamp: acc[ScopeStamp]}
}

// Sample describes one grid pixel for EvaluateGrid. Pixels with Skip set
// get zero weights.
type Sample struct {
	U, V float64
	Ctx  Context
	Skip bool
}

// EvaluateGrid evaluates a w x h grid, row-major. Smooth operators blur the
// accumulator of their scope at their position in the stack.
func (s *Stack) EvaluateGrid(w, h int, samples []Sample) []Weights {
	out := make([]Weights, w*h)
	if len(samples) < w*h {
		return out
	}
	s.Prepare()

	acc := [2][]float32{make([]float32, w*h), make([]float32, w*h)}
	for i := range acc[0] {
		acc[0][i] = 1
		acc[1][i] = 1
	}

	var touched [2]bool
	for _, op := range s.opsOrNil() {
		sc := op.common().Scope
		if sc != ScopeStamp {
			sc = ScopeResult
		}

		if sm, ok := op.(*Smooth); ok {
			if sm.Radius > 0 {
				blurBuffer(acc[sc], w, h, sm.Radius)
			}
			continue
		}

		mode := op.common().Blend
		if !touched[sc] {
			mode = Multiply
			touched[sc] = true
		}
		buf := acc[sc]
		parallel.Line(h, func(start, end int) {
			for y := start; y < end; y++ {
				for x := 0; x < w; x++ {
					i := y*w + x
					smp := &samples[i]
					if smp.Skip {
						continue
					}
					buf[i] = mode.Compose(buf[i], weight(op, smp.U, smp.V, &smp.Ctx))
				}
			}
		})
	}

	for i := range out {
		if samples[i].Skip {
			continue
		}
		out[i] = Weights{Result: clamp01(acc[ScopeResult][i]), Stamp: clamp01(acc[ScopeStamp][i])}
	}
	return out
}

func (s *Stack) opsOrNil() []Operator {
	if s == nil {
		return nil
	}
	return s.Ops
}

// blurBuffer blurs a w x h accumulator in place.
func blurBuffer(buf []float32, w, h, radius int) {
	f := &heightfield.HeightField{Width: w, Height: h, Scale: 1, Data: buf}
	copy(buf, f.BoxBlur(radius).Data)
}
