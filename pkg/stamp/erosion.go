package stamp

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
)

const talusPasses = 4

// neighbour offsets: left, right, up, down
var offsets = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// erode runs a grid water/sediment simulation on a copy of f.
//
// Each iteration adds rain, routes water to lower 4-neighbours in proportion
// to the water surface drop, dissolves or deposits sediment against a
// capacity of SedimentCapacity*flux*slope, moves sediment with the water and
// evaporates. A cell counts as river bed while its water is deeper than the
// mean of its neighbours, otherwise as bank. The boundary is closed.
// There is no convergence check: the state after Iterations steps is the
// result. A thermal pass then relaxes slopes steeper than TalusAngle.
func erode(f *heightfield.HeightField, p ErosionParams, spacing float64) *heightfield.HeightField {
	out := f.Clone()
	if f.Empty() {
		return out
	}

	w, h := f.Width, f.Height
	n := w * h
	height := out.Data
	water := make([]float32, n)
	sediment := make([]float32, n)
	outflow := make([][4]float32, n)
	newWater := make([]float32, n)
	newSediment := make([]float32, n)

	neighbour := func(x, y, k int) (int, bool) {
		nx, ny := x+offsets[k][0], y+offsets[k][1]
		if nx < 0 || ny < 0 || nx >= w || ny >= h {
			return 0, false
		}
		return ny*w + nx, true
	}

	for it := 0; it < p.Iterations; it++ {
		for i := range water {
			water[i] += p.RainRate
		}

		// Route water downhill
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				surface := height[i] + water[i]
				var drops [4]float32
				var total float32
				for k := 0; k < 4; k++ {
					j, ok := neighbour(x, y, k)
					if !ok {
						continue
					}
					if d := surface - height[j] - water[j]; d > 0 {
						drops[k] = d
						total += d
					}
				}

				outflow[i] = [4]float32{}
				if total <= 0 || water[i] <= 0 {
					continue
				}
				amount := math32.Min(water[i], total*p.FlowRate)
				for k := 0; k < 4; k++ {
					outflow[i][k] = amount * drops[k] / total
				}
			}
		}

		// Dissolve or deposit against the local carrying capacity
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				var flux, slope, meanWater float32
				var count float32
				for k := 0; k < 4; k++ {
					flux += outflow[i][k]
					j, ok := neighbour(x, y, k)
					if !ok {
						continue
					}
					slope = math32.Max(slope, height[i]-height[j])
					meanWater += water[j]
					count++
				}
				if count > 0 {
					meanWater /= count
				}
				bed := water[i] > meanWater

				capacity := p.SedimentCapacity * flux * slope
				if sediment[i] < capacity {
					rate := p.BankDissolveRate
					if bed {
						rate = p.BedDissolveRate
					}
					amt := math32.Min((capacity-sediment[i])*rate, height[i])
					height[i] -= amt
					sediment[i] += amt
				} else {
					rate := p.BankDepositRate
					if bed {
						rate = p.BedDepositRate
					}
					amt := (sediment[i] - capacity) * rate
					height[i] += amt
					sediment[i] -= amt
				}
			}
		}

		// Move water and the sediment it carries
		copy(newWater, water)
		copy(newSediment, sediment)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if water[i] <= 0 {
					continue
				}
				var moved float32
				for k := 0; k < 4; k++ {
					moved += outflow[i][k]
				}
				if moved <= 0 {
					continue
				}
				carried := sediment[i] * moved / water[i]
				newWater[i] -= moved
				newSediment[i] -= carried
				for k := 0; k < 4; k++ {
					if outflow[i][k] == 0 {
						continue
					}
					j, _ := neighbour(x, y, k)
					share := outflow[i][k] / moved
					newWater[j] += outflow[i][k]
					newSediment[j] += carried * share
				}
			}
		}
		water, newWater = newWater, water
		sediment, newSediment = newSediment, sediment

		for i := range water {
			water[i] *= 1 - p.Evaporation
		}
	}

	// Whatever is still suspended settles where it is
	for i := range height {
		height[i] += sediment[i]
	}

	thermal(out, talusThreshold(p.TalusAngle, spacing, f.Scale))

	for i, v := range height {
		height[i] = clamp01(v)
	}
	return out
}

// talusThreshold converts a talus angle into a normalized height difference
// between neighbouring pixels.
func talusThreshold(angle float32, spacing, scale float64) float32 {
	t := math32.Tan(angle * math32.Pi / 180)
	if spacing > 0 && scale > 0 {
		return t * float32(spacing/scale)
	}
	return t * 0.01
}

// thermal moves material from cells steeper than threshold to their lower
// neighbours. Material is conserved.
func thermal(f *heightfield.HeightField, threshold float32) {
	w, h := f.Width, f.Height
	delta := make([]float32, len(f.Data))
	for pass := 0; pass < talusPasses; pass++ {
		for i := range delta {
			delta[i] = 0
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				for k := 0; k < 4; k++ {
					nx, ny := x+offsets[k][0], y+offsets[k][1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if excess := f.Data[i] - f.Data[j] - threshold; excess > 0 {
						// half the excess, shared over four neighbours
						move := excess / 8
						delta[i] -= move
						delta[j] += move
					}
				}
			}
		}
		for i := range f.Data {
			f.Data[i] += delta[i]
		}
	}
}
