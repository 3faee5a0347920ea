// Package geom provides world-plane geometry for placing stamps over terrain tiles.
package geom

import "math"

// Vec2 is a point or direction on the horizontal world plane.
// Double precision keeps positions stable far from the origin.
type Vec2 struct {
	X, Z float64
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{v.X + other.X, v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Z - other.Z}
}

// Scale returns v * scalar.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Z * s}
}

// Dot returns the dot product.
func (v Vec2) Dot(other Vec2) float64 {
	return v.X*other.X + v.Z*other.Z
}

// Length returns the magnitude.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Z)
}

// Normalize returns a unit vector.
func (v Vec2) Normalize() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Z / l}
}

// Distance returns the distance to another point.
func (v Vec2) Distance(other Vec2) float64 {
	return v.Sub(other).Length()
}

// Rotate rotates v counter-clockwise by degrees around the origin.
func (v Vec2) Rotate(degrees float64) Vec2 {
	if degrees == 0 {
		return v
	}
	sin, cos := math.Sincos(degrees * math.Pi / 180)
	return Vec2{
		X: v.X*cos - v.Z*sin,
		Z: v.X*sin + v.Z*cos,
	}
}

// RotateAround rotates v counter-clockwise by degrees around center.
func (v Vec2) RotateAround(center Vec2, degrees float64) Vec2 {
	return v.Sub(center).Rotate(degrees).Add(center)
}
