package geom

import "math"

// Rect is an axis-aligned rectangle on the world plane.
// Points on the min edges are inside, points on the max edges are not.
type Rect struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
}

// RectFrom builds a Rect from an origin and a size.
func RectFrom(x, z, width, length float64) Rect {
	return Rect{MinX: x, MinZ: z, MaxX: x + width, MaxZ: z + length}
}

// Width returns the X extent.
func (r Rect) Width() float64 {
	return r.MaxX - r.MinX
}

// Length returns the Z extent.
func (r Rect) Length() float64 {
	return r.MaxZ - r.MinZ
}

// Center returns the midpoint of r.
func (r Rect) Center() Vec2 {
	return Vec2{X: (r.MinX + r.MaxX) * 0.5, Z: (r.MinZ + r.MaxZ) * 0.5}
}

// Grow returns r expanded by dx on both X edges and dz on both Z edges.
func (r Rect) Grow(dx, dz float64) Rect {
	if r.Empty() {
		return r
	}
	return Rect{MinX: r.MinX - dx, MinZ: r.MinZ - dz, MaxX: r.MaxX + dx, MaxZ: r.MaxZ + dz}
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxZ <= r.MinZ
}

// Contains reports whether p lies in [min, max) on both axes.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.MinX && p.X < r.MaxX && p.Z >= r.MinZ && p.Z < r.MaxZ
}

// Intersects reports whether r and other share any area.
func (r Rect) Intersects(other Rect) bool {
	return r.MinX < other.MaxX && other.MinX < r.MaxX &&
		r.MinZ < other.MaxZ && other.MinZ < r.MaxZ
}

// Intersection returns the overlap of r and other (empty if none).
func (r Rect) Intersection(other Rect) Rect {
	out := Rect{
		MinX: math.Max(r.MinX, other.MinX),
		MinZ: math.Max(r.MinZ, other.MinZ),
		MaxX: math.Min(r.MaxX, other.MaxX),
		MaxZ: math.Min(r.MaxZ, other.MaxZ),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Union returns the smallest Rect containing r and other.
func (r Rect) Union(other Rect) Rect {
	if r.Empty() {
		return other
	}
	if other.Empty() {
		return r
	}
	return Rect{
		MinX: math.Min(r.MinX, other.MinX),
		MinZ: math.Min(r.MinZ, other.MinZ),
		MaxX: math.Max(r.MaxX, other.MaxX),
		MaxZ: math.Max(r.MaxZ, other.MaxZ),
	}
}

// FootprintOf returns the axis-aligned bounds of a width x length rectangle
// centred on center and rotated by degrees.
func FootprintOf(center Vec2, width, length, degrees float64) Rect {
	hw, hl := width*0.5, length*0.5
	corners := [4]Vec2{
		{-hw, -hl}, {hw, -hl}, {hw, hl}, {-hw, hl},
	}

	r := Rect{
		MinX: math.Inf(1), MinZ: math.Inf(1),
		MaxX: math.Inf(-1), MaxZ: math.Inf(-1),
	}
	for _, c := range corners {
		p := c.Rotate(degrees).Add(center)
		r.MinX = math.Min(r.MinX, p.X)
		r.MinZ = math.Min(r.MinZ, p.Z)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxZ = math.Max(r.MaxZ, p.Z)
	}
	return r
}
