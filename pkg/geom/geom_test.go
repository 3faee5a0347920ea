package geom

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestVec2Add(t *testing.T) {
	a := Vec2{1, 2}
	b := Vec2{3, 4}
	got := a.Add(b)
	want := Vec2{4, 6}
	if got != want {
		t.Errorf("Vec2.Add() = %v, want %v", got, want)
	}
}

func TestVec2Length(t *testing.T) {
	v := Vec2{3, 4}
	if got := v.Length(); got != 5 {
		t.Errorf("Vec2.Length() = %v, want 5", got)
	}
}

func TestVec2Normalize(t *testing.T) {
	n := Vec2{3, 4}.Normalize()
	if l := n.Length(); l < 0.999 || l > 1.001 {
		t.Errorf("Vec2.Normalize().Length() = %v, want ~1", l)
	}
	if z := (Vec2{}).Normalize(); z != (Vec2{}) {
		t.Errorf("zero vector normalize = %v, want zero", z)
	}
}

func TestVec2Rotate(t *testing.T) {
	got := Vec2{1, 0}.Rotate(90)
	if !approx(got.X, 0) || !approx(got.Z, 1) {
		t.Errorf("Rotate(90) = %v, want (0,1)", got)
	}

	back := got.Rotate(-90)
	if !approx(back.X, 1) || !approx(back.Z, 0) {
		t.Errorf("Rotate(-90) = %v, want (1,0)", back)
	}
}

func TestVec2RotateAround(t *testing.T) {
	got := Vec2{2, 1}.RotateAround(Vec2{1, 1}, 180)
	if !approx(got.X, 0) || !approx(got.Z, 1) {
		t.Errorf("RotateAround = %v, want (0,1)", got)
	}
}

func TestRectContainsHalfOpen(t *testing.T) {
	r := RectFrom(0, 0, 10, 10)

	tests := []struct {
		p    Vec2
		want bool
	}{
		{Vec2{0, 0}, true},
		{Vec2{9.999, 5}, true},
		{Vec2{10, 5}, false},
		{Vec2{5, 10}, false},
		{Vec2{-0.001, 5}, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestRectIntersects(t *testing.T) {
	a := RectFrom(0, 0, 10, 10)
	b := RectFrom(10, 0, 10, 10) // touching edge only

	if a.Intersects(b) {
		t.Error("rects sharing only an edge should not intersect")
	}
	if !a.Intersects(RectFrom(9, 9, 5, 5)) {
		t.Error("overlapping rects should intersect")
	}

	got := a.Intersection(RectFrom(5, -5, 10, 10))
	want := Rect{MinX: 5, MinZ: 0, MaxX: 10, MaxZ: 5}
	if got != want {
		t.Errorf("Intersection = %v, want %v", got, want)
	}

	if !a.Intersection(b).Empty() {
		t.Error("intersection of touching rects should be empty")
	}
}

func TestRectUnion(t *testing.T) {
	got := RectFrom(0, 0, 1, 1).Union(RectFrom(2, 3, 1, 1))
	want := Rect{MinX: 0, MinZ: 0, MaxX: 3, MaxZ: 4}
	if got != want {
		t.Errorf("Union = %v, want %v", got, want)
	}
	if u := (Rect{}).Union(want); u != want {
		t.Errorf("empty.Union = %v, want %v", u, want)
	}
}

func TestFootprintOf(t *testing.T) {
	r := FootprintOf(Vec2{0, 0}, 10, 4, 0)
	want := Rect{MinX: -5, MinZ: -2, MaxX: 5, MaxZ: 2}
	if r != want {
		t.Errorf("FootprintOf(0deg) = %v, want %v", r, want)
	}

	r = FootprintOf(Vec2{100, 50}, 10, 4, 90)
	if !approx(r.Width(), 4) || !approx(r.Length(), 10) {
		t.Errorf("FootprintOf(90deg) size = %vx%v, want 4x10", r.Width(), r.Length())
	}

	r = FootprintOf(Vec2{0, 0}, 10, 10, 45)
	diag := 10 * math.Sqrt2
	if !approx(r.Width(), diag) {
		t.Errorf("FootprintOf(45deg) width = %v, want %v", r.Width(), diag)
	}
}
