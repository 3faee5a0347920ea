// Package compositor applies a stamp across one or more terrain tiles.
//
// Intersecting tiles are stitched into a single working region on their
// shared pixel grid, the stamp operation runs once over that region, and the
// results are scattered back into fresh copies of the tiles. A stamp that
// spans a seam therefore produces the same heights as it would on one tile
// covering the union.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"go.uber.org/zap"

	"github.com/Faultbox/terrastamp/pkg/geom"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/mask"
	"github.com/Faultbox/terrastamp/pkg/stamp"
)

// ErrNoTerrain means the stamp footprint hits no tile. Apply reports it as
// Result.Warning, not as an error.
var ErrNoTerrain = errors.New("no terrain under stamp")

// gridEpsilon is the tolerance, in pixels, for tile origins to count as
// aligned to the shared grid.
const gridEpsilon = 1e-6

// Tile is one terrain heightfield placed in the world.
type Tile struct {
	ID     string
	Bounds geom.Rect
	Field  *heightfield.HeightField
}

// Spacing returns the world size of one pixel along X and Z.
func (t *Tile) Spacing() (dx, dz float64) {
	return t.Bounds.Width() / float64(t.Field.Width), t.Bounds.Length() / float64(t.Field.Height)
}

// Result is the outcome of Apply. Fields holds a new heightfield for every
// changed tile; the input tiles are never modified.
type Result struct {
	Fields    map[string]*heightfield.HeightField
	Changed   []string
	Dirty     map[string]image.Rectangle // tile-local pixel rectangle that changed
	Footprint geom.Rect
	Warning   error
}

// Notifier is told about tiles replaced by a successful Apply.
type Notifier interface {
	TilesChanged(ids []string, fields map[string]*heightfield.HeightField)
}

// HeightRanger reports the normalized height range of the terrain set.
type HeightRanger interface {
	HeightRange() (min, max float32, ok bool)
}

// Compositor applies stamps to tiles.
type Compositor struct {
	SeaLevel  float64 // world units
	Heights   HeightRanger
	notifiers []Notifier
	log       *zap.Logger
}

// New creates a compositor. A nil logger discards output.
func New(log *zap.Logger) *Compositor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compositor{log: log}
}

// AddNotifier registers n to be told about changed tiles.
func (c *Compositor) AddNotifier(n Notifier) {
	c.notifiers = append(c.notifiers, n)
}

// grid is the shared pixel lattice of the intersecting tiles.
type grid struct {
	originX, originZ float64
	dx, dz           float64
	scale            float64
}

// pixelRect returns t's pixel rectangle on the grid.
func (g *grid) pixelRect(t *Tile) (image.Rectangle, error) {
	fx := (t.Bounds.MinX - g.originX) / g.dx
	fz := (t.Bounds.MinZ - g.originZ) / g.dz
	x0, z0 := math.Round(fx), math.Round(fz)
	if math.Abs(fx-x0) > gridEpsilon || math.Abs(fz-z0) > gridEpsilon {
		return image.Rectangle{}, fmt.Errorf("%w: tile %s is not aligned to the shared pixel grid", heightfield.ErrData, t.ID)
	}
	return image.Rect(int(x0), int(z0), int(x0)+t.Field.Width, int(z0)+t.Field.Height), nil
}

// center returns the world position of the centre of grid pixel (gx, gz).
func (g *grid) center(gx, gz int) (float64, float64) {
	return g.originX + (float64(gx)+0.5)*g.dx, g.originZ + (float64(gz)+0.5)*g.dz
}

// Apply composites st onto the tiles under its footprint.
func (c *Compositor) Apply(st *stamp.Stamp, settings *stamp.Settings, stack *mask.Stack, tiles []Tile) (*Result, error) {
	if st == nil || st.Field.Empty() {
		return nil, fmt.Errorf("%w: no stamp", heightfield.ErrData)
	}
	s, fixes := settings.Clamp()
	for _, f := range fixes {
		c.log.Warn("stamp parameter clamped", zap.String("field", f.Field),
			zap.Float64("value", f.Value), zap.Float64("clamped", f.Clamped))
	}

	sw, sh := st.Size()
	if err := stack.Validate(sw, sh); err != nil {
		return nil, err
	}

	res := &Result{
		Fields:    make(map[string]*heightfield.HeightField),
		Dirty:     make(map[string]image.Rectangle),
		Footprint: s.Footprint(),
	}

	var hits []*Tile
	for i := range tiles {
		t := &tiles[i]
		if !t.Field.Empty() && t.Bounds.Intersects(res.Footprint) {
			hits = append(hits, t)
		}
	}
	if len(hits) == 0 {
		res.Warning = ErrNoTerrain
		c.log.Warn("stamp footprint hits no terrain",
			zap.Float64("x", s.X), zap.Float64("z", s.Z), zap.Int("tiles", len(tiles)))
		return res, nil
	}

	g, rects, err := c.layout(hits)
	if err != nil {
		return nil, err
	}
	hits, rects = c.withContext(g, hits, rects, tiles, contextArea(s, hits[0], res.Footprint))

	region, owner, origin := c.gather(g, hits, rects, res.Footprint, margin(s))
	if region == nil {
		res.Warning = ErrNoTerrain
		return res, nil
	}

	minH, maxH := c.heightRange(tiles)
	work := c.prepare(g, st, s, stack, region, owner, origin, minH, maxH)

	out, err := stamp.Run(s.Operation, work, s.Base(), &s.Params)
	if err != nil {
		return nil, err
	}

	c.scatter(res, hits, rects, region, out, owner, origin)
	c.log.Debug("stamp applied",
		zap.String("operation", s.Operation.String()),
		zap.Int("region_w", region.Width), zap.Int("region_h", region.Height),
		zap.Strings("changed", res.Changed))

	if len(res.Changed) > 0 {
		for _, n := range c.notifiers {
			n.TilesChanged(res.Changed, res.Fields)
		}
	}
	return res, nil
}

// layout checks that the tiles share spacing and height scale and places
// them on one grid.
func (c *Compositor) layout(hits []*Tile) (*grid, []image.Rectangle, error) {
	ref := hits[0]
	dx, dz := ref.Spacing()
	g := &grid{originX: ref.Bounds.MinX, originZ: ref.Bounds.MinZ, dx: dx, dz: dz, scale: ref.Field.Scale}
	if g.scale <= 0 {
		return nil, nil, fmt.Errorf("%w: tile %s has no height scale", heightfield.ErrData, ref.ID)
	}

	rects := make([]image.Rectangle, len(hits))
	for i, t := range hits {
		tdx, tdz := t.Spacing()
		if !sameFloat(tdx, dx) || !sameFloat(tdz, dz) {
			return nil, nil, fmt.Errorf("%w: tile %s spacing %gx%g differs from %gx%g",
				heightfield.ErrData, t.ID, tdx, tdz, dx, dz)
		}
		if !sameFloat(t.Field.Scale, g.scale) {
			return nil, nil, fmt.Errorf("%w: tile %s height scale %g differs from %g",
				heightfield.ErrData, t.ID, t.Field.Scale, g.scale)
		}
		r, err := g.pixelRect(t)
		if err != nil {
			c.log.Warn("misaligned tile", zap.String("tile", t.ID))
			return nil, nil, err
		}
		rects[i] = r
	}
	return g, rects, nil
}

// withContext adds the tiles that only touch the context margin around the
// footprint. They are read for neighbourhood operations and slopes; scatter
// never changes them because every written pixel lies inside the stamp.
// Context tiles off the shared grid are left out.
func (c *Compositor) withContext(g *grid, hits []*Tile, rects []image.Rectangle, tiles []Tile, area geom.Rect) ([]*Tile, []image.Rectangle) {
	seen := make(map[*Tile]bool, len(hits))
	for _, t := range hits {
		seen[t] = true
	}
	for i := range tiles {
		t := &tiles[i]
		if seen[t] || t.Field.Empty() || !t.Bounds.Intersects(area) {
			continue
		}
		tdx, tdz := t.Spacing()
		if !sameFloat(tdx, g.dx) || !sameFloat(tdz, g.dz) || !sameFloat(t.Field.Scale, g.scale) {
			c.log.Debug("context tile off the shared grid", zap.String("tile", t.ID))
			continue
		}
		r, err := g.pixelRect(t)
		if err != nil {
			c.log.Debug("context tile off the shared grid", zap.String("tile", t.ID))
			continue
		}
		hits = append(hits, t)
		rects = append(rects, r)
	}
	return hits, rects
}

// ContextArea returns the world area whose tiles Apply reads for settings:
// the footprint grown by the context margin, in the pixel size of the first
// tile under the footprint. With no such tile it returns the footprint.
func ContextArea(settings *stamp.Settings, tiles []Tile) geom.Rect {
	s, _ := settings.Clamp()
	fp := s.Footprint()
	for i := range tiles {
		if !tiles[i].Field.Empty() && tiles[i].Bounds.Intersects(fp) {
			return contextArea(s, &tiles[i], fp)
		}
	}
	return fp
}

func contextArea(s *stamp.Settings, ref *Tile, fp geom.Rect) geom.Rect {
	dx, dz := ref.Spacing()
	m := float64(margin(s))
	return fp.Grow(m*dx, m*dz)
}

// margin is the extra context, in pixels, gathered around the footprint so
// that slopes and field operations see real terrain at the stamp's edge.
func margin(s *stamp.Settings) int {
	m := 1
	switch s.Operation {
	case stamp.Contrast:
		m += s.Params.FeatureSize
	case stamp.Smooth:
		m += s.Params.SmoothRadius
	case stamp.SharpenRidges:
		m += s.Params.RidgeIterations
	case stamp.HydraulicErosion:
		m += 4
	}
	for _, d := range s.Masks {
		if d.Kind == mask.KindSmooth && d.Smooth != nil {
			m += d.Smooth.Radius
		}
	}
	return m
}

// gather copies the heights under the footprint, plus margin, into a single
// region. owner holds the index of the tile owning each region pixel, or -1
// where no tile covers it; origin is the region's top-left grid pixel.
func (c *Compositor) gather(g *grid, hits []*Tile, rects []image.Rectangle, fp geom.Rect, margin int) (*heightfield.HeightField, []int, image.Point) {
	var union image.Rectangle
	for _, r := range rects {
		union = union.Union(r)
	}

	want := image.Rect(
		int(math.Floor((fp.MinX-g.originX)/g.dx))-margin,
		int(math.Floor((fp.MinZ-g.originZ)/g.dz))-margin,
		int(math.Ceil((fp.MaxX-g.originX)/g.dx))+margin,
		int(math.Ceil((fp.MaxZ-g.originZ)/g.dz))+margin,
	).Intersect(union)
	if want.Empty() {
		return nil, nil, image.Point{}
	}

	region := heightfield.New(want.Dx(), want.Dy(), g.scale)
	owner := make([]int, region.Width*region.Height)
	for i := range owner {
		owner[i] = -1
	}

	lowest := float32(math.MaxFloat32)
	for ti, r := range rects {
		in := r.Intersect(want)
		f := hits[ti].Field
		for gz := in.Min.Y; gz < in.Max.Y; gz++ {
			for gx := in.Min.X; gx < in.Max.X; gx++ {
				i := (gz-want.Min.Y)*region.Width + (gx - want.Min.X)
				if owner[i] >= 0 {
					continue
				}
				v := f.Data[(gz-r.Min.Y)*f.Width+(gx-r.Min.X)]
				region.Data[i] = v
				owner[i] = ti
				if v < lowest {
					lowest = v
				}
			}
		}
	}

	// Gaps between tiles take the lowest gathered height. They are never
	// written back.
	for i, o := range owner {
		if o < 0 {
			region.Data[i] = lowest
		}
	}
	return region, owner, want.Min
}

// heightRange returns the terrain set's height range, from the tracker when
// available.
func (c *Compositor) heightRange(tiles []Tile) (float32, float32) {
	if c.Heights != nil {
		if min, max, ok := c.Heights.HeightRange(); ok {
			return min, max
		}
	}
	min, max := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for i := range tiles {
		if tiles[i].Field.Empty() {
			continue
		}
		lo, hi := tiles[i].Field.MinMax()
		if lo < min {
			min = lo
		}
		if hi > max {
			max = hi
		}
	}
	if min > max {
		return 0, 0
	}
	return min, max
}

// prepare fills the per-pixel stamp, mask and context buffers.
func (c *Compositor) prepare(g *grid, st *stamp.Stamp, s *stamp.Settings, stack *mask.Stack,
	region *heightfield.HeightField, owner []int, origin image.Point, minH, maxH float32) *stamp.Region {

	w, h := region.Width, region.Height
	work := stamp.NewRegion(region, math.Min(g.dx, g.dz))
	samples := make([]mask.Sample, w*h)
	center := s.Center()
	minX, minZ := s.X-s.Width/2, s.Z-s.Length/2
	sea := float32(c.SeaLevel / g.scale)

	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				wx, wz := g.center(origin.X+x, origin.Y+y)
				local := geom.Vec2{X: wx, Z: wz}.RotateAround(center, -s.Rotation)
				u := (local.X - minX) / s.Width
				v := (local.Z - minZ) / s.Length

				inside := owner[i] >= 0 && u >= 0 && u < 1 && v >= 0 && v < 1
				samples[i] = mask.Sample{
					U: u,
					V: v,
					Ctx: mask.Context{
						X:          wx,
						Z:          wz,
						SeaLevel:   sea,
						MinHeight:  minH,
						MaxHeight:  maxH,
						DestHeight: region.Data[i],
						Slope:      slopeAt(region, x, y, g),
					},
					Skip: !inside,
				}
				work.Inside[i] = inside
				if inside {
					work.Raw[i] = st.Sample(u, v)
				}
			}
		}
	})

	weights := stack.EvaluateGrid(w, h, samples)
	for i, wt := range weights {
		if !work.Inside[i] {
			continue
		}
		raw := work.Raw[i]
		// stamp-scope weights scale the stamp around its base level
		scaled := s.BaseLevel + (raw-s.BaseLevel)*wt.Stamp
		work.Adj[i] = s.StampHeightAdj(scaled, g.scale)
		work.Weight[i] = wt.Result
	}
	return work
}

// slopeAt returns the terrain slope in degrees from central differences.
func slopeAt(f *heightfield.HeightField, x, y int, g *grid) float32 {
	ddx := float64(f.At(x+1, y)-f.At(x-1, y)) * g.scale / (2 * g.dx)
	ddz := float64(f.At(x, y+1)-f.At(x, y-1)) * g.scale / (2 * g.dz)
	return float32(math.Atan(math.Hypot(ddx, ddz)) * 180 / math.Pi)
}

// scatter writes changed region pixels into fresh copies of their tiles.
func (c *Compositor) scatter(res *Result, hits []*Tile, rects []image.Rectangle,
	before, after *heightfield.HeightField, owner []int, origin image.Point) {

	copies := make([]*heightfield.HeightField, len(hits))
	dirty := make([]image.Rectangle, len(hits))

	for y := 0; y < before.Height; y++ {
		for x := 0; x < before.Width; x++ {
			i := y*before.Width + x
			ti := owner[i]
			if ti < 0 || after.Data[i] == before.Data[i] {
				continue
			}
			if copies[ti] == nil {
				copies[ti] = hits[ti].Field.Clone()
			}
			lx := origin.X + x - rects[ti].Min.X
			ly := origin.Y + y - rects[ti].Min.Y
			copies[ti].Data[ly*copies[ti].Width+lx] = after.Data[i]
			dirty[ti] = dirty[ti].Union(image.Rect(lx, ly, lx+1, ly+1))
		}
	}

	for ti, f := range copies {
		if f == nil {
			continue
		}
		id := hits[ti].ID
		res.Fields[id] = f
		res.Dirty[id] = dirty[ti]
		res.Changed = append(res.Changed, id)
	}
}

func sameFloat(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
