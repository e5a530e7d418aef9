package halo

import (
	"fmt"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

// HaloPart is the piece of a displacement's contribution that lives on the
// neighbor one step Direction away. Source addresses the slab on the owner's
// array, Dest the cells it feeds on the receiving array.
type HaloPart struct {
	Direction stencil.Displacement
	Source    grid.Region
	Dest      grid.Region
}

// Plan splits out[i] += w*in[i+d] into the part computable from the local
// array and the parts that need a neighbor's boundary slab.
type Plan struct {
	Disp        stencil.Displacement
	SourceLocal grid.Region
	DestLocal   grid.Region
	Halos       []HaloPart
}

// Clone returns a deep copy of p.
func (p Plan) Clone() Plan {
	c := Plan{
		Disp:        append(stencil.Displacement(nil), p.Disp...),
		SourceLocal: p.SourceLocal.Clone(),
		DestLocal:   p.DestLocal.Clone(),
		Halos:       make([]HaloPart, len(p.Halos)),
	}
	for i, h := range p.Halos {
		c.Halos[i] = HaloPart{
			Direction: append(stencil.Displacement(nil), h.Direction...),
			Source:    h.Source.Clone(),
			Dest:      h.Dest.Clone(),
		}
	}
	return c
}

// Planner derives plans for arrays of one local shape. Every rank of a
// decomposition shares the shape, so a plan computed locally also describes
// the slab a neighbor exposes.
type Planner struct {
	shape grid.Shape
}

func NewPlanner(shape grid.Shape) (Planner, error) {
	if len(shape) == 0 {
		return Planner{}, fmt.Errorf("%w: empty local shape", ErrConfiguration)
	}
	for i, n := range shape {
		if n <= 0 {
			return Planner{}, fmt.Errorf("%w: local axis %d has extent %d", ErrConfiguration, i, n)
		}
	}
	return Planner{shape: shape.Clone()}, nil
}

func (p Planner) Shape() grid.Shape { return p.shape.Clone() }

// Plan computes the regions for displacement d. A diagonal displacement gets
// one halo part per non-empty subset of its non-zero axes; parts that would
// feed no cells are omitted.
func (p Planner) Plan(d stencil.Displacement) (Plan, error) {
	if len(d) != len(p.shape) {
		return Plan{}, fmt.Errorf("%w: %d components for %d axes", stencil.ErrUnsupportedDisplacement, len(d), len(p.shape))
	}
	if err := d.Validate(); err != nil {
		return Plan{}, err
	}
	plan := Plan{Disp: append(stencil.Displacement(nil), d...)}
	plan.SourceLocal, plan.DestLocal = p.regions(d, 0)

	var axes []int
	for k, v := range d {
		if v != 0 {
			axes = append(axes, k)
		}
	}
	for mask := 1; mask < 1<<len(axes); mask++ {
		var crossing uint
		dir := make(stencil.Displacement, len(d))
		for bit, k := range axes {
			if mask&(1<<bit) != 0 {
				crossing |= 1 << uint(k)
				dir[k] = d[k]
			}
		}
		src, dst := p.regions(d, crossing)
		if dst.Empty() {
			continue
		}
		plan.Halos = append(plan.Halos, HaloPart{Direction: dir, Source: src, Dest: dst})
	}
	return plan, nil
}

// regions returns the source and destination boxes of d when the axes set in
// crossing step over the block boundary and the remaining ones stay inside.
func (p Planner) regions(d stencil.Displacement, crossing uint) (grid.Region, grid.Region) {
	src := make(grid.Region, len(d))
	dst := make(grid.Region, len(d))
	for k, step := range d {
		n := p.shape[k]
		crosses := crossing&(1<<uint(k)) != 0
		switch {
		case step == 0:
			src[k] = grid.Range{Start: 0, Stop: n}
			dst[k] = grid.Range{Start: 0, Stop: n}
		case crosses && step > 0:
			src[k] = grid.Range{Start: 0, Stop: 1}
			dst[k] = grid.Range{Start: n - 1, Stop: n}
		case crosses:
			src[k] = grid.Range{Start: n - 1, Stop: n}
			dst[k] = grid.Range{Start: 0, Stop: 1}
		case step > 0:
			src[k] = grid.Range{Start: 1, Stop: n}
			dst[k] = grid.Range{Start: 0, Stop: n - 1}
		default:
			src[k] = grid.Range{Start: 0, Stop: n - 1}
			dst[k] = grid.Range{Start: 1, Stop: n}
		}
	}
	return src, dst
}
