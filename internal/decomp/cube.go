package decomp

import (
	"fmt"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

// Cube splits a global grid into equally sized blocks laid out row-major over
// a processor grid. Every axis extent must divide evenly.
type Cube struct {
	dims  grid.Shape
	procs []int
	local grid.Shape
}

var _ Oracle = (*Cube)(nil)

// NewCube picks the processor grid for nprocs ranks that divides dims evenly
// and keeps the halo surface per block smallest.
func NewCube(nprocs int, dims grid.Shape) (*Cube, error) {
	if nprocs <= 0 {
		return nil, fmt.Errorf("%w: %d processes", ErrInvalidDecomposition, nprocs)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: no axes", ErrInvalidDecomposition)
	}
	for i, n := range dims {
		if n <= 0 {
			return nil, fmt.Errorf("%w: axis %d has extent %d", ErrInvalidDecomposition, i, n)
		}
	}

	var best []int
	bestCost := -1
	cur := make([]int, len(dims))
	var search func(axis, remaining int)
	search = func(axis, remaining int) {
		if axis == len(dims)-1 {
			if dims[axis]%remaining != 0 {
				return
			}
			cur[axis] = remaining
			cost := surface(dims, cur)
			if bestCost < 0 || cost < bestCost || (cost == bestCost && maxOf(cur) < maxOf(best)) {
				bestCost = cost
				best = append([]int(nil), cur...)
			}
			return
		}
		for p := 1; p <= remaining; p++ {
			if remaining%p != 0 || dims[axis]%p != 0 {
				continue
			}
			cur[axis] = p
			search(axis+1, remaining/p)
		}
	}
	search(0, nprocs)
	if best == nil {
		return nil, fmt.Errorf("%w: %d processes cannot evenly split %s", ErrInvalidDecomposition, nprocs, dims)
	}
	return NewCubeWithProcs(dims, best)
}

// NewCubeWithProcs uses an explicit processor grid.
func NewCubeWithProcs(dims grid.Shape, procs []int) (*Cube, error) {
	if len(procs) != len(dims) {
		return nil, fmt.Errorf("%w: %d processor axes for %d grid axes", ErrInvalidDecomposition, len(procs), len(dims))
	}
	local := make(grid.Shape, len(dims))
	for i := range dims {
		if procs[i] <= 0 || dims[i]%procs[i] != 0 {
			return nil, fmt.Errorf("%w: axis %d extent %d not divisible by %d", ErrInvalidDecomposition, i, dims[i], procs[i])
		}
		local[i] = dims[i] / procs[i]
	}
	return &Cube{dims: dims.Clone(), procs: append([]int(nil), procs...), local: local}, nil
}

func maxOf(v []int) int {
	m := 0
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

// surface is the number of boundary cells of one block summed over its faces.
func surface(dims grid.Shape, procs []int) int {
	local := make([]int, len(dims))
	vol := 1
	for i := range dims {
		local[i] = dims[i] / procs[i]
		vol *= local[i]
	}
	cost := 0
	for i := range local {
		if procs[i] > 1 {
			cost += 2 * vol / local[i]
		}
	}
	return cost
}

func (c *Cube) NumDims() int { return len(c.dims) }
func (c *Cube) GlobalShape() grid.Shape { return c.dims.Clone() }
func (c *Cube) ProcGrid() []int { return append([]int(nil), c.procs...) }
func (c *Cube) LocalShape(int) grid.Shape { return c.local.Clone() }

func (c *Cube) Size() int {
	n := 1
	for _, p := range c.procs {
		n *= p
	}
	return n
}

// Coords returns rank's position in the processor grid.
func (c *Cube) Coords(rank int) ([]int, error) {
	if rank < 0 || rank >= c.Size() {
		return nil, fmt.Errorf("%w: %d of %d", ErrUnknownRank, rank, c.Size())
	}
	coords := make([]int, len(c.procs))
	for i := len(c.procs) - 1; i >= 0; i-- {
		coords[i] = rank % c.procs[i]
		rank /= c.procs[i]
	}
	return coords, nil
}

func (c *Cube) rankOf(coords []int) int {
	r := 0
	for i, v := range coords {
		r = r*c.procs[i] + v
	}
	return r
}

// Origin returns the global index of rank's first local element.
func (c *Cube) Origin(rank int) ([]int, error) {
	coords, err := c.Coords(rank)
	if err != nil {
		return nil, err
	}
	for i := range coords {
		coords[i] *= c.local[i]
	}
	return coords, nil
}

func (c *Cube) NeighborOf(rank int, d stencil.Displacement, periodic []bool) (NeighborID, error) {
	if len(d) != len(c.dims) {
		return NoNeighbor, fmt.Errorf("%w: %d components for %d axes", stencil.ErrUnsupportedDisplacement, len(d), len(c.dims))
	}
	if err := d.Validate(); err != nil {
		return NoNeighbor, err
	}
	if periodic != nil && len(periodic) != len(c.dims) {
		return NoNeighbor, fmt.Errorf("%w: %d periodic flags for %d axes", ErrInvalidDecomposition, len(periodic), len(c.dims))
	}
	coords, err := c.Coords(rank)
	if err != nil {
		return NoNeighbor, err
	}
	for i, step := range d {
		v := coords[i] + step
		if v < 0 || v >= c.procs[i] {
			if periodic == nil || !periodic[i] {
				return NoNeighbor, nil
			}
			v = (v + c.procs[i]) % c.procs[i]
		}
		coords[i] = v
	}
	return NeighborID(c.rankOf(coords)), nil
}

// Scatter cuts a global array into one local array per rank.
func (c *Cube) Scatter(global *grid.Array) ([]*grid.Array, error) {
	if !global.Shape().Equal(c.dims) {
		return nil, fmt.Errorf("%w: global %s vs decomposition %s", grid.ErrShapeMismatch, global.Shape(), c.dims)
	}
	out := make([]*grid.Array, c.Size())
	for r := range out {
		local, err := global.Extract(c.ownedRegion(r))
		if err != nil {
			return nil, err
		}
		out[r] = local
	}
	return out, nil
}

// Gather reassembles per-rank local arrays into the global array.
func (c *Cube) Gather(locals []*grid.Array) (*grid.Array, error) {
	if len(locals) != c.Size() {
		return nil, fmt.Errorf("%w: %d locals for %d ranks", ErrUnknownRank, len(locals), c.Size())
	}
	global := grid.NewArray(c.dims)
	for r, local := range locals {
		if err := global.Paste(c.ownedRegion(r), local); err != nil {
			return nil, fmt.Errorf("rank %d: %w", r, err)
		}
	}
	return global, nil
}

func (c *Cube) ownedRegion(rank int) grid.Region {
	origin, _ := c.Origin(rank)
	region := make(grid.Region, len(origin))
	for i, o := range origin {
		region[i] = grid.Range{Start: o, Stop: o + c.local[i]}
	}
	return region
}
