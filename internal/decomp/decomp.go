// Package decomp partitions a global Cartesian grid into per-rank blocks and
// answers neighbor lookups between them.
package decomp

import (
	"errors"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

var (
	ErrInvalidDecomposition = errors.New("decomp: invalid decomposition")
	ErrUnknownRank          = errors.New("decomp: unknown rank")
)

// NeighborID identifies the rank owning a neighboring block.
type NeighborID int

// NoNeighbor is returned when stepping off a non-periodic edge.
const NoNeighbor NeighborID = -1

func (n NeighborID) Exists() bool { return n != NoNeighbor }

// Oracle is the geometry the stencil engine consumes.
type Oracle interface {
	NumDims() int
	// LocalShape is the shape of the block owned by rank.
	LocalShape(rank int) grid.Shape
	// NeighborOf returns the rank whose block lies one step d away from
	// rank's block, wrapping along axes flagged periodic.
	NeighborOf(rank int, d stencil.Displacement, periodic []bool) (NeighborID, error)
}
