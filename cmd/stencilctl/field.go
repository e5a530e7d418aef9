package main

import (
	"math"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

// fillField writes a smooth periodic test field into a block whose first
// cell sits at origin of a global array of shape global. Every rank computes
// its own block without seeing the others.
func fillField(a *grid.Array, origin []int, global grid.Shape, seed int64) {
	shape := a.Shape()
	idx := make([]int, len(shape))
	for i := range a.Data() {
		rem := i
		for k := len(shape) - 1; k >= 0; k-- {
			idx[k] = rem % shape[k]
			rem /= shape[k]
		}
		var v float64
		for k, n := range global {
			g := float64(origin[k] + idx[k])
			phase := float64(seed%97) * 0.1 * float64(k+1)
			v += math.Sin(2*math.Pi*float64(k+1)*g/float64(n) + phase)
		}
		a.Data()[i] = v
	}
}

// diffusionStep returns dt so that in + dt*L(in) stays stable for t.
func diffusionStep(t stencil.Table) float64 {
	var total float64
	for _, b := range t.Branches() {
		total += math.Abs(b.Weight)
	}
	if total == 0 {
		return 0
	}
	return 1 / total
}
