package stencil

import (
	"fmt"

	"github.com/danmuck/halostencil/internal/grid"
)

// Evaluate applies t to an undistributed array: out[i] = sum_d w_d * in[i+d].
// Along a periodic axis i+d wraps; along a non-periodic axis terms that fall
// outside the array are dropped.
func Evaluate(t Table, in *grid.Array, periodic []bool) (*grid.Array, error) {
	shape := in.Shape()
	if len(shape) != t.NumDims() {
		return nil, fmt.Errorf("%w: %d-d array for a %d-d table", grid.ErrShapeMismatch, len(shape), t.NumDims())
	}
	if len(periodic) != len(shape) {
		return nil, fmt.Errorf("%w: %d periodic flags for %d axes", grid.ErrShapeMismatch, len(periodic), len(shape))
	}
	out := grid.NewArray(shape)
	if shape.Len() == 0 {
		return out, nil
	}
	branches := t.Branches()
	idx := make([]int, len(shape))
	src := make([]int, len(shape))
	for {
		var acc float64
		for _, b := range branches {
			ok := true
			for k, v := range idx {
				j := v + b.Disp[k]
				if j < 0 || j >= shape[k] {
					if !periodic[k] {
						ok = false
						break
					}
					j = (j + shape[k]) % shape[k]
				}
				src[k] = j
			}
			if ok {
				acc += b.Weight * in.At(src...)
			}
		}
		out.Set(acc, idx...)

		k := len(idx) - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return out, nil
		}
	}
}
