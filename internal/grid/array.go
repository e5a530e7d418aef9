// Package grid holds the dense float64 arrays and index regions the stencil
// engine reads from and accumulates into.
package grid

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidShape  = errors.New("grid: invalid shape")
	ErrShapeMismatch = errors.New("grid: shape mismatch")
	ErrOutOfBounds   = errors.New("grid: region out of bounds")
)

// Array is a row-major dense N-dimensional float64 array.
type Array struct {
	shape   Shape
	strides []int
	data    []float64
}

// NewArray returns a zero-filled array of the given shape.
func NewArray(shape Shape) *Array {
	s := shape.Clone()
	return &Array{shape: s, strides: s.Strides(), data: make([]float64, s.Len())}
}

// FromSlice wraps data (not copied) as an array of the given shape.
func FromSlice(shape Shape, data []float64) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.Len() != len(data) {
		return nil, fmt.Errorf("%w: shape %s needs %d values, got %d", ErrShapeMismatch, shape, shape.Len(), len(data))
	}
	s := shape.Clone()
	return &Array{shape: s, strides: s.Strides(), data: data}, nil
}

func (a *Array) Shape() Shape { return a.shape.Clone() }

// Data exposes the backing slice in row-major order.
func (a *Array) Data() []float64 { return a.data }

func (a *Array) Len() int { return len(a.data) }

func (a *Array) At(idx ...int) float64 {
	return a.data[a.offset(idx)]
}

func (a *Array) Set(v float64, idx ...int) {
	a.data[a.offset(idx)] = v
}

func (a *Array) Fill(v float64) {
	for i := range a.data {
		a.data[i] = v
	}
}

func (a *Array) Clone() *Array {
	data := make([]float64, len(a.data))
	copy(data, a.data)
	return &Array{shape: a.shape.Clone(), strides: a.strides, data: data}
}

// Extract copies the elements of region into a new array shaped like the region.
func (a *Array) Extract(region Region) (*Array, error) {
	if !region.Within(a.shape) {
		return nil, fmt.Errorf("%w: %s in %s", ErrOutOfBounds, region, a.shape)
	}
	out := NewArray(region.Shape())
	copyRegion(out, Full(out.shape), a, region)
	return out, nil
}

// Paste overwrites dst in a with every element of src.
func (a *Array) Paste(dst Region, src *Array) error {
	if !dst.Within(a.shape) {
		return fmt.Errorf("%w: %s in %s", ErrOutOfBounds, dst, a.shape)
	}
	if !dst.Shape().Equal(src.shape) {
		return fmt.Errorf("%w: region %s vs source %s", ErrShapeMismatch, dst.Shape(), src.shape)
	}
	copyRegion(a, dst, src, Full(src.shape))
	return nil
}

// AddScaled accumulates w*src[srcRegion] into a[dst]. The two regions must
// have equal extents along every axis. A nil src is a no-op.
func (a *Array) AddScaled(dst Region, w float64, src *Array, srcRegion Region) error {
	if src == nil {
		return nil
	}
	if !dst.Within(a.shape) {
		return fmt.Errorf("%w: destination %s in %s", ErrOutOfBounds, dst, a.shape)
	}
	if !srcRegion.Within(src.shape) {
		return fmt.Errorf("%w: source %s in %s", ErrOutOfBounds, srcRegion, src.shape)
	}
	extent := dst.Shape()
	if !extent.Equal(srcRegion.Shape()) {
		return fmt.Errorf("%w: destination %s vs source %s", ErrShapeMismatch, extent, srcRegion.Shape())
	}
	walkRows(extent, func(idx []int, n int) {
		do := rowOffset(dst, a.strides, idx)
		so := rowOffset(srcRegion, src.strides, idx)
		ds := a.data[do : do+n]
		ss := src.data[so : so+n]
		for i := range ds {
			ds[i] += w * ss[i]
		}
	})
	return nil
}

// AddScaledAll accumulates w*src into a; both must share a shape.
func (a *Array) AddScaledAll(w float64, src *Array) error {
	if !a.shape.Equal(src.shape) {
		return fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, a.shape, src.shape)
	}
	for i, v := range src.data {
		a.data[i] += w * v
	}
	return nil
}

// ApproxEqual compares two arrays element-wise with a relative tolerance.
func (a *Array) ApproxEqual(o *Array, tol float64) bool {
	if !a.shape.Equal(o.shape) {
		return false
	}
	for i, v := range a.data {
		w := o.data[i]
		scale := math.Max(1, math.Max(math.Abs(v), math.Abs(w)))
		if math.Abs(v-w) > tol*scale {
			return false
		}
	}
	return true
}

// Sum returns the sum of every element.
func (a *Array) Sum() float64 {
	var s float64
	for _, v := range a.data {
		s += v
	}
	return s
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("grid: %d indices for %d-d array", len(idx), len(a.shape)))
	}
	off := 0
	for i, v := range idx {
		off += v * a.strides[i]
	}
	return off
}

func copyRegion(dst *Array, dr Region, src *Array, sr Region) {
	walkRows(dr.Shape(), func(idx []int, n int) {
		do := rowOffset(dr, dst.strides, idx)
		so := rowOffset(sr, src.strides, idx)
		copy(dst.data[do:do+n], src.data[so:so+n])
	})
}

func rowOffset(r Region, strides []int, idx []int) int {
	off := 0
	for i, rg := range r {
		off += (rg.Start + idx[i]) * strides[i]
	}
	return off
}

// walkRows visits every innermost row of extent in row-major order. idx
// holds the row's leading index (last axis always 0); n is the row length.
func walkRows(extent Shape, fn func(idx []int, n int)) {
	if extent.Len() == 0 {
		return
	}
	nd := len(extent)
	if nd == 0 {
		fn(nil, 1)
		return
	}
	idx := make([]int, nd)
	n := extent[nd-1]
	for {
		fn(idx, n)
		k := nd - 2
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < extent[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return
		}
	}
}
