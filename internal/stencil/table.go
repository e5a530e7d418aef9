// Package stencil defines displacement vectors, their canonical keys and the
// immutable weight tables that describe a linear stencil operator.
package stencil

import (
	"fmt"
	"sort"
)

// Branch is one displacement/weight pair of a table.
type Branch struct {
	Disp   Displacement
	Weight float64
}

// Table maps displacements to weights. Tables are immutable: With and
// Without return a new table with a bumped version.
type Table struct {
	ndims   int
	version uint64
	weights map[Key]float64
}

// NewTable returns an empty table for ndims axes.
func NewTable(ndims int) Table {
	return Table{ndims: ndims, weights: map[Key]float64{}}
}

// Laplacian returns the canonical second-difference stencil: -2*ndims at the
// center and 1 for every unit step along every axis.
func Laplacian(ndims int) Table {
	t := NewTable(ndims)
	t.weights[MustKey(Zero(ndims))] = -2.0 * float64(ndims)
	for axis := 0; axis < ndims; axis++ {
		for _, step := range []int{-1, 1} {
			t.weights[MustKey(Unit(ndims, axis, step))] = 1.0
		}
	}
	t.version = 1
	return t
}

func (t Table) NumDims() int { return t.ndims }
func (t Table) Version() uint64 { return t.version }
func (t Table) Len() int { return len(t.weights) }

// With returns a copy of t with d set to w, overwriting any previous weight.
func (t Table) With(d Displacement, w float64) (Table, error) {
	k, err := t.key(d)
	if err != nil {
		return Table{}, err
	}
	next := t.clone()
	next.weights[k] = w
	return next, nil
}

// Without returns a copy of t with d removed. Removing an absent
// displacement is not an error.
func (t Table) Without(d Displacement) (Table, error) {
	k, err := t.key(d)
	if err != nil {
		return Table{}, err
	}
	next := t.clone()
	delete(next.weights, k)
	return next, nil
}

func (t Table) Weight(d Displacement) (float64, bool) {
	k, err := t.key(d)
	if err != nil {
		return 0, false
	}
	return t.WeightOf(k)
}

func (t Table) WeightOf(k Key) (float64, bool) {
	w, ok := t.weights[k]
	return w, ok
}

// Center returns the zero-displacement weight, or 0 when absent.
func (t Table) Center() float64 {
	return t.weights[MustKey(Zero(t.ndims))]
}

// Keys returns every key in ascending order.
func (t Table) Keys() []Key {
	keys := make([]Key, 0, len(t.weights))
	for k := range t.weights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (t Table) Branches() []Branch {
	keys := t.Keys()
	out := make([]Branch, len(keys))
	for i, k := range keys {
		out[i] = Branch{Disp: k.Displacement(), Weight: t.weights[k]}
	}
	return out
}

func (t Table) key(d Displacement) (Key, error) {
	if len(d) != t.ndims {
		return 0, fmt.Errorf("%w: %d components for a %d-d table", ErrUnsupportedDisplacement, len(d), t.ndims)
	}
	return KeyOf(d)
}

func (t Table) clone() Table {
	w := make(map[Key]float64, len(t.weights)+1)
	for k, v := range t.weights {
		w[k] = v
	}
	return Table{ndims: t.ndims, version: t.version + 1, weights: w}
}
