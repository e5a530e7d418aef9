package grid

import (
	"fmt"
	"strings"
)

// Shape is the per-axis extent of a dense array.
type Shape []int

// Len returns the number of elements a shape holds.
func (s Shape) Len() int {
	n := 1
	for _, v := range s {
		n *= v
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Strides returns row-major element strides.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

func (s Shape) Validate() error {
	for i, v := range s {
		if v < 0 {
			return fmt.Errorf("%w: axis %d has negative extent %d", ErrInvalidShape, i, v)
		}
	}
	return nil
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Range is a half-open index interval [Start, Stop).
type Range struct {
	Start int
	Stop  int
}

func (r Range) Len() int {
	if r.Stop <= r.Start {
		return 0
	}
	return r.Stop - r.Start
}

// Region is an axis-aligned box of index ranges, one per axis.
type Region []Range

// Full returns the region covering every element of shape.
func Full(shape Shape) Region {
	r := make(Region, len(shape))
	for i, n := range shape {
		r[i] = Range{Start: 0, Stop: n}
	}
	return r
}

// Shape returns the extent of the region along each axis.
func (r Region) Shape() Shape {
	s := make(Shape, len(r))
	for i, rg := range r {
		s[i] = rg.Len()
	}
	return s
}

// Empty reports whether the region holds no elements.
func (r Region) Empty() bool {
	for _, rg := range r {
		if rg.Len() == 0 {
			return true
		}
	}
	return false
}

// Within reports whether the region fits inside an array of the given shape.
func (r Region) Within(shape Shape) bool {
	if len(r) != len(shape) {
		return false
	}
	for i, rg := range r {
		if rg.Start < 0 || rg.Stop > shape[i] || rg.Start > rg.Stop {
			return false
		}
	}
	return true
}

// Overlaps reports whether two regions share at least one element.
func (r Region) Overlaps(o Region) bool {
	if len(r) != len(o) || r.Empty() || o.Empty() {
		return false
	}
	for i := range r {
		if r[i].Stop <= o[i].Start || o[i].Stop <= r[i].Start {
			return false
		}
	}
	return true
}

func (r Region) Clone() Region {
	out := make(Region, len(r))
	copy(out, r)
	return out
}

func (r Region) String() string {
	parts := make([]string, len(r))
	for i, rg := range r {
		parts[i] = fmt.Sprintf("%d:%d", rg.Start, rg.Stop)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
