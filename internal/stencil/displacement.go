package stencil

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedDisplacement = errors.New("stencil: unsupported displacement")

// MaxDims bounds the number of axes a Key can pack.
const MaxDims = 28

// Displacement is an integer offset from a grid point to the point it reads.
// Only unit steps (-1, 0, 1) are supported along each axis.
type Displacement []int

// Zero returns the center displacement for ndims axes.
func Zero(ndims int) Displacement {
	return make(Displacement, ndims)
}

// Unit returns the displacement with step along axis and zeros elsewhere.
func Unit(ndims, axis, step int) Displacement {
	d := make(Displacement, ndims)
	d[axis] = step
	return d
}

func (d Displacement) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}

func (d Displacement) Neg() Displacement {
	out := make(Displacement, len(d))
	for i, v := range d {
		out[i] = -v
	}
	return out
}

func (d Displacement) Validate() error {
	if len(d) > MaxDims {
		return fmt.Errorf("%w: %d axes exceeds %d", ErrUnsupportedDisplacement, len(d), MaxDims)
	}
	for i, v := range d {
		if v < -1 || v > 1 {
			return fmt.Errorf("%w: component %d=%d is not a unit step", ErrUnsupportedDisplacement, i, v)
		}
	}
	return nil
}

func (d Displacement) String() string {
	parts := make([]string, len(d))
	for i, v := range d {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Key is the canonical packing of a Displacement: the axis count in the top
// byte and two bits per component (value+1) from the least significant end.
type Key uint64

// KeyOf packs d. It fails for non-unit components or too many axes.
func KeyOf(d Displacement) (Key, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	k := Key(len(d)) << 56
	for i, v := range d {
		k |= Key(v+1) << (2 * uint(i))
	}
	return k, nil
}

// MustKey is KeyOf for displacements known to be valid.
func MustKey(d Displacement) Key {
	k, err := KeyOf(d)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) NumDims() int {
	return int(k >> 56)
}

func (k Key) Displacement() Displacement {
	n := k.NumDims()
	d := make(Displacement, n)
	for i := 0; i < n; i++ {
		d[i] = int((k>>(2*uint(i)))&0x3) - 1
	}
	return d
}

func (k Key) String() string {
	return k.Displacement().String()
}
