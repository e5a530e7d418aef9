// Package comm describes the identity of one participant in a rank group.
package comm

import "fmt"

// Context answers who the calling participant is within its group.
type Context interface {
	SelfRank() int
	GroupSize() int
}

// Static is a fixed rank/size pair, used when the group is known up front
// (goroutine ranks in one process, or ranks read from a cluster file).
type Static struct {
	Rank int
	Size int
}

var _ Context = Static{}

func NewStatic(rank, size int) (Static, error) {
	if size <= 0 {
		return Static{}, fmt.Errorf("comm: group size must be positive, got %d", size)
	}
	if rank < 0 || rank >= size {
		return Static{}, fmt.Errorf("comm: rank %d outside group of %d", rank, size)
	}
	return Static{Rank: rank, Size: size}, nil
}

func (s Static) SelfRank() int  { return s.Rank }
func (s Static) GroupSize() int { return s.Size }
