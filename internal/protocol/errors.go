package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMessageTypeMismatch = errors.New("protocol: message type mismatch")
	ErrInvalidSlab         = errors.New("protocol: invalid slab")
)

// RemoteError is a failure reported by the peer in a MsgHaloError frame.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("protocol: peer error: %s", e.Reason)
}
