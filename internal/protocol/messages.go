package protocol

import (
	"fmt"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/protocol/frame"
	"github.com/danmuck/halostencil/internal/protocol/schema"
	"github.com/danmuck/halostencil/internal/protocol/tlv"
	"github.com/danmuck/halostencil/internal/remote"
	"github.com/danmuck/halostencil/internal/stencil"
)

// FetchRequest asks a peer for the slab it exposed under Handle in Epoch.
type FetchRequest struct {
	Epoch     uint64
	Handle    remote.Handle
	Requester int
}

// SlabReply carries one exposed slab back to the requester.
type SlabReply struct {
	Epoch  uint64
	Handle remote.Handle
	Slab   *grid.Array
}

func EncodeFetch(id uint64, req FetchRequest) frame.Frame {
	payload := tlv.EncodeFields([]tlv.Field{
		tlv.U64(schema.FieldEpoch, req.Epoch),
		tlv.U64(schema.FieldDisp, uint64(req.Handle.Disp)),
		tlv.U64(schema.FieldPart, uint64(req.Handle.Part)),
		tlv.U32(schema.FieldRequester, uint32(req.Requester)),
	})
	return frame.New(schema.MsgHaloFetch, id, 0, payload)
}

func EncodeSlab(id uint64, rep SlabReply) frame.Frame {
	shape := rep.Slab.Shape()
	dims := make([]uint32, len(shape))
	for i, n := range shape {
		dims[i] = uint32(n)
	}
	payload := tlv.EncodeFields([]tlv.Field{
		tlv.U64(schema.FieldEpoch, rep.Epoch),
		tlv.U64(schema.FieldDisp, uint64(rep.Handle.Disp)),
		tlv.U64(schema.FieldPart, uint64(rep.Handle.Part)),
		tlv.U32s(schema.FieldShape, dims),
		tlv.F64s(schema.FieldData, rep.Slab.Data()),
	})
	return frame.New(schema.MsgHaloSlab, id, frame.FlagIsResponse, payload)
}

func EncodeError(id uint64, reason string) frame.Frame {
	payload := tlv.EncodeFields([]tlv.Field{tlv.String(schema.FieldReason, reason)})
	return frame.New(schema.MsgHaloError, id, frame.FlagIsResponse|frame.FlagIsError, payload)
}

func DecodeFetch(f frame.Frame) (FetchRequest, error) {
	fields, err := fieldsOf(f, schema.MsgHaloFetch)
	if err != nil {
		return FetchRequest{}, err
	}
	epoch, h, err := epochAndHandle(fields)
	if err != nil {
		return FetchRequest{}, err
	}
	requester, err := tlv.U32FromBytes(mustGet(fields, schema.FieldRequester).Value)
	if err != nil {
		return FetchRequest{}, err
	}
	return FetchRequest{Epoch: epoch, Handle: h, Requester: int(requester)}, nil
}

// DecodeReply returns the slab of a MsgHaloSlab frame, or a *RemoteError for
// a MsgHaloError frame.
func DecodeReply(f frame.Frame) (SlabReply, error) {
	if f.Header.MessageType == schema.MsgHaloError {
		fields, err := fieldsOf(f, schema.MsgHaloError)
		if err != nil {
			return SlabReply{}, err
		}
		return SlabReply{}, &RemoteError{Reason: string(mustGet(fields, schema.FieldReason).Value)}
	}
	fields, err := fieldsOf(f, schema.MsgHaloSlab)
	if err != nil {
		return SlabReply{}, err
	}
	epoch, h, err := epochAndHandle(fields)
	if err != nil {
		return SlabReply{}, err
	}
	dims, err := tlv.U32sFromBytes(mustGet(fields, schema.FieldShape).Value)
	if err != nil {
		return SlabReply{}, err
	}
	data, err := tlv.F64sFromBytes(mustGet(fields, schema.FieldData).Value)
	if err != nil {
		return SlabReply{}, err
	}
	shape := make(grid.Shape, len(dims))
	for i, n := range dims {
		shape[i] = int(n)
	}
	slab, err := grid.FromSlice(shape, data)
	if err != nil {
		return SlabReply{}, fmt.Errorf("%w: %w", ErrInvalidSlab, err)
	}
	return SlabReply{Epoch: epoch, Handle: h, Slab: slab}, nil
}

func fieldsOf(f frame.Frame, want uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != want {
		return nil, fmt.Errorf("%w: got %d want %d", ErrMessageTypeMismatch, f.Header.MessageType, want)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(want, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func epochAndHandle(fields []tlv.Field) (uint64, remote.Handle, error) {
	epoch, err := tlv.U64FromBytes(mustGet(fields, schema.FieldEpoch).Value)
	if err != nil {
		return 0, remote.Handle{}, err
	}
	disp, err := tlv.U64FromBytes(mustGet(fields, schema.FieldDisp).Value)
	if err != nil {
		return 0, remote.Handle{}, err
	}
	part, err := tlv.U64FromBytes(mustGet(fields, schema.FieldPart).Value)
	if err != nil {
		return 0, remote.Handle{}, err
	}
	return epoch, remote.Handle{Disp: stencil.Key(disp), Part: stencil.Key(part)}, nil
}

// mustGet reads a field schema.Validate has already checked for.
func mustGet(fields []tlv.Field, id uint16) tlv.Field {
	f, _ := tlv.GetField(fields, id)
	return f
}
