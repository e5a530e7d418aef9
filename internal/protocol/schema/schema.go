package schema

import (
	"fmt"

	"github.com/danmuck/halostencil/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs of the halo exchange.
const (
	MsgHaloFetch uint32 = 1
	MsgHaloSlab  uint32 = 2
	MsgHaloError uint32 = 3
)

// Field IDs of the halo exchange.
const (
	FieldEpoch     uint16 = 1
	FieldDisp      uint16 = 2
	FieldPart      uint16 = 3
	FieldRequester uint16 = 4

	FieldShape uint16 = 100
	FieldData  uint16 = 101

	FieldReason uint16 = 200
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgHaloFetch: {
		{FieldEpoch, tlv.TypeU64},
		{FieldDisp, tlv.TypeU64},
		{FieldPart, tlv.TypeU64},
		{FieldRequester, tlv.TypeU32},
	},
	MsgHaloSlab: {
		{FieldEpoch, tlv.TypeU64},
		{FieldDisp, tlv.TypeU64},
		{FieldPart, tlv.TypeU64},
		{FieldShape, tlv.TypeU32s},
		{FieldData, tlv.TypeF64s},
	},
	MsgHaloError: {
		{FieldReason, tlv.TypeString},
	},
}

// Validate enforces required fields and their types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	log.Trace().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate ok")
	return nil
}
