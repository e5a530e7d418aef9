package schema

import (
	"testing"

	"github.com/danmuck/halostencil/internal/protocol/tlv"
	"github.com/danmuck/halostencil/internal/testutil/testlog"
)

func fetchFields() []tlv.Field {
	return []tlv.Field{
		tlv.U64(FieldEpoch, 3),
		tlv.U64(FieldDisp, 0x0100000000000002),
		tlv.U64(FieldPart, 0x0100000000000002),
		tlv.U32(FieldRequester, 1),
	}
}

func TestValidateFetchRequiredFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgHaloFetch, fetchFields()); err != nil {
		t.Fatalf("validate fetch: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := append(fetchFields(), tlv.Field{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}})
	if err := Validate(MsgHaloFetch, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgHaloFetch, fetchFields()[:1])
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldDisp || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U64(FieldEpoch, 1),
		tlv.U64(FieldDisp, 1),
		tlv.U64(FieldPart, 1),
		tlv.U32s(FieldShape, []uint32{2}),
		tlv.U32s(FieldData, []uint32{0, 0}),
	}
	err := Validate(MsgHaloSlab, fields)
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldData || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(999, nil)
	ve, ok := err.(ValidationError)
	if !ok || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected result: %v", err)
	}
}
