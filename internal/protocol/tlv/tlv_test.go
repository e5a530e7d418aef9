package tlv

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		U64(1, 7),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestFloatVectorKeepsBitPatterns(t *testing.T) {
	in := []float64{0, -0.0, 1.5, math.Inf(-1), math.SmallestNonzeroFloat64, -3e300}
	f := F64s(4, in)
	if f.Type != TypeF64s || len(f.Value) != 8*len(in) {
		t.Fatalf("unexpected field: type=%d len=%d", f.Type, len(f.Value))
	}
	out, err := F64sFromBytes(f.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if math.Float64bits(in[i]) != math.Float64bits(out[i]) {
			t.Fatalf("value %d changed: %v -> %v", i, in[i], out[i])
		}
	}
	if _, err := F64sFromBytes(f.Value[:7]); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength on a ragged vector, got %v", err)
	}
}

func TestScalarDecodersCheckWidth(t *testing.T) {
	if v, err := U64FromBytes(U64(1, 1<<40).Value); err != nil || v != 1<<40 {
		t.Fatalf("u64: v=%d err=%v", v, err)
	}
	if _, err := U32FromBytes([]byte{1, 2}); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	dims, err := U32sFromBytes(U32s(2, []uint32{3, 1, 4}).Value)
	if err != nil || len(dims) != 3 || dims[2] != 4 {
		t.Fatalf("u32 vector: %v err=%v", dims, err)
	}
}
