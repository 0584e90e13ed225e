package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/tlv"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{tlv.NewString(1, "obs")})
	in := New(42, 3, payload)
	b, err := Encode(in, DefaultLimits())
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	out, err := Decode(b, DefaultLimits())
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.MessageType != 3 || out.Header.MessageID != 42 {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestDecodeFrameHeaderLenTooSmall(t *testing.T) {
	h := Header{Magic: Magic, Version: Version, HeaderLen: 8, MessageID: 1, MessageType: 1}
	_, err := Decode(EncodeHeader(h), DefaultLimits())
	if !errors.Is(err, ErrHeaderLenTooSmall) {
		t.Fatalf("expected ErrHeaderLenTooSmall, got %v", err)
	}
}

func TestDecodeFrameRejectsForeignMagicAndVersion(t *testing.T) {
	h := Header{Magic: 0xEDCE1001, Version: Version, HeaderLen: FixedHeaderLen}
	_, err := Decode(EncodeHeader(h), DefaultLimits())
	if !errors.Is(err, ErrBadMagic) || !errors.Is(err, protocol.ErrProtocolMismatch) {
		t.Fatalf("expected bad magic mismatch, got %v", err)
	}

	h = Header{Magic: Magic, Version: 9, HeaderLen: FixedHeaderLen}
	_, err = Decode(EncodeHeader(h), DefaultLimits())
	if !errors.Is(err, ErrBadVersion) || !protocol.IsFatal(err) {
		t.Fatalf("expected fatal bad version, got %v", err)
	}
}

func TestLimitsForCapacityBoundary(t *testing.T) {
	limits := LimitsForCapacity(64)
	exact := New(1, 1, make([]byte, 64-int(FixedHeaderLen)))
	b, err := Encode(exact, limits)
	if err != nil {
		t.Fatalf("exact fit rejected: %v", err)
	}
	if len(b) != 64 {
		t.Fatalf("encoded size=%d want 64", len(b))
	}

	over := New(1, 1, make([]byte, 64-int(FixedHeaderLen)+1))
	if _, err := Encode(over, limits); !errors.Is(err, ErrPayloadTooLarge) || !protocol.IsFatal(err) {
		t.Fatalf("expected fatal too large, got %v", err)
	}
}

func TestDecodeFrameRejectsTrailingBytes(t *testing.T) {
	b, err := Encode(New(1, 1, []byte{1, 2}), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b = append(b, 0xFF)
	if _, err := Decode(b, DefaultLimits()); !errors.Is(err, protocol.ErrInvalidLength) {
		t.Fatalf("expected invalid length, got %v", err)
	}
}
