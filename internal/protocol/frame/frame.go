package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/simlink/internal/protocol"
)

const (
	FixedHeaderLen uint16 = 32
	Magic          uint32 = 0x51A7E001
	Version        uint16 = 1

	FlagIsResponse uint32 = 0x02
)

var (
	ErrShortHeader       = fmt.Errorf("frame: short fixed header: %w", protocol.ErrTruncated)
	ErrHeaderLenTooSmall = fmt.Errorf("frame: header_len smaller than fixed header: %w", protocol.ErrInvalidLength)
	ErrPayloadTooLarge   = fmt.Errorf("frame: %w", protocol.ErrPayloadTooLarge)
	ErrBadMagic          = fmt.Errorf("frame: bad magic: %w", protocol.ErrProtocolMismatch)
	ErrBadVersion        = fmt.Errorf("frame: unsupported version: %w", protocol.ErrProtocolMismatch)
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageID   uint64
	MessageType uint32
	Flags       uint32
	PayloadLen  uint64
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

// LimitsForCapacity sizes payloads so a whole frame fits one channel slot.
func LimitsForCapacity(capacity int) Limits {
	if capacity <= int(FixedHeaderLen) {
		return Limits{}
	}
	return Limits{MaxPayloadBytes: uint64(capacity - int(FixedHeaderLen))}
}

// New builds a frame with the current magic and version.
func New(messageID uint64, messageType uint32, payload []byte) Frame {
	return Frame{
		Header: Header{
			Magic:       Magic,
			Version:     Version,
			HeaderLen:   FixedHeaderLen,
			MessageID:   messageID,
			MessageType: messageType,
		},
		Payload: payload,
	}
}

// Size is the encoded length of f.
func (f Frame) Size() int {
	return int(FixedHeaderLen) + len(f.Payload)
}

// Encode writes header and payload into one buffer.
func Encode(f Frame, limits Limits) ([]byte, error) {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("frame: payload %d exceeds %d: %w", payloadLen, limits.MaxPayloadBytes, ErrPayloadTooLarge)
	}
	h := f.Header
	h.HeaderLen = FixedHeaderLen
	h.PayloadLen = payloadLen

	out := make([]byte, 0, f.Size())
	out = append(out, EncodeHeader(h)...)
	return append(out, f.Payload...), nil
}

// Decode parses one frame from b. The payload aliases b.
func Decode(b []byte, limits Limits) (Frame, error) {
	if len(b) < int(FixedHeaderLen) {
		return Frame{}, ErrShortHeader
	}
	h, err := DecodeHeader(b[:FixedHeaderLen])
	if err != nil {
		return Frame{}, err
	}
	if err := Check(h); err != nil {
		return Frame{}, err
	}
	if h.HeaderLen < FixedHeaderLen {
		return Frame{}, ErrHeaderLenTooSmall
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, fmt.Errorf("frame: payload %d exceeds %d: %w", h.PayloadLen, limits.MaxPayloadBytes, ErrPayloadTooLarge)
	}
	rest := b[h.HeaderLen:]
	if uint64(len(rest)) != h.PayloadLen {
		return Frame{}, fmt.Errorf("frame: payload_len %d but %d bytes follow: %w", h.PayloadLen, len(rest), protocol.ErrInvalidLength)
	}
	return Frame{Header: h, Payload: rest}, nil
}

// Check validates magic and version.
func Check(h Header) error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: got %#x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d", ErrBadVersion, h.Version)
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.MessageType)
	binary.BigEndian.PutUint32(buf[20:24], h.Flags)
	binary.BigEndian.PutUint64(buf[24:32], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length %d: %w", len(b), protocol.ErrInvalidLength)
	}
	return Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:   binary.BigEndian.Uint16(b[6:8]),
		MessageID:   binary.BigEndian.Uint64(b[8:16]),
		MessageType: binary.BigEndian.Uint32(b[16:20]),
		Flags:       binary.BigEndian.Uint32(b[20:24]),
		PayloadLen:  binary.BigEndian.Uint64(b[24:32]),
	}, nil
}
