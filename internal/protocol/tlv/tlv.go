package tlv

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/simlink/internal/protocol"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = fmt.Errorf("tlv: short field header: %w", protocol.ErrTruncated)
	ErrShortFieldValue  = fmt.Errorf("tlv: short field value: %w", protocol.ErrTruncated)
)

// Type IDs from tlv contract.
const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
	TypeF32    uint8 = 8
	TypeF64    uint8 = 9

	// Packed big-endian vectors.
	TypeI32s uint8 = 10
	TypeU32s uint8 = 11
	TypeF32s uint8 = 12
	TypeF64s uint8 = 13
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

// Size is the encoded length of f including its header.
func (f Field) Size() int {
	return HeaderLen + len(f.Value)
}

func EncodeField(f Field) []byte {
	return AppendField(make([]byte, 0, f.Size()), f)
}

// AppendField appends the encoding of f to dst.
func AppendField(dst []byte, f Field) []byte {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], f.ID)
	hdr[2] = f.Type
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(f.Value)))
	dst = append(dst, hdr[:]...)
	return append(dst, f.Value...)
}

// DecodeFields splits payload into fields. Values alias payload.
func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 4)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint64(len(payload)-i) < uint64(l) {
			return nil, ErrShortFieldValue
		}
		end := i + int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: payload[i:end:end]})
		i = end
	}
	return fields, nil
}

func EncodeFields(fields []Field) []byte {
	n := 0
	for _, f := range fields {
		n += f.Size()
	}
	out := make([]byte, 0, n)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// GetFields returns every field with id, in wire order.
func GetFields(fields []Field, id uint16) []Field {
	var out []Field
	for _, f := range fields {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d: %w", f.ID, f.Type, expected, protocol.ErrFieldTypeMismatch)
	}
	return nil
}
