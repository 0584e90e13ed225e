package tlv

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/simlink/internal/protocol"
)

// NewU8 creates a uint8 TLV field.
func NewU8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

// NewU32 creates a uint32 TLV field.
func NewU32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

// NewU64 creates a uint64 TLV field.
func NewU64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

// NewBool creates a bool TLV field.
func NewBool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

// NewString creates a string TLV field.
func NewString(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

// NewBytes creates a bytes TLV field. v is not copied.
func NewBytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: v}
}

// NewF32 creates a float32 TLV field.
func NewF32(id uint16, v float32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return Field{ID: id, Type: TypeF32, Value: buf}
}

// NewF64 creates a float64 TLV field.
func NewF64(id uint16, v float64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return Field{ID: id, Type: TypeF64, Value: buf}
}

// NewI32s packs an int32 vector.
func NewI32s(id uint16, v []int32) Field {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(x))
	}
	return Field{ID: id, Type: TypeI32s, Value: buf}
}

// NewU32s packs a uint32 vector.
func NewU32s(id uint16, v []uint32) Field {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint32(buf[4*i:], x)
	}
	return Field{ID: id, Type: TypeU32s, Value: buf}
}

// NewF32s packs a float32 vector.
func NewF32s(id uint16, v []float32) Field {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return Field{ID: id, Type: TypeF32s, Value: buf}
}

// NewF64s packs a float64 vector.
func NewF64s(id uint16, v []float64) Field {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return Field{ID: id, Type: TypeF64s, Value: buf}
}

func (f Field) check(want uint8, size int) error {
	if err := MustType(f, want); err != nil {
		return err
	}
	if size >= 0 && len(f.Value) != size {
		return fmt.Errorf("tlv: field %d length %d want %d: %w", f.ID, len(f.Value), size, protocol.ErrInvalidLength)
	}
	return nil
}

func (f Field) checkPacked(want uint8, width int) error {
	if err := MustType(f, want); err != nil {
		return err
	}
	if len(f.Value)%width != 0 {
		return fmt.Errorf("tlv: field %d length %d not a multiple of %d: %w", f.ID, len(f.Value), width, protocol.ErrInvalidLength)
	}
	return nil
}

// U8 returns the field value as uint8.
func (f Field) U8() (uint8, error) {
	if err := f.check(TypeU8, 1); err != nil {
		return 0, err
	}
	return f.Value[0], nil
}

// U32 returns the field value as uint32.
func (f Field) U32() (uint32, error) {
	if err := f.check(TypeU32, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

// U64 returns the field value as uint64.
func (f Field) U64() (uint64, error) {
	if err := f.check(TypeU64, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

// Bool returns the field value as bool.
func (f Field) Bool() (bool, error) {
	if err := f.check(TypeBool, 1); err != nil {
		return false, err
	}
	switch f.Value[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("tlv: field %d invalid bool %d: %w", f.ID, f.Value[0], protocol.ErrInvalidLength)
	}
}

// Str returns the field value as string.
func (f Field) Str() (string, error) {
	if err := f.check(TypeString, -1); err != nil {
		return "", err
	}
	return string(f.Value), nil
}

// Bytes returns a copy of the field value.
func (f Field) Bytes() ([]byte, error) {
	if err := f.check(TypeBytes, -1); err != nil {
		return nil, err
	}
	return append([]byte(nil), f.Value...), nil
}

// F32 returns the field value as float32.
func (f Field) F32() (float32, error) {
	if err := f.check(TypeF32, 4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(f.Value)), nil
}

// F64 returns the field value as float64.
func (f Field) F64() (float64, error) {
	if err := f.check(TypeF64, 8); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(f.Value)), nil
}

// I32s unpacks an int32 vector.
func (f Field) I32s() ([]int32, error) {
	if err := f.checkPacked(TypeI32s, 4); err != nil {
		return nil, err
	}
	out := make([]int32, len(f.Value)/4)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(f.Value[4*i:]))
	}
	return out, nil
}

// U32s unpacks a uint32 vector.
func (f Field) U32s() ([]uint32, error) {
	if err := f.checkPacked(TypeU32s, 4); err != nil {
		return nil, err
	}
	out := make([]uint32, len(f.Value)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(f.Value[4*i:])
	}
	return out, nil
}

// F32s unpacks a float32 vector.
func (f Field) F32s() ([]float32, error) {
	if err := f.checkPacked(TypeF32s, 4); err != nil {
		return nil, err
	}
	out := make([]float32, len(f.Value)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(f.Value[4*i:]))
	}
	return out, nil
}

// F64s unpacks a float64 vector.
func (f Field) F64s() ([]float64, error) {
	if err := f.checkPacked(TypeF64s, 8); err != nil {
		return nil, err
	}
	out := make([]float64, len(f.Value)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.BigEndian.Uint64(f.Value[8*i:]))
	}
	return out, nil
}
