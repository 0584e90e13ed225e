package shm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	SegmentHeaderSize = 128
	SlotHeaderSize    = 64
	SegmentVersion    = 1

	nameLen = 32
)

var segmentMagic = [8]byte{'S', 'I', 'M', 'L', 'N', 'K', 0, 0}

// Segment header offsets.
const (
	offMagic         = 0
	offVersion       = 8
	offCapacity      = 12
	offSlotA         = 16
	offSlotB         = 24
	offCreatorPID    = 32
	offAttacherPID   = 36
	offCreatorReady  = 40
	offAttacherReady = 44
	offClosed        = 48
	offLockName      = 64
)

// Slot header offsets, relative to the slot.
const (
	offSlotName  = 0
	offSlotState = 32
	offSlotLen   = 36
	offSlotSent  = 40
	offSlotRecvd = 48
)

const (
	stateEmpty uint32 = 0
	stateFull  uint32 = 1
)

func alignTo64(n int) int {
	return (n + 63) &^ 63
}

func slotSize(capacity int) int {
	return SlotHeaderSize + alignTo64(capacity)
}

// SegmentSize is the file size for a capacity.
func SegmentSize(capacity int) int {
	return SegmentHeaderSize + 2*slotSize(capacity)
}

// header is a view over the first SegmentHeaderSize bytes of a mapping.
// Mutable words are accessed atomically; the peer may touch them anytime.
type header struct {
	mem []byte
}

func (h header) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&h.mem[off]))
}

func (h header) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&h.mem[off]))
}

func (h header) magicOK() bool {
	return bytes.Equal(h.mem[offMagic:offMagic+8], segmentMagic[:])
}

func (h header) version() uint32  { return binary.LittleEndian.Uint32(h.mem[offVersion:]) }
func (h header) capacity() uint32 { return binary.LittleEndian.Uint32(h.mem[offCapacity:]) }
func (h header) slotA() uint64    { return binary.LittleEndian.Uint64(h.mem[offSlotA:]) }
func (h header) slotB() uint64    { return binary.LittleEndian.Uint64(h.mem[offSlotB:]) }
func (h header) lockName() string { return readName(h.mem[offLockName : offLockName+nameLen]) }

func (h header) creatorReady() bool  { return atomic.LoadUint32(h.u32(offCreatorReady)) == 1 }
func (h header) attacherReady() bool { return atomic.LoadUint32(h.u32(offAttacherReady)) == 1 }
func (h header) closed() bool        { return atomic.LoadUint32(h.u32(offClosed)) == 1 }

// init writes the static fields. Ready is published separately, last.
func (h header) init(capacity int, lock string) {
	copy(h.mem[offMagic:], segmentMagic[:])
	binary.LittleEndian.PutUint32(h.mem[offVersion:], SegmentVersion)
	binary.LittleEndian.PutUint32(h.mem[offCapacity:], uint32(capacity))
	binary.LittleEndian.PutUint64(h.mem[offSlotA:], uint64(SegmentHeaderSize))
	binary.LittleEndian.PutUint64(h.mem[offSlotB:], uint64(SegmentHeaderSize+slotSize(capacity)))
	writeName(h.mem[offLockName:offLockName+nameLen], lock)
}

func (h header) validate(fileSize int) error {
	if !h.magicOK() {
		return fmt.Errorf("%w: bad magic %q", ErrBadSegment, h.mem[offMagic:offMagic+8])
	}
	if v := h.version(); v != SegmentVersion {
		return fmt.Errorf("%w: version %d want %d", ErrBadSegment, v, SegmentVersion)
	}
	capacity := int(h.capacity())
	if capacity <= 0 || capacity > MaxCapacity {
		return fmt.Errorf("%w: capacity %d", ErrBadSegment, capacity)
	}
	if want := SegmentSize(capacity); fileSize < want {
		return fmt.Errorf("%w: file is %d bytes, layout needs %d", ErrBadSegment, fileSize, want)
	}
	if h.slotA() != SegmentHeaderSize || h.slotB() != uint64(SegmentHeaderSize+slotSize(capacity)) {
		return fmt.Errorf("%w: slot offsets %d/%d", ErrBadSegment, h.slotA(), h.slotB())
	}
	return nil
}

// slot is a view over one buffer: header plus capacity data bytes.
type slot struct {
	mem      []byte
	off      int
	capacity int
}

func newSlot(mem []byte, off uint64, capacity int) slot {
	return slot{mem: mem, off: int(off), capacity: capacity}
}

func (s slot) name() string {
	return readName(s.mem[s.off+offSlotName : s.off+offSlotName+nameLen])
}

func (s slot) setName(v string) {
	writeName(s.mem[s.off+offSlotName:s.off+offSlotName+nameLen], v)
}

func (s slot) state() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[s.off+offSlotState]))
}

func (s slot) length() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[s.off+offSlotLen]))
}

func (s slot) sent() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[s.off+offSlotSent]))
}

func (s slot) recvd() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[s.off+offSlotRecvd]))
}

func (s slot) data() []byte {
	start := s.off + SlotHeaderSize
	return s.mem[start : start+s.capacity : start+s.capacity]
}

func (s slot) info() SlotInfo {
	return SlotInfo{
		Name:   s.name(),
		Full:   atomic.LoadUint32(s.state()) == stateFull,
		Length: atomic.LoadUint32(s.length()),
		Sent:   atomic.LoadUint64(s.sent()),
		Recvd:  atomic.LoadUint64(s.recvd()),
	}
}

func readName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func writeName(dst []byte, v string) {
	clear(dst)
	copy(dst[:len(dst)-1], v)
}
