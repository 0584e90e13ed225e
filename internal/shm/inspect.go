package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
)

// SlotInfo is a snapshot of one buffer header.
type SlotInfo struct {
	Name   string `json:"name"`
	Full   bool   `json:"full"`
	Length uint32 `json:"length"`
	Sent   uint64 `json:"sent"`
	Recvd  uint64 `json:"received"`
}

// Info is a snapshot of a segment header, taken without attaching.
type Info struct {
	Path          string      `json:"path"`
	Version       uint32      `json:"version"`
	Capacity      uint32      `json:"capacity"`
	Lock          string      `json:"lock"`
	CreatorPID    uint32      `json:"creator_pid"`
	AttacherPID   uint32      `json:"attacher_pid"`
	CreatorReady  bool        `json:"creator_ready"`
	AttacherReady bool        `json:"attacher_ready"`
	Closed        bool        `json:"closed"`
	Slots         [2]SlotInfo `json:"slots"`
}

// Inspect maps a segment read-only and reports its header and slots.
func Inspect(dir, segment string) (Info, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	path := filepath.Join(dir, segment)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, path)
		}
		return Info{}, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	size := int(st.Size())
	if size < SegmentHeaderSize {
		return Info{}, fmt.Errorf("%w: %s is %d bytes", ErrSegmentNotReady, path, size)
	}
	mem, err := mmapReadOnly(f, size)
	if err != nil {
		return Info{}, err
	}
	defer munmap(mem)

	hdr := header{mem: mem}
	if err := hdr.validate(size); err != nil {
		return Info{}, err
	}
	capacity := int(hdr.capacity())
	info := Info{
		Path:          path,
		Version:       hdr.version(),
		Capacity:      hdr.capacity(),
		Lock:          hdr.lockName(),
		CreatorPID:    atomic.LoadUint32(hdr.u32(offCreatorPID)),
		AttacherPID:   atomic.LoadUint32(hdr.u32(offAttacherPID)),
		CreatorReady:  hdr.creatorReady(),
		AttacherReady: hdr.attacherReady(),
		Closed:        hdr.closed(),
	}
	info.Slots[0] = newSlot(mem, hdr.slotA(), capacity).info()
	info.Slots[1] = newSlot(mem, hdr.slotB(), capacity).info()
	return info, nil
}
