package shm

import (
	"errors"

	"github.com/danmuck/simlink/internal/protocol"
)

var (
	ErrInvalidConfig   = protocol.Fatal(errors.New("shm: invalid config"))
	ErrSegmentExists   = protocol.Fatal(errors.New("shm: segment already exists"))
	ErrSegmentNotFound = protocol.Fatal(errors.New("shm: segment not found"))
	ErrBadSegment      = protocol.Fatal(errors.New("shm: segment header invalid"))
	ErrNameMismatch    = protocol.Fatal(errors.New("shm: buffer or lock name mismatch"))
	ErrAlreadyAttached = protocol.Fatal(errors.New("shm: segment already has an attacher"))
	ErrLockHeld        = protocol.Fatal(errors.New("shm: lock held by another creator"))
	ErrFrameTooLarge   = protocol.Fatal(errors.New("shm: frame exceeds capacity"))

	// ErrSegmentNotReady means the file exists but its creator has not
	// finished initializing it. Attachers retry.
	ErrSegmentNotReady = errors.New("shm: segment not ready")
	// ErrClosed is returned once either side has closed the channel.
	ErrClosed = errors.New("shm: channel closed")
	// ErrReleased is returned when a Writer or Reader is used twice.
	ErrReleased = errors.New("shm: handle already released")
)
