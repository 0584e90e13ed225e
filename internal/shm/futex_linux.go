//go:build linux

package shm

import (
	"sync/atomic"
	"time"
	"unsafe"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// The segment is mapped MAP_SHARED into two processes, so the private
// futex variants cannot be used.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// waitSlice bounds one futex sleep so callers can observe ctx and close.
const waitSlice = 10 * time.Millisecond

// waitWord sleeps while *addr == val, for at most waitSlice. Spurious
// returns are fine; callers re-check their condition.
func waitWord(addr *uint32, val uint32, _ *iox.Backoff) {
	if atomic.LoadUint32(addr) != val {
		return
	}
	ts := unix.NsecToTimespec(int64(waitSlice))
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0,
		0,
	)
}

// wakeWord wakes every waiter on addr in either process.
func wakeWord(addr *uint32) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(1<<31-1),
		0,
		0,
		0,
	)
}
