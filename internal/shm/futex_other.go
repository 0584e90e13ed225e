//go:build !linux

package shm

import "code.hybscloud.com/iox"

// Without futex the waiter polls with adaptive backoff.
func waitWord(_ *uint32, _ uint32, bo *iox.Backoff) {
	bo.Wait()
}

func wakeWord(*uint32) {}
