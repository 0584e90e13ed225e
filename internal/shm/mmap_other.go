//go:build !unix

package shm

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("shm: shared mappings not supported on this platform")

func mmapFile(*os.File, int) ([]byte, error) { return nil, errUnsupported }

func mmapReadOnly(*os.File, int) ([]byte, error) { return nil, errUnsupported }

func munmap([]byte) error { return nil }

func lockFile(string) (*os.File, error) { return nil, errUnsupported }

func unlockFile(*os.File) error { return nil }
