// Package shm implements a two-slot, turn-taking byte channel over a
// memory-mapped file shared by exactly two processes.
//
// Layout of the segment file:
//
//	[0, 128)                        segment header
//	[128, 128+slotSize)             slot A (the creator's outbound buffer)
//	[128+slotSize, 128+2*slotSize)  slot B (the creator's inbound buffer)
//
// Each slot holds at most one message. A sender waits for the slot to be
// empty, fills it and marks it full; the receiver waits for full, reads and
// marks it empty. Waiting uses futex on Linux and adaptive backoff elsewhere.
package shm

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Role decides who owns the segment's lifetime.
type Role uint8

const (
	// Attacher opens a segment someone else created.
	Attacher Role = iota
	// Creator allocates the segment and removes it on Close.
	Creator
)

func (r Role) String() string {
	switch r {
	case Creator:
		return "creator"
	case Attacher:
		return "attacher"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole accepts "creator" and "attacher".
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "creator":
		return Creator, nil
	case "attacher", "":
		return Attacher, nil
	default:
		return Attacher, fmt.Errorf("shm: unknown role %q", raw)
	}
}

const (
	DefaultCapacity = 4096
	MaxCapacity     = 64 << 20
	// MaxNameLen leaves room for a terminating zero in the 32-byte name slots.
	MaxNameLen = 31
)

// Names is the resource tuple for one environment.
type Names struct {
	Segment    string
	SimToAgent string
	AgentToSim string
	Lock       string
}

// NamesFor derives the reference names for an environment id.
func NamesFor(envID uint32) Names {
	return Names{
		Segment:    fmt.Sprintf("seg%d", envID),
		SimToAgent: fmt.Sprintf("cpp2py%d", envID),
		AgentToSim: fmt.Sprintf("py2cpp%d", envID),
		Lock:       fmt.Sprintf("lockable%d", envID),
	}
}

// SimConfig is the simulator side: it sends on SimToAgent.
func (n Names) SimConfig(role Role, capacity int) Config {
	return Config{
		Segment:  n.Segment,
		Outbound: n.SimToAgent,
		Inbound:  n.AgentToSim,
		Lock:     n.Lock,
		Role:     role,
		Capacity: capacity,
	}
}

// AgentConfig is the controller side: it sends on AgentToSim.
func (n Names) AgentConfig(role Role, capacity int) Config {
	return Config{
		Segment:  n.Segment,
		Outbound: n.AgentToSim,
		Inbound:  n.SimToAgent,
		Lock:     n.Lock,
		Role:     role,
		Capacity: capacity,
	}
}

// Config opens one endpoint. Capacity is only read by the creator; the
// attacher takes it from the segment header.
type Config struct {
	Segment  string
	Outbound string
	Inbound  string
	Lock     string
	Role     Role
	Capacity int
	// Dir holds the segment file. Empty selects DefaultDir.
	Dir string
}

// DefaultDir prefers /dev/shm and falls back to the temp dir.
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

func (c Config) dir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return DefaultDir()
}

func (c Config) Validate() error {
	for _, n := range []struct{ field, v string }{
		{"segment", c.Segment},
		{"outbound", c.Outbound},
		{"inbound", c.Inbound},
		{"lock", c.Lock},
	} {
		if err := validateName(n.v); err != nil {
			return fmt.Errorf("%w: %s %v", ErrInvalidConfig, n.field, err)
		}
	}
	if c.Outbound == c.Inbound {
		return fmt.Errorf("%w: outbound and inbound are both %q", ErrInvalidConfig, c.Outbound)
	}
	if c.Segment == c.Lock {
		return fmt.Errorf("%w: segment and lock are both %q", ErrInvalidConfig, c.Segment)
	}
	if c.Role == Creator && (c.Capacity <= 0 || c.Capacity > MaxCapacity) {
		return fmt.Errorf("%w: capacity %d outside (0, %d]", ErrInvalidConfig, c.Capacity, MaxCapacity)
	}
	return nil
}

func validateName(v string) error {
	switch {
	case v == "":
		return errors.New("is empty")
	case len(v) > MaxNameLen:
		return fmt.Errorf("%q longer than %d bytes", v, MaxNameLen)
	case strings.ContainsAny(v, "/\x00"):
		return fmt.Errorf("%q contains a path separator or NUL", v)
	}
	return nil
}
