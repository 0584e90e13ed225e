// Package container owns the value tree exchanged between simulator and controller.
//
// A Container is one of four variants:
// - Scalar: a single unsigned integer
// - Array: a typed numeric array with an advisory shape
// - Tuple: an ordered list of containers
// - Dict: a string-keyed map of containers
//
// Trees are built by the producing side, encoded once, and decoded into a
// fresh tree by the consuming side. Nothing is pooled across steps.
package container

import (
	"errors"
	"fmt"
)

var (
	ErrDtypeMismatch = errors.New("container: dtype mismatch")
	ErrInvalidDtype  = errors.New("container: invalid dtype")
)

// Kind discriminates the container variants.
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindArray
	KindTuple
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Container is implemented only by the variants in this package.
type Container interface {
	Kind() Kind
	String() string
	isContainer()
}

// Scalar holds one discrete value.
type Scalar struct {
	Value uint32
}

func NewScalar(v uint32) Scalar {
	return Scalar{Value: v}
}

func (Scalar) Kind() Kind { return KindScalar }

func (s Scalar) String() string {
	return fmt.Sprintf("%d", s.Value)
}

func (Scalar) isContainer() {}
