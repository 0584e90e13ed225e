// Package space describes the expected shape of observations and actions.
//
// Spaces are exchanged once, inside the init message, so the controller can
// build matching action containers. The session never validates containers
// against them.
package space

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/simlink/internal/container"
)

type Kind uint8

const (
	KindDiscrete Kind = iota + 1
	KindBox
	KindTuple
	KindDict
)

// Space is implemented only by the variants in this package.
type Space interface {
	Kind() Kind
	String() string
	isSpace()
}

// Discrete is the set {0, ..., N-1}.
type Discrete struct {
	N uint32
}

func (Discrete) Kind() Kind { return KindDiscrete }
func (Discrete) isSpace()   {}

func (d Discrete) String() string {
	return fmt.Sprintf("Discrete(%d)", d.N)
}

// Box is an n-dimensional interval with uniform bounds.
type Box struct {
	Low   float64
	High  float64
	Shape []uint32
	Dtype container.Dtype
}

func (Box) Kind() Kind { return KindBox }
func (Box) isSpace()   {}

func (b Box) String() string {
	dims := make([]string, len(b.Shape))
	for i, d := range b.Shape {
		dims[i] = strconv.FormatUint(uint64(d), 10)
	}
	return fmt.Sprintf("Box(%g, %g, (%s), %s)", b.Low, b.High, strings.Join(dims, ", "), b.Dtype)
}

// Tuple is an ordered product of spaces.
type Tuple struct {
	Spaces []Space
}

func NewTuple(spaces ...Space) Tuple {
	return Tuple{Spaces: append([]Space(nil), spaces...)}
}

func (Tuple) Kind() Kind { return KindTuple }
func (Tuple) isSpace()   {}

func (t Tuple) String() string {
	parts := make([]string, len(t.Spaces))
	for i, s := range t.Spaces {
		parts[i] = stringOf(s)
	}
	return "Tuple(" + strings.Join(parts, ", ") + ")"
}

// Dict is a named product of spaces.
type Dict struct {
	m map[string]Space
}

func NewDict() *Dict {
	return &Dict{m: make(map[string]Space)}
}

func (*Dict) Kind() Kind { return KindDict }
func (*Dict) isSpace()   {}

func (d *Dict) Set(name string, s Space) {
	if d.m == nil {
		d.m = make(map[string]Space)
	}
	d.m[name] = s
}

func (d *Dict) Get(name string) (Space, bool) {
	s, ok := d.m[name]
	return s, ok
}

func (d *Dict) Len() int { return len(d.m) }

func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Dict) String() string {
	keys := d.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + stringOf(d.m[k])
	}
	return "Dict(" + strings.Join(parts, ", ") + ")"
}

func stringOf(s Space) string {
	if s == nil {
		return "<nil>"
	}
	return s.String()
}

// Equal compares two space trees.
func Equal(a, b Space) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Discrete:
		return x.N == b.(Discrete).N
	case Box:
		y := b.(Box)
		if x.Low != y.Low || x.High != y.High || x.Dtype != y.Dtype || len(x.Shape) != len(y.Shape) {
			return false
		}
		for i := range x.Shape {
			if x.Shape[i] != y.Shape[i] {
				return false
			}
		}
		return true
	case Tuple:
		y := b.(Tuple)
		if len(x.Spaces) != len(y.Spaces) {
			return false
		}
		for i := range x.Spaces {
			if !Equal(x.Spaces[i], y.Spaces[i]) {
				return false
			}
		}
		return true
	case *Dict:
		y := b.(*Dict)
		if x.Len() != y.Len() {
			return false
		}
		for k, v := range x.m {
			w, ok := y.m[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Contains reports whether c is a member of s. Box bounds are inclusive.
func Contains(s Space, c container.Container) bool {
	switch x := s.(type) {
	case Discrete:
		v, ok := c.(container.Scalar)
		return ok && v.Value < x.N
	case Box:
		a, ok := c.(*container.Array)
		if !ok || a.Dtype() != x.Dtype {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			v := a.Float64At(i)
			if v < x.Low || v > x.High {
				return false
			}
		}
		return true
	case Tuple:
		t, ok := c.(*container.Tuple)
		if !ok || t.Len() != len(x.Spaces) {
			return false
		}
		for i, sub := range x.Spaces {
			e, _ := t.Get(i)
			if !Contains(sub, e) {
				return false
			}
		}
		return true
	case *Dict:
		d, ok := c.(*container.Dict)
		if !ok || d.Len() != x.Len() {
			return false
		}
		for k, sub := range x.m {
			e, found := d.Get(k)
			if !found || !Contains(sub, e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
