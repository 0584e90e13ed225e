package container

import (
	"math"
	"sort"
	"strings"
)

// Tuple is an ordered, heterogeneous list of containers.
type Tuple struct {
	elems []Container
}

func NewTuple(elems ...Container) *Tuple {
	return &Tuple{elems: append([]Container(nil), elems...)}
}

func (*Tuple) Kind() Kind { return KindTuple }

func (*Tuple) isContainer() {}

func (t *Tuple) Add(c Container) {
	t.elems = append(t.elems, c)
}

func (t *Tuple) Get(i int) (Container, bool) {
	if i < 0 || i >= len(t.elems) {
		return nil, false
	}
	return t.elems[i], true
}

func (t *Tuple) Len() int { return len(t.elems) }

func (t *Tuple) Elements() []Container {
	return append([]Container(nil), t.elems...)
}

func (t *Tuple) String() string {
	var b strings.Builder
	b.WriteString("Tuple(")
	for i, e := range t.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(stringOf(e))
	}
	b.WriteByte(')')
	return b.String()
}

// Dict maps names to containers. Set overwrites an existing key.
type Dict struct {
	m map[string]Container
}

func NewDict() *Dict {
	return &Dict{m: make(map[string]Container)}
}

func (*Dict) Kind() Kind { return KindDict }

func (*Dict) isContainer() {}

func (d *Dict) Set(key string, c Container) {
	if d.m == nil {
		d.m = make(map[string]Container)
	}
	d.m[key] = c
}

func (d *Dict) Get(key string) (Container, bool) {
	c, ok := d.m[key]
	return c, ok
}

func (d *Dict) Len() int { return len(d.m) }

// Keys returns the keys in sorted order.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Dict) String() string {
	var b strings.Builder
	b.WriteString("Dict(")
	for i, k := range d.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(stringOf(d.m[k]))
	}
	b.WriteByte(')')
	return b.String()
}

func stringOf(c Container) string {
	if c == nil {
		return "<nil>"
	}
	return c.String()
}

// Equal compares two trees by structure and value.
// Float elements compare by bit pattern so NaN payloads round-trip as equal.
func Equal(a, b Container) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Scalar:
		return x.Value == b.(Scalar).Value
	case *Array:
		return arraysEqual(x, b.(*Array))
	case *Tuple:
		y := b.(*Tuple)
		if x.Len() != y.Len() {
			return false
		}
		for i := range x.elems {
			if !Equal(x.elems[i], y.elems[i]) {
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

func arraysEqual(x, y *Array) bool {
	if x.dtype != y.dtype || x.Len() != y.Len() || len(x.shape) != len(y.shape) {
		return false
	}
	for i := range x.shape {
		if x.shape[i] != y.shape[i] {
			return false
		}
	}
	switch x.dtype {
	case Int32:
		for i := range x.i32 {
			if x.i32[i] != y.i32[i] {
				return false
			}
		}
	case Uint32:
		for i := range x.u32 {
			if x.u32[i] != y.u32[i] {
				return false
			}
		}
	case Float32:
		for i := range x.f32 {
			if math.Float32bits(x.f32[i]) != math.Float32bits(y.f32[i]) {
				return false
			}
		}
	case Float64:
		for i := range x.f64 {
			if math.Float64bits(x.f64[i]) != math.Float64bits(y.f64[i]) {
				return false
			}
		}
	}
	return true
}
