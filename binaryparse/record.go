package binaryparse

import (
	"bytes"
	"fmt"
	"strings"
)

// Type identifies the runtime type of a Value.
type Type uint8

const (
	TypeInt    Type = iota // signed integer container
	TypeUint               // unsigned integer container
	TypeFloat              // f32 / f64
	TypeStr                // byte string
	TypeList               // sequence of element values
	TypeRecord             // embedded sub-parser result
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeStr:
		return "str"
	case TypeList:
		return "list"
	case TypeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Value is one slot of a decoded record: a tagged union over the
// container types a field can decode to.
type Value struct {
	typ  Type
	i    int64
	u    uint64
	f    float64
	s    []byte
	list []Value
	rec  *Record
}

// Int returns a signed integer value.
func Int(v int64) Value {
	return Value{typ: TypeInt, i: v}
}

// Uint returns an unsigned integer value.
func Uint(v uint64) Value {
	return Value{typ: TypeUint, u: v}
}

// Float returns a float value.
func Float(v float64) Value {
	return Value{typ: TypeFloat, f: v}
}

// Str returns a byte-string value. The slice is not copied.
func Str(b []byte) Value {
	return Value{typ: TypeStr, s: b}
}

// List returns a sequence value.
func List(elems ...Value) Value {
	return Value{typ: TypeList, list: elems}
}

// Rec returns an embedded-record value.
func Rec(r *Record) Value {
	return Value{typ: TypeRecord, rec: r}
}

// Type returns the value's runtime type.
func (v Value) Type() Type { return v.typ }

// IntVal returns the signed integer payload.
func (v Value) IntVal() int64 { return v.i }

// UintVal returns the unsigned integer payload.
func (v Value) UintVal() uint64 { return v.u }

// FloatVal returns the float payload.
func (v Value) FloatVal() float64 { return v.f }

// StrVal returns the byte-string payload.
func (v Value) StrVal() []byte { return v.s }

// ListVal returns the sequence payload.
func (v Value) ListVal() []Value { return v.list }

// RecordVal returns the embedded-record payload.
func (v Value) RecordVal() *Record { return v.rec }

// asInt64 converts an integer-typed value for use in a length or
// argument expression.
func (v Value) asInt64() (int64, bool) {
	switch v.typ {
	case TypeInt:
		return v.i, true
	case TypeUint:
		return int64(v.u), true
	default:
		return 0, false
	}
}

// Equal reports deep equality between two values.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeInt:
		return v.i == o.i
	case TypeUint:
		return v.u == o.u
	case TypeFloat:
		return v.f == o.f
	case TypeStr:
		return bytes.Equal(v.s, o.s)
	case TypeList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case TypeRecord:
		return v.rec.Equal(o.rec)
	default:
		return false
	}
}

// String renders the value for debug output.
func (v Value) String() string {
	switch v.typ {
	case TypeInt:
		return fmt.Sprintf("%d", v.i)
	case TypeUint:
		return fmt.Sprintf("%d", v.u)
	case TypeFloat:
		return fmt.Sprintf("%g", v.f)
	case TypeStr:
		return fmt.Sprintf("%q", v.s)
	case TypeList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(e.String())
		}
		sb.WriteByte(']')
		return sb.String()
	case TypeRecord:
		return v.rec.String()
	default:
		return "?"
	}
}

// Record is the decoded form of a schema: a flat insertion-ordered
// collection of named values, one per non-anonymous declaration.
type Record struct {
	names  []string
	index  map[string]int
	values []Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{index: make(map[string]int)}
}

// Set stores a value under name, appending a new slot on first use.
func (r *Record) Set(name string, v Value) {
	if i, ok := r.index[name]; ok {
		r.values[i] = v
		return
	}
	r.index[name] = len(r.names)
	r.names = append(r.names, name)
	r.values = append(r.values, v)
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return Value{}, false
	}
	return r.values[i], true
}

// MustGet returns the value stored under name, or the zero Value.
func (r *Record) MustGet(name string) Value {
	v, _ := r.Get(name)
	return v
}

// Len returns the number of slots.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Names returns the field names in insertion order.
func (r *Record) Names() []string {
	return r.names
}

// Field returns the name and value of slot i.
func (r *Record) Field(i int) (string, Value) {
	return r.names[i], r.values[i]
}

// Equal reports whether two records have the same fields in the same
// order with equal values.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r.Len() == 0 && o.Len() == 0
	}
	if len(r.names) != len(o.names) {
		return false
	}
	for i, name := range r.names {
		if o.names[i] != name || !r.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// String renders the record as {name=value ...} for debug output.
func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(r.values[i].String())
	}
	sb.WriteByte('}')
	return sb.String()
}
