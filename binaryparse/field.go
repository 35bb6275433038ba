package binaryparse

import (
	"fmt"
	"math"

	"github.com/0bis4shi/binaryparse/stream"
)

// decodeState is the running state of one Get call.
type decodeState struct {
	s      *stream.Stream
	rec    *Record
	extras map[string]Value
	bitOff int // 0..7, bits already consumed from the byte at the cursor
}

func (st *decodeState) env() *env {
	return &env{rec: st.rec, extras: st.extras}
}

// encodeState is the running state of one Put call. acc holds bitOff
// pending bits right-aligned; a byte is flushed to the stream whenever
// the pending run crosses a byte boundary.
type encodeState struct {
	s      *stream.Stream
	rec    *Record
	extras map[string]Value
	bitOff int
	acc    uint64
}

func (st *encodeState) env() *env {
	return &env{rec: st.rec, extras: st.extras}
}

// readBits consumes size bits MSB-first. Whole bytes are read through
// the cursor; a trailing partial byte is only peeked, so its low-order
// remainder stays available to the next field.
func (st *decodeState) readBits(size int) (uint64, error) {
	var v uint64
	for size > 0 {
		if st.bitOff == 0 && size >= 8 {
			n := size / 8
			buf, err := st.s.Read(n)
			if err != nil {
				return 0, err
			}
			for _, b := range buf {
				v = v<<8 | uint64(b)
			}
			size -= n * 8
			continue
		}

		b, err := st.s.PeekByte()
		if err != nil {
			return 0, err
		}
		take := 8 - st.bitOff
		if take > size {
			take = size
		}
		v = v<<uint(take) | (uint64(b)>>uint(8-st.bitOff-take))&maskFor(take)
		st.bitOff += take
		size -= take
		if st.bitOff == 8 {
			// the peeked byte is now fully consumed
			if err := st.s.Skip(1); err != nil {
				return 0, err
			}
			st.bitOff = 0
		}
	}
	return v, nil
}

// writeBits emits the low size bits of v MSB-first, buffering partial
// bytes in the accumulator.
func (st *encodeState) writeBits(v uint64, size int) {
	v &= maskFor(size)
	for size > 0 {
		if st.bitOff == 0 && size >= 8 {
			for size >= 8 {
				size -= 8
				st.s.WriteByte(byte(v >> uint(size)))
			}
			continue
		}

		take := 8 - st.bitOff
		if take > size {
			take = size
		}
		st.acc = st.acc<<uint(take) | (v>>uint(size-take))&maskFor(take)
		st.bitOff += take
		size -= take
		if st.bitOff == 8 {
			st.s.WriteByte(byte(st.acc))
			st.acc = 0
			st.bitOff = 0
		}
	}
}

// flushBits pads and emits a trailing partial byte, if any.
func (st *encodeState) flushBits() {
	if st.bitOff != 0 {
		st.s.WriteByte(byte(st.acc << uint(8-st.bitOff)))
		st.acc = 0
		st.bitOff = 0
	}
}

// readValFunc decodes one value of a field's element type.
type readValFunc func(st *decodeState) (Value, error)

// writeValFunc encodes one value of a field's element type.
type writeValFunc func(st *encodeState, v Value) error

// makeValueCodec builds the matched read/write halves for one element
// of the declared type. name is used for error context only.
func (c *compiler) makeValueCodec(typ TypeToken, name string, pos Position) (readValFunc, writeValFunc, error) {
	switch typ.Family {
	case FamilyInt:
		size := typ.Size
		read := func(st *decodeState) (Value, error) {
			raw, err := st.readBits(size)
			if err != nil {
				return Value{}, err
			}
			// masked, never sign-extended
			return Int(int64(raw)), nil
		}
		write := func(st *encodeState, v Value) error {
			st.writeBits(uint64(v.IntVal()), size)
			return nil
		}
		return read, write, nil

	case FamilyUint:
		size := typ.Size
		read := func(st *decodeState) (Value, error) {
			raw, err := st.readBits(size)
			if err != nil {
				return Value{}, err
			}
			return Uint(raw), nil
		}
		write := func(st *encodeState, v Value) error {
			st.writeBits(v.UintVal(), size)
			return nil
		}
		return read, write, nil

	case FamilyFloat:
		size := typ.Size
		read := func(st *decodeState) (Value, error) {
			raw, err := st.readBits(size)
			if err != nil {
				return Value{}, err
			}
			if size == 32 {
				return Float(float64(math.Float32frombits(uint32(raw)))), nil
			}
			return Float(math.Float64frombits(raw)), nil
		}
		write := func(st *encodeState, v Value) error {
			if size == 32 {
				st.writeBits(uint64(math.Float32bits(float32(v.FloatVal()))), 32)
			} else {
				st.writeBits(math.Float64bits(v.FloatVal()), 64)
			}
			return nil
		}
		return read, write, nil

	case FamilyStr:
		if typ.Size == 0 {
			return c.makeNulStringCodec(name), c.makeNulStringWriter(name), nil
		}
		return c.makeFixedStringCodec(typ.Size, name)

	case FamilyExternal:
		return c.makeExternalCodec(typ, name, pos)

	default:
		return nil, nil, schemaErrorf(pos, "cannot build codec for type %s", typ)
	}
}

// makeNulStringCodec reads bytes up to and excluding the NUL.
func (c *compiler) makeNulStringCodec(name string) readValFunc {
	return func(st *decodeState) (Value, error) {
		if err := st.requireAligned(name); err != nil {
			return Value{}, err
		}
		var b []byte
		for {
			ch, err := st.s.ReadByte()
			if err != nil {
				return Value{}, err
			}
			if ch == 0 {
				break
			}
			b = append(b, ch)
		}
		return Str(b), nil
	}
}

// makeNulStringWriter emits the string bytes followed by a NUL.
func (c *compiler) makeNulStringWriter(name string) writeValFunc {
	return func(st *encodeState, v Value) error {
		if err := st.requireAligned(name); err != nil {
			return err
		}
		st.s.Write(v.StrVal())
		st.s.WriteByte(0)
		return nil
	}
}

func (c *compiler) makeFixedStringCodec(n int, name string) (readValFunc, writeValFunc, error) {
	read := func(st *decodeState) (Value, error) {
		if err := st.requireAligned(name); err != nil {
			return Value{}, err
		}
		buf, err := st.s.Read(n)
		if err != nil {
			return Value{}, err
		}
		return Str(append([]byte(nil), buf...)), nil
	}
	write := func(st *encodeState, v Value) error {
		if err := st.requireAligned(name); err != nil {
			return err
		}
		if len(v.StrVal()) != n {
			return &LengthMismatchError{Field: name, Want: n, Got: len(v.StrVal())}
		}
		st.s.Write(v.StrVal())
		return nil
	}
	return read, write, nil
}

// makeExternalCodec resolves the external codec pair and binds its
// argument expressions. Arguments are evaluated per call against the
// surrounding record and extra parameters.
func (c *compiler) makeExternalCodec(typ TypeToken, name string, pos Position) (readValFunc, writeValFunc, error) {
	ext, ok := c.externals[typ.Name]
	if !ok {
		return nil, nil, schemaErrorf(pos, "unknown external codec %q", typ.Name)
	}
	args := typ.Args

	read := func(st *decodeState) (Value, error) {
		if err := st.requireAligned(name); err != nil {
			return Value{}, err
		}
		argv, err := evalArgs(args, st.env())
		if err != nil {
			return Value{}, err
		}
		return ext.Read(st.s, argv...)
	}
	write := func(st *encodeState, v Value) error {
		if err := st.requireAligned(name); err != nil {
			return err
		}
		argv, err := evalArgs(args, st.env())
		if err != nil {
			return err
		}
		return ext.Write(st.s, v, argv...)
	}
	return read, write, nil
}

func evalArgs(args []Expr, ev *env) ([]Value, error) {
	argv := make([]Value, len(args))
	for i, a := range args {
		n, err := evalExpr(a, ev)
		if err != nil {
			return nil, err
		}
		argv[i] = Int(n)
	}
	return argv, nil
}

// requireAligned rejects byte-granular operations mid-byte. The
// compiler catches every statically decidable case; this guards the
// data-dependent ones (a sequence whose count left a partial byte).
func (st *decodeState) requireAligned(name string) error {
	if st.bitOff != 0 {
		return &SchemaError{Message: fmt.Sprintf("field %s decoded at non-zero bit offset", name)}
	}
	return nil
}

func (st *encodeState) requireAligned(name string) error {
	if st.bitOff != 0 {
		return &SchemaError{Message: fmt.Sprintf("field %s encoded at non-zero bit offset", name)}
	}
	return nil
}
