package binaryparse

import "fmt"

// sentinel captures the magic declaration that terminates an open
// sequence. The loop predicate peeks the bits the next field would
// decode at the current position and compares them to the literal.
type sentinel struct {
	isStr bool
	str   []byte
	size  int    // bit width for integer sentinels
	bits  uint64 // literal bits, masked
}

func makeSentinel(d *FieldDecl) (*sentinel, error) {
	if d.Magic == nil {
		return nil, schemaErrorf(d.Pos, "open sequence must be followed by a magic field")
	}
	switch d.Type.Family {
	case FamilyStr:
		if !d.Magic.IsStr {
			return nil, schemaErrorf(d.Pos, "string magic requires a string literal")
		}
		return &sentinel{isStr: true, str: d.Magic.Str}, nil
	case FamilyInt, FamilyUint:
		if d.Magic.IsStr {
			return nil, schemaErrorf(d.Pos, "integer magic requires an integer literal")
		}
		size := d.Type.Size
		return &sentinel{size: size, bits: uint64(d.Magic.Int) & maskFor(size)}, nil
	default:
		return nil, schemaErrorf(d.Pos, "magic termination not supported for %s fields", d.Type.Family)
	}
}

// ahead reports whether the sentinel's bits sit at the cursor. Nothing
// is consumed either way.
func (sn *sentinel) ahead(st *decodeState) (bool, error) {
	if sn.isStr {
		if st.bitOff != 0 {
			return false, &SchemaError{Message: "string sentinel checked at non-zero bit offset"}
		}
		s, err := st.s.PeekString(len(sn.str))
		if err != nil {
			return false, err
		}
		return s == string(sn.str), nil
	}

	l := plan(sn.size, st.bitOff)
	buf, err := st.s.Peek(l.readBytes)
	if err != nil {
		return false, err
	}
	var raw uint64
	for _, b := range buf {
		raw = raw<<8 | uint64(b)
	}
	return raw>>uint(l.shift)&l.mask == sn.bits, nil
}

// makeCountedSeqOps builds the loop for name[expr]. The count is
// evaluated against prior fields and extra parameters on read; on
// write the sequence value's own length drives the loop, which the
// round-trip law keeps consistent with the expression.
func (c *compiler) makeCountedSeqOps(d *FieldDecl, readVal readValFunc, writeVal writeValFunc) (func(*decodeState) error, func(*encodeState) error) {
	name := d.displayName()
	count := d.Count

	read := func(st *decodeState) error {
		n, err := evalExpr(count, st.env())
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("sequence count %d is negative", n)
		}
		list := make([]Value, 0, n)
		for i := int64(0); i < n; i++ {
			v, err := readVal(st)
			if err != nil {
				return err
			}
			list = append(list, v)
		}
		if d.Name != "" {
			st.rec.Set(d.Name, List(list...))
		}
		return nil
	}

	write := func(st *encodeState) error {
		if d.Name == "" {
			// anonymous sequence: emit count zero elements
			n, err := evalExpr(count, st.env())
			if err != nil {
				return err
			}
			zero := zeroValue(d.Type)
			for i := int64(0); i < n; i++ {
				if err := writeVal(st, zero); err != nil {
					return err
				}
			}
			return nil
		}
		v, ok := st.rec.Get(d.Name)
		if !ok {
			return fmt.Errorf("record is missing sequence field %q", name)
		}
		if v.Type() != TypeList {
			return fmt.Errorf("field %q is not a sequence", name)
		}
		for _, e := range v.ListVal() {
			if err := writeVal(st, e); err != nil {
				return err
			}
		}
		return nil
	}

	return read, write
}

// makeOpenSeqOps builds the loop for name[]. Each iteration first
// peeks for the sentinel; on a match the sentinel bytes are consumed
// and, when the magic field is named, its literal value is stored.
// The magic declaration's own read is suppressed by the compiler.
func (c *compiler) makeOpenSeqOps(d *FieldDecl, sn *sentinel, readVal readValFunc, writeVal writeValFunc, consumeSentinel func(*decodeState) error) (func(*decodeState) error, func(*encodeState) error) {
	name := d.displayName()

	read := func(st *decodeState) error {
		var list []Value
		for {
			match, err := sn.ahead(st)
			if err != nil {
				return err
			}
			if match {
				break
			}
			v, err := readVal(st)
			if err != nil {
				return err
			}
			list = append(list, v)
		}
		// the sequence slot precedes a named sentinel's slot, as in
		// declaration order
		if d.Name != "" {
			st.rec.Set(d.Name, List(list...))
		}
		return consumeSentinel(st)
	}

	write := func(st *encodeState) error {
		if d.Name == "" {
			return fmt.Errorf("anonymous open sequence %q cannot be written", name)
		}
		v, ok := st.rec.Get(d.Name)
		if !ok {
			return fmt.Errorf("record is missing sequence field %q", name)
		}
		if v.Type() != TypeList {
			return fmt.Errorf("field %q is not a sequence", name)
		}
		for _, e := range v.ListVal() {
			if err := writeVal(st, e); err != nil {
				return err
			}
		}
		// the sentinel itself is emitted by the magic declaration
		return nil
	}

	return read, write
}

// zeroValue is the value an anonymous field writes.
func zeroValue(typ TypeToken) Value {
	switch typ.Family {
	case FamilyInt:
		return Int(0)
	case FamilyUint:
		return Uint(0)
	case FamilyFloat:
		return Float(0)
	case FamilyStr:
		if typ.Size > 0 {
			return Str(make([]byte, typ.Size))
		}
		return Str(nil)
	default:
		return Value{}
	}
}
