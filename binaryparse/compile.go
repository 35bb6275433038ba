package binaryparse

import (
	"bytes"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/0bis4shi/binaryparse/stream"
)

// External is the contract an externally defined codec pair exposes to
// the compiler: a get that decodes one value from the stream and a put
// that emits it. A compiled *Codec satisfies External, so sub-parsers
// nest without adapters. Arguments are the evaluated expressions from
// the *name(args) type token, in order.
type External interface {
	Read(s *stream.Stream, args ...Value) (Value, error)
	Write(s *stream.Stream, v Value, args ...Value) error
}

// op is one compiled program step: matched read and write halves plus
// listing metadata.
type op struct {
	ctx   string // codec.field, for error context
	desc  string // program listing line
	read  func(st *decodeState) error
	write func(st *encodeState) error
}

// recordField describes one slot of the result record.
type recordField struct {
	Name string
	Type string
}

// Codec is a compiled schema: a matched reader/writer pair bound to a
// name. Get and Put are inverses for well-formed inputs. A Codec is
// immutable after compilation and safe for concurrent use over
// distinct streams.
type Codec struct {
	name   string
	params []Param
	shape  []recordField
	ops    []op
}

// CompileOption configures compilation.
type CompileOption func(*compiler)

// WithExternal registers an external codec pair under the name the
// schema's *name(args) type tokens refer to.
func WithExternal(name string, ext External) CompileOption {
	return func(c *compiler) {
		c.externals[name] = ext
	}
}

// WithLogger installs a logger; the compiled program listing is echoed
// at Debug level. Defaults to a nop logger.
func WithLogger(l *zap.Logger) CompileOption {
	return func(c *compiler) {
		c.log = l
	}
}

// Compile turns a schema into a codec bound to the given name.
// All statically decidable schema validation happens here. The one
// check left to Get and Put is the alignment of a string or sub-parser
// field whose bit offset depends on decoded data (after a sub-byte
// sequence of non-constant length); it fails there with *SchemaError.
func Compile(name string, s *Schema, opts ...CompileOption) (*Codec, error) {
	c := &compiler{
		name:      name,
		schema:    s,
		externals: make(map[string]External),
		seen:      make(map[string]bool),
		log:       zap.NewNop(),
		offKnown:  true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.compile(); err != nil {
		return nil, err
	}

	codec := &Codec{name: name, params: s.Params, shape: c.shape, ops: c.ops}
	c.log.Debug("compiled codec",
		zap.String("codec", name),
		zap.Int("declarations", len(s.Fields)),
		zap.Int("params", len(s.Params)))
	c.log.Debug("generated program", zap.String("codec", name), zap.String("program", codec.Describe()))
	return codec, nil
}

// CompileText parses mini-language text and compiles it.
func CompileText(name, text string, opts ...CompileOption) (*Codec, error) {
	s, err := ParseSchema(text)
	if err != nil {
		return nil, err
	}
	return Compile(name, s, opts...)
}

// compiler is the single-walk state over the declaration sequence.
type compiler struct {
	name      string
	schema    *Schema
	externals map[string]External
	log       *zap.Logger

	seen     map[string]bool // named fields and params visible to expressions
	shape    []recordField
	ops      []op
	off      int  // static bit offset, 0..7
	offKnown bool // false after a sequence with data-dependent bit length
}

func (c *compiler) compile() error {
	for _, p := range c.schema.Params {
		if c.seen[p.Name] {
			return &SchemaError{Message: fmt.Sprintf("duplicate parameter name %q", p.Name)}
		}
		c.seen[p.Name] = true
	}

	fields := c.schema.Fields
	consumed := make([]bool, len(fields))

	for i, d := range fields {
		if d.Name != "" && c.seen[d.Name] {
			return schemaErrorf(d.Pos, "duplicate field name %q", d.Name)
		}
		if d.Magic != nil && d.Kind != FieldSingle {
			return schemaErrorf(d.Pos, "magic literal on sequence field %q", d.displayName())
		}
		if err := c.checkDeclExprs(d); err != nil {
			return err
		}

		var (
			readFn  func(*decodeState) error
			writeFn func(*encodeState) error
			err     error
		)

		switch {
		case consumed[i]:
			// sentinel already verified and consumed by the preceding
			// open sequence; only the write half remains
			readFn, writeFn, err = c.makeConsumedMagicOps(d)

		case d.Kind == FieldSeqOpen:
			if i+1 >= len(fields) || fields[i+1].Kind != FieldSingle || fields[i+1].Magic == nil {
				return schemaErrorf(d.Pos, "open sequence %q must be immediately followed by a magic field", d.displayName())
			}
			readFn, writeFn, err = c.makeOpenSeq(d, fields[i+1])
			if err == nil {
				consumed[i+1] = true
			}

		case d.Kind == FieldSeqCounted:
			readFn, writeFn, err = c.makeCountedSeq(d)

		case d.Magic != nil:
			readFn, writeFn, err = c.makeMagicOps(d)

		default:
			readFn, writeFn, err = c.makeSingleOps(d)
		}
		if err != nil {
			return err
		}

		c.ops = append(c.ops, op{
			ctx:   c.name + "." + d.displayName(),
			desc:  c.describeDecl(d),
			read:  readFn,
			write: writeFn,
		})

		if d.Name != "" {
			c.seen[d.Name] = true
			c.shape = append(c.shape, recordField{Name: d.Name, Type: c.slotType(d)})
		}

		c.threadOffset(d)
	}
	return nil
}

// checkDeclExprs validates every expression of the declaration against
// the names visible so far. The check recurses into all sub-expressions.
func (c *compiler) checkDeclExprs(d *FieldDecl) error {
	if d.Kind == FieldSeqCounted {
		if err := checkIdents(d.Count, c.seen, d.Pos); err != nil {
			return err
		}
	}
	if d.Type.Family == FamilyExternal {
		for _, a := range d.Type.Args {
			if err := checkIdents(a, c.seen, d.Pos); err != nil {
				return err
			}
		}
	}
	return nil
}

// makeSingleOps builds the ops for a plain named or anonymous field.
func (c *compiler) makeSingleOps(d *FieldDecl) (func(*decodeState) error, func(*encodeState) error, error) {
	if err := c.checkAlignment(d); err != nil {
		return nil, nil, err
	}
	if d.Name == "" && d.Type.Family == FamilyExternal {
		return nil, nil, schemaErrorf(d.Pos, "sub-parser field cannot be anonymous")
	}

	readVal, writeVal, err := c.makeValueCodec(d.Type, d.displayName(), d.Pos)
	if err != nil {
		return nil, nil, err
	}

	if d.Name == "" {
		// discard on read, zero bits / NUL on write
		zero := zeroValue(d.Type)
		read := func(st *decodeState) error {
			_, err := readVal(st)
			return err
		}
		write := func(st *encodeState) error {
			return writeVal(st, zero)
		}
		return read, write, nil
	}

	name := d.Name
	read := func(st *decodeState) error {
		v, err := readVal(st)
		if err != nil {
			return err
		}
		st.rec.Set(name, v)
		return nil
	}
	write := func(st *encodeState) error {
		v, ok := st.rec.Get(name)
		if !ok {
			return fmt.Errorf("record is missing field %q", name)
		}
		return writeVal(st, v)
	}
	return read, write, nil
}

// makeMagicOps builds verification-on-read, literal-on-write ops.
// The returned read half doubles as the sentinel consumer for open
// sequences.
func (c *compiler) makeMagicOps(d *FieldDecl) (func(*decodeState) error, func(*encodeState) error, error) {
	if err := c.validateMagic(d); err != nil {
		return nil, nil, err
	}

	name := d.displayName()
	lit := d.Magic

	if d.Type.Family == FamilyStr {
		want := lit.Str
		read := func(st *decodeState) error {
			if err := st.requireAligned(name); err != nil {
				return err
			}
			buf, err := st.s.Read(len(want))
			if err != nil {
				return err
			}
			if !bytes.Equal(buf, want) {
				return &MagicMismatchError{
					Field:    name,
					Size:     len(want) * 8,
					Expected: Str(want),
					Observed: Str(append([]byte(nil), buf...)),
				}
			}
			if d.Name != "" {
				st.rec.Set(d.Name, Str(append([]byte(nil), want...)))
			}
			return nil
		}
		write := func(st *encodeState) error {
			if err := st.requireAligned(name); err != nil {
				return err
			}
			st.s.Write(want)
			return nil
		}
		return read, write, nil
	}

	size := d.Type.Size
	litBits := uint64(lit.Int) & maskFor(size)
	expected := lit.Value(d.Type.Family)
	unsigned := d.Type.Family == FamilyUint

	read := func(st *decodeState) error {
		raw, err := st.readBits(size)
		if err != nil {
			return err
		}
		if raw != litBits {
			observed := Int(int64(raw))
			if unsigned {
				observed = Uint(raw)
			}
			return &MagicMismatchError{Field: name, Size: size, Expected: expected, Observed: observed}
		}
		if d.Name != "" {
			st.rec.Set(d.Name, expected)
		}
		return nil
	}
	write := func(st *encodeState) error {
		st.writeBits(litBits, size)
		return nil
	}
	return read, write, nil
}

// makeConsumedMagicOps handles a magic declaration whose read side was
// executed by the preceding open sequence.
func (c *compiler) makeConsumedMagicOps(d *FieldDecl) (func(*decodeState) error, func(*encodeState) error, error) {
	_, write, err := c.makeMagicOps(d)
	if err != nil {
		return nil, nil, err
	}
	read := func(st *decodeState) error { return nil }
	return read, write, nil
}

func (c *compiler) makeCountedSeq(d *FieldDecl) (func(*decodeState) error, func(*encodeState) error, error) {
	if err := c.checkAlignment(d); err != nil {
		return nil, nil, err
	}
	if d.Name == "" && d.Type.Family == FamilyExternal {
		return nil, nil, schemaErrorf(d.Pos, "sub-parser field cannot be anonymous")
	}
	readVal, writeVal, err := c.makeValueCodec(d.Type, d.displayName(), d.Pos)
	if err != nil {
		return nil, nil, err
	}
	read, write := c.makeCountedSeqOps(d, readVal, writeVal)
	return read, write, nil
}

func (c *compiler) makeOpenSeq(d, magicDecl *FieldDecl) (func(*decodeState) error, func(*encodeState) error, error) {
	if err := c.checkAlignment(d); err != nil {
		return nil, nil, err
	}
	if d.Name == "" {
		return nil, nil, schemaErrorf(d.Pos, "open sequence cannot be anonymous")
	}
	sn, err := makeSentinel(magicDecl)
	if err != nil {
		return nil, nil, err
	}
	// a sub-byte element sequence can leave the sentinel at any bit
	// offset; the peek window must still fit a 64-bit word
	if d.Type.Size%8 != 0 && !sn.isStr && sn.size > 57 {
		return nil, nil, schemaErrorf(magicDecl.Pos, "integer sentinel wider than 57 bits cannot terminate a sub-byte sequence")
	}
	readVal, writeVal, err := c.makeValueCodec(d.Type, d.displayName(), d.Pos)
	if err != nil {
		return nil, nil, err
	}
	consumeSentinel, _, err := c.makeMagicOps(magicDecl)
	if err != nil {
		return nil, nil, err
	}
	read, write := c.makeOpenSeqOps(d, sn, readVal, writeVal, consumeSentinel)
	return read, write, nil
}

// validateMagic checks literal/type agreement and infers string sizes.
func (c *compiler) validateMagic(d *FieldDecl) error {
	lit := d.Magic
	switch d.Type.Family {
	case FamilyStr:
		if !lit.IsStr {
			return schemaErrorf(d.Pos, "string field %q requires a string magic literal", d.displayName())
		}
		if len(lit.Str) == 0 {
			return schemaErrorf(d.Pos, "empty string magic literal on %q", d.displayName())
		}
		// size inferred from the literal for NUL-terminated tokens
		if d.Type.Size > 0 && d.Type.Size != len(lit.Str) {
			return schemaErrorf(d.Pos, "magic literal is %d bytes but field %q declares %d",
				len(lit.Str), d.displayName(), d.Type.Size)
		}
		return c.checkAlignment(d)

	case FamilyInt, FamilyUint:
		if lit.IsStr {
			return schemaErrorf(d.Pos, "integer field %q requires an integer magic literal", d.displayName())
		}
		if lit.Int < 0 && d.Type.Family == FamilyUint {
			return schemaErrorf(d.Pos, "negative magic literal on unsigned field %q", d.displayName())
		}
		if lit.Int >= 0 && uint64(lit.Int)&^maskFor(d.Type.Size) != 0 {
			return schemaErrorf(d.Pos, "magic literal %d does not fit in %d bits", lit.Int, d.Type.Size)
		}
		return nil

	default:
		return schemaErrorf(d.Pos, "magic literal not supported for %s field %q", d.Type.Family, d.displayName())
	}
}

// checkAlignment rejects byte-granular fields at a statically known
// non-zero bit offset. Data-dependent offsets are guarded at run time.
func (c *compiler) checkAlignment(d *FieldDecl) error {
	byteGranular := d.Type.Family == FamilyStr || d.Type.Family == FamilyExternal
	if byteGranular && c.offKnown && c.off != 0 {
		return schemaErrorf(d.Pos, "%s field %q at bit offset %d; strings and sub-parsers require offset 0",
			d.Type.Family, d.displayName(), c.off)
	}
	return nil
}

// threadOffset advances the static bit offset past the declaration.
// Both codec sides share it: reads and writes consume identical bit
// counts in schema order.
func (c *compiler) threadOffset(d *FieldDecl) {
	if !c.offKnown {
		return
	}
	size := d.Type.Size
	switch d.Type.Family {
	case FamilyStr, FamilyExternal:
		// byte granular, offset stays 0
		return
	case FamilyFloat:
		return // 32 and 64 are byte multiples
	}

	switch d.Kind {
	case FieldSingle:
		c.off = (c.off + size) % 8
	case FieldSeqCounted:
		if size%8 == 0 {
			return
		}
		if n, ok := constEval(d.Count); ok && n >= 0 {
			c.off = (c.off + size*int(n)) % 8
		} else {
			c.offKnown = false
		}
	case FieldSeqOpen:
		if size%8 != 0 {
			c.offKnown = false
		}
	}
}

// describeDecl renders one program listing line, with the layout plan
// when the entry offset is statically known.
func (c *compiler) describeDecl(d *FieldDecl) string {
	line := d.String()
	numeric := d.Type.Family == FamilyInt || d.Type.Family == FamilyUint || d.Type.Family == FamilyFloat
	switch {
	case numeric && d.Kind == FieldSingle && c.offKnown:
		l := plan(d.Type.Size, c.off)
		return fmt.Sprintf("%-28s ; off=%d read=%d skip=%d shift=%d mask=%#x",
			line, c.off, l.readBytes, l.skipBytes, l.shift, l.mask)
	case numeric && d.Kind != FieldSingle && d.Type.Size%8 != 0:
		return fmt.Sprintf("%-28s ; cycle=%d", line, cycleFor(d.Type.Size))
	default:
		return line
	}
}

// slotType names the record container for a declaration, for the
// Describe listing.
func (c *compiler) slotType(d *FieldDecl) string {
	t := containerType(d.Type)
	if d.Kind != FieldSingle {
		return "[]" + t
	}
	return t
}

// ============================================================
// Codec runtime surface
// ============================================================

// Name returns the codec's bound name.
func (c *Codec) Name() string { return c.name }

// Params returns the extra parameter declarations, in order.
func (c *Codec) Params() []Param { return c.params }

// Describe returns the compiled program listing: the record shape and
// one line per declaration with its layout plan.
func (c *Codec) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "codec %s", c.name)
	if len(c.params) > 0 {
		sb.WriteByte('(')
		for i, p := range c.params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
		sb.WriteByte(')')
	}
	sb.WriteByte('\n')

	sb.WriteString("record:\n")
	for _, f := range c.shape {
		fmt.Fprintf(&sb, "  %-12s %s\n", f.Name, f.Type)
	}

	sb.WriteString("program:\n")
	for _, o := range c.ops {
		fmt.Fprintf(&sb, "  %s\n", o.desc)
	}
	return sb.String()
}

// Get decodes one record from the stream. Extra arguments match the
// schema's parameter declarations in order. A trailing partial byte
// left by sub-byte fields is consumed before returning.
func (c *Codec) Get(s *stream.Stream, extras ...Value) (*Record, error) {
	bound, err := c.bindParams(extras)
	if err != nil {
		return nil, err
	}
	st := &decodeState{s: s, rec: NewRecord(), extras: bound}
	for _, o := range c.ops {
		if err := o.read(st); err != nil {
			return nil, fmt.Errorf("%s: %w", o.ctx, err)
		}
	}
	if st.bitOff != 0 {
		// the partial byte was peeked, so it is present
		_ = st.s.Skip(1)
		st.bitOff = 0
	}
	return st.rec, nil
}

// Put encodes the record onto the stream, the exact inverse of Get.
// A trailing partial byte is zero-padded and flushed.
func (c *Codec) Put(s *stream.Stream, rec *Record, extras ...Value) error {
	bound, err := c.bindParams(extras)
	if err != nil {
		return err
	}
	st := &encodeState{s: s, rec: rec, extras: bound}
	for _, o := range c.ops {
		if err := o.write(st); err != nil {
			return fmt.Errorf("%s: %w", o.ctx, err)
		}
	}
	st.flushBits()
	return nil
}

// Read implements External, wrapping Get for use as a sub-parser.
func (c *Codec) Read(s *stream.Stream, args ...Value) (Value, error) {
	rec, err := c.Get(s, args...)
	if err != nil {
		return Value{}, err
	}
	return Rec(rec), nil
}

// Write implements External, wrapping Put for use as a sub-parser.
func (c *Codec) Write(s *stream.Stream, v Value, args ...Value) error {
	if v.Type() != TypeRecord {
		return fmt.Errorf("codec %s expects a record value, got %s", c.name, v.Type())
	}
	return c.Put(s, v.RecordVal(), args...)
}

func (c *Codec) bindParams(extras []Value) (map[string]Value, error) {
	if len(extras) != len(c.params) {
		return nil, fmt.Errorf("codec %s takes %d extra arguments, got %d", c.name, len(c.params), len(extras))
	}
	if len(extras) == 0 {
		return nil, nil
	}
	bound := make(map[string]Value, len(extras))
	for i, p := range c.params {
		if _, ok := extras[i].asInt64(); !ok {
			return nil, fmt.Errorf("codec %s argument %s must be an integer, got %s", c.name, p.Name, extras[i].Type())
		}
		bound[p.Name] = extras[i]
	}
	return bound, nil
}
