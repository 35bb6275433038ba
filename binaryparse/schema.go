package binaryparse

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeFamily classifies a field's type token.
type TypeFamily uint8

const (
	FamilyInt      TypeFamily = iota // bare width: signed integer
	FamilyUint                       // uN
	FamilyFloat                      // f32 / f64
	FamilyStr                        // s / sN
	FamilyExternal                   // *name(args)
)

// String returns the family name.
func (f TypeFamily) String() string {
	switch f {
	case FamilyInt:
		return "int"
	case FamilyUint:
		return "uint"
	case FamilyFloat:
		return "float"
	case FamilyStr:
		return "str"
	case FamilyExternal:
		return "external"
	default:
		return "unknown"
	}
}

// TypeToken is the parsed form of a field's type.
//
// Size is in bits for numeric families, in bytes for FamilyStr
// (0 meaning NUL-terminated), and unused for FamilyExternal.
type TypeToken struct {
	Family TypeFamily
	Size   int
	Name   string // external codec name
	Args   []Expr // external codec arguments
}

// String renders the type token in mini-language form.
func (t TypeToken) String() string {
	switch t.Family {
	case FamilyInt:
		return strconv.Itoa(t.Size)
	case FamilyUint:
		return "u" + strconv.Itoa(t.Size)
	case FamilyFloat:
		return "f" + strconv.Itoa(t.Size)
	case FamilyStr:
		if t.Size == 0 {
			return "s"
		}
		return "s" + strconv.Itoa(t.Size)
	case FamilyExternal:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = a.String()
		}
		return "*" + t.Name + "(" + strings.Join(args, ", ") + ")"
	default:
		return "?"
	}
}

// FieldKind is a declaration's multiplicity.
type FieldKind uint8

const (
	FieldSingle     FieldKind = iota // name or _
	FieldSeqCounted                  // name[expr]
	FieldSeqOpen                     // name[] terminated by following magic
)

// Literal is a magic value: an integer or a byte string.
type Literal struct {
	IsStr bool
	Int   int64
	Str   []byte
}

// Value converts the literal to its runtime Value for a field family.
func (l *Literal) Value(family TypeFamily) Value {
	if l.IsStr {
		return Str(l.Str)
	}
	if family == FamilyUint {
		return Uint(uint64(l.Int))
	}
	return Int(l.Int)
}

// String renders the literal in mini-language form.
func (l *Literal) String() string {
	if l.IsStr {
		return renderStringLit(l.Str)
	}
	return strconv.FormatInt(l.Int, 10)
}

// FieldDecl is one schema declaration.
type FieldDecl struct {
	Type  TypeToken
	Name  string // "" when anonymous (_)
	Kind  FieldKind
	Count Expr     // FieldSeqCounted only
	Magic *Literal // "= literal" option, nil otherwise
	Pos   Position
}

// Anonymous reports whether the declaration produces no record slot.
func (d *FieldDecl) Anonymous() bool {
	return d.Name == ""
}

// displayName returns the field name for error context.
func (d *FieldDecl) displayName() string {
	if d.Name == "" {
		return "_"
	}
	return d.Name
}

// String renders the declaration in mini-language form.
func (d *FieldDecl) String() string {
	var sb strings.Builder
	sb.WriteString(d.Type.String())
	sb.WriteString(": ")
	sb.WriteString(d.displayName())
	switch d.Kind {
	case FieldSeqCounted:
		sb.WriteByte('[')
		sb.WriteString(d.Count.String())
		sb.WriteByte(']')
	case FieldSeqOpen:
		sb.WriteString("[]")
	}
	if d.Magic != nil {
		sb.WriteString(" = ")
		sb.WriteString(d.Magic.String())
	}
	return sb.String()
}

// Param is an extra parameter declared at the schema head. Parameters
// become trailing arguments of the compiled Get and Put, in
// declaration order, and are referencable from length and argument
// expressions.
type Param struct {
	Name string
	Type TypeToken // integer families only
}

// String renders the parameter in mini-language form.
func (p Param) String() string {
	return p.Type.String() + ": " + p.Name
}

// Schema is an ordered sequence of field declarations, optionally
// preceded by extra parameter declarations. Schema values exist only
// at compile time; the Codec and Record are the runtime artifacts.
type Schema struct {
	Params []Param
	Fields []*FieldDecl
}

// NewSchema builds a schema from declarations.
func NewSchema(fields ...*FieldDecl) *Schema {
	return &Schema{Fields: fields}
}

// WithParams appends extra parameter declarations to the schema head.
func (s *Schema) WithParams(params ...Param) *Schema {
	s.Params = append(s.Params, params...)
	return s
}

// String renders the schema in canonical mini-language form.
func (s *Schema) String() string {
	var sb strings.Builder
	if len(s.Params) > 0 {
		sb.WriteByte('(')
		for i, p := range s.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
		sb.WriteString(")\n")
	}
	for _, f := range s.Fields {
		sb.WriteString(f.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ============================================================
// Declaration builders
// ============================================================

// I returns a signed integer type token of the given bit width.
func I(bits int) TypeToken {
	return TypeToken{Family: FamilyInt, Size: bits}
}

// U returns an unsigned integer type token of the given bit width.
func U(bits int) TypeToken {
	return TypeToken{Family: FamilyUint, Size: bits}
}

// F32 returns the 32-bit float type token.
func F32() TypeToken {
	return TypeToken{Family: FamilyFloat, Size: 32}
}

// F64 returns the 64-bit float type token.
func F64() TypeToken {
	return TypeToken{Family: FamilyFloat, Size: 64}
}

// SZ returns the NUL-terminated string type token.
func SZ() TypeToken {
	return TypeToken{Family: FamilyStr}
}

// SN returns a fixed-length string type token of n bytes.
func SN(n int) TypeToken {
	return TypeToken{Family: FamilyStr, Size: n}
}

// Ext returns an external codec type token.
func Ext(name string, args ...Expr) TypeToken {
	return TypeToken{Family: FamilyExternal, Name: name, Args: args}
}

// FieldOption modifies a field declaration.
type FieldOption func(*FieldDecl)

// Field declares a single named field.
func Field(typ TypeToken, name string, opts ...FieldOption) *FieldDecl {
	d := &FieldDecl{Type: typ, Name: name}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discard declares an anonymous field.
func Discard(typ TypeToken, opts ...FieldOption) *FieldDecl {
	d := &FieldDecl{Type: typ}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Seq declares a counted sequence field.
func Seq(typ TypeToken, name string, count Expr, opts ...FieldOption) *FieldDecl {
	d := &FieldDecl{Type: typ, Name: name, Kind: FieldSeqCounted, Count: count}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OpenSeq declares a magic-terminated sequence field. The following
// declaration must carry a magic literal.
func OpenSeq(typ TypeToken, name string, opts ...FieldOption) *FieldDecl {
	d := &FieldDecl{Type: typ, Name: name, Kind: FieldSeqOpen}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithMagicInt attaches an integer magic literal.
func WithMagicInt(v int64) FieldOption {
	return func(d *FieldDecl) {
		d.Magic = &Literal{Int: v}
	}
}

// WithMagicStr attaches a string magic literal.
func WithMagicStr(b []byte) FieldOption {
	return func(d *FieldDecl) {
		d.Magic = &Literal{IsStr: true, Str: b}
	}
}

// renderStringLit quotes a byte string with the mini-language escapes.
func renderStringLit(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		switch {
		case c == 0:
			sb.WriteString(`\0`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '"':
			sb.WriteString(`\"`)
		case c == '\\':
			sb.WriteString(`\\`)
		case c < 0x20 || c >= 0x7f:
			sb.WriteString(fmt.Sprintf(`\x%02x`, c))
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
