// Package binaryparse compiles declarative binary-format schemas into
// matched reader/writer codec pairs.
//
// A schema describes the byte- and bit-level layout of a binary record
// as an ordered list of field declarations. Compiling it yields a
// Codec whose Get consumes a byte stream and produces a Record, and
// whose Put consumes a Record and emits the exact byte sequence. The
// two are inverses for well-formed inputs.
//
// # Schema Mini-Language
//
//	u8: _ = 128        # anonymous magic byte
//	u16: size          # unsigned 16-bit field
//	4: data[size*2]    # sequence of 4-bit values, count from a prior field
//	s: str[]           # NUL-strings until the next magic matches
//	s: _ = "end\0"     # string magic terminating the open sequence
//	*list(size): inner # embedded sub-parser with forwarded argument
//
// Type tokens: a bare integer N is a signed N-bit integer, uN is
// unsigned, f32/f64 are IEEE floats, s is a NUL-terminated string,
// sN is a fixed N-byte string, and *name(args) invokes an external
// codec pair registered with WithExternal. Kind specifiers: a name
// stores the value in the record, _ discards it, name[expr] repeats
// expr times, and name[] repeats until the following magic field
// matches. "= literal" verifies the value on read and emits the
// literal on write.
//
// All multi-byte integers are big-endian; bit 0 of a field is its
// most significant bit. Sub-byte fields pack tightly across byte
// boundaries.
//
// # Usage
//
//	codec, err := binaryparse.CompileText("packet",
//		"u3: version; u1: packet_type; u1: secondary_header; u11: apid")
//	rec, err := codec.Get(stream.NewBytes(data))
//	err = codec.Put(out, rec)
//
// Compilation failures are *SchemaError. Codec calls fail with
// *MagicMismatchError, *LengthMismatchError, or *stream.IOError, and
// with *SchemaError when a string or sub-parser field lands at a
// non-zero bit offset that only decoded data could reveal.
package binaryparse
