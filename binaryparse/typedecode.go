package binaryparse

import "strconv"

// decodeTypeName resolves a bare type token (everything except the
// *name(args) call shape, which the schema parser handles) into a
// TypeToken: bare digits are a signed integer width, a u prefix an
// unsigned width, f32/f64 the float widths, s / sN the string forms.
func decodeTypeName(text string, pos Position) (TypeToken, error) {
	if text == "" {
		return TypeToken{}, schemaErrorf(pos, "empty type token")
	}

	if allDigits(text) {
		bits, _ := strconv.Atoi(text)
		if bits < 1 || bits > 64 {
			return TypeToken{}, schemaErrorf(pos, "integer width %d out of range 1..64", bits)
		}
		return TypeToken{Family: FamilyInt, Size: bits}, nil
	}

	prefix, rest := text[:1], text[1:]
	switch prefix {
	case "u":
		if !allDigits(rest) || rest == "" {
			return TypeToken{}, schemaErrorf(pos, "bad unsigned type token %q", text)
		}
		bits, _ := strconv.Atoi(rest)
		if bits < 1 || bits > 64 {
			return TypeToken{}, schemaErrorf(pos, "integer width %d out of range 1..64", bits)
		}
		return TypeToken{Family: FamilyUint, Size: bits}, nil

	case "f":
		if !allDigits(rest) || rest == "" {
			return TypeToken{}, schemaErrorf(pos, "bad float type token %q", text)
		}
		bits, _ := strconv.Atoi(rest)
		if bits != 32 && bits != 64 {
			return TypeToken{}, schemaErrorf(pos, "float width %d not supported (32 or 64)", bits)
		}
		return TypeToken{Family: FamilyFloat, Size: bits}, nil

	case "s":
		if rest == "" {
			return TypeToken{Family: FamilyStr}, nil
		}
		if !allDigits(rest) {
			return TypeToken{}, schemaErrorf(pos, "bad string type token %q", text)
		}
		n, _ := strconv.Atoi(rest)
		if n < 1 {
			return TypeToken{}, schemaErrorf(pos, "fixed string length must be positive")
		}
		return TypeToken{Family: FamilyStr, Size: n}, nil
	}

	return TypeToken{}, schemaErrorf(pos, "unknown type token %q", text)
}

// containerBits returns the machine-integer width holding a field of
// the given bit width: the next of 8, 16, 32, 64.
func containerBits(size int) int {
	switch {
	case size <= 8:
		return 8
	case size <= 16:
		return 16
	case size <= 32:
		return 32
	default:
		return 64
	}
}

// containerType names the record container for a type token, for
// program listings.
func containerType(t TypeToken) string {
	switch t.Family {
	case FamilyInt:
		return "int" + strconv.Itoa(containerBits(t.Size))
	case FamilyUint:
		return "uint" + strconv.Itoa(containerBits(t.Size))
	case FamilyFloat:
		return "float" + strconv.Itoa(t.Size)
	case FamilyStr:
		return "bytes"
	case FamilyExternal:
		return "record"
	default:
		return "?"
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
