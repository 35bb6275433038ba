package binaryparse

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0bis4shi/binaryparse/stream"
)

func roundTrip(t *testing.T, codec *Codec, rec *Record) []byte {
	t.Helper()
	out := stream.New()
	require.NoError(t, codec.Put(out, rec))

	out.SetPos(0)
	back, err := codec.Get(out)
	require.NoError(t, err)
	require.True(t, rec.Equal(back), "want %s, got %s", rec, back)

	// byte accounting: get consumes exactly what put emitted
	require.Equal(t, out.Len(), out.Pos())
	return out.Bytes()
}

func TestRoundTrip_BitWidths(t *testing.T) {
	for _, width := range []int{1, 3, 11, 64} {
		t.Run(fmt.Sprintf("u%d", width), func(t *testing.T) {
			codec := mustCompile(t, "w", fmt.Sprintf("u%d: x", width))

			rec := NewRecord()
			rec.Set("x", Uint(maskFor(width)))
			roundTrip(t, codec, rec)

			rec.Set("x", Uint(maskFor(width)&0x5555555555555555))
			roundTrip(t, codec, rec)
		})
	}
}

func TestRoundTrip_SubByteSequenceAllWidths(t *testing.T) {
	const n = 5
	for width := 1; width < 64; width++ {
		t.Run(fmt.Sprintf("w%d", width), func(t *testing.T) {
			codec := mustCompile(t, "seq", fmt.Sprintf("u%d: xs[%d]", width, n))

			elems := make([]Value, n)
			for i := range elems {
				elems[i] = Uint(uint64(i*37+1) & maskFor(width))
			}
			rec := NewRecord()
			rec.Set("xs", List(elems...))

			emitted := roundTrip(t, codec, rec)
			require.Equal(t, (n*width+7)/8, len(emitted))
		})
	}
}

func TestRoundTrip_CrossByteField(t *testing.T) {
	// a 4-bit field entering at offset 6 straddles the byte boundary
	codec := mustCompile(t, "x", "u6: a; 4: b; u6: c")

	in := stream.NewBytes([]byte{0xAB, 0x73})
	rec, err := codec.Get(in)
	require.NoError(t, err)
	require.Equal(t, Uint(0b101010), rec.MustGet("a"))
	require.Equal(t, Int(0b1101), rec.MustGet("b"))
	require.Equal(t, Uint(0b110011), rec.MustGet("c"))

	out := stream.New()
	require.NoError(t, codec.Put(out, rec))
	require.Equal(t, []byte{0xAB, 0x73}, out.Bytes())
}

func TestRoundTrip_EmptyCountedSequence(t *testing.T) {
	codec := mustCompile(t, "e", "u8: n; u8: xs[n]")

	in := stream.NewBytes([]byte{0x00, 0xFF})
	rec, err := codec.Get(in)
	require.NoError(t, err)
	require.Equal(t, 1, in.Pos())
	require.Empty(t, rec.MustGet("xs").ListVal())

	out := stream.New()
	require.NoError(t, codec.Put(out, rec))
	require.Equal(t, []byte{0x00}, out.Bytes())
}

func TestRoundTrip_EmptyNulString(t *testing.T) {
	codec := mustCompile(t, "s", "s: a")

	in := stream.NewBytes([]byte{0x00})
	rec, err := codec.Get(in)
	require.NoError(t, err)
	require.Equal(t, 1, in.Pos())
	require.Empty(t, rec.MustGet("a").StrVal())

	out := stream.New()
	require.NoError(t, codec.Put(out, rec))
	require.Equal(t, []byte{0x00}, out.Bytes())
}

func TestRoundTrip_OpenSequenceSentinelFirst(t *testing.T) {
	codec := mustCompile(t, "open", `s: xs[]; s: _ = "end\0"`)

	in := stream.NewBytes([]byte("end\x00"))
	rec, err := codec.Get(in)
	require.NoError(t, err)
	require.Empty(t, rec.MustGet("xs").ListVal())
	require.Equal(t, 4, in.Pos()) // sentinel still consumed

	out := stream.New()
	require.NoError(t, codec.Put(out, rec))
	require.Equal(t, []byte("end\x00"), out.Bytes())
}

func TestRoundTrip_Floats(t *testing.T) {
	codec := mustCompile(t, "f", "f32: a; f64: b")

	rec := NewRecord()
	rec.Set("a", Float(float64(float32(3.25))))
	rec.Set("b", Float(math.Pi))
	emitted := roundTrip(t, codec, rec)
	require.Len(t, emitted, 12)
}

func TestRoundTrip_FixedString(t *testing.T) {
	codec := mustCompile(t, "s", "s3: tag")

	rec := NewRecord()
	rec.Set("tag", Str([]byte("abc")))
	require.Equal(t, []byte("abc"), roundTrip(t, codec, rec))

	rec.Set("tag", Str([]byte("toolong")))
	out := stream.New()
	err := codec.Put(out, rec)
	var lm *LengthMismatchError
	require.ErrorAs(t, err, &lm)
	require.Equal(t, 3, lm.Want)
	require.Equal(t, 7, lm.Got)
}

func TestRoundTrip_SignedSubByteNotSignExtended(t *testing.T) {
	codec := mustCompile(t, "s", "4: x")

	rec, err := codec.Get(stream.NewBytes([]byte{0xF0}))
	require.NoError(t, err)
	// masked, never sign-extended
	require.Equal(t, Int(15), rec.MustGet("x"))
}

func TestRoundTrip_TrailingPartialByte(t *testing.T) {
	codec := mustCompile(t, "p", "3: x")

	in := stream.NewBytes([]byte{0b10100000})
	rec, err := codec.Get(in)
	require.NoError(t, err)
	require.Equal(t, Int(0b101), rec.MustGet("x"))
	// the partial byte is consumed before Get returns
	require.Equal(t, 1, in.Pos())

	out := stream.New()
	require.NoError(t, codec.Put(out, rec))
	require.Equal(t, []byte{0b10100000}, out.Bytes())
}

func TestRoundTrip_AnonymousFields(t *testing.T) {
	codec := mustCompile(t, "a", "u8: _; s: _; u8: v")

	in := stream.NewBytes([]byte{0xAA, 'j', 'u', 'n', 'k', 0x00, 0x07})
	rec, err := codec.Get(in)
	require.NoError(t, err)
	require.Equal(t, Uint(7), rec.MustGet("v"))
	require.Equal(t, 1, rec.Len())

	// anonymous fields write back as zero bytes / a bare NUL
	out := stream.New()
	require.NoError(t, codec.Put(out, rec))
	require.Equal(t, []byte{0x00, 0x00, 0x07}, out.Bytes())
}

func TestRoundTrip_NulStringSequence(t *testing.T) {
	codec := mustCompile(t, "strs", "u8: n; s: xs[n]")

	rec := NewRecord()
	rec.Set("n", Uint(3))
	rec.Set("xs", List(Str([]byte("a")), Str(nil), Str([]byte("bc"))))
	require.Equal(t, []byte{0x03, 'a', 0, 0, 'b', 'c', 0}, roundTrip(t, codec, rec))
}

func TestRoundTrip_MixedBitFieldsAcrossBytes(t *testing.T) {
	// 1+3+11+1 = 16 bits, several boundary crossings
	codec := mustCompile(t, "mix", "u1: a; u3: b; u11: c; u1: d")

	rec := NewRecord()
	rec.Set("a", Uint(1))
	rec.Set("b", Uint(0b101))
	rec.Set("c", Uint(0b10110100111))
	rec.Set("d", Uint(0))
	emitted := roundTrip(t, codec, rec)
	require.Len(t, emitted, 2)
	// 1 101 10110100111 0
	require.Equal(t, []byte{0b11011011, 0b01001110}, emitted)
}

func TestRoundTrip_CountedSequenceOfRecords(t *testing.T) {
	point := mustCompile(t, "point", "u8: x; u8: y")
	path := mustCompile(t, "path", "u8: n; *point(): pts[n]", WithExternal("point", point))

	in := stream.NewBytes([]byte{2, 10, 20, 30, 40})
	rec, err := path.Get(in)
	require.NoError(t, err)

	pts := rec.MustGet("pts").ListVal()
	require.Len(t, pts, 2)
	require.Equal(t, Uint(10), pts[0].RecordVal().MustGet("x"))
	require.Equal(t, Uint(40), pts[1].RecordVal().MustGet("y"))

	out := stream.New()
	require.NoError(t, path.Put(out, rec))
	require.Equal(t, []byte{2, 10, 20, 30, 40}, out.Bytes())
}
