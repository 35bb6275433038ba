package binaryparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseExprText(t *testing.T, text string) Expr {
	t.Helper()
	tokens, err := NewLexer(text).Tokenize()
	require.NoError(t, err)
	e, err := parseExpr(NewTokenStream(tokens))
	require.NoError(t, err)
	return e
}

func TestExprEval(t *testing.T) {
	rec := NewRecord()
	rec.Set("size", Uint(3))
	rec.Set("n", Int(10))
	ev := &env{rec: rec, extras: map[string]Value{"k": Int(5)}}

	tests := []struct {
		input string
		want  int64
	}{
		{"2", 2},
		{"size", 3},
		{"size*2", 6},
		{"n+size", 13},
		{"n-size", 7},
		{"n/size", 3},
		{"n%size", 1},
		{"-size", -3},
		{"(n+2)*size", 36},
		{"k*k", 25},
		{"2+3*4", 14},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e := parseExprText(t, tt.input)
			got, err := evalExpr(e, ev)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExprEvalErrors(t *testing.T) {
	rec := NewRecord()
	rec.Set("s", Str([]byte("x")))
	ev := &env{rec: rec}

	_, err := evalExpr(parseExprText(t, "missing"), ev)
	require.Error(t, err)

	_, err = evalExpr(parseExprText(t, "s+1"), ev)
	require.Error(t, err)

	_, err = evalExpr(parseExprText(t, "1/0"), ev)
	require.Error(t, err)
}

func TestCheckIdentsRecurses(t *testing.T) {
	seen := map[string]bool{"a": true, "b": true}

	// identifiers may hide deep in the tree
	require.NoError(t, checkIdents(parseExprText(t, "(a+1)*(b-2)"), seen, Position{}))

	err := checkIdents(parseExprText(t, "a*(b+c)"), seen, Position{})
	require.Error(t, err)
	require.Contains(t, err.Error(), `"c"`)
}

func TestConstEval(t *testing.T) {
	v, ok := constEval(parseExprText(t, "3*8"))
	require.True(t, ok)
	require.Equal(t, int64(24), v)

	v, ok = constEval(parseExprText(t, "-2"))
	require.True(t, ok)
	require.Equal(t, int64(-2), v)

	_, ok = constEval(parseExprText(t, "size*2"))
	require.False(t, ok)
}
