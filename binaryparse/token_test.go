package binaryparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexer_BasicTokens(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{"u8", []TokenType{TokenIdent, TokenEOF}},
		{"123", []TokenType{TokenInt, TokenEOF}},
		{"_", []TokenType{TokenIdent, TokenEOF}},
		{`"magic"`, []TokenType{TokenString, TokenEOF}},
		{":", []TokenType{TokenColon, TokenEOF}},
		{";", []TokenType{TokenSemi, TokenEOF}},
		{"[]", []TokenType{TokenLBracket, TokenRBracket, TokenEOF}},
		{"()", []TokenType{TokenLParen, TokenRParen, TokenEOF}},
		{"=", []TokenType{TokenEq, TokenEOF}},
		{"*", []TokenType{TokenStar, TokenEOF}},
		{"a+b", []TokenType{TokenIdent, TokenPlus, TokenIdent, TokenEOF}},
		{"a-1", []TokenType{TokenIdent, TokenMinus, TokenInt, TokenEOF}},
		{"a/2%3", []TokenType{TokenIdent, TokenSlash, TokenInt, TokenPercent, TokenInt, TokenEOF}},
		{"u8: _ = 128", []TokenType{TokenIdent, TokenColon, TokenIdent, TokenEq, TokenInt, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			tokens, err := lexer.Tokenize()
			require.NoError(t, err)

			types := make([]TokenType, len(tokens))
			for i, tok := range tokens {
				types[i] = tok.Type
			}
			require.Equal(t, tt.expected, types)
		})
	}
}

func TestLexer_NewlinesCollapseToSemi(t *testing.T) {
	lexer := NewLexer("u8: a\n\n\nu8: b")
	tokens, err := lexer.Tokenize()
	require.NoError(t, err)

	var semis int
	for _, tok := range tokens {
		if tok.Type == TokenSemi {
			semis++
		}
	}
	require.Equal(t, 1, semis)
}

func TestLexer_Comments(t *testing.T) {
	lexer := NewLexer("u8: a # trailing comment\nu8: b")
	tokens, err := lexer.Tokenize()
	require.NoError(t, err)

	var idents []string
	for _, tok := range tokens {
		if tok.Type == TokenIdent {
			idents = append(idents, tok.Value)
		}
	}
	require.Equal(t, []string{"u8", "a", "u8", "b"}, idents)
}

func TestLexer_StringEscapes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"9xC\0"`, "9xC\x00"},
		{`"a\n\t"`, "a\n\t"},
		{`"\x41\x00"`, "A\x00"},
		{`"q\"q"`, `q"q`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			tokens, err := lexer.Tokenize()
			require.NoError(t, err)
			require.Equal(t, TokenString, tokens[0].Type)
			require.Equal(t, tt.expected, tokens[0].Value)
		})
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	lexer := NewLexer(`"oops`)
	_, err := lexer.Tokenize()
	require.Error(t, err)
}

func TestLexer_Positions(t *testing.T) {
	lexer := NewLexer("u8: a\nu16: b")
	tokens, err := lexer.Tokenize()
	require.NoError(t, err)

	// the u16 token sits on line 2, column 1
	var found bool
	for _, tok := range tokens {
		if tok.Value == "u16" {
			require.Equal(t, 2, tok.Pos.Line)
			require.Equal(t, 1, tok.Pos.Column)
			found = true
		}
	}
	require.True(t, found)
}
