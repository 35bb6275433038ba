package binaryparse

import "strconv"

// ParseSchema parses mini-language text into a Schema.
//
// Declarations are separated by semicolons or newlines. An optional
// leading parenthesized list declares the extra parameters:
//
//	(u16: size)
//	u8: _ = 128
//	4: data[size*2]
//
// Comments run from # to end of line. The returned schema is
// structurally valid; cross-declaration rules (magic after open
// sequences, identifier visibility, offsets) are enforced by Compile.
func ParseSchema(text string) (*Schema, error) {
	lexer := NewLexer(text)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, &SchemaError{Message: err.Error()}
	}

	p := &schemaParser{stream: NewTokenStream(tokens)}
	return p.parseSchema()
}

// MustParseSchema is ParseSchema for statically known schema text.
func MustParseSchema(text string) *Schema {
	s, err := ParseSchema(text)
	if err != nil {
		panic(err)
	}
	return s
}

type schemaParser struct {
	stream *TokenStream
}

func (p *schemaParser) parseSchema() (*Schema, error) {
	s := &Schema{}

	p.skipSeps()

	// optional leading (type: name, ...) parameter list
	if p.stream.Peek().Type == TokenLParen {
		params, err := p.parseParams()
		if err != nil {
			return nil, err
		}
		s.Params = params
		p.skipSeps()
	}

	for !p.stream.AtEnd() {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, decl)

		tok := p.stream.Peek()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type != TokenSemi {
			return nil, schemaErrorf(tok.Pos, "expected ; or newline after declaration, got %s", tok.Type)
		}
		p.skipSeps()
	}

	if len(s.Fields) == 0 {
		return nil, &SchemaError{Message: "schema has no field declarations"}
	}
	return s, nil
}

func (p *schemaParser) parseParams() ([]Param, error) {
	p.stream.Advance() // consume (

	var params []Param
	for {
		tok := p.stream.Peek()
		if tok.Type == TokenRParen {
			p.stream.Advance()
			break
		}

		typTok, err := p.stream.Expect(TokenIdent)
		if err != nil {
			return nil, schemaErrorf(tok.Pos, "bad parameter declaration: %v", err)
		}
		typ, err := decodeTypeName(typTok.Value, typTok.Pos)
		if err != nil {
			return nil, err
		}
		if typ.Family != FamilyInt && typ.Family != FamilyUint {
			return nil, schemaErrorf(typTok.Pos, "parameter type must be an integer, got %s", typ)
		}
		if _, err := p.stream.Expect(TokenColon); err != nil {
			return nil, schemaErrorf(typTok.Pos, "bad parameter declaration: %v", err)
		}
		nameTok, err := p.stream.Expect(TokenIdent)
		if err != nil {
			return nil, schemaErrorf(typTok.Pos, "bad parameter declaration: %v", err)
		}
		params = append(params, Param{Name: nameTok.Value, Type: typ})

		if p.stream.Match(TokenComma) {
			continue
		}
	}
	return params, nil
}

// parseDecl parses one `type: kind [= literal]` declaration.
func (p *schemaParser) parseDecl() (*FieldDecl, error) {
	start := p.stream.Peek()

	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}

	if _, err := p.stream.Expect(TokenColon); err != nil {
		return nil, schemaErrorf(start.Pos, "expected : after type token")
	}

	nameTok := p.stream.Peek()
	if nameTok.Type != TokenIdent {
		return nil, schemaErrorf(nameTok.Pos, "expected field name or _, got %s", nameTok.Type)
	}
	p.stream.Advance()

	decl := &FieldDecl{Type: typ, Pos: start.Pos}
	if nameTok.Value != "_" {
		decl.Name = nameTok.Value
	}

	// multiplicity: [expr] or []
	if p.stream.Match(TokenLBracket) {
		if p.stream.Match(TokenRBracket) {
			decl.Kind = FieldSeqOpen
		} else {
			count, err := parseExpr(p.stream)
			if err != nil {
				return nil, &SchemaError{Message: err.Error(), Pos: nameTok.Pos}
			}
			if _, err := p.stream.Expect(TokenRBracket); err != nil {
				return nil, schemaErrorf(nameTok.Pos, "unterminated sequence count")
			}
			decl.Kind = FieldSeqCounted
			decl.Count = count
		}
	}

	// magic option: = literal
	if p.stream.Match(TokenEq) {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		decl.Magic = lit
	}

	return decl, nil
}

// parseType parses a type token: an integer width, a type-shaped
// identifier, or *name(args).
func (p *schemaParser) parseType() (TypeToken, error) {
	tok := p.stream.Peek()
	switch tok.Type {
	case TokenInt:
		p.stream.Advance()
		return decodeTypeName(tok.Value, tok.Pos)

	case TokenIdent:
		p.stream.Advance()
		return decodeTypeName(tok.Value, tok.Pos)

	case TokenStar:
		p.stream.Advance()
		nameTok, err := p.stream.Expect(TokenIdent)
		if err != nil {
			return TypeToken{}, schemaErrorf(tok.Pos, "expected codec name after *")
		}
		typ := TypeToken{Family: FamilyExternal, Name: nameTok.Value}
		if _, err := p.stream.Expect(TokenLParen); err != nil {
			return TypeToken{}, schemaErrorf(nameTok.Pos, "expected ( after codec name %s", nameTok.Value)
		}
		for {
			if p.stream.Match(TokenRParen) {
				break
			}
			arg, err := parseExpr(p.stream)
			if err != nil {
				return TypeToken{}, &SchemaError{Message: err.Error(), Pos: nameTok.Pos}
			}
			typ.Args = append(typ.Args, arg)
			if p.stream.Match(TokenComma) {
				continue
			}
			if _, err := p.stream.Expect(TokenRParen); err != nil {
				return TypeToken{}, schemaErrorf(nameTok.Pos, "unterminated argument list for codec %s", nameTok.Value)
			}
			break
		}
		return typ, nil

	default:
		return TypeToken{}, schemaErrorf(tok.Pos, "expected type token, got %s", tok.Type)
	}
}

func (p *schemaParser) parseLiteral() (*Literal, error) {
	tok := p.stream.Peek()
	switch tok.Type {
	case TokenInt:
		p.stream.Advance()
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, schemaErrorf(tok.Pos, "bad integer literal %q", tok.Value)
		}
		return &Literal{Int: v}, nil
	case TokenMinus:
		p.stream.Advance()
		numTok, err := p.stream.Expect(TokenInt)
		if err != nil {
			return nil, schemaErrorf(tok.Pos, "expected integer after -")
		}
		v, err := strconv.ParseInt(numTok.Value, 10, 64)
		if err != nil {
			return nil, schemaErrorf(numTok.Pos, "bad integer literal %q", numTok.Value)
		}
		return &Literal{Int: -v}, nil
	case TokenString:
		p.stream.Advance()
		return &Literal{IsStr: true, Str: []byte(tok.Value)}, nil
	default:
		return nil, schemaErrorf(tok.Pos, "expected magic literal, got %s", tok.Type)
	}
}

func (p *schemaParser) skipSeps() {
	for p.stream.Match(TokenSemi) {
	}
}
