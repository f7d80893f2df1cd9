package xan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func scanAll(src string) []Token {
	s := NewScanner(src)
	var toks []Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Kind == TokenEOF || tok.Kind == TokenError {
			break
		}
	}
	return toks
}

func TestScanner_Punctuation(t *testing.T) {
	toks := scanAll("(){}[];,.+-*/%:")
	kinds := make([]TokenKind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []TokenKind{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenLeftBracket, TokenRightBracket, TokenSemicolon, TokenComma,
		TokenDot, TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenColon, TokenEOF,
	}, kinds)
}

func TestScanner_OneOrTwoCharacterOperators(t *testing.T) {
	tests := []struct {
		src  string
		kind TokenKind
	}{
		{"!", TokenBang},
		{"!=", TokenBangEqual},
		{"=", TokenEqual},
		{"==", TokenEqualEqual},
		{"<", TokenLess},
		{"<=", TokenLessEqual},
		{">", TokenGreater},
		{">=", TokenGreaterEqual},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks := scanAll(tt.src)
			assert.Equal(t, tt.kind, toks[0].Kind)
			assert.Equal(t, tt.src, toks[0].Lexeme)
		})
	}
}

func TestScanner_Keywords(t *testing.T) {
	for word, kind := range keywords {
		toks := scanAll(word)
		assert.Equal(t, kind, toks[0].Kind, "keyword %q", word)
	}
}

func TestScanner_IdentifierNotKeyword(t *testing.T) {
	toks := scanAll("classroom")
	assert.Equal(t, TokenIdentifier, toks[0].Kind)
	assert.Equal(t, "classroom", toks[0].Lexeme)
}

func TestScanner_Numbers(t *testing.T) {
	toks := scanAll("123 4.5")
	assert.Equal(t, TokenNumber, toks[0].Kind)
	assert.Equal(t, "123", toks[0].Lexeme)
	assert.Equal(t, TokenNumber, toks[1].Kind)
	assert.Equal(t, "4.5", toks[1].Lexeme)
}

func TestScanner_Strings(t *testing.T) {
	toks := scanAll(`"hello world"`)
	assert.Equal(t, TokenString, toks[0].Kind)
	assert.Equal(t, `"hello world"`, toks[0].Lexeme)
}

func TestScanner_UnterminatedString(t *testing.T) {
	toks := scanAll(`"oops`)
	last := toks[len(toks)-1]
	assert.Equal(t, TokenError, last.Kind)
	assert.Equal(t, "Unterminated string.", last.Lexeme)
}

func TestScanner_SkipsWhitespaceAndLineComments(t *testing.T) {
	s := NewScanner("  \n// a comment\n  42")
	tok := s.Next()
	assert.Equal(t, TokenNumber, tok.Kind)
	assert.Equal(t, "42", tok.Lexeme)
	assert.Equal(t, 3, tok.Line)
}

func TestScanner_UnexpectedCharacter(t *testing.T) {
	toks := scanAll("@")
	assert.Equal(t, TokenError, toks[0].Kind)
	assert.Equal(t, "Unexpected character.", toks[0].Lexeme)
}
