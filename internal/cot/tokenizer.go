package cot

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
)

// TokenKind classifies a token produced by Tokenizer.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	// TokenStart is an opening tag such as <contact>.
	TokenStart
	// TokenEnd is a closing tag such as </contact>.
	TokenEnd
	// TokenEmpty is a self-closing tag such as <contact/>. No TokenEnd follows it.
	TokenEmpty
	TokenText
	// TokenOther covers comments, processing instructions and directives.
	TokenOther
)

// Token is one lexical item of the input with its source byte range.
type Token struct {
	Kind TokenKind
	// Name is the local element name for Start, End and Empty tokens.
	Name  string
	Attr  []xml.Attr
	Depth int
	// Start and End delimit the token's raw bytes: src[Start:End].
	Start int64
	End   int64
}

// Tokenizer is a strict streaming XML lexer that reports byte offsets and
// tells self-closing tags apart from open/close pairs.
type Tokenizer struct {
	src         []byte
	dec         *xml.Decoder
	depth       int
	skipNextEnd bool
}

// NewTokenizer returns a Tokenizer over src.
func NewTokenizer(src []byte) *Tokenizer {
	dec := xml.NewDecoder(bytes.NewReader(src))
	dec.Strict = true
	return &Tokenizer{src: src, dec: dec}
}

// Next returns the next token. It returns a TokenEOF token once the input is
// exhausted with all elements closed, and a *TokenizationError for anything
// malformed, including a document truncated mid element.
func (t *Tokenizer) Next() (Token, error) {
	for {
		start := t.dec.InputOffset()
		tok, err := t.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) && t.depth == 0 {
				return Token{Kind: TokenEOF, Start: start, End: start}, nil
			}
			return Token{}, &TokenizationError{Offset: t.dec.InputOffset(), Err: err}
		}
		end := t.dec.InputOffset()

		switch el := tok.(type) {
		case xml.StartElement:
			if t.selfClosing(end) {
				t.skipNextEnd = true
				return Token{Kind: TokenEmpty, Name: el.Name.Local, Attr: el.Copy().Attr, Depth: t.depth, Start: start, End: end}, nil
			}
			depth := t.depth
			t.depth++
			return Token{Kind: TokenStart, Name: el.Name.Local, Attr: el.Copy().Attr, Depth: depth, Start: start, End: end}, nil
		case xml.EndElement:
			if t.skipNextEnd {
				t.skipNextEnd = false
				continue
			}
			t.depth--
			return Token{Kind: TokenEnd, Name: el.Name.Local, Depth: t.depth, Start: start, End: end}, nil
		case xml.CharData:
			return Token{Kind: TokenText, Depth: t.depth, Start: start, End: end}, nil
		default:
			return Token{Kind: TokenOther, Depth: t.depth, Start: start, End: end}, nil
		}
	}
}

// Raw returns the source bytes covered by tok.
func (t *Tokenizer) Raw(tok Token) []byte {
	return t.src[tok.Start:tok.End]
}

func (t *Tokenizer) selfClosing(end int64) bool {
	return end >= 2 && t.src[end-2] == '/' && t.src[end-1] == '>'
}
