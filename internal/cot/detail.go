package cot

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RawDetail is the detail region kept as opaque fragments: one serialized
// string per top-level child of <detail>, in document order, duplicates
// included. Each fragment is the element's original text, attributes in
// their original order and nested content inline.
type RawDetail []string

// MarshalXML writes the fragments back verbatim inside <detail>.
func (d RawDetail) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	inner := struct {
		XML string `xml:",innerxml"`
	}{XML: strings.Join(d, "")}
	return enc.EncodeElement(inner, start)
}

// UnmarshalXML captures the children of the current element as fragments.
// It lets Decode[RawDetail] run as a single pass alternative to Parse.
func (d *RawDetail) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var inner struct {
		XML string `xml:",innerxml"`
	}
	if err := dec.DecodeElement(&inner, &start); err != nil {
		return err
	}
	wrapped := "<" + ElementDetail + ">" + inner.XML + "</" + ElementDetail + ">"
	frags, err := ExtractDetail(NewTokenizer([]byte(wrapped)))
	if err != nil {
		return err
	}
	*d = frags
	return nil
}

// ExtractDetail scans the whole token stream and returns the top-level
// children of <detail>.
//
// The first <detail> fixes the depth that counts; any later <detail> at the
// same depth is entered again and its children are appended to the same
// list. Child elements are captured whole, from their opening tag to their
// closing tag, so grandchildren appear only inline. Text, comments and
// processing instructions directly under <detail> are dropped. Malformed
// input yields a *TokenizationError and no fragments.
func ExtractDetail(t *Tokenizer) (RawDetail, error) {
	frags := RawDetail{}
	detailDepth := -1
	inside := false
	var childStart int64 = -1

	for {
		tok, err := t.Next()
		if err != nil {
			return nil, err
		}

		switch tok.Kind {
		case TokenEOF:
			return frags, nil

		case TokenStart:
			switch {
			case !inside && tok.Name == ElementDetail && (detailDepth < 0 || tok.Depth == detailDepth):
				detailDepth = tok.Depth
				inside = true
			case inside && tok.Depth == detailDepth+1:
				childStart = tok.Start
			}

		case TokenEmpty:
			if inside && tok.Depth == detailDepth+1 {
				frags = append(frags, string(t.Raw(tok)))
			}
			if !inside && tok.Name == ElementDetail && detailDepth < 0 {
				detailDepth = tok.Depth
			}

		case TokenEnd:
			switch {
			case inside && tok.Depth == detailDepth+1 && childStart >= 0:
				frags = append(frags, string(t.src[childStart:tok.End]))
				childStart = -1
			case inside && tok.Depth == detailDepth:
				inside = false
			}
		}
	}
}

// ExtractDetailString is ExtractDetail over a complete document.
func ExtractDetailString(text string) (RawDetail, error) {
	return ExtractDetail(NewTokenizer([]byte(text)))
}

func wrapDecodeError(dec *xml.Decoder, err error) error {
	var syntaxErr *xml.SyntaxError
	switch {
	case errors.Is(err, ErrParse):
		return err
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &TokenizationError{Offset: dec.InputOffset(), Err: err}
	default:
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
}
