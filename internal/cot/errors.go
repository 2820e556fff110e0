package cot

import (
	"errors"
	"fmt"
)

// ErrParse is matched by every error returned from Decode, ExtractDetail and
// Parse, so callers can test for "the input was rejected" without caring
// which pass rejected it.
var ErrParse = errors.New("cot: parse failed")

// TokenizationError reports malformed XML: unbalanced tags, invalid bytes or
// a truncated document. It aborts the whole operation.
type TokenizationError struct {
	// Offset is the byte offset into the input where tokenization stopped.
	Offset int64
	Err    error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("cot: malformed xml at offset %d: %v", e.Offset, e.Err)
}

func (e *TokenizationError) Unwrap() error { return e.Err }

// Is implements errors.Is for TokenizationError.
func (e *TokenizationError) Is(target error) bool {
	if target == ErrParse {
		return true
	}
	_, ok := target.(*TokenizationError)
	return ok
}

// MissingFieldError reports a required element or attribute that is absent.
// Attribute is empty when a whole element is missing.
type MissingFieldError struct {
	Element   string
	Attribute string
}

func (e *MissingFieldError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("cot: missing required element <%s>", e.Element)
	}
	return fmt.Sprintf("cot: missing required attribute %q on <%s>", e.Attribute, e.Element)
}

// Is implements errors.Is for MissingFieldError.
func (e *MissingFieldError) Is(target error) bool {
	if target == ErrParse {
		return true
	}
	_, ok := target.(*MissingFieldError)
	return ok
}

// MalformedTimestampError reports a timestamp attribute that is not RFC3339.
type MalformedTimestampError struct {
	Attribute string
	Value     string
	Err       error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("cot: attribute %q is not an RFC3339 timestamp: %q", e.Attribute, e.Value)
}

func (e *MalformedTimestampError) Unwrap() error { return e.Err }

// Is implements errors.Is for MalformedTimestampError.
func (e *MalformedTimestampError) Is(target error) bool {
	if target == ErrParse {
		return true
	}
	_, ok := target.(*MalformedTimestampError)
	return ok
}

// InvalidValueError reports a present attribute whose text cannot be
// converted to the field type, e.g. a non-numeric point coordinate.
type InvalidValueError struct {
	Element   string
	Attribute string
	Value     string
	Err       error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("cot: invalid value %q for attribute %q on <%s>: %v", e.Value, e.Attribute, e.Element, e.Err)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }

// Is implements errors.Is for InvalidValueError.
func (e *InvalidValueError) Is(target error) bool {
	if target == ErrParse {
		return true
	}
	_, ok := target.(*InvalidValueError)
	return ok
}
