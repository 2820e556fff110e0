// Package jsoncodec is the JSON codec of the relay. It is backed by sonic in
// its encoding/json compatible mode so output stays byte-compatible with the
// standard library.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Valid reports whether data is a single well-formed JSON value.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// Encode writes v followed by a newline, one value per line.
func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// NewDecoder returns a decoder reading successive values from r. It buffers
// ahead, so keep one decoder per stream.
func NewDecoder(r io.Reader) sonic.Decoder {
	return defaultConfig.NewDecoder(r)
}
