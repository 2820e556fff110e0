// Package metadata holds the string headers that travel with relay messages.
package metadata

import "maps"

// Metadata is the header map carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	cloned := make(Metadata, len(m)+extra)
	maps.Copy(cloned, m)
	return cloned
}

// Clone returns a shallow copy. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a copy of m with key set to value.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy of m with every entry of entries applied on top.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	maps.Copy(cloned, entries)
	return cloned
}

// New builds metadata from alternating key/value pairs. A trailing key
// without a value is dropped.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
