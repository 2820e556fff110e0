package handlers

import (
	"github.com/drblury/cotflow/internal/cot"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/cotflow/internal/runtime/metadata"
)

// MessageContextBase holds the metadata and logger shared by every handler
// context type.
type MessageContextBase struct {
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// CloneMetadata returns a copy of the current metadata map so handlers can safely
// mutate headers for outgoing messages without touching the original map.
func (b MessageContextBase) CloneMetadata() metadatapkg.Metadata {
	return b.Metadata.Clone()
}

// Get retrieves a metadata value by key.
func (b MessageContextBase) Get(key string) string {
	return b.Metadata[key]
}

// CorrelationID returns the correlation ID from metadata, if present.
func (b MessageContextBase) CorrelationID() string {
	return b.Metadata[MetadataKeyCorrelationID]
}

// CoTUID returns the uid header stamped by the relay.
func (b MessageContextBase) CoTUID() string {
	return b.Metadata[MetadataKeyCoTUID]
}

// CoTType returns the CoT type header stamped by the relay.
func (b MessageContextBase) CoTType() string {
	return b.Metadata[MetadataKeyCoTType]
}

// Category returns the category header. ok is false when the header is
// missing or holds an unknown name.
func (b MessageContextBase) Category() (cot.Category, bool) {
	raw, present := b.Metadata[MetadataKeyCoTCategory]
	if !present {
		return cot.CategoryOther, false
	}
	var category cot.Category
	if err := category.UnmarshalText([]byte(raw)); err != nil {
		return cot.CategoryOther, false
	}
	return category, true
}
