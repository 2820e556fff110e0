package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrServiceRequired", ErrServiceRequired, "cotflow: relay service is required"},
		{"ErrHandlerRequired", ErrHandlerRequired, "cotflow: handler function is required"},
		{"ErrConsumeQueueRequired", ErrConsumeQueueRequired, "cotflow: consume queue is required"},
		{"ErrPublishQueueRequired", ErrPublishQueueRequired, "cotflow: publish queue is required"},
		{"ErrTopicRequired", ErrTopicRequired, "cotflow: topic is required"},
		{"ErrDocumentRequired", ErrDocumentRequired, "cotflow: cot document is required"},
		{"ErrRecordNotFound", ErrRecordNotFound, "cotflow: archive record not found"},
		{"ErrUnknownTransport", ErrUnknownTransport, "cotflow: unknown transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	assert.Equal(t, "cotflow: invalid configuration: invalid port", err.Error())
	assert.Same(t, inner, err.Unwrap())
}

func TestNewConfigValidationError(t *testing.T) {
	assert.NoError(t, NewConfigValidationError(nil))

	inner := errors.New("bad config")
	err := NewConfigValidationError(inner)

	var cfgErr ConfigValidationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Same(t, inner, cfgErr.Err)
	assert.ErrorIs(t, err, inner)
}
