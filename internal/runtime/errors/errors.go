// Package errors holds the sentinel errors returned by the relay runtime.
package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("cotflow: relay service is required")
	ErrHandlerRequired      = sterrors.New("cotflow: handler function is required")
	ErrHandlerNameRequired  = sterrors.New("cotflow: handler name is required")
	ErrConsumeQueueRequired = sterrors.New("cotflow: consume queue is required")
	ErrPublishQueueRequired = sterrors.New("cotflow: publish queue is required")
	ErrPublisherRequired    = sterrors.New("cotflow: publisher is required")
	ErrTopicRequired        = sterrors.New("cotflow: topic is required")
	ErrConfigRequired       = sterrors.New("cotflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("cotflow: logger is required")
	ErrDocumentRequired     = sterrors.New("cotflow: cot document is required")
	ErrArchiveRequired      = sterrors.New("cotflow: archive store is required")
	ErrRecordNotFound       = sterrors.New("cotflow: archive record not found")
	ErrDuplicateRecord      = sterrors.New("cotflow: archive record already exists")
	ErrUnknownTransport     = sterrors.New("cotflow: unknown transport")
)

// ConfigValidationError wraps every problem found by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("cotflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
