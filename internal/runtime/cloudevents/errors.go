package cloudevents

import (
	"errors"
	"fmt"
)

// Handler outcome errors. They decide what happens to a message after its
// handler returned.
var (
	// ErrRetry retries the message with backoff.
	ErrRetry = errors.New("cotflow: retry message")

	// ErrDeadLetter moves the message to the poison queue without retrying.
	ErrDeadLetter = errors.New("cotflow: send to dead letter queue")

	// ErrSkip acknowledges the message without publishing anything.
	ErrSkip = errors.New("cotflow: skip message")

	// ErrUnprocessable marks a payload that can never be handled, for example
	// a document that is not well-formed CoT. It is dead lettered.
	ErrUnprocessable = errors.New("cotflow: unprocessable message")
)

// DeadLetterError dead letters a message with a reason.
type DeadLetterError struct {
	Reason string
	Cause  error
}

// ErrDeadLetterWithReason returns a DeadLetterError.
func ErrDeadLetterWithReason(reason string, cause error) *DeadLetterError {
	return &DeadLetterError{Reason: reason, Cause: cause}
}

func (e *DeadLetterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cotflow: dead letter (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("cotflow: dead letter (%s)", e.Reason)
}

func (e *DeadLetterError) Unwrap() error {
	return e.Cause
}

func (e *DeadLetterError) Is(target error) bool {
	if target == ErrDeadLetter {
		return true
	}
	_, ok := target.(*DeadLetterError)
	return ok
}

// HandlerResult is the outcome of processing a message.
type HandlerResult int

const (
	ResultAck HandlerResult = iota
	ResultRetry
	ResultDeadLetter
	ResultSkip
)

func (r HandlerResult) String() string {
	switch r {
	case ResultAck:
		return "ack"
	case ResultRetry:
		return "retry"
	case ResultDeadLetter:
		return "dead_letter"
	case ResultSkip:
		return "skip"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ClassifyError maps a handler error to its outcome. Unknown errors retry.
func ClassifyError(err error) HandlerResult {
	switch {
	case err == nil:
		return ResultAck
	case errors.Is(err, ErrDeadLetter), errors.Is(err, ErrUnprocessable):
		return ResultDeadLetter
	case errors.Is(err, ErrSkip):
		return ResultSkip
	default:
		return ResultRetry
	}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return ClassifyError(err) == ResultRetry
}

// ShouldDeadLetter reports whether err should go to the poison queue.
func ShouldDeadLetter(err error) bool {
	return ClassifyError(err) == ResultDeadLetter
}
