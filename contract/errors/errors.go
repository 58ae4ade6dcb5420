package errors

import stderrors "errors"

// Error codes for the bus contracts. Keep stable; used across adapters, behaviors and hosting.
const (
	ErrCodeHandlerExists       = "servicebus.handler_exists"
	ErrCodeHandlerNotFound     = "servicebus.handler_not_found"
	ErrCodeHandlerTypeMismatch = "servicebus.handler_type_mismatch"
	ErrCodeAsyncNotConfigured  = "servicebus.async_not_configured"
	ErrCodeEnqueueFailed       = "servicebus.enqueue_failed"
	ErrCodePublishFailed       = "servicebus.publish_failed"
	ErrCodeDelayUnsupported    = "servicebus.delay_unsupported"
	ErrCodeSerializationFailed = "servicebus.serialization_failed"
	ErrCodeBusClosed           = "servicebus.closed"
	ErrCodeUnknownMessageType  = "servicebus.unknown_message_type"
	ErrCodePanic               = "servicebus.panic"

	ErrCodeUnauthorized     = "kernel.unauthorized"
	ErrCodeForbidden        = "kernel.forbidden"
	ErrCodeValidation       = "kernel.validation_failed"
	ErrCodeNotFound         = "kernel.not_found"
	ErrCodeConflict         = "kernel.conflict"
	ErrCodeDuplicateRequest = "kernel.duplicate_request"
	ErrCodeCircuitOpen      = "kernel.circuit_open"
	ErrCodeAfterCommit      = "kernel.after_commit"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrHandlerExists       = Code(ErrCodeHandlerExists)
	ErrHandlerNotFound     = Code(ErrCodeHandlerNotFound)
	ErrHandlerTypeMismatch = Code(ErrCodeHandlerTypeMismatch)
	ErrAsyncNotConfigured  = Code(ErrCodeAsyncNotConfigured)
	ErrEnqueueFailed       = Code(ErrCodeEnqueueFailed)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrDelayUnsupported    = Code(ErrCodeDelayUnsupported)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrBusClosed           = Code(ErrCodeBusClosed)
	ErrUnknownMessageType  = Code(ErrCodeUnknownMessageType)
	ErrPanic               = Code(ErrCodePanic)

	ErrUnauthorized     = Code(ErrCodeUnauthorized)
	ErrForbidden        = Code(ErrCodeForbidden)
	ErrValidation       = Code(ErrCodeValidation)
	ErrNotFound         = Code(ErrCodeNotFound)
	ErrConflict         = Code(ErrCodeConflict)
	ErrDuplicateRequest = Code(ErrCodeDuplicateRequest)
	ErrCircuitOpen      = Code(ErrCodeCircuitOpen)
	// ErrAfterCommit marks a failure that happened once the data was committed.
	// Re-running the request would apply it twice.
	ErrAfterCommit = Code(ErrCodeAfterCommit)
)

// CodeOf returns the code of the first coded error found in err's tree, or "".
func CodeOf(err error) string {
	for _, c := range ordered {
		if stderrors.Is(err, c) {
			return string(c.(codedError))
		}
	}

	return ""
}

// ordered lists the codes by specificity; request-level codes come before transport ones.
var ordered = []error{
	ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrDuplicateRequest,
	ErrAfterCommit, ErrCircuitOpen, ErrHandlerNotFound, ErrHandlerExists, ErrHandlerTypeMismatch, ErrUnknownMessageType,
	ErrAsyncNotConfigured, ErrEnqueueFailed, ErrPublishFailed, ErrDelayUnsupported,
	ErrSerializationFailed, ErrBusClosed, ErrPanic,
}
