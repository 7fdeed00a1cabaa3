package engine

import (
	"errors"
	"fmt"
)

// DispatchError is an error detected while handling an event.
//
// DispatchError includes structured fields so the Run loop can log enough
// context to reproduce the failure.
type DispatchError struct {
	// Code identifies the error category.
	Code DispatchErrorCode

	// Message is a human-readable description.
	Message string

	// Device identifies the device the event concerned, if any.
	Device string

	// Context is the action context involved, if any.
	Context string

	// Err is the underlying cause.
	Err error
}

// DispatchErrorCode categorizes dispatch errors.
type DispatchErrorCode string

const (
	// ErrCodeInvalidContext indicates an action context that does not parse
	// or does not point at a bound slot.
	ErrCodeInvalidContext DispatchErrorCode = "INVALID_CONTEXT"

	// ErrCodeInvalidPayload indicates an undecodable event or payload.
	ErrCodeInvalidPayload DispatchErrorCode = "INVALID_PAYLOAD"

	// ErrCodeDeliveryFailed indicates a message could not be sent to a plugin.
	ErrCodeDeliveryFailed DispatchErrorCode = "DELIVERY_FAILED"

	// ErrCodePersistFailed indicates the store rejected a read or write.
	ErrCodePersistFailed DispatchErrorCode = "PERSIST_FAILED"
)

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Context != "" {
		msg += fmt.Sprintf(" (context=%s)", e.Context)
	} else if e.Device != "" {
		msg += fmt.Sprintf(" (device=%s)", e.Device)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is a DispatchError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code DispatchErrorCode) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

func contextError(ctx, msg string, err error) *DispatchError {
	return &DispatchError{Code: ErrCodeInvalidContext, Message: msg, Context: ctx, Err: err}
}

func payloadError(msg string, err error) *DispatchError {
	return &DispatchError{Code: ErrCodeInvalidPayload, Message: msg, Err: err}
}

func deliveryError(ctx, plugin string, err error) *DispatchError {
	return &DispatchError{
		Code:    ErrCodeDeliveryFailed,
		Message: "send to " + plugin,
		Context: ctx,
		Err:     err,
	}
}

func persistError(deviceID, msg string, err error) *DispatchError {
	return &DispatchError{Code: ErrCodePersistFailed, Message: msg, Device: deviceID, Err: err}
}
