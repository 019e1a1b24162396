package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInputValidation is returned when a required field is missing or empty.
	ErrInputValidation = errors.New("invalid input")
	// ErrRuntimeInvocation is returned when the agent runtime answers with a non-success status.
	ErrRuntimeInvocation = errors.New("agent runtime invocation failed")
	// ErrDecode is returned when a reply cannot be parsed into a Message or lacks a text block.
	ErrDecode = errors.New("decode agent reply")
	// ErrInitialization is returned when the agent or its session manager cannot be constructed.
	ErrInitialization = errors.New("agent initialization failed")
	// ErrBindingMismatch is returned when a request's identity differs from the bound session.
	ErrBindingMismatch = errors.New("session binding mismatch")
	// ErrConversationNotFound is returned when durable memory holds no events for a conversation.
	ErrConversationNotFound = errors.New("conversation not found")
)

// RuntimeInvocationError carries the status code returned by the agent runtime.
type RuntimeInvocationError struct {
	StatusCode int
}

func (e *RuntimeInvocationError) Error() string {
	return fmt.Sprintf("agent runtime returned an http %d", e.StatusCode)
}

func (e *RuntimeInvocationError) Unwrap() error {
	return ErrRuntimeInvocation
}

// MissingField builds an input validation error naming the missing field.
func MissingField(msg string) error {
	return fmt.Errorf("%w: %s", ErrInputValidation, msg)
}
