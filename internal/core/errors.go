package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request the caller should have rejected.
	ErrValidation = errors.New("invalid synthesis request")
	// ErrAdmissionRefused is a capacity signal: the caller may retry later.
	ErrAdmissionRefused = errors.New("synthesis capacity exhausted")
	// ErrEmptyAudio is returned when a backend produced zero bytes.
	ErrEmptyAudio = errors.New("engine produced no audio")
	// ErrRemoteUnavailable marks a remote speech API that could not be reached.
	ErrRemoteUnavailable = errors.New("remote speech API unreachable")
)

// SynthesisError is a failed synthesis attempt on a local engine.
type SynthesisError struct {
	Engine  string
	Message string
	Cause   error
}

func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s synthesis failed: %s: %v", e.Engine, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s synthesis failed: %s", e.Engine, e.Message)
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// NewSynthesisError creates a SynthesisError.
func NewSynthesisError(engine, message string, cause error) *SynthesisError {
	return &SynthesisError{
		Engine:  engine,
		Message: message,
		Cause:   cause,
	}
}

// RemoteError is a non-success response from a remote speech API.
type RemoteError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote speech API error (%s): %s", e.Status, e.Message)
}
