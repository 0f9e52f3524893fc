package process

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound classifies a program that does not exist on the host.
	ErrNotFound = errors.New("program not found")
	// ErrNonZeroExit classifies a program that ran and failed.
	ErrNonZeroExit = errors.New("program exited with non-zero status")
	// ErrEmptyProgram is returned for a command without a program name.
	ErrEmptyProgram = errors.New("program name cannot be empty")
)

// Kind is the failure classification of a process run.
type Kind int

// Failure kinds.
const (
	KindNotFound Kind = iota + 1
	KindNonZeroExit
)

// Error is the structured failure of one process run.
type Error struct {
	Kind     Kind
	Program  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s: %v", e.Program, ErrNotFound)
	case KindNonZeroExit:
		if e.Stderr != "" {
			return fmt.Sprintf("%s exited with code %d: %s", e.Program, e.ExitCode, e.Stderr)
		}

		return fmt.Sprintf("%s exited with code %d", e.Program, e.ExitCode)
	default:
		return fmt.Sprintf("%s failed: %v", e.Program, e.Cause)
	}
}

// Is matches the classification sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrNonZeroExit:
		return e.Kind == KindNonZeroExit
	default:
		return false
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound builds a KindNotFound error.
func NotFound(program string, cause error) *Error {
	return &Error{
		Kind:     KindNotFound,
		Program:  program,
		ExitCode: -1,
		Stderr:   "",
		Cause:    cause,
	}
}

// NonZeroExit builds a KindNonZeroExit error.
func NonZeroExit(program string, code int, stderr string, cause error) *Error {
	return &Error{
		Kind:     KindNonZeroExit,
		Program:  program,
		ExitCode: code,
		Stderr:   stderr,
		Cause:    cause,
	}
}
