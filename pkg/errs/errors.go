// Package errs defines the error taxonomy shared by the planner, the
// executor and the bootstrap state machines.
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrLockHeld is returned when another operation holds the fleet lock
	ErrLockHeld = errors.New("another fleetadm operation is in progress")

	// ErrAborted is returned when the operator declines a confirmation
	ErrAborted = errors.New("aborted by operator")
)

// UsageError reports bad operator input. It is always raised before any
// remote mutation.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Usagef builds a UsageError
func Usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// SDCClientError reports a failed call to a remote control-plane service
type SDCClientError struct {
	Service string
	Err     error
}

func (e *SDCClientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *SDCClientError) Unwrap() error { return e.Err }

// Client tags err with the remote service it came from. A nil err stays nil.
func Client(service string, err error) error {
	if err == nil {
		return nil
	}
	var ce *SDCClientError
	if errors.As(err, &ce) {
		return err
	}
	return &SDCClientError{Service: service, Err: err}
}

// UpdateError reports a business-rule violation found while planning
type UpdateError struct {
	Msg string
	// Hint is an optional corrective action to show the operator
	Hint string
	// Err is the underlying failure, if any
	Err error
}

func (e *UpdateError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Updatef builds an UpdateError
func Updatef(format string, args ...any) error {
	return &UpdateError{Msg: fmt.Sprintf(format, args...)}
}

// InternalError reports an invariant violation
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "internal error: " + e.Msg }

// Internalf builds an InternalError
func Internalf(format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError reports a structured-config or schema mismatch
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// TimeoutError is returned when a bounded wait gives up
type TimeoutError struct {
	What     string
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout waiting for %s after %d attempts (%s)", e.What, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// MultiError aggregates two or more errors from a parallel batch
type MultiError struct {
	Errs []error
}

func (e *MultiError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errs), strings.Join(parts, "; "))
}

func (e *MultiError) Unwrap() []error { return e.Errs }

// Collect returns nil for no errors, the error itself for one, and a
// MultiError for more. Nil entries are skipped.
func Collect(list []error) error {
	var out []error
	for _, err := range list {
		if err != nil {
			out = append(out, err)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return &MultiError{Errs: out}
}

// IsUsage reports whether err is, or wraps, a UsageError
func IsUsage(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
