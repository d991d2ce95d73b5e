// Package service holds the course lifecycle and the enrollment engine.
// Operations take the caller's identity as an explicit Actor, run their
// read-check-write sequences inside one unit of work and report failures
// through the error kinds declared here.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/course-enrollment/internal/repository"
)

// Error kinds.  Every error returned by the services satisfies errors.Is
// against exactly one of these, so callers can tell bad input from an
// action that is blocked by current state or a storage hiccup.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrTransient       = errors.New("storage temporarily unavailable")
)

// conflictError is a Conflict-kind error with a stable machine code.
type conflictError struct {
	code string
	msg  string
}

func (e *conflictError) Error() string { return e.msg }
func (e *conflictError) Unwrap() error { return ErrConflict }

// Conflict errors.
var (
	ErrCapacityExceeded          error = &conflictError{"capacity_exceeded", "course is full"}
	ErrCapacityBelowEnrollment   error = &conflictError{"capacity_below_enrollment", "capacity cannot be lower than the current enrolled count"}
	ErrHasActiveEnrollments      error = &conflictError{"has_active_enrollments", "course still has seat holders"}
	ErrInvalidTransition         error = &conflictError{"invalid_transition", "status transition not allowed"}
	ErrDuplicateActiveEnrollment error = &conflictError{"duplicate_active_enrollment", "user already holds an active enrollment in this course"}
	ErrEnrollmentClosed          error = &conflictError{"enrollment_closed", "course is not open for enrollment"}
	ErrProgressIncomplete        error = &conflictError{"progress_incomplete", "enrollment progress must reach 100 before completion"}
	ErrConcurrentModification    error = &conflictError{"concurrent_modification", "course was modified concurrently, retry the request"}
	ErrSeatCountDrift            error = &conflictError{"seat_count_drift", "course seat count is out of sync, run reconcile"}
)

// kindError attaches an error kind to a more specific cause while keeping
// the cause's message.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

func invalid(format string, args ...any) error {
	return &kindError{kind: ErrValidation, err: fmt.Errorf(format, args...)}
}

// Code returns the stable machine code for err.
func Code(err error) string {
	var ce *conflictError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "internal"
}

// storeErr translates repository sentinels into the service taxonomy.
// Anything unrecognised is returned unchanged and surfaces as internal.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrCourseNotFound),
		errors.Is(err, repository.ErrEnrollmentNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return &kindError{kind: ErrNotFound, err: err}
	case errors.Is(err, repository.ErrNoSeats):
		return ErrCapacityExceeded
	case errors.Is(err, repository.ErrCourseNotOpen):
		return ErrEnrollmentClosed
	case errors.Is(err, repository.ErrDuplicateActive):
		return ErrDuplicateActiveEnrollment
	case errors.Is(err, repository.ErrHasHolders):
		return ErrHasActiveEnrollments
	case errors.Is(err, repository.ErrSeatUnderflow):
		return ErrSeatCountDrift
	case errors.Is(err, repository.ErrStaleVersion):
		return ErrConcurrentModification
	case errors.Is(err, repository.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, repository.ErrTransient):
		return &kindError{kind: ErrTransient, err: err}
	}
	return err
}
