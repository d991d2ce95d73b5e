package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/iliyamo/course-enrollment/internal/repository"
)

func TestConflictErrorsShareKind(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		ErrCapacityExceeded, ErrCapacityBelowEnrollment, ErrHasActiveEnrollments, ErrInvalidTransition,
		ErrDuplicateActiveEnrollment, ErrEnrollmentClosed, ErrProgressIncomplete, ErrConcurrentModification,
		ErrSeatCountDrift,
	} {
		if !errors.Is(err, ErrConflict) {
			t.Errorf("%v is not a conflict", err)
		}
		if errors.Is(err, ErrValidation) {
			t.Errorf("%v is also a validation error", err)
		}
	}
}

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrCapacityExceeded, "capacity_exceeded"},
		{fmt.Errorf("enroll: %w", ErrInvalidTransition), "invalid_transition"},
		{invalid("bad %s", "title"), "validation_error"},
		{ErrForbidden, "forbidden"},
		{ErrUnauthenticated, "unauthenticated"},
		{storeErr(repository.ErrCourseNotFound), "not_found"},
		{storeErr(repository.ErrTransient), "transient"},
		{storeErr(repository.ErrSeatUnderflow), "seat_count_drift"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStoreErrTranslation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   error
		want error
	}{
		{repository.ErrNoSeats, ErrCapacityExceeded},
		{repository.ErrCourseNotOpen, ErrEnrollmentClosed},
		{repository.ErrDuplicateActive, ErrDuplicateActiveEnrollment},
		{repository.ErrHasHolders, ErrHasActiveEnrollments},
		{repository.ErrStaleVersion, ErrConcurrentModification},
		{repository.ErrSeatUnderflow, ErrSeatCountDrift},
		{repository.ErrEnrollmentNotFound, ErrNotFound},
		{repository.ErrUserNotFound, ErrNotFound},
		{fmt.Errorf("%w: deadlock", repository.ErrTransient), ErrTransient},
	}
	for _, tt := range tests {
		if got := storeErr(tt.in); !errors.Is(got, tt.want) {
			t.Errorf("storeErr(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := storeErr(repository.ErrEnrollmentNotFound); got.Error() != "enrollment not found" {
		t.Errorf("message = %q", got.Error())
	}
}
