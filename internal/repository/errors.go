// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// enrollment and course services to distinguish between different
// failure scenarios without inspecting driver errors. For example,
// ErrNoSeats signals that a conditional seat reservation matched no row
// because the course is full, while ErrStaleVersion signals that an
// optimistic update lost a race and may be retried from a fresh read.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state.
var ErrConflict = errors.New("conflict")

var (
	// ErrCourseNotFound indicates that a course was not located in the DB.
	ErrCourseNotFound = errors.New("course not found")
	// ErrEnrollmentNotFound indicates that an enrollment was not located in the DB.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrUserNotFound indicates that a user was not located in the DB.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists is returned when registering an email that is taken.
	ErrEmailExists = errors.New("email already exists")
)

var (
	// ErrNoSeats is returned by ReserveSeat when enrolled_count has
	// reached capacity at the moment of the conditional update.
	ErrNoSeats = errors.New("no seats left")
	// ErrCourseNotOpen is returned by ReserveSeat when the course row is
	// no longer PUBLISHED.
	ErrCourseNotOpen = errors.New("course not open for enrollment")
	// ErrSeatUnderflow is returned when releasing more seats than the
	// course holds; it means the counter has drifted from the rows.
	ErrSeatUnderflow = errors.New("enrolled count underflow")
	// ErrStaleVersion is returned when a conditional update found the
	// row changed since it was read.
	ErrStaleVersion = errors.New("stale version")
	// ErrDuplicateActive is returned when a user already holds a
	// PENDING or ACTIVE enrollment in the course.
	ErrDuplicateActive = errors.New("duplicate active enrollment")
	// ErrHasHolders is returned when deleting a course whose
	// enrolled_count is not zero.
	ErrHasHolders = errors.New("course has seat holders")
	// ErrTransient is returned when a unit of work kept failing on
	// deadlocks, lock timeouts or a busy database after every attempt.
	ErrTransient = errors.New("transient storage failure")
)
