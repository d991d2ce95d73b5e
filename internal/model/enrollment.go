package model

import "time"

// EnrollmentStatus is the state of a single user's enrollment in a course.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "PENDING"
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentRejected  EnrollmentStatus = "REJECTED"
)

var enrollmentTransitions = map[EnrollmentStatus]map[EnrollmentStatus]bool{
	EnrollmentPending: {EnrollmentActive: true, EnrollmentCancelled: true, EnrollmentRejected: true},
	EnrollmentActive:  {EnrollmentCompleted: true, EnrollmentCancelled: true},
}

// CanTransitionTo reports whether an enrollment may move from s to next.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	return enrollmentTransitions[s][next]
}

// IsTerminal reports whether no further transition is allowed from s.
func (s EnrollmentStatus) IsTerminal() bool {
	return len(enrollmentTransitions[s]) == 0
}

// HoldsSeat reports whether an enrollment in status s counts toward the
// course's enrolled_count.  Completed enrollments are governed by policy
// and are not included here.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentPending || s == EnrollmentActive
}

// Enrollment records one user's place in a course.  Rows are never
// deleted while the course exists; cancellation is a status change.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – enrolled user.
//  CourseID       – course the seat belongs to.
//  Status         – current state.
//  Progress       – completion percentage 0..100.
//  EnrollmentDate – when the seat was reserved.
//  CompletedDate  – set when the enrollment reaches COMPLETED.
//  UpdatedAt      – last update timestamp.
type Enrollment struct {
	ID             uint64           // enrollments.id
	UserID         uint64           // enrollments.user_id
	CourseID       uint64           // enrollments.course_id
	Status         EnrollmentStatus // enrollments.status
	Progress       int              // enrollments.progress
	EnrollmentDate time.Time        // enrollments.enrollment_date
	CompletedDate  *time.Time       // enrollments.completed_date (nullable)
	UpdatedAt      time.Time        // enrollments.updated_at
}
