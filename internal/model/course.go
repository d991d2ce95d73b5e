package model

import "time"

// CourseStatus is the lifecycle state of a course.  The set is closed;
// anything outside the constants below is rejected by ParseCourseStatus.
type CourseStatus string

const (
	CourseDraft      CourseStatus = "DRAFT"
	CoursePublished  CourseStatus = "PUBLISHED"
	CourseInProgress CourseStatus = "IN_PROGRESS"
	CourseCompleted  CourseStatus = "COMPLETED"
	CourseCancelled  CourseStatus = "CANCELLED"
)

// courseTransitions lists every legal status change.  A target missing
// from the source's set is an invalid transition.
var courseTransitions = map[CourseStatus]map[CourseStatus]bool{
	CourseDraft:      {CoursePublished: true, CourseCancelled: true},
	CoursePublished:  {CourseInProgress: true, CourseCancelled: true},
	CourseInProgress: {CourseCompleted: true},
}

// ParseCourseStatus returns the status named by s and whether it is known.
func ParseCourseStatus(s string) (CourseStatus, bool) {
	st := CourseStatus(s)
	switch st {
	case CourseDraft, CoursePublished, CourseInProgress, CourseCompleted, CourseCancelled:
		return st, true
	}
	return "", false
}

// CanTransitionTo reports whether the course may move from s to next.
func (s CourseStatus) CanTransitionTo(next CourseStatus) bool {
	return courseTransitions[s][next]
}

// Course is a seat-limited offering owned by an instructor.  It
// corresponds to a row in the `courses` table.
//
// Fields:
//  ID            – primary key identifier.
//  Title         – display title.
//  Description   – free text description.
//  InstructorID  – user ID of the owning instructor.
//  Status        – lifecycle state.
//  Capacity      – maximum number of seat holders (>= 1).
//  EnrolledCount – number of enrollments currently holding a seat.
//  StartDate     – optional start of the course.
//  EndDate       – optional end of the course (after StartDate).
//  Version       – bumped on every write, used for optimistic updates.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Course struct {
	ID            uint64       // courses.id
	Title         string       // courses.title
	Description   string       // courses.description
	InstructorID  uint64       // courses.instructor_id
	Status        CourseStatus // courses.status
	Capacity      int          // courses.capacity
	EnrolledCount int          // courses.enrolled_count
	StartDate     *time.Time   // courses.start_date (nullable)
	EndDate       *time.Time   // courses.end_date (nullable)
	Version       uint64       // courses.version
	CreatedAt     time.Time    // courses.created_at
	UpdatedAt     time.Time    // courses.updated_at
}

// SeatsRemaining returns capacity minus the seats already held.
func (c Course) SeatsRemaining() int {
	if n := c.Capacity - c.EnrolledCount; n > 0 {
		return n
	}
	return 0
}

// IsOwnedBy reports whether userID is the course's instructor.
func (c Course) IsOwnedBy(userID uint64) bool {
	return c.InstructorID == userID
}
