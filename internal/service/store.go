package service

import (
	"context"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

// TxRunner runs fn as one unit of work.  Store calls made with the
// context handed to fn join the unit; any error rolls all of them back.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CourseStore persists courses.  Seat changes and field updates are
// conditional writes; see repository.CourseRepo.
type CourseStore interface {
	GetCourse(ctx context.Context, id uint64) (*model.Course, error)
	GetCourseForUpdate(ctx context.Context, id uint64) (*model.Course, error)
	InsertCourse(ctx context.Context, c *model.Course) error
	UpdateCourse(ctx context.Context, c *model.Course) error
	ReserveSeat(ctx context.Context, courseID uint64, at time.Time) error
	ReleaseSeats(ctx context.Context, courseID uint64, n int, at time.Time) error
	SetEnrolledCount(ctx context.Context, courseID uint64, n int, at time.Time) error
	DeleteCourse(ctx context.Context, id uint64) error
	QueryCourses(ctx context.Context, q repository.CourseQuery) ([]model.Course, int64, error)
	ListCourseIDs(ctx context.Context) ([]uint64, error)
}

// EnrollmentStore persists enrollments.
type EnrollmentStore interface {
	GetEnrollment(ctx context.Context, id uint64) (*model.Enrollment, error)
	InsertEnrollment(ctx context.Context, e *model.Enrollment) error
	UpdateEnrollment(ctx context.Context, e *model.Enrollment, prev model.EnrollmentStatus) error
	FindActiveByUserAndCourse(ctx context.Context, userID, courseID uint64) (*model.Enrollment, error)
	CountActiveByCourse(ctx context.Context, courseID uint64) (int, error)
	CountByCourseAndStatus(ctx context.Context, courseID uint64, statuses ...model.EnrollmentStatus) (int, error)
	CancelActiveByCourse(ctx context.Context, courseID uint64, at time.Time) (int, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Enrollment, error)
	ListByCourse(ctx context.Context, courseID uint64) ([]model.Enrollment, error)
	DeleteByCourse(ctx context.Context, courseID uint64) (int, error)
}

// EventPublisher delivers domain events after commit.  A nil publisher
// disables events.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.EnrollmentEvent) error
}

var (
	_ CourseStore     = (*repository.CourseRepo)(nil)
	_ EnrollmentStore = (*repository.EnrollmentRepo)(nil)
	_ TxRunner        = (*repository.TxManager)(nil)
	_ EventPublisher  = (*queue.Publisher)(nil)
)
