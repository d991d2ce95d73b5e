package service

import (
	"context"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/queue"
)

// EnrollmentService is the only writer of live enrollments.  It keeps a
// course's enrolled_count in lockstep with the enrollments holding its
// seats: every status change that takes or frees a seat commits together
// with the matching counter change.
type EnrollmentService struct {
	Deps
}

// NewEnrollmentService returns an EnrollmentService over d.
func NewEnrollmentService(d Deps) *EnrollmentService {
	return &EnrollmentService{Deps: d.withDefaults("enrollment")}
}

// Enroll reserves a seat in the course for userID.  A zero userID means
// the actor.  The seat is taken by one conditional update, so of N
// concurrent calls for M remaining seats exactly M succeed and the rest
// fail with ErrCapacityExceeded.
func (s *EnrollmentService) Enroll(ctx context.Context, actor Actor, userID, courseID uint64) (*model.Enrollment, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if userID == 0 {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var (
		e *model.Enrollment
		c *model.Course
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.Courses.GetCourse(ctx, courseID); err != nil {
			return err
		}
		now := s.now()
		if c.Status != model.CoursePublished {
			return ErrEnrollmentClosed
		}
		if c.StartDate != nil && !c.StartDate.After(now) && !s.Policy.AllowLateEnrollment {
			return ErrEnrollmentClosed
		}
		existing, err := s.Enrollments.FindActiveByUserAndCourse(ctx, userID, courseID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateActiveEnrollment
		}
		if err := s.Courses.ReserveSeat(ctx, courseID, now); err != nil {
			return err
		}
		status := model.EnrollmentPending
		if s.Policy.AutoActivate {
			status = model.EnrollmentActive
		}
		e = &model.Enrollment{
			UserID:         userID,
			CourseID:       courseID,
			Status:         status,
			EnrollmentDate: now,
			UpdatedAt:      now,
		}
		if err := s.Enrollments.InsertEnrollment(ctx, e); err != nil {
			return err
		}
		c.EnrolledCount++
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.Logger.Infof("enrollment %d: user %d took a seat in course %d (%d/%d)", e.ID, userID, courseID, c.EnrolledCount, c.Capacity)
	s.emit(ctx, queue.EnrollmentCreated, actor, e, c)
	return e, nil
}

// Activate moves a PENDING enrollment to ACTIVE.  The seat is already
// held, so the count does not change.
func (s *EnrollmentService) Activate(ctx context.Context, actor Actor, enrollmentID uint64) (*model.Enrollment, error) {
	return s.transition(ctx, actor, enrollmentID, model.EnrollmentActive, queue.EnrollmentActivated, courseManager, nil)
}

// Reject moves a PENDING enrollment to REJECTED and frees its seat.
func (s *EnrollmentService) Reject(ctx context.Context, actor Actor, enrollmentID uint64) (*model.Enrollment, error) {
	return s.transition(ctx, actor, enrollmentID, model.EnrollmentRejected, queue.EnrollmentRejected, courseManager, nil)
}

// Cancel moves a PENDING or ACTIVE enrollment to CANCELLED and frees its
// seat.  Cancelling a terminal enrollment fails with ErrInvalidTransition
// and changes nothing.
func (s *EnrollmentService) Cancel(ctx context.Context, actor Actor, enrollmentID uint64) (*model.Enrollment, error) {
	return s.transition(ctx, actor, enrollmentID, model.EnrollmentCancelled, queue.EnrollmentCancelled, holder, nil)
}

// Complete moves an ACTIVE enrollment to COMPLETED once the completion
// policy allows it.  override asks the policy to skip the progress
// requirement.  The seat is freed only when the policy says so.
func (s *EnrollmentService) Complete(ctx context.Context, actor Actor, enrollmentID uint64, override bool) (*model.Enrollment, error) {
	return s.transition(ctx, actor, enrollmentID, model.EnrollmentCompleted, queue.EnrollmentCompleted, participant,
		func(e *model.Enrollment) error {
			if err := s.Policy.Completion(actor, e, override); err != nil {
				return err
			}
			at := s.now()
			e.CompletedDate = &at
			return nil
		})
}

// UpdateProgress records progress for an ACTIVE enrollment.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, actor Actor, enrollmentID uint64, progress int) (*model.Enrollment, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if progress < 0 || progress > 100 {
		return nil, invalid("progress must be between 0 and 100")
	}
	var out *model.Enrollment
	err := s.optimistic(ctx, func(ctx context.Context) error {
		e, c, err := s.load(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if !participant(actor, e, c) {
			return ErrForbidden
		}
		if e.Status != model.EnrollmentActive {
			return ErrInvalidTransition
		}
		e.Progress = progress
		e.UpdatedAt = s.now()
		if err := s.Enrollments.UpdateEnrollment(ctx, e, model.EnrollmentActive); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns an enrollment visible to actor.
func (s *EnrollmentService) Get(ctx context.Context, actor Actor, enrollmentID uint64) (*model.Enrollment, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	e, c, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !participant(actor, e, c) {
		return nil, ErrForbidden
	}
	return e, nil
}

// ListForUser returns the user's enrollments.  Users see their own;
// admins see anyone's.
func (s *EnrollmentService) ListForUser(ctx context.Context, actor Actor, userID uint64) ([]model.Enrollment, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if userID == 0 {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	list, err := s.Enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

// ListForCourse returns the course roster to its instructor or an admin.
func (s *EnrollmentService) ListForCourse(ctx context.Context, actor Actor, courseID uint64) ([]model.Enrollment, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	c, err := s.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !actor.owns(c) {
		return nil, ErrForbidden
	}
	list, err := s.Enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

type authorizer func(actor Actor, e *model.Enrollment, c *model.Course) bool

// courseManager allows the course's instructor and admins.
func courseManager(actor Actor, _ *model.Enrollment, c *model.Course) bool {
	return actor.owns(c)
}

// holder allows the enrolled user and admins.
func holder(actor Actor, e *model.Enrollment, _ *model.Course) bool {
	return e.UserID == actor.UserID || actor.IsAdmin()
}

// participant also allows the course's instructor.
func participant(actor Actor, e *model.Enrollment, c *model.Course) bool {
	return e.UserID == actor.UserID || actor.owns(c)
}

// transition applies one status change.  The enrollment write is
// conditional on the status that was read, so two racing transitions
// cannot both apply; the loser re-reads and is judged against the new
// status.  A seat is released in the same unit when the enrollment stops
// holding one.
func (s *EnrollmentService) transition(
	ctx context.Context,
	actor Actor,
	enrollmentID uint64,
	next model.EnrollmentStatus,
	eventType string,
	allowed authorizer,
	gate func(e *model.Enrollment) error,
) (*model.Enrollment, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	var (
		out    *model.Enrollment
		course *model.Course
		prev   model.EnrollmentStatus
	)
	err := s.optimistic(ctx, func(ctx context.Context) error {
		e, c, err := s.load(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if !allowed(actor, e, c) {
			return ErrForbidden
		}
		if !e.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}
		if gate != nil {
			if err := gate(e); err != nil {
				return err
			}
		}
		prev = e.Status
		now := s.now()
		e.Status = next
		e.UpdatedAt = now
		if err := s.Enrollments.UpdateEnrollment(ctx, e, prev); err != nil {
			return err
		}
		if s.Policy.seatHolder(prev) && !s.Policy.seatHolder(next) {
			if err := s.Courses.ReleaseSeats(ctx, c.ID, 1, now); err != nil {
				return err
			}
			c.EnrolledCount--
		}
		out, course = e, c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Infof("enrollment %d %s -> %s by user %d (course %d %d/%d)",
		out.ID, prev, next, actor.UserID, course.ID, course.EnrolledCount, course.Capacity)
	s.emit(ctx, eventType, actor, out, course)
	return out, nil
}

func (s *EnrollmentService) load(ctx context.Context, enrollmentID uint64) (*model.Enrollment, *model.Course, error) {
	e, err := s.Enrollments.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.Courses.GetCourse(ctx, e.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return e, c, nil
}

func (s *EnrollmentService) emit(ctx context.Context, typ string, actor Actor, e *model.Enrollment, c *model.Course) {
	ev := queue.NewEvent(typ, e.UpdatedAt)
	ev.EnrollmentID, ev.CourseID, ev.UserID, ev.ActorID = e.ID, c.ID, e.UserID, actor.UserID
	ev.Status = string(e.Status)
	ev.EnrolledCount, ev.Capacity = c.EnrolledCount, c.Capacity
	s.publish(ctx, ev)
}
