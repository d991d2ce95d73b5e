package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

const (
	minTitleLen       = 3
	maxTitleLen       = 255
	maxDescriptionLen = 10000
	defaultPageSize   = 20
	maxPageSize       = 100
)

// CreateCourseInput describes a new course.  InstructorID is honoured
// only for admins; instructors always create courses they own.
type CreateCourseInput struct {
	Title        string
	Description  string
	InstructorID uint64
	Capacity     int
	StartDate    *time.Time
	EndDate      *time.Time
}

// UpdateCourseInput is a partial update: nil fields keep their value.
// ClearStartDate and ClearEndDate remove a date.
type UpdateCourseInput struct {
	Title          *string
	Description    *string
	Capacity       *int
	StartDate      *time.Time
	EndDate        *time.Time
	ClearStartDate bool
	ClearEndDate   bool
}

// CourseFilter selects courses for Search.
type CourseFilter struct {
	Search       string
	Status       string
	InstructorID uint64
	Upcoming     bool
	Page         int
	PageSize     int
}

// CoursePage is one page of search results.
type CoursePage struct {
	Items    []model.Course
	Total    int64
	Page     int
	PageSize int
}

// CourseService validates and applies course mutations and status
// transitions.
type CourseService struct {
	Deps
}

// NewCourseService returns a CourseService over d.
func NewCourseService(d Deps) *CourseService {
	return &CourseService{Deps: d.withDefaults("course")}
}

// Create validates in and stores a DRAFT course with no seats taken.
func (s *CourseService) Create(ctx context.Context, actor Actor, in CreateCourseInput) (*model.Course, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if actor.Role != model.RoleInstructor && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	instructorID := actor.UserID
	if in.InstructorID != 0 && in.InstructorID != actor.UserID {
		if !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		instructorID = in.InstructorID
	}

	now := s.now()
	c := &model.Course{
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		InstructorID: instructorID,
		Status:       model.CourseDraft,
		Capacity:     in.Capacity,
		StartDate:    truncate(in.StartDate),
		EndDate:      truncate(in.EndDate),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.validate(c, c.StartDate != nil, c.EndDate != nil, now); err != nil {
		return nil, err
	}

	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.Courses.InsertCourse(ctx, c)
	})
	if err != nil {
		s.Logger.Errorf("create course failed: %v", err)
		return nil, storeErr(err)
	}
	s.Logger.Infof("course %d created by user %d capacity=%d", c.ID, actor.UserID, c.Capacity)
	return c, nil
}

// Get returns the course with the given ID.
func (s *CourseService) Get(ctx context.Context, id uint64) (*model.Course, error) {
	c, err := s.Courses.GetCourse(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return c, nil
}

// Update applies in to the course.  The write is conditional on the
// version that was read, so a seat taken between read and write sends
// the update around again with fresh values instead of shrinking the
// capacity under a new holder.
func (s *CourseService) Update(ctx context.Context, actor Actor, id uint64, in UpdateCourseInput) (*model.Course, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	var out *model.Course
	err := s.optimistic(ctx, func(ctx context.Context) error {
		c, err := s.Courses.GetCourse(ctx, id)
		if err != nil {
			return err
		}
		if !actor.owns(c) {
			return ErrForbidden
		}
		now := s.now()
		next := *c
		if in.Title != nil {
			next.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			next.Description = strings.TrimSpace(*in.Description)
		}
		if in.Capacity != nil {
			next.Capacity = *in.Capacity
		}
		if in.ClearStartDate {
			next.StartDate = nil
		} else if in.StartDate != nil {
			next.StartDate = truncate(in.StartDate)
		}
		if in.ClearEndDate {
			next.EndDate = nil
		} else if in.EndDate != nil {
			next.EndDate = truncate(in.EndDate)
		}
		if err := s.validate(&next, in.StartDate != nil && !in.ClearStartDate, in.EndDate != nil && !in.ClearEndDate, now); err != nil {
			return err
		}
		if next.Capacity < c.EnrolledCount {
			return ErrCapacityBelowEnrollment
		}
		next.UpdatedAt = now
		if err := s.Courses.UpdateCourse(ctx, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Infof("course %d updated by user %d version=%d", id, actor.UserID, out.Version)
	return out, nil
}

// Transition moves the course to status next.  Cancelling a course also
// cancels its PENDING and ACTIVE enrollments and gives their seats back,
// all in the same unit of work.
func (s *CourseService) Transition(ctx context.Context, actor Actor, id uint64, next model.CourseStatus) (*model.Course, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if _, ok := model.ParseCourseStatus(string(next)); !ok {
		return nil, invalid("unknown course status %q", next)
	}
	var (
		out       *model.Course
		from      model.CourseStatus
		cancelled int
	)
	err := s.optimistic(ctx, func(ctx context.Context) error {
		c, err := s.Courses.GetCourse(ctx, id)
		if err != nil {
			return err
		}
		if !actor.owns(c) {
			return ErrForbidden
		}
		if !c.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}
		from = c.Status
		now := s.now()
		c.Status = next
		c.UpdatedAt = now
		if err := s.Courses.UpdateCourse(ctx, c); err != nil {
			return err
		}
		cancelled = 0
		if next == model.CourseCancelled {
			n, err := s.Enrollments.CancelActiveByCourse(ctx, id, now)
			if err != nil {
				return err
			}
			if err := s.Courses.ReleaseSeats(ctx, id, n, now); err != nil {
				return err
			}
			cancelled = n
			if c, err = s.Courses.GetCourse(ctx, id); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Infof("course %d %s -> %s by user %d (cancelled %d enrollments)", id, from, next, actor.UserID, cancelled)
	ev := queue.NewEvent(queue.CourseTransitioned, out.UpdatedAt)
	ev.CourseID, ev.ActorID, ev.Status = out.ID, actor.UserID, string(out.Status)
	ev.EnrolledCount, ev.Capacity = out.EnrolledCount, out.Capacity
	s.publish(ctx, ev)
	return out, nil
}

// Delete removes a course that has no seat holders, together with its
// terminal enrollment history.
func (s *CourseService) Delete(ctx context.Context, actor Actor, id uint64) error {
	if err := actor.authenticated(); err != nil {
		return err
	}
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.Courses.GetCourseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.owns(c) {
			return ErrForbidden
		}
		if c.EnrolledCount > 0 {
			return ErrHasActiveEnrollments
		}
		live, err := s.Enrollments.CountActiveByCourse(ctx, id)
		if err != nil {
			return err
		}
		if live > 0 {
			return ErrHasActiveEnrollments
		}
		if _, err := s.Enrollments.DeleteByCourse(ctx, id); err != nil {
			return err
		}
		return s.Courses.DeleteCourse(ctx, id)
	})
	if err != nil {
		return storeErr(err)
	}
	s.Logger.Infof("course %d deleted by user %d", id, actor.UserID)
	return nil
}

// Search returns one page of courses matching f.
func (s *CourseService) Search(ctx context.Context, f CourseFilter) (CoursePage, error) {
	q := repository.CourseQuery{
		Search:       f.Search,
		InstructorID: f.InstructorID,
		Upcoming:     f.Upcoming,
		Now:          s.now(),
		Page:         f.Page,
		PageSize:     f.PageSize,
	}
	if f.Status != "" {
		st, ok := model.ParseCourseStatus(strings.ToUpper(strings.TrimSpace(f.Status)))
		if !ok {
			return CoursePage{}, invalid("unknown course status %q", f.Status)
		}
		q.Status = st
	}
	q.Page, q.PageSize = clampPage(q.Page, q.PageSize)
	items, total, err := s.Courses.QueryCourses(ctx, q)
	if err != nil {
		return CoursePage{}, storeErr(err)
	}
	return CoursePage{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// validate checks the structural rules of c.  startChanged and
// endChanged mark dates supplied by the caller; only those are held to
// the future-dates rule, so a running course can still be edited.
func (s *CourseService) validate(c *model.Course, startChanged, endChanged bool, now time.Time) error {
	if n := utf8.RuneCountInString(c.Title); n < minTitleLen || n > maxTitleLen {
		return invalid("title must be %d-%d characters", minTitleLen, maxTitleLen)
	}
	if utf8.RuneCountInString(c.Description) > maxDescriptionLen {
		return invalid("description must be at most %d characters", maxDescriptionLen)
	}
	if c.Capacity < 1 || c.Capacity > s.Policy.MaxCapacity {
		return invalid("capacity must be between 1 and %d", s.Policy.MaxCapacity)
	}
	if c.StartDate != nil && c.EndDate != nil && !c.StartDate.Before(*c.EndDate) {
		return invalid("start_date must be before end_date")
	}
	if s.Policy.RequireFutureDates {
		if startChanged && c.StartDate != nil && !c.StartDate.After(now) {
			return invalid("start_date must be in the future")
		}
		if endChanged && c.EndDate != nil && !c.EndDate.After(now) {
			return invalid("end_date must be in the future")
		}
	}
	return nil
}

func truncate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}
