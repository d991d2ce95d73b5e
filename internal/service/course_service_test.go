package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func TestCreateGetRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)
	start := epoch.Add(48*time.Hour + 123456789*time.Nanosecond)
	end := start.Add(30 * 24 * time.Hour)

	created, err := h.courses.Create(ctx, owner, CreateCourseInput{
		Title:       "  Compilers  ",
		Description: "Parsing and code generation",
		Capacity:    40,
		StartDate:   &start,
		EndDate:     &end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != model.CourseDraft || created.EnrolledCount != 0 || created.Version != 1 {
		t.Fatalf("created = %+v", created)
	}
	if created.InstructorID != owner.UserID || created.Title != "Compilers" {
		t.Fatalf("created = %+v", created)
	}

	got, err := h.courses.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != created.Title || got.Description != created.Description ||
		got.Capacity != created.Capacity || got.Status != created.Status ||
		got.InstructorID != created.InstructorID || got.Version != created.Version ||
		!got.StartDate.Equal(*created.StartDate) || !got.EndDate.Equal(*created.EndDate) ||
		!got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("get = %+v, want %+v", got, created)
	}
	if _, err := h.courses.Get(ctx, 777); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)
	past := epoch.Add(-time.Hour)
	soon := epoch.Add(time.Hour)
	later := epoch.Add(2 * time.Hour)

	tests := []struct {
		name string
		in   CreateCourseInput
	}{
		{"short title", CreateCourseInput{Title: "ab", Capacity: 1}},
		{"long title", CreateCourseInput{Title: strings.Repeat("x", 256), Capacity: 1}},
		{"long description", CreateCourseInput{Title: "abc", Description: strings.Repeat("d", 10001), Capacity: 1}},
		{"zero capacity", CreateCourseInput{Title: "abc", Capacity: 0}},
		{"capacity above max", CreateCourseInput{Title: "abc", Capacity: 1001}},
		{"start after end", CreateCourseInput{Title: "abc", Capacity: 1, StartDate: &later, EndDate: &soon}},
		{"start equals end", CreateCourseInput{Title: "abc", Capacity: 1, StartDate: &soon, EndDate: &soon}},
		{"start in past", CreateCourseInput{Title: "abc", Capacity: 1, StartDate: &past}},
	}
	for _, tt := range tests {
		if _, err := h.courses.Create(ctx, owner, tt.in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", tt.name, err)
		}
	}
}

func TestCreatePastDatesAllowedWhenPolicyOff(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(p *Policy) { p.RequireFutureDates = false })
	past := epoch.Add(-time.Hour)
	if _, err := h.courses.Create(context.Background(), h.actor(t, model.RoleInstructor),
		CreateCourseInput{Title: "History", Capacity: 3, StartDate: &past}); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestCreateAuthorization(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	instructor := h.actor(t, model.RoleInstructor)
	other := h.actor(t, model.RoleInstructor)
	admin := h.actor(t, model.RoleAdmin)

	if _, err := h.courses.Create(ctx, h.actor(t, model.RoleStudent), CreateCourseInput{Title: "abc", Capacity: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("student err = %v, want ErrForbidden", err)
	}
	if _, err := h.courses.Create(ctx, instructor, CreateCourseInput{Title: "abc", Capacity: 1, InstructorID: other.UserID}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign instructor err = %v, want ErrForbidden", err)
	}
	c, err := h.courses.Create(ctx, admin, CreateCourseInput{Title: "abc", Capacity: 1, InstructorID: other.UserID})
	if err != nil || c.InstructorID != other.UserID {
		t.Fatalf("admin create = %+v, %v", c, err)
	}
}

func TestUpdateCapacityBoundary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)
	course := h.publishedCourse(t, owner, 5)
	for i := 0; i < 3; i++ {
		if _, err := h.enrollments.Enroll(ctx, h.actor(t, model.RoleStudent), 0, course.ID); err != nil {
			t.Fatalf("enroll %d: %v", i, err)
		}
	}

	if _, err := h.courses.Update(ctx, owner, course.ID, UpdateCourseInput{Capacity: ptr(2)}); !errors.Is(err, ErrCapacityBelowEnrollment) {
		t.Fatalf("capacity 2 err = %v, want ErrCapacityBelowEnrollment", err)
	}
	got, err := h.courses.Update(ctx, owner, course.ID, UpdateCourseInput{Capacity: ptr(3)})
	if err != nil {
		t.Fatalf("capacity 3: %v", err)
	}
	if got.Capacity != 3 || got.EnrolledCount != 3 || got.Title != course.Title {
		t.Fatalf("updated = %+v", got)
	}
	if _, err := h.enrollments.Enroll(ctx, h.actor(t, model.RoleStudent), 0, course.ID); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("enroll after shrink err = %v, want ErrCapacityExceeded", err)
	}
}

func TestUpdatePartialAndAuthorization(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)
	course := h.publishedCourse(t, owner, 5)

	if _, err := h.courses.Update(ctx, h.actor(t, model.RoleInstructor), course.ID, UpdateCourseInput{Title: ptr("Stolen")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other instructor err = %v, want ErrForbidden", err)
	}
	got, err := h.courses.Update(ctx, h.actor(t, model.RoleAdmin), course.ID, UpdateCourseInput{Description: ptr("Updated")})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if got.Description != "Updated" || got.Title != course.Title || got.Capacity != course.Capacity {
		t.Fatalf("partial update = %+v", got)
	}
	if got.StartDate == nil || !got.StartDate.Equal(*course.StartDate) {
		t.Fatalf("start date changed: %v", got.StartDate)
	}

	early := course.StartDate.Add(-time.Hour)
	end := early.Add(-time.Minute)
	if _, err := h.courses.Update(ctx, owner, course.ID, UpdateCourseInput{EndDate: &end}); !errors.Is(err, ErrValidation) {
		t.Fatalf("end before start err = %v, want ErrValidation", err)
	}
	got, err = h.courses.Update(ctx, owner, course.ID, UpdateCourseInput{ClearStartDate: true, EndDate: &end})
	if err != nil || got.StartDate != nil {
		t.Fatalf("clear start = %+v, %v", got, err)
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)

	c, err := h.courses.Create(ctx, owner, CreateCourseInput{Title: "Networks", Capacity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.courses.Transition(ctx, owner, c.ID, model.CourseCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("DRAFT->COMPLETED err = %v, want ErrInvalidTransition", err)
	}
	if _, err := h.courses.Transition(ctx, owner, c.ID, "ARCHIVED"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status err = %v, want ErrValidation", err)
	}
	if _, err := h.courses.Transition(ctx, h.actor(t, model.RoleInstructor), c.ID, model.CoursePublished); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner err = %v, want ErrForbidden", err)
	}
	for _, next := range []model.CourseStatus{model.CoursePublished, model.CourseInProgress, model.CourseCompleted} {
		got, err := h.courses.Transition(ctx, owner, c.ID, next)
		if err != nil {
			t.Fatalf("-> %s: %v", next, err)
		}
		if got.Status != next {
			t.Fatalf("status = %s, want %s", got.Status, next)
		}
	}
	if _, err := h.courses.Transition(ctx, owner, c.ID, model.CourseCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("COMPLETED->CANCELLED err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelCourseCascades(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)
	course := h.publishedCourse(t, owner, 5)
	var ids []uint64
	for i := 0; i < 3; i++ {
		e, err := h.enrollments.Enroll(ctx, h.actor(t, model.RoleStudent), 0, course.ID)
		if err != nil {
			t.Fatalf("enroll: %v", err)
		}
		ids = append(ids, e.ID)
	}

	got, err := h.courses.Transition(ctx, owner, course.ID, model.CourseCancelled)
	if err != nil {
		t.Fatalf("cancel course: %v", err)
	}
	if got.Status != model.CourseCancelled || got.EnrolledCount != 0 {
		t.Fatalf("cancelled course = %+v", got)
	}
	for _, id := range ids {
		e, err := h.enrollments.Get(ctx, owner, id)
		if err != nil || e.Status != model.EnrollmentCancelled {
			t.Fatalf("enrollment %d = %+v, %v", id, e, err)
		}
	}
	if _, err := h.enrollments.Enroll(ctx, h.actor(t, model.RoleStudent), 0, course.ID); !errors.Is(err, ErrEnrollmentClosed) {
		t.Fatalf("enroll cancelled err = %v, want ErrEnrollmentClosed", err)
	}
}

func TestDeleteCourse(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)
	student := h.actor(t, model.RoleStudent)
	course := h.publishedCourse(t, owner, 2)

	e, err := h.enrollments.Enroll(ctx, student, 0, course.ID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := h.courses.Delete(ctx, owner, course.ID); !errors.Is(err, ErrHasActiveEnrollments) {
		t.Fatalf("delete with holder err = %v, want ErrHasActiveEnrollments", err)
	}
	if err := h.courses.Delete(ctx, h.actor(t, model.RoleInstructor), course.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner delete err = %v, want ErrForbidden", err)
	}
	if _, err := h.enrollments.Cancel(ctx, student, e.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := h.courses.Delete(ctx, owner, course.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.courses.Get(ctx, course.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted err = %v, want ErrNotFound", err)
	}
	if err := h.courses.Delete(ctx, owner, course.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := h.actor(t, model.RoleInstructor)
	h.publishedCourse(t, owner, 2)
	if _, err := h.courses.Create(ctx, owner, CreateCourseInput{Title: "Databases", Capacity: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	page, err := h.courses.Search(ctx, CourseFilter{Upcoming: true})
	if err != nil || page.Total != 1 || page.Items[0].Title != "Operating Systems" {
		t.Fatalf("upcoming = %+v, %v", page, err)
	}
	if page.Page != 1 || page.PageSize != defaultPageSize {
		t.Fatalf("paging = %d/%d", page.Page, page.PageSize)
	}
	page, err = h.courses.Search(ctx, CourseFilter{Status: "draft", PageSize: 500})
	if err != nil || page.Total != 1 || page.PageSize != maxPageSize {
		t.Fatalf("draft = %+v, %v", page, err)
	}
	if _, err := h.courses.Search(ctx, CourseFilter{Status: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad status err = %v, want ErrValidation", err)
	}
}

// staleCourses loses every version race.
type staleCourses struct {
	*repository.CourseRepo
	calls int
}

func (s *staleCourses) UpdateCourse(context.Context, *model.Course) error {
	s.calls++
	return repository.ErrStaleVersion
}

func TestUpdateGivesUpAfterBoundedRetries(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(p *Policy) { p.OptimisticRetries = 3 })
	owner := h.actor(t, model.RoleInstructor)
	course := h.publishedCourse(t, owner, 2)

	stale := &staleCourses{CourseRepo: h.courseRepo}
	d := h.deps
	d.Courses = stale
	d.Policy.OptimisticRetries = 3
	svc := NewCourseService(d)

	_, err := svc.Update(context.Background(), owner, course.ID, UpdateCourseInput{Title: ptr("Renamed")})
	if !errors.Is(err, ErrConcurrentModification) || !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
	if stale.calls != 3 {
		t.Fatalf("attempts = %d, want 3", stale.calls)
	}
}
