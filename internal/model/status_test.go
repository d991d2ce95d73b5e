package model

import "testing"

func TestCourseTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to CourseStatus
		want     bool
	}{
		{CourseDraft, CoursePublished, true},
		{CourseDraft, CourseCancelled, true},
		{CourseDraft, CourseCompleted, false},
		{CourseDraft, CourseInProgress, false},
		{CoursePublished, CourseInProgress, true},
		{CoursePublished, CourseCancelled, true},
		{CoursePublished, CourseDraft, false},
		{CourseInProgress, CourseCompleted, true},
		{CourseInProgress, CourseCancelled, false},
		{CourseCompleted, CoursePublished, false},
		{CourseCancelled, CourseDraft, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEnrollmentTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to EnrollmentStatus
		want     bool
	}{
		{EnrollmentPending, EnrollmentActive, true},
		{EnrollmentPending, EnrollmentCancelled, true},
		{EnrollmentPending, EnrollmentRejected, true},
		{EnrollmentPending, EnrollmentCompleted, false},
		{EnrollmentActive, EnrollmentCompleted, true},
		{EnrollmentActive, EnrollmentCancelled, true},
		{EnrollmentActive, EnrollmentRejected, false},
		{EnrollmentCancelled, EnrollmentActive, false},
		{EnrollmentCompleted, EnrollmentCancelled, false},
		{EnrollmentRejected, EnrollmentPending, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEnrollmentTerminalAndSeat(t *testing.T) {
	t.Parallel()

	for _, s := range []EnrollmentStatus{EnrollmentCompleted, EnrollmentCancelled, EnrollmentRejected} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.HoldsSeat() {
			t.Errorf("%s should not hold a seat", s)
		}
	}
	for _, s := range []EnrollmentStatus{EnrollmentPending, EnrollmentActive} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.HoldsSeat() {
			t.Errorf("%s should hold a seat", s)
		}
	}
}

func TestSeatsRemaining(t *testing.T) {
	t.Parallel()

	c := Course{Capacity: 3, EnrolledCount: 1}
	if got := c.SeatsRemaining(); got != 2 {
		t.Fatalf("SeatsRemaining = %d, want 2", got)
	}
	c.EnrolledCount = 3
	if got := c.SeatsRemaining(); got != 0 {
		t.Fatalf("SeatsRemaining = %d, want 0", got)
	}
}

func TestParseStatusAndRole(t *testing.T) {
	t.Parallel()

	if _, ok := ParseCourseStatus("PUBLISHED"); !ok {
		t.Fatal("PUBLISHED should parse")
	}
	if _, ok := ParseCourseStatus("published"); ok {
		t.Fatal("lower-case status should not parse")
	}
	if r, ok := ParseRole("ADMIN"); !ok || r != RoleAdmin {
		t.Fatalf("ParseRole(ADMIN) = %q, %v", r, ok)
	}
	if _, ok := ParseRole("OWNER"); ok {
		t.Fatal("OWNER is not a role")
	}
}
