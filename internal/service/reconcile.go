package service

import (
	"context"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// CourseDrift describes a course whose enrolled_count disagreed with its
// seat-holding enrollments.
type CourseDrift struct {
	CourseID uint64 `json:"course_id"`
	Recorded int    `json:"recorded"`
	Actual   int    `json:"actual"`
	Capacity int    `json:"capacity"`
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked      int           `json:"checked"`
	Repaired     []CourseDrift `json:"repaired"`
	Unrepairable []CourseDrift `json:"unrepairable"`
}

// Reconcile recounts the seat holders of every course and rewrites
// enrolled_count where it drifted.  A recount above capacity is never
// written; it is reported so an operator can resolve it.
func (s *EnrollmentService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{Repaired: []CourseDrift{}, Unrepairable: []CourseDrift{}}
	ids, err := s.Courses.ListCourseIDs(ctx)
	if err != nil {
		return report, storeErr(err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		drift, repaired, err := s.ReconcileCourse(ctx, id)
		if err != nil {
			return report, err
		}
		report.Checked++
		switch {
		case drift == nil:
		case repaired:
			report.Repaired = append(report.Repaired, *drift)
		default:
			report.Unrepairable = append(report.Unrepairable, *drift)
		}
	}
	if len(report.Repaired) > 0 || len(report.Unrepairable) > 0 {
		s.Logger.Warnf("reconcile: checked=%d repaired=%d unrepairable=%d",
			report.Checked, len(report.Repaired), len(report.Unrepairable))
	}
	return report, nil
}

// ReconcileCourse recounts one course.  It returns nil when the counter
// matches; otherwise the drift and whether it was repaired.
func (s *EnrollmentService) ReconcileCourse(ctx context.Context, courseID uint64) (*CourseDrift, bool, error) {
	var (
		drift    *CourseDrift
		repaired bool
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		drift, repaired = nil, false
		c, err := s.Courses.GetCourseForUpdate(ctx, courseID)
		if err != nil {
			return err
		}
		actual, err := s.Enrollments.CountByCourseAndStatus(ctx, courseID, s.holderStatuses()...)
		if err != nil {
			return err
		}
		if actual == c.EnrolledCount {
			return nil
		}
		drift = &CourseDrift{CourseID: courseID, Recorded: c.EnrolledCount, Actual: actual, Capacity: c.Capacity}
		if actual > c.Capacity {
			s.Logger.Errorf("course %d holds %d seats over capacity %d; not repaired", courseID, actual, c.Capacity)
			return nil
		}
		if err := s.Courses.SetEnrolledCount(ctx, courseID, actual, s.now()); err != nil {
			return err
		}
		repaired = true
		s.Logger.Warnf("course %d enrolled_count %d -> %d", courseID, c.EnrolledCount, actual)
		return nil
	})
	if err != nil {
		return nil, false, storeErr(err)
	}
	return drift, repaired, nil
}

func (s *EnrollmentService) holderStatuses() []model.EnrollmentStatus {
	out := []model.EnrollmentStatus{model.EnrollmentPending, model.EnrollmentActive}
	if s.Policy.seatHolder(model.EnrollmentCompleted) {
		out = append(out, model.EnrollmentCompleted)
	}
	return out
}
