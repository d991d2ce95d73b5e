package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
)

const enrollmentColumns = `id, user_id, course_id, status, progress, enrollment_date, completed_date, updated_at`

// EnrollmentRepo manages persistence for enrollments.  The active_user_id
// column mirrors user_id while the enrollment holds a seat (PENDING or
// ACTIVE) and is NULL otherwise; the unique key on (course_id,
// active_user_id) keeps a user to one live enrollment per course.
type EnrollmentRepo struct {
	db *sql.DB
}

// NewEnrollmentRepo constructs an EnrollmentRepo with the given DB handle.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

func scanEnrollment(row rowScanner) (*model.Enrollment, error) {
	var (
		e                   model.Enrollment
		status              string
		enrolledAt, updated int64
		completed           sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &status, &e.Progress, &enrolledAt, &completed, &updated); err != nil {
		return nil, err
	}
	e.Status = model.EnrollmentStatus(status)
	e.EnrollmentDate = fromMillis(enrolledAt)
	e.CompletedDate = timePtr(completed)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}

func activeUser(e *model.Enrollment) sql.NullInt64 {
	if !e.Status.HoldsSeat() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(e.UserID), Valid: true}
}

// GetEnrollment retrieves an enrollment by ID or returns
// ErrEnrollmentNotFound.
func (r *EnrollmentRepo) GetEnrollment(ctx context.Context, id uint64) (*model.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = ?`
	e, err := scanEnrollment(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}
	return e, nil
}

// InsertEnrollment stores e and assigns the generated ID.  A second live
// enrollment for the same user and course returns ErrDuplicateActive.
// Callers load the course first, so a missing reference is the user and
// returns ErrUserNotFound.
func (r *EnrollmentRepo) InsertEnrollment(ctx context.Context, e *model.Enrollment) error {
	const q = `INSERT INTO enrollments (user_id, course_id, status, progress, enrollment_date, completed_date, active_user_id, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		e.UserID, e.CourseID, string(e.Status), e.Progress,
		toMillis(e.EnrollmentDate), nullMillis(e.CompletedDate), activeUser(e), toMillis(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActive
		}
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// UpdateEnrollment writes status, progress and completed date of e, but
// only while the row is still in status prev.  If another writer moved it
// first the call returns ErrStaleVersion and changes nothing.
func (r *EnrollmentRepo) UpdateEnrollment(ctx context.Context, e *model.Enrollment, prev model.EnrollmentStatus) error {
	const q = `UPDATE enrollments
               SET status = ?, progress = ?, completed_date = ?, active_user_id = ?, updated_at = ?
               WHERE id = ? AND status = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		string(e.Status), e.Progress, nullMillis(e.CompletedDate), activeUser(e), toMillis(e.UpdatedAt),
		e.ID, string(prev),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActive
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.GetEnrollment(ctx, e.ID); err != nil {
		return err
	}
	return ErrStaleVersion
}

// FindActiveByUserAndCourse returns the user's PENDING or ACTIVE
// enrollment in the course, or nil when there is none.
func (r *EnrollmentRepo) FindActiveByUserAndCourse(ctx context.Context, userID, courseID uint64) (*model.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE course_id = ? AND active_user_id = ? LIMIT 1`
	e, err := scanEnrollment(conn(ctx, r.db).QueryRowContext(ctx, q, courseID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// CountActiveByCourse counts the course's PENDING and ACTIVE enrollments.
func (r *EnrollmentRepo) CountActiveByCourse(ctx context.Context, courseID uint64) (int, error) {
	return r.CountByCourseAndStatus(ctx, courseID, model.EnrollmentPending, model.EnrollmentActive)
}

// CountByCourseAndStatus counts the course's enrollments in any of the
// given statuses.
func (r *EnrollmentRepo) CountByCourseAndStatus(ctx context.Context, courseID uint64, statuses ...model.EnrollmentStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	in, args := statusIn(statuses)
	args = append([]any{courseID}, args...)
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = ? AND status IN (`+in+`)`, args...,
	).Scan(&n)
	return n, err
}

// CancelActiveByCourse moves every PENDING or ACTIVE enrollment of the
// course to CANCELLED and returns how many rows changed.
func (r *EnrollmentRepo) CancelActiveByCourse(ctx context.Context, courseID uint64, at time.Time) (int, error) {
	const q = `UPDATE enrollments
               SET status = ?, active_user_id = NULL, updated_at = ?
               WHERE course_id = ? AND status IN (?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		string(model.EnrollmentCancelled), toMillis(at), courseID,
		string(model.EnrollmentPending), string(model.EnrollmentActive),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListByUser returns the user's enrollments, newest first.
func (r *EnrollmentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Enrollment, error) {
	return r.list(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ListByCourse returns the course's enrollments, oldest first.
func (r *EnrollmentRepo) ListByCourse(ctx context.Context, courseID uint64) ([]model.Enrollment, error) {
	return r.list(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE course_id = ? ORDER BY id ASC`, courseID)
}

// DeleteByCourse removes the course's enrollments that no longer hold a
// seat and returns how many were removed.
func (r *EnrollmentRepo) DeleteByCourse(ctx context.Context, courseID uint64) (int, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM enrollments WHERE course_id = ? AND active_user_id IS NULL`, courseID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *EnrollmentRepo) list(ctx context.Context, q string, args ...any) ([]model.Enrollment, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func statusIn(statuses []model.EnrollmentStatus) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args[i] = string(s)
	}
	return strings.Join(marks, ", "), args
}
