package repository

// Every write to a course row is conditional: seat changes are guarded by
// the enrolled_count/capacity predicate and field edits by the version
// column, so concurrent writers can never overbook a course or lose an
// update.

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/course-enrollment/internal/database"
	"github.com/iliyamo/course-enrollment/internal/model"
)

const courseColumns = `id, title, description, instructor_id, status, capacity, enrolled_count,
                       start_date, end_date, version, created_at, updated_at`

// CourseRepo manages persistence for courses.
type CourseRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewCourseRepo constructs a CourseRepo with the given DB handle.
func NewCourseRepo(db *sql.DB, dialect database.Dialect) *CourseRepo {
	return &CourseRepo{db: db, dialect: dialect}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*model.Course, error) {
	var (
		c                    model.Course
		status               string
		start, end           sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.InstructorID, &status, &c.Capacity, &c.EnrolledCount,
		&start, &end, &c.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = model.CourseStatus(status)
	c.StartDate = timePtr(start)
	c.EndDate = timePtr(end)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// GetCourse retrieves a course by its ID.  It returns ErrCourseNotFound if
// there is no matching row.
func (r *CourseRepo) GetCourse(ctx context.Context, id uint64) (*model.Course, error) {
	return r.get(ctx, id, "")
}

// GetCourseForUpdate is GetCourse with a row lock held until the enclosing
// transaction ends.  On MySQL this also turns the read into a current
// read, so it observes rows committed after the transaction started.
func (r *CourseRepo) GetCourseForUpdate(ctx context.Context, id uint64) (*model.Course, error) {
	return r.get(ctx, id, lockSuffix(r.dialect))
}

func (r *CourseRepo) get(ctx context.Context, id uint64, suffix string) (*model.Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses WHERE id = ?` + suffix
	c, err := scanCourse(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return c, nil
}

// InsertCourse inserts a new course and assigns the generated ID back to
// the struct.  Version starts at 1.  An unknown instructor returns
// ErrUserNotFound.
func (r *CourseRepo) InsertCourse(ctx context.Context, c *model.Course) error {
	const q = `INSERT INTO courses (title, description, instructor_id, status, capacity, enrolled_count,
                                    start_date, end_date, version, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		c.Title, c.Description, c.InstructorID, string(c.Status), c.Capacity, c.EnrolledCount,
		nullMillis(c.StartDate), nullMillis(c.EndDate), toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.Version = 1
	return nil
}

// UpdateCourse writes the editable fields of c provided the row still has
// version c.Version and the new capacity still covers enrolled_count.  On
// success c.Version is advanced.  A mismatch returns ErrStaleVersion; the
// caller re-reads and decides again.
func (r *CourseRepo) UpdateCourse(ctx context.Context, c *model.Course) error {
	const q = `UPDATE courses
               SET title = ?, description = ?, status = ?, capacity = ?, start_date = ?, end_date = ?,
                   version = version + 1, updated_at = ?
               WHERE id = ? AND version = ? AND enrolled_count <= ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		c.Title, c.Description, string(c.Status), c.Capacity, nullMillis(c.StartDate), nullMillis(c.EndDate),
		toMillis(c.UpdatedAt),
		c.ID, c.Version, c.Capacity,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		c.Version++
		return nil
	}
	if _, err := r.get(ctx, c.ID, ""); err != nil {
		return err
	}
	return ErrStaleVersion
}

// ReserveSeat atomically takes one seat: the increment only applies while
// the course is PUBLISHED and enrolled_count < capacity.  Concurrent
// callers serialize on the row, and each re-evaluates the predicate
// against the latest committed count, so no two callers can take the
// same seat.  When nothing matched, the row is re-read under lock to tell
// ErrCourseNotOpen from ErrNoSeats.
func (r *CourseRepo) ReserveSeat(ctx context.Context, courseID uint64, at time.Time) error {
	const q = `UPDATE courses
               SET enrolled_count = enrolled_count + 1, version = version + 1, updated_at = ?
               WHERE id = ? AND status = ? AND enrolled_count < capacity`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, toMillis(at), courseID, string(model.CoursePublished))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	c, err := r.GetCourseForUpdate(ctx, courseID)
	if err != nil {
		return err
	}
	if c.Status != model.CoursePublished {
		return ErrCourseNotOpen
	}
	return ErrNoSeats
}

// ReleaseSeats gives back n seats.  It refuses to take enrolled_count
// below zero and returns ErrSeatUnderflow instead.
func (r *CourseRepo) ReleaseSeats(ctx context.Context, courseID uint64, n int, at time.Time) error {
	if n <= 0 {
		return nil
	}
	const q = `UPDATE courses
               SET enrolled_count = enrolled_count - ?, version = version + 1, updated_at = ?
               WHERE id = ? AND enrolled_count >= ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, n, toMillis(at), courseID, n)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 1 {
		return nil
	}
	if _, err := r.get(ctx, courseID, ""); err != nil {
		return err
	}
	return ErrSeatUnderflow
}

// SetEnrolledCount overwrites enrolled_count.  It exists for invariant
// repair only and refuses values above capacity with ErrNoSeats.
func (r *CourseRepo) SetEnrolledCount(ctx context.Context, courseID uint64, n int, at time.Time) error {
	const q = `UPDATE courses
               SET enrolled_count = ?, version = version + 1, updated_at = ?
               WHERE id = ? AND capacity >= ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, n, toMillis(at), courseID, n)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 1 {
		return nil
	}
	if _, err := r.get(ctx, courseID, ""); err != nil {
		return err
	}
	return ErrNoSeats
}

// DeleteCourse removes a course whose enrolled_count is zero.  Dependent
// enrollment rows must already be gone; callers do both in one
// transaction.
func (r *CourseRepo) DeleteCourse(ctx context.Context, id uint64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM courses WHERE id = ? AND enrolled_count = 0`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.get(ctx, id, ""); err != nil {
		return err
	}
	return ErrHasHolders
}

// ListCourseIDs returns every course ID in ascending order.
func (r *CourseRepo) ListCourseIDs(ctx context.Context) ([]uint64, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT id FROM courses ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
