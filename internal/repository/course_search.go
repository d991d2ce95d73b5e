package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// CourseQuery defines filters & pagination for searching courses.
type CourseQuery struct {
	Search       string
	Status       model.CourseStatus
	InstructorID uint64
	Upcoming     bool
	Now          time.Time
	Page         int
	PageSize     int
}

// likeEscaper makes search text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// QueryCourses returns one page of courses matching q and the total number
// of matches.  Upcoming restricts to PUBLISHED courses starting after
// q.Now and orders them by start date; everything else is newest first.
func (r *CourseRepo) QueryCourses(ctx context.Context, q CourseQuery) ([]model.Course, int64, error) {
	where := []string{}
	args := []any{}

	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, `(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')`)
		like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		args = append(args, like, like)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.InstructorID != 0 {
		where = append(where, "instructor_id = ?")
		args = append(args, q.InstructorID)
	}
	order := "id DESC"
	if q.Upcoming {
		where = append(where, "status = ?", "start_date IS NOT NULL", "start_date > ?")
		args = append(args, string(model.CoursePublished), toMillis(q.Now))
		order = "start_date ASC, id ASC"
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	db := conn(ctx, r.db)
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	if offset < 0 {
		offset = 0
	}
	dataSQL := `SELECT ` + courseColumns + `
		FROM courses
		WHERE ` + cond + `
		ORDER BY ` + order + `
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Course, 0, limit)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
