package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/utils"
)

const userColumns = `id, email, full_name, password_hash, role, is_active, created_at, updated_at`

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, fullName, password string, role model.Role, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	now := toMillis(time.Now())
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO users (email, full_name, password_hash, role, is_active, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		email, strings.TrimSpace(fullName), hash, string(role), true, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// EnsureAdmin creates an ADMIN account for email unless a user with that
// email already exists.  It reports whether a row was created.
func (r *UserRepo) EnsureAdmin(ctx context.Context, email, password string, cost int) (bool, error) {
	if _, err := r.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}
	if _, err := r.Create(ctx, email, "Administrator", password, model.RoleAdmin, cost); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	u, err := scanUser(conn(ctx, r.DB).QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// UserQuery selects users for ListUsers.  Search matches email or full
// name; an empty Role matches every role.
type UserQuery struct {
	Search   string
	Role     model.Role
	Page     int
	PageSize int
}

// ListUsers returns one page of users matching q, oldest first, and the
// total number of matches.
func (r *UserRepo) ListUsers(ctx context.Context, q UserQuery) ([]model.User, int64, error) {
	where := []string{}
	args := []any{}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, `(LOWER(email) LIKE ? ESCAPE '!' OR LOWER(full_name) LIKE ? ESCAPE '!')`)
		like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		args = append(args, like, like)
	}
	if q.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(q.Role))
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	db := conn(ctx, r.DB)
	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (q.Page - 1) * q.PageSize
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+cond+" ORDER BY id ASC LIMIT ? OFFSET ?",
		append(args, q.PageSize, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.User, 0, q.PageSize)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateProfile overwrites the user's full name and role.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, fullName string, role model.Role, at time.Time) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET full_name=?, role=?, updated_at=? WHERE id=?",
		strings.TrimSpace(fullName), string(role), toMillis(at), id)
	return r.touched(ctx, res, err, id)
}

// SetActive enables or disables sign-in for the user.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool, at time.Time) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET is_active=?, updated_at=? WHERE id=?", active, toMillis(at), id)
	return r.touched(ctx, res, err, id)
}

// touched turns an update that matched no row into ErrUserNotFound.  MySQL
// reports unchanged rows as unaffected, so a zero count is confirmed with
// a read.
func (r *UserRepo) touched(ctx context.Context, res sql.Result, err error, id uint64) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.GetByID(ctx, id)
	return err
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                    model.User
		role                 string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &role, &u.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}
