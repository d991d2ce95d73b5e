package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

// UserStore persists user accounts.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	ListUsers(ctx context.Context, q repository.UserQuery) ([]model.User, int64, error)
	UpdateProfile(ctx context.Context, id uint64, fullName string, role model.Role, at time.Time) error
	SetActive(ctx context.Context, id uint64, active bool, at time.Time) error
}

// SessionRevoker ends a user's refresh sessions.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

var (
	_ UserStore      = (*repository.UserRepo)(nil)
	_ SessionRevoker = (*repository.TokenRepo)(nil)
)

// UserFilter selects users for List.
type UserFilter struct {
	Search   string
	Role     string
	Page     int
	PageSize int
}

// UserPage is one page of users.
type UserPage struct {
	Items    []model.User
	Total    int64
	Page     int
	PageSize int
}

// UpdateUserInput is a partial update: nil fields keep their value.  Only
// admins may change Role.
type UpdateUserInput struct {
	FullName *string
	Role     *model.Role
}

// UserService manages accounts on behalf of admins.  Users may read and
// rename themselves.
type UserService struct {
	Tx       TxRunner
	Users    UserStore
	Sessions SessionRevoker
	Clock    Clock
	Logger   *log.Logger
}

// NewUserService returns a UserService.  clock may be nil.
func NewUserService(tx TxRunner, users UserStore, sessions SessionRevoker, clock Clock, logger *log.Logger) *UserService {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = log.New("user")
	}
	return &UserService{Tx: tx, Users: users, Sessions: sessions, Clock: clock, Logger: logger}
}

// Get returns the user.  Non-admins may only load themselves.
func (s *UserService) Get(ctx context.Context, actor Actor, id uint64) (*model.User, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if id != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

// List returns one page of users matching f.  Admin only.
func (s *UserService) List(ctx context.Context, actor Actor, f UserFilter) (UserPage, error) {
	if err := actor.authenticated(); err != nil {
		return UserPage{}, err
	}
	if !actor.IsAdmin() {
		return UserPage{}, ErrForbidden
	}
	q := repository.UserQuery{Search: f.Search, Page: f.Page, PageSize: f.PageSize}
	if f.Role != "" {
		role, ok := model.ParseRole(strings.ToUpper(strings.TrimSpace(f.Role)))
		if !ok {
			return UserPage{}, invalid("unknown role %q", f.Role)
		}
		q.Role = role
	}
	q.Page, q.PageSize = clampPage(q.Page, q.PageSize)
	items, total, err := s.Users.ListUsers(ctx, q)
	if err != nil {
		return UserPage{}, storeErr(err)
	}
	return UserPage{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Update applies in to the user.  A user may change their own name; any
// other change needs an admin.
func (s *UserService) Update(ctx context.Context, actor Actor, id uint64, in UpdateUserInput) (*model.User, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && (id != actor.UserID || in.Role != nil) {
		return nil, ErrForbidden
	}
	if in.Role != nil {
		if _, ok := model.ParseRole(string(*in.Role)); !ok {
			return nil, invalid("unknown role %q", *in.Role)
		}
		if id == actor.UserID && *in.Role != model.RoleAdmin {
			return nil, invalid("admins cannot demote themselves")
		}
	}
	if in.FullName != nil {
		if n := utf8.RuneCountInString(strings.TrimSpace(*in.FullName)); n < 2 || n > 255 {
			return nil, invalid("full_name must be 2-255 characters")
		}
	}

	var out *model.User
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.FullName != nil {
			u.FullName = strings.TrimSpace(*in.FullName)
		}
		if in.Role != nil {
			u.Role = *in.Role
		}
		u.UpdatedAt = s.Clock.Now().UTC().Truncate(time.Millisecond)
		if err := s.Users.UpdateProfile(ctx, id, u.FullName, u.Role, u.UpdatedAt); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.Logger.Infof("user %d updated by user %d role=%s", id, actor.UserID, out.Role)
	return out, nil
}

// Deactivate blocks sign-in for the user and revokes every refresh token
// in the same unit of work.  Access tokens already issued stay valid
// until they expire.  Admin only; admins cannot deactivate themselves.
func (s *UserService) Deactivate(ctx context.Context, actor Actor, id uint64) (*model.User, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if id == actor.UserID {
		return nil, invalid("admins cannot deactivate themselves")
	}
	var out *model.User
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.Clock.Now().UTC().Truncate(time.Millisecond)
		if err := s.Users.SetActive(ctx, id, false, now); err != nil {
			return err
		}
		if err := s.Sessions.RevokeAllForUser(ctx, id); err != nil {
			return err
		}
		u, err := s.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.Logger.Infof("user %d deactivated by user %d", id, actor.UserID)
	return out, nil
}

func clampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
