package service

import "github.com/iliyamo/course-enrollment/internal/model"

// Actor is the authenticated caller on whose behalf an operation runs.
// It is produced by the authentication middleware and passed explicitly
// to every service call.
type Actor struct {
	UserID uint64
	Role   model.Role
}

// IsAdmin reports whether the actor has the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

func (a Actor) authenticated() error {
	if a.UserID == 0 {
		return ErrUnauthenticated
	}
	if _, ok := model.ParseRole(string(a.Role)); !ok {
		return ErrUnauthenticated
	}
	return nil
}

// owns reports whether the actor may manage c: its instructor or an admin.
func (a Actor) owns(c *model.Course) bool {
	return a.IsAdmin() || c.IsOwnedBy(a.UserID)
}
