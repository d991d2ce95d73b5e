package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Identity returns the user ID and role JWTAuth stored on c.  ok is false
// for unauthenticated requests.
func Identity(c echo.Context) (userID uint64, role model.Role, ok bool) {
	userID, _ = c.Get(ctxUserID).(uint64)
	role, _ = c.Get(ctxRole).(model.Role)
	return userID, role, userID != 0 && role != ""
}

// currentUserID returns the caller's ID as a string, or "anon".
func currentUserID(c echo.Context) string {
	if uid, _, ok := Identity(c); ok {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
