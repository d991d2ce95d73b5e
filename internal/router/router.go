// Package router registers the HTTP routes and their middleware chains.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/handler"
	"github.com/iliyamo/course-enrollment/internal/middleware"
	"github.com/iliyamo/course-enrollment/internal/model"
)

// Deps carries the handlers and the middleware that wrap them.  Cache and
// RateLimit may be nil, in which case those routes are served directly.
type Deps struct {
	JWTSecret   string
	Health      echo.HandlerFunc
	Auth        *handler.AuthHandler
	Courses     *handler.CourseHandler
	Enrollments *handler.EnrollmentHandler
	Admin       *handler.AdminHandler
	Users       *handler.UserHandler
	Cache       echo.MiddlewareFunc
	RateLimit   echo.MiddlewareFunc
}

// RegisterRoutes registers unauthenticated operational routes.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health)
}

// RegisterAuth registers the session routes under /v1/auth and the
// protected profile route.  Logout does not require an access token; a
// refresh token in the body is enough.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth")
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/refresh-access", d.Auth.RefreshAccess)
	g.POST("/logout", d.Auth.Logout)

	e.GET("/v1/me", d.Auth.Me, middleware.JWTAuth(d.JWTSecret))
	e.PATCH("/v1/me", d.Users.UpdateMe, middleware.JWTAuth(d.JWTSecret))
}

// RegisterCourses registers the public catalogue and the instructor
// routes for managing courses.
func RegisterCourses(e *echo.Echo, d Deps) {
	e.GET("/v1/courses", d.Courses.List, optional(d.Cache)...)
	e.GET("/v1/courses/:id", d.Courses.Get)

	g := e.Group("/v1/courses",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleInstructor, model.RoleAdmin),
	)
	g.POST("", d.Courses.Create)
	g.PATCH("/:id", d.Courses.Update)
	g.POST("/:id/status", d.Courses.Transition)
	g.DELETE("/:id", d.Courses.Delete)
}

// RegisterEnrollments registers enrollment routes.  Any authenticated role
// may call them; the service decides per enrollment who may act.
func RegisterEnrollments(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	g.POST("/courses/:id/enroll", d.Enrollments.Enroll, optional(d.RateLimit)...)
	g.GET("/courses/:id/enrollments", d.Enrollments.ListForCourse)
	g.GET("/my-enrollments", d.Enrollments.Mine)
	g.GET("/enrollments/:id", d.Enrollments.Get)
	g.POST("/enrollments/:id/activate", d.Enrollments.Activate)
	g.POST("/enrollments/:id/reject", d.Enrollments.Reject)
	g.POST("/enrollments/:id/complete", d.Enrollments.Complete)
	g.POST("/enrollments/:id/cancel", d.Enrollments.Cancel)
	g.PUT("/enrollments/:id/progress", d.Enrollments.Progress)
}

// RegisterAdmin registers ADMIN-only operator and account routes.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/reconcile", d.Admin.Reconcile)
	g.GET("/users", d.Users.List)
	g.GET("/users/:id", d.Users.Get)
	g.PATCH("/users/:id", d.Users.Update)
	g.POST("/users/:id/deactivate", d.Users.Deactivate)
}

// Register registers every route group.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterCourses(e, d)
	RegisterEnrollments(e, d)
	RegisterAdmin(e, d)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
