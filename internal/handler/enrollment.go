package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/service"
)

// EnrollmentHandler serves enrollment routes.  Every write changes a
// course's seat count, so cached listings are purged afterwards.
type EnrollmentHandler struct {
	Enrollments *service.EnrollmentService
	Cache       Purger
}

// NewEnrollmentHandler returns an EnrollmentHandler.  cache may be nil.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, cache Purger) *EnrollmentHandler {
	return &EnrollmentHandler{Enrollments: enrollments, Cache: cache}
}

type enrollReq struct {
	UserID uint64 `json:"user_id"` // admins only; defaults to the caller
}

type completeReq struct {
	Override bool `json:"override"`
}

type progressReq struct {
	Progress *int `json:"progress" validate:"required,gte=0,lte=100"`
}

type enrollmentResp struct {
	ID             uint64     `json:"id"`
	UserID         uint64     `json:"user_id"`
	CourseID       uint64     `json:"course_id"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	EnrollmentDate time.Time  `json:"enrollment_date"`
	CompletedDate  *time.Time `json:"completed_date,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toEnrollmentResp(e *model.Enrollment) enrollmentResp {
	return enrollmentResp{
		ID:             e.ID,
		UserID:         e.UserID,
		CourseID:       e.CourseID,
		Status:         string(e.Status),
		Progress:       e.Progress,
		EnrollmentDate: e.EnrollmentDate,
		CompletedDate:  e.CompletedDate,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toEnrollmentList(list []model.Enrollment) []enrollmentResp {
	out := make([]enrollmentResp, 0, len(list))
	for i := range list {
		out = append(out, toEnrollmentResp(&list[i]))
	}
	return out
}

// Enroll handles POST /v1/courses/:id/enroll.  The body is optional.
func (h *EnrollmentHandler) Enroll(c echo.Context) error {
	courseID, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "course")
	}
	var req enrollReq
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Enrollments.Enroll(ctx, actorFrom(c), req.UserID, courseID)
	if err != nil {
		return writeError(c, err)
	}
	purgeCache(c, h.Cache)
	return c.JSON(http.StatusCreated, toEnrollmentResp(e))
}

// ListForCourse handles GET /v1/courses/:id/enrollments.
func (h *EnrollmentHandler) ListForCourse(c echo.Context) error {
	courseID, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "course")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Enrollments.ListForCourse(ctx, actorFrom(c), courseID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toEnrollmentList(list)})
}

// Mine handles GET /v1/my-enrollments.  Admins may pass ?user_id=.
func (h *EnrollmentHandler) Mine(c echo.Context) error {
	var userID uint64
	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "user_id must be a positive integer")
		}
		userID = id
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Enrollments.ListForUser(ctx, actorFrom(c), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toEnrollmentList(list)})
}

// Get handles GET /v1/enrollments/:id.
func (h *EnrollmentHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "enrollment")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Enrollments.Get(ctx, actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toEnrollmentResp(e))
}

// Activate handles POST /v1/enrollments/:id/activate.
func (h *EnrollmentHandler) Activate(c echo.Context) error {
	return h.apply(c, h.Enrollments.Activate)
}

// Reject handles POST /v1/enrollments/:id/reject.
func (h *EnrollmentHandler) Reject(c echo.Context) error {
	return h.apply(c, h.Enrollments.Reject)
}

// Cancel handles POST /v1/enrollments/:id/cancel.
func (h *EnrollmentHandler) Cancel(c echo.Context) error {
	return h.apply(c, h.Enrollments.Cancel)
}

// Complete handles POST /v1/enrollments/:id/complete.  An admin may send
// {"override": true} to skip the progress requirement.
func (h *EnrollmentHandler) Complete(c echo.Context) error {
	var req completeReq
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
	}
	return h.apply(c, func(ctx context.Context, actor service.Actor, id uint64) (*model.Enrollment, error) {
		return h.Enrollments.Complete(ctx, actor, id, req.Override)
	})
}

// Progress handles PUT /v1/enrollments/:id/progress.
func (h *EnrollmentHandler) Progress(c echo.Context) error {
	var req progressReq
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	return h.apply(c, func(ctx context.Context, actor service.Actor, id uint64) (*model.Enrollment, error) {
		return h.Enrollments.UpdateProgress(ctx, actor, id, *req.Progress)
	})
}

type enrollmentOp func(ctx context.Context, actor service.Actor, id uint64) (*model.Enrollment, error)

func (h *EnrollmentHandler) apply(c echo.Context, op enrollmentOp) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "enrollment")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := op(ctx, actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	purgeCache(c, h.Cache)
	return c.JSON(http.StatusOK, toEnrollmentResp(e))
}
