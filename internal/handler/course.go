package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/service"
)

// Purger drops cached read responses after a write commits.
type Purger interface {
	Purge(ctx context.Context) error
}

// CourseHandler serves the course catalogue and course lifecycle routes.
type CourseHandler struct {
	Courses *service.CourseService
	Cache   Purger
}

// NewCourseHandler returns a CourseHandler.  cache may be nil.
func NewCourseHandler(courses *service.CourseService, cache Purger) *CourseHandler {
	return &CourseHandler{Courses: courses, Cache: cache}
}

// ----- DTOs -----

type createCourseReq struct {
	Title        string     `json:"title" validate:"required,min=3,max=255"`
	Description  string     `json:"description" validate:"max=10000"`
	InstructorID uint64     `json:"instructor_id"`
	Capacity     int        `json:"capacity" validate:"required,gte=1"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
}

type updateCourseReq struct {
	Title          *string    `json:"title" validate:"omitempty,min=3,max=255"`
	Description    *string    `json:"description" validate:"omitempty,max=10000"`
	Capacity       *int       `json:"capacity" validate:"omitempty,gte=1"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	ClearStartDate bool       `json:"clear_start_date"`
	ClearEndDate   bool       `json:"clear_end_date"`
}

type transitionReq struct {
	Status string `json:"status" validate:"required"`
}

type courseResp struct {
	ID             uint64     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	InstructorID   uint64     `json:"instructor_id"`
	Status         string     `json:"status"`
	Capacity       int        `json:"capacity"`
	EnrolledCount  int        `json:"enrolled_count"`
	AvailableSeats int        `json:"available_seats"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Version        uint64     `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type coursePageResp struct {
	Items    []courseResp `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

func toCourseResp(c *model.Course) courseResp {
	return courseResp{
		ID:             c.ID,
		Title:          c.Title,
		Description:    c.Description,
		InstructorID:   c.InstructorID,
		Status:         string(c.Status),
		Capacity:       c.Capacity,
		EnrolledCount:  c.EnrolledCount,
		AvailableSeats: c.SeatsRemaining(),
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ----- handlers -----

// List handles GET /v1/courses.  Query: q, status, instructor_id,
// upcoming, page, page_size.
func (h *CourseHandler) List(c echo.Context) error {
	f := service.CourseFilter{
		Search: strings.TrimSpace(c.QueryParam("q")),
		Status: c.QueryParam("status"),
	}
	if v := c.QueryParam("instructor_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "instructor_id must be a positive integer")
		}
		f.InstructorID = id
	}
	if v := c.QueryParam("upcoming"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "upcoming must be true or false")
		}
		f.Upcoming = b
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Courses.Search(ctx, f)
	if err != nil {
		return writeError(c, err)
	}
	out := coursePageResp{Items: make([]courseResp, 0, len(page.Items)), Total: page.Total, Page: page.Page, PageSize: page.PageSize}
	for i := range page.Items {
		out.Items = append(out.Items, toCourseResp(&page.Items[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/courses/:id.
func (h *CourseHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "course")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	course, err := h.Courses.Get(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toCourseResp(course))
}

// Create handles POST /v1/courses.
func (h *CourseHandler) Create(c echo.Context) error {
	var req createCourseReq
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	course, err := h.Courses.Create(ctx, actorFrom(c), service.CreateCourseInput{
		Title:        req.Title,
		Description:  req.Description,
		InstructorID: req.InstructorID,
		Capacity:     req.Capacity,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	})
	if err != nil {
		return writeError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, toCourseResp(course))
}

// Update handles PATCH /v1/courses/:id.  Absent fields are left alone.
func (h *CourseHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "course")
	}
	var req updateCourseReq
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	course, err := h.Courses.Update(ctx, actorFrom(c), id, service.UpdateCourseInput{
		Title:          req.Title,
		Description:    req.Description,
		Capacity:       req.Capacity,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		ClearStartDate: req.ClearStartDate,
		ClearEndDate:   req.ClearEndDate,
	})
	if err != nil {
		return writeError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, toCourseResp(course))
}

// Transition handles POST /v1/courses/:id/status.
func (h *CourseHandler) Transition(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "course")
	}
	var req transitionReq
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	next := model.CourseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	ctx, cancel := reqCtx(c)
	defer cancel()
	course, err := h.Courses.Transition(ctx, actorFrom(c), id, next)
	if err != nil {
		return writeError(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, toCourseResp(course))
}

// Delete handles DELETE /v1/courses/:id.
func (h *CourseHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "course")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Courses.Delete(ctx, actorFrom(c), id); err != nil {
		return writeError(c, err)
	}
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

// purge drops cached listings.  A failure only delays freshness until the
// cache TTL expires.
func (h *CourseHandler) purge(c echo.Context) {
	purgeCache(c, h.Cache)
}

func purgeCache(c echo.Context, p Purger) {
	if p == nil {
		return
	}
	if err := p.Purge(context.WithoutCancel(c.Request().Context())); err != nil {
		c.Logger().Warnf("purge response cache: %v", err)
	}
}
