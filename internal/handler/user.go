package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/service"
)

// UserHandler serves account management routes.
type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

type updateUserReq struct {
	FullName *string `json:"full_name" validate:"omitempty,min=2,max=255"`
	Role     *string `json:"role"`
}

type userResp struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResp(u *model.User) userResp {
	return userResp{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// List handles GET /v1/admin/users.  Query: q, role, page, page_size.
func (h *UserHandler) List(c echo.Context) error {
	f := service.UserFilter{
		Search: strings.TrimSpace(c.QueryParam("q")),
		Role:   c.QueryParam("role"),
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Users.List(ctx, actorFrom(c), f)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]userResp, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toUserResp(&page.Items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": items, "total": page.Total, "page": page.Page, "page_size": page.PageSize,
	})
}

// Get handles GET /v1/admin/users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "user")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.Get(ctx, actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Update handles PATCH /v1/admin/users/:id.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "user")
	}
	return h.update(c, id)
}

// UpdateMe handles PATCH /v1/me.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	return h.update(c, actorFrom(c).UserID)
}

func (h *UserHandler) update(c echo.Context, id uint64) error {
	var req updateUserReq
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	in := service.UpdateUserInput{FullName: req.FullName}
	if req.Role != nil {
		role := model.Role(strings.ToUpper(strings.TrimSpace(*req.Role)))
		in.Role = &role
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.Update(ctx, actorFrom(c), id, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Deactivate handles POST /v1/admin/users/:id/deactivate.
func (h *UserHandler) Deactivate(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "user")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.Deactivate(ctx, actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}
