// Package handler contains the Echo HTTP handlers.  Handlers bind and
// validate requests, build a service.Actor from the authenticated
// identity and translate service errors into HTTP responses.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/middleware"
	"github.com/iliyamo/course-enrollment/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

// RequestValidator plugs go-playground/validator into echo.Context.Validate.
// Field names in messages use the JSON tag.
type RequestValidator struct {
	v *validator.Validate
}

// NewValidator returns a RequestValidator ready to assign to echo.Echo.Validator.
func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate runs struct validation and reports the first failing field.
func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%s failed %s", fe.Field(), fe.Tag())
	}
	return err
}

// errInvalidBody is reported when the request body cannot be decoded.
var errInvalidBody = errors.New("invalid body")

// bindAndValidate decodes the request into dst and validates it.  It
// writes nothing; callers answer a non-nil error with badRequest.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errInvalidBody
	}
	return c.Validate(dst)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "validation_error"})
}

// actorFrom returns the caller identity set by middleware.JWTAuth.  On
// public routes it is the zero Actor, which the services reject.
func actorFrom(c echo.Context) service.Actor {
	uid, role, _ := middleware.Identity(c)
	return service.Actor{UserID: uid, Role: role}
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError sends err as {"error", "code"}.  Internal errors are logged
// and their message is not exposed.
func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	code := service.Code(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		code = "transient"
		msg = "service temporarily unavailable, retry the request"
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func notFound(c echo.Context, what string) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found", "code": "not_found"})
}
