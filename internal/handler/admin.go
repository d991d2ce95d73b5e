package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/course-enrollment/internal/service"
)

// reconcileTimeout allows a full pass over every course.
const reconcileTimeout = time.Minute

// Reconciler recounts seat holders and repairs enrolled_count drift.
type Reconciler interface {
	Reconcile(ctx context.Context) (service.ReconcileReport, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	Reconciler Reconciler
	Cache      Purger
}

// NewAdminHandler returns an AdminHandler.
func NewAdminHandler(r Reconciler, cache Purger) *AdminHandler {
	return &AdminHandler{Reconciler: r, Cache: cache}
}

// Reconcile handles POST /v1/admin/reconcile and returns the report.
func (h *AdminHandler) Reconcile(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), reconcileTimeout)
	defer cancel()
	report, err := h.Reconciler.Reconcile(ctx)
	if err != nil {
		return writeError(c, err)
	}
	if len(report.Repaired) > 0 {
		purgeCache(c, h.Cache)
	}
	return c.JSON(http.StatusOK, report)
}
