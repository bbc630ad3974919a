package handler // handler defines the HTTP handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-reservation/internal/service"
)

// cachePurger drops cached product responses after stock moved.
// *middleware.CachePurger satisfies it, including a nil one.
type cachePurger interface {
	Purge(ctx context.Context, paths ...string)
}

type noPurge struct{}

func (noPurge) Purge(context.Context, ...string) {}

func orNoPurge(p cachePurger) cachePurger {
	if p == nil {
		return noPurge{}
	}
	return p
}

func productPath(id uint64) string { return "/v1/products/" + strconv.FormatUint(id, 10) }

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// writeError maps service errors onto HTTP responses.  Contention errors
// are 503 with Retry-After so clients back off and retry.
func writeError(c echo.Context, err error) error {
	var te *service.TransitionError
	switch {
	case errors.As(err, &te):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "invalid_transition",
			"from":  te.From,
			"to":    te.To,
		})
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrEmptyOrder):
		return badRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInsufficientStock):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient_stock"})
	case errors.Is(err, service.ErrReservationInactive):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation_inactive"})
	case errors.Is(err, service.ErrReservationExpired):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation_expired"})
	case service.Retryable(err):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "busy, retry later"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "request timed out"})
	default:
		c.Logger().Errorf("request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
