package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-reservation/internal/service"
)

// ReservationHandler exposes the reservation manager.
type ReservationHandler struct {
	svc   *service.ReservationService
	cache cachePurger
}

func NewReservationHandler(svc *service.ReservationService, cache cachePurger) *ReservationHandler {
	return &ReservationHandler{svc: svc, cache: orNoPurge(cache)}
}

type reserveRequest struct {
	Quantity int64 `json:"quantity"`
}

// Reserve handles POST /v1/products/:id/reservations.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	productID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx := c.Request().Context()
	r, err := h.svc.ReserveStock(ctx, productID, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}
	h.cache.Purge(ctx, productPath(productID))
	return c.JSON(http.StatusCreated, r)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	r, err := h.svc.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Release handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Release(c echo.Context) error {
	ctx := c.Request().Context()
	r, err := h.svc.ReleaseReservation(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	h.cache.Purge(ctx, productPath(r.ProductID))
	return c.JSON(http.StatusOK, r)
}

// Sweep handles POST /v1/admin/reservations/sweep.  Per-reservation
// failures are reported next to the count instead of failing the call.
func (h *ReservationHandler) Sweep(c echo.Context) error {
	n, err := h.svc.SweepExpiredReservations(c.Request().Context())
	resp := echo.Map{"expired": n}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
