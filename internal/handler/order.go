package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-reservation/internal/middleware"
	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/service"
)

// OrderHandler exposes order placement and the order state machine.
type OrderHandler struct {
	svc   *service.OrderService
	cache cachePurger
}

func NewOrderHandler(svc *service.OrderService, cache cachePurger) *OrderHandler {
	return &OrderHandler{svc: svc, cache: orNoPurge(cache)}
}

// orderResponse adds the read-time total to an order.
type orderResponse struct {
	*model.Order
	TotalPrice string `json:"total_price"`
}

func newOrderResponse(o *model.Order) orderResponse {
	return orderResponse{Order: o, TotalPrice: o.TotalPrice().StringFixed(2)}
}

type placeOrderRequest struct {
	ReservationIDs []string `json:"reservation_ids"`
}

// Place handles POST /v1/orders.
func (h *OrderHandler) Place(c echo.Context) error {
	var req placeOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	var uid *uint64
	if id, ok := middleware.UserID(c); ok {
		uid = &id
	}
	o, err := h.svc.PlaceOrder(c.Request().Context(), uid, req.ReservationIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newOrderResponse(o))
}

// Get handles GET /v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newOrderResponse(o))
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

// ChangeStatus handles PATCH /v1/orders/:id/status.  The status is
// accepted in any casing.
func (h *OrderHandler) ChangeStatus(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req changeStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	status, err := model.ParseOrderStatus(req.Status)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()
	o, err := h.svc.ChangeStatus(ctx, id, status)
	if err != nil {
		return writeError(c, err)
	}
	paths := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		paths = append(paths, productPath(it.ProductID))
	}
	h.cache.Purge(ctx, paths...)
	return c.JSON(http.StatusOK, newOrderResponse(o))
}
