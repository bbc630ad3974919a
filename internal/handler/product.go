package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/repository"
)

// ProductHandler exposes product reads and product creation.
type ProductHandler struct {
	store repository.Store
}

func NewProductHandler(store repository.Store) *ProductHandler {
	return &ProductHandler{store: store}
}

type createProductRequest struct {
	Name       string          `json:"name"`
	TotalStock int64           `json:"total_stock"`
	Price      decimal.Decimal `json:"price"`
}

// CreateProduct handles POST /v1/products.  All stock starts available.
func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req createProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Name == "":
		return badRequest(c, "name is required")
	case req.TotalStock < 0:
		return badRequest(c, "total_stock must not be negative")
	case req.Price.IsNegative():
		return badRequest(c, "price must not be negative")
	}
	p := &model.Product{
		Name:           req.Name,
		TotalStock:     req.TotalStock,
		AvailableStock: req.TotalStock,
		Price:          req.Price,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateProduct(c.Request().Context(), p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// GetProduct handles GET /v1/products/:id.
func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	p, err := h.store.GetProduct(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
