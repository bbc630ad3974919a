package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/service"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: 0", service.ErrInvalidQuantity), http.StatusBadRequest},
		{service.ErrInvalidStatus, http.StatusBadRequest},
		{service.ErrEmptyOrder, http.StatusBadRequest},
		{fmt.Errorf("reservation x: %w", service.ErrNotFound), http.StatusNotFound},
		{service.ErrInsufficientStock, http.StatusConflict},
		{&service.TransitionError{From: model.OrderShipped, To: model.OrderCancelled}, http.StatusConflict},
		{service.ErrReservationInactive, http.StatusConflict},
		{service.ErrReservationExpired, http.StatusConflict},
		{fmt.Errorf("product 1: %w", service.ErrLockTimeout), http.StatusServiceUnavailable},
		{service.ErrBusy, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{service.ErrInvariantViolation, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		_ = writeError(c, tc.err)
		assert.Equal(t, tc.status, rec.Code, "%v", tc.err)
		if tc.status == http.StatusServiceUnavailable && service.Retryable(tc.err) {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
	}
}

func TestWriteError_TransitionBody(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = writeError(c, &service.TransitionError{From: model.OrderDelivered, To: model.OrderPending})
	assert.JSONEq(t, `{"error":"invalid_transition","from":"DELIVERED","to":"PENDING"}`, rec.Body.String())
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("down") }

func TestHealth(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
	assert.NoError(t, NewHealthHandler(nil).Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
	assert.NoError(t, NewHealthHandler(downDB{}).Health(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
