package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/coffeeshop/internal/domain"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
	"github.com/utafrali/coffeeshop/pkg/httpclient"
)

const orderID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	doer := httpclient.New(httpclient.Config{
		Timeout:      2 * time.Second,
		MaxRetries:   1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
	})
	return New(doer, Config{BaseURL: srv.URL + "/", Token: "customer-token"}, discardLogger())
}

func writeData(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": v}))
}

func sampleOrder() map[string]any {
	return map[string]any{
		"id":            orderID,
		"userId":        "user-1",
		"totalAmount":   330,
		"status":        "pending",
		"paymentMethod": "cash-taipei",
		"orderNumber":   "CF26101728950e",
		"paymentLabel":  "Cash on pickup - Taipei Main Station",
		"createdAt":     "2026-10-17T08:00:00Z",
		"items":         []map[string]any{{"productId": "p-1", "quantity": 1, "price": 150}},
	}
}

// ============================================================================
// CreateOrder
// ============================================================================

func TestCreateOrder_SendsBodyAndHeaders(t *testing.T) {
	var got CreateOrderRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "Bearer customer-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeData(t, w, http.StatusCreated, sampleOrder())
	})

	order, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		Items:         []OrderItem{{ProductID: "p-1", Quantity: 1, Price: 150}},
		ShippingInfo:  domain.ShippingInfo{Name: "Mei Lin", Phone: "0912345678", Email: "mei@example.com"},
		PaymentMethod: "cash-taipei",
	}, "key-1")

	require.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, int64(330), order.TotalAmount)
	assert.Equal(t, "CF26101728950e", order.OrderNumber)
	assert.Equal(t, "Cash on pickup - Taipei Main Station", order.PaymentLabel)
	require.Len(t, order.Items, 1)

	assert.Equal(t, "cash-taipei", got.PaymentMethod)
	assert.Equal(t, "Mei Lin", got.ShippingInfo.Name)
	assert.Equal(t, []OrderItem{{ProductID: "p-1", Quantity: 1, Price: 150}}, got.Items)
}

func TestCreateOrder_NoIdempotencyKeyHeaderWhenEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["Idempotency-Key"]
		assert.False(t, present)
		writeData(t, w, http.StatusCreated, sampleOrder())
	})

	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{}, "")
	require.NoError(t, err)
}

func TestCreateOrder_DomainErrorKeepsCodeAndMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"PRICE_MISMATCH","message":"the price of Latte has changed, please review your cart"}}`)
	})

	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{}, "key-1")

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "PRICE_MISMATCH", appErr.Code)
	assert.Equal(t, "the price of Latte has changed, please review your cart", appErr.Message)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateOrder_RetriesWithIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeData(t, w, http.StatusCreated, sampleOrder())
	})

	order, err := c.CreateOrder(context.Background(), CreateOrderRequest{}, "key-1")

	require.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, int32(2), calls.Load())
}

// ============================================================================
// Reads and cancel
// ============================================================================

func TestMyOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/orders/my-orders", r.URL.Path)
		writeData(t, w, http.StatusOK, []any{sampleOrder(), sampleOrder()})
	})

	orders, err := c.MyOrders(context.Background())

	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestMyOrders_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeData(t, w, http.StatusOK, []any{})
	})

	orders, err := c.MyOrders(context.Background())

	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestGetOrder_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/"+orderID, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"NOT_FOUND","message":"order with id `+orderID+` not found"}}`)
	})

	order, err := c.GetOrder(context.Background(), orderID)

	assert.Nil(t, order)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCancelOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders/"+orderID+"/cancel", r.URL.Path)
		o := sampleOrder()
		o["status"] = domain.OrderStatusCancelled
		writeData(t, w, http.StatusOK, o)
	})

	order, err := c.CancelOrder(context.Background(), orderID)

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
}

func TestCancelOrder_Closed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"ORDER_CLOSED","message":"order is already cancelled"}}`)
	})

	_, err := c.CancelOrder(context.Background(), orderID)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "ORDER_CLOSED", appErr.Code)
}

func TestDo_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "not json")
	})

	_, err := c.GetOrder(context.Background(), orderID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode order api response")
}

func TestNewDefault_ServerErrorThroughBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewDefault(Config{BaseURL: srv.URL}, discardLogger())
	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{}, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}
