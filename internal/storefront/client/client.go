// Package client is the storefront's HTTP client for the order API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/pkg/httpclient"
)

// HTTPDoer sends requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds the order API location and credentials.
type Config struct {
	BaseURL string
	// Token is the bearer token sent on every call.
	Token string
}

// OrderItem is one submitted cart line.
type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// CreateOrderRequest is the body of POST /api/orders.
type CreateOrderRequest struct {
	Items         []OrderItem         `json:"items"`
	ShippingInfo  domain.ShippingInfo `json:"shippingInfo"`
	PaymentMethod string              `json:"paymentMethod"`
}

// Order is an order as the API returns it.
type Order struct {
	domain.Order
	OrderNumber  string `json:"orderNumber"`
	PaymentLabel string `json:"paymentLabel"`
}

// Client calls the order API.
type Client struct {
	doer    HTTPDoer
	baseURL string
	token   string
	logger  *slog.Logger
}

// New returns a Client sending through doer.
func New(doer HTTPDoer, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		doer:    doer,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  logger,
	}
}

// NewDefault builds a Client with retries and a circuit breaker in front of
// the order API.
func NewDefault(cfg Config, logger *slog.Logger) *Client {
	base := httpclient.New(httpclient.Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    300 * time.Millisecond,
		RetryWaitMax:    3 * time.Second,
		MaxConnsPerHost: 4,
	})
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("order-api"), logger)
	return New(cb, cfg, logger)
}

// CreateOrder submits an order. A non-empty idempotencyKey makes the call
// safe to repeat: the API answers a replay with the order it created first.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/orders", body)
	if err != nil {
		return nil, fmt.Errorf("create order request: %w", err)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set(httpclient.IdempotencyKeyHeader, idempotencyKey)
	}

	var order Order
	if err := c.do(ctx, httpReq, &order); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "order submitted",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.Int64("total", order.TotalAmount),
	)
	return &order, nil
}

// MyOrders lists the caller's orders, newest first.
func (c *Client) MyOrders(ctx context.Context) ([]Order, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/api/orders/my-orders", nil)
	if err != nil {
		return nil, fmt.Errorf("create my orders request: %w", err)
	}

	var orders []Order
	if err := c.do(ctx, httpReq, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder fetches one of the caller's orders.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create get order request: %w", err)
	}

	var order Order
	if err := c.do(ctx, httpReq, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels a pending order owned by the caller.
func (c *Client) CancelOrder(ctx context.Context, id string) (*Order, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return nil, fmt.Errorf("create cancel order request: %w", err)
	}

	var order Order
	if err := c.do(ctx, httpReq, &order); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "order cancelled", slog.String("order_id", order.ID))
	return &order, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes the "data" member of a 2xx answer into dst.
func (c *Client) do(ctx context.Context, req *http.Request, dst any) error {
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call order api: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	envelope := struct {
		Data any `json:"data"`
	}{Data: dst}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode order api response: %w", err)
	}
	return nil
}
