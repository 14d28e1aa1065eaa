package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/repository"
	"github.com/utafrali/coffeeshop/internal/service"
	"github.com/utafrali/coffeeshop/pkg/httputil"
	"github.com/utafrali/coffeeshop/pkg/middleware"
	"github.com/utafrali/coffeeshop/pkg/pagination"
	"github.com/utafrali/coffeeshop/pkg/validator"
)

// IdempotencyKeyHeader lets a client retry order submission safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service      *service.OrderService
	numbering domain.OrderNumbering
	logger    *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler. numbering derives the
// orderNumber shown in responses.
func NewOrderHandler(svc *service.OrderService, numbering domain.OrderNumbering, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service:   svc,
		numbering: numbering,
		logger:    logger,
	}
}

// --- Request DTOs ---

// CreateOrderItemRequest is one cart line as the storefront submits it.
// Quantity and price rules are enforced by the service so clients get the
// specific error code.
type CreateOrderItemRequest struct {
	ProductID string `json:"productId" validate:"max=64"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price" validate:"gte=0"`
}

// ShippingInfoRequest is the recipient block of the checkout form.
type ShippingInfoRequest struct {
	Name  string `json:"name" validate:"max=100"`
	Phone string `json:"phone" validate:"max=32"`
	Email string `json:"email" validate:"max=254"`
}

// CreateOrderRequest is the JSON request body for creating an order.
type CreateOrderRequest struct {
	Items         []CreateOrderItemRequest `json:"items" validate:"max=100,dive"`
	ShippingInfo  ShippingInfoRequest      `json:"shippingInfo"`
	PaymentMethod string                   `json:"paymentMethod" validate:"max=64"`
}

// UpdateStatusRequest is the JSON request body for updating order status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"notblank,max=32"`
}

// --- Response DTOs ---

// OrderResponse is an order plus fields derived for display.
type OrderResponse struct {
	*domain.Order
	OrderNumber  string `json:"orderNumber"`
	PaymentLabel string `json:"paymentLabel"`
}

func (h *OrderHandler) view(o *domain.Order) OrderResponse {
	return OrderResponse{
		Order:        o,
		OrderNumber:  o.OrderNumber(h.numbering),
		PaymentLabel: domain.PaymentLabel(o.PaymentMethod),
	}
}

func (h *OrderHandler) views(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = h.view(&orders[i])
	}
	return out
}

func actorFrom(r *http.Request) domain.Actor {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return domain.Actor{}
	}
	return domain.Actor{UserID: claims.UserID, Role: claims.Role}
}

// --- Handlers ---

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	items := make([]service.CreateOrderItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.CreateOrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	input := service.CreateOrderInput{
		UserID: actorFrom(r).UserID,
		Items:  items,
		ShippingInfo: domain.ShippingInfo{
			Name:  req.ShippingInfo.Name,
			Phone: req.ShippingInfo.Phone,
			Email: req.ShippingInfo.Email,
		},
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	}

	result, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: h.view(result.Order)})
}

// ListMyOrders handles GET /api/orders/my-orders
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrdersForUser(r.Context(), actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.views(orders)})
}

// ListOrders handles GET /api/orders (admin). Without page/per_page every
// order is returned.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	filter := repository.OrderFilter{Page: params.Page, PerPage: params.PerPage}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}

	orders, total, err := h.service.ListAllOrders(r.Context(), actorFrom(r), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(h.views(orders), total, params.Page, params.PerPage))
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id.String(), actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.view(order)})
}

// UpdateOrderStatus handles PUT /api/orders/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.service.SetStatus(r.Context(), id.String(), req.Status, actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.view(order)})
}

// CancelOrder handles POST /api/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), id.String(), actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.view(order)})
}

// DeleteOrder handles DELETE /api/orders/{id}
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id.String(), actorFrom(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"message": "order deleted"}})
}

// NotFound renders unknown routes in the standard error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusNotFound, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "NOT_FOUND", Message: "route not found"},
	})
}

// MethodNotAllowed renders 405 in the standard error envelope.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: r.Method + " is not allowed here"},
	})
}
