package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	"github.com/utafrali/coffeeshop/internal/repository"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
	"github.com/utafrali/coffeeshop/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/utafrali/coffeeshop/internal/service")

// EventPublisher publishes order domain events. *event.Producer and event.Nop
// implement it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus string) error
	PublishOrderDeleted(ctx context.Context, order *domain.Order) error
}

// Options configures pricing and checkout rules of an OrderService.
type Options struct {
	PaymentMethods []string
	Discount       pricing.DiscountRule
	ShippingFee    int64

	// Idempotency is optional. Without it Idempotency-Key headers are ignored.
	Idempotency    repository.IdempotencyStore
	IdempotencyTTL time.Duration

	Metrics *Metrics
}

// OrderService implements the business logic for order operations.
type OrderService struct {
	repo     repository.OrderRepository
	catalog  repository.ProductCatalog
	producer EventPublisher
	opts     Options
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewOrderService creates a new order service.
func NewOrderService(
	repo repository.OrderRepository,
	catalog repository.ProductCatalog,
	producer EventPublisher,
	opts Options,
	logger *slog.Logger,
) *OrderService {
	if len(opts.PaymentMethods) == 0 {
		opts.PaymentMethods = domain.DefaultPaymentMethods()
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &OrderService{
		repo:     repo,
		catalog:  catalog,
		producer: producer,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// CreateOrderItemInput is one submitted cart line. Price is the unit price
// the shopper saw and must match the catalog.
type CreateOrderItemInput struct {
	ProductID string
	Quantity  int
	Price     int64
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	UserID         string
	Items          []CreateOrderItemInput
	ShippingInfo   domain.ShippingInfo
	PaymentMethod  string
	IdempotencyKey string
}

// CreateOrderResult is the stored order. Replayed is set when the order was
// created by an earlier request with the same idempotency key.
type CreateOrderResult struct {
	Order    *domain.Order
	Replayed bool
}

// CreateOrder validates, prices and stores a new pending order. Nothing is
// persisted unless every check passes.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if input.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	useKey := input.IdempotencyKey != "" && s.opts.Idempotency != nil
	if useKey {
		replay, err := s.reserveKey(ctx, input.UserID, input.IdempotencyKey)
		if err != nil || replay != nil {
			return replay, err
		}
	}

	order, err := s.buildOrder(ctx, input)
	if err == nil {
		err = s.repo.Create(ctx, order)
		if err != nil {
			err = fmt.Errorf("create order: %w", err)
		}
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Status == 400 {
			s.opts.Metrics.createRejected(appErr.Code)
		}
		if useKey {
			if relErr := s.opts.Idempotency.Release(ctx, input.UserID, input.IdempotencyKey); relErr != nil {
				s.logger.ErrorContext(ctx, "failed to release idempotency key",
					slog.String("user_id", input.UserID),
					slog.String("error", relErr.Error()),
				)
			}
		}
		return nil, err
	}

	if useKey {
		if err := s.opts.Idempotency.Complete(ctx, input.UserID, input.IdempotencyKey, order.ID, s.opts.IdempotencyTTL); err != nil {
			// A reservation without an order id answers every retry with a
			// conflict until it expires. Drop it; a retry may then place a
			// second order.
			s.logger.ErrorContext(ctx, "failed to record idempotency key",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
			if relErr := s.opts.Idempotency.Release(ctx, input.UserID, input.IdempotencyKey); relErr != nil {
				s.logger.ErrorContext(ctx, "failed to release idempotency key",
					slog.String("user_id", input.UserID),
					slog.String("error", relErr.Error()),
				)
			}
		}
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.opts.Metrics.orderCreated()
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.total", order.TotalAmount))

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.Int("items", len(order.Items)),
		slog.Int64("discount_amount", order.DiscountAmount),
		slog.Int64("total_amount", order.TotalAmount),
	)

	return &CreateOrderResult{Order: order}, nil
}

// reserveKey returns a non-nil result when key already produced an order.
func (s *OrderService) reserveKey(ctx context.Context, userID, key string) (*CreateOrderResult, error) {
	orderID, reserved, err := s.opts.Idempotency.Reserve(ctx, userID, key, s.opts.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, nil
	}
	if orderID == "" {
		return nil, apperrors.Conflict("an order with this idempotency key is still being processed")
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "idempotency key points at a deleted order, reserving it again",
			slog.String("order_id", orderID),
			slog.String("user_id", userID),
		)
		return nil, s.rereserveKey(ctx, userID, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load replayed order: %w", err)
	}
	s.logger.InfoContext(ctx, "order replayed for idempotency key",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
	)
	return &CreateOrderResult{Order: order, Replayed: true}, nil
}

// rereserveKey takes over a key whose order no longer exists.
func (s *OrderService) rereserveKey(ctx context.Context, userID, key string) error {
	if err := s.opts.Idempotency.Release(ctx, userID, key); err != nil {
		return fmt.Errorf("release stale idempotency key: %w", err)
	}
	_, reserved, err := s.opts.Idempotency.Reserve(ctx, userID, key, s.opts.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !reserved {
		return apperrors.Conflict("an order with this idempotency key is still being processed")
	}
	return nil
}

// buildOrder runs the checkout checks in order and prices the result. It
// only reads from the catalog.
func (s *OrderService) buildOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if len(input.Items) == 0 {
		return nil, domain.EmptyOrder()
	}

	shipping := domain.ShippingInfo{
		Name:  strings.TrimSpace(input.ShippingInfo.Name),
		Phone: strings.TrimSpace(input.ShippingInfo.Phone),
		Email: strings.TrimSpace(input.ShippingInfo.Email),
	}
	if !shipping.Complete() {
		return nil, domain.IncompleteShippingInfo()
	}

	if !domain.IsAllowedPaymentMethod(input.PaymentMethod, s.opts.PaymentMethods) {
		return nil, domain.InvalidPaymentMethod(input.PaymentMethod, s.opts.PaymentMethods)
	}

	for _, item := range input.Items {
		if item.Quantity < 1 {
			return nil, domain.InvalidQuantity(item.ProductID)
		}
	}

	lines := make([]pricing.CartLine, len(input.Items))
	for i, item := range input.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, domain.ProductNotFound(item.ProductID)
			}
			return nil, fmt.Errorf("get product %s: %w", item.ProductID, err)
		}
		if product.Price != item.Price {
			return nil, domain.PriceMismatch(product.Name)
		}
		lines[i] = pricing.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
			ImageURL:  product.ImageURL,
		}
	}

	totals := pricing.ComputeCartTotals(lines, s.opts.Discount, s.opts.ShippingFee)

	order := domain.NewOrder(s.newID(), input.UserID, s.now())
	order.Items = make([]domain.OrderItem, len(lines))
	for i, line := range lines {
		order.Items[i] = domain.OrderItem{
			ID:        s.newID(),
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  line.LineTotal(),
		}
	}
	order.SubtotalAmount = totals.Subtotal
	order.DiscountAmount = totals.Discount
	order.ShippingFee = totals.ShippingFee
	order.TotalAmount = totals.Total
	order.ShippingInfo = shipping
	order.PaymentMethod = input.PaymentMethod

	return order, nil
}

// GetOrder returns the order if actor placed it or is an admin. Orders the
// actor may not see are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, id string, actor domain.Actor) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	if !actor.CanView(order) {
		return nil, apperrors.NotFound("order", id)
	}
	return order, nil
}

// ListOrdersForUser returns every order the actor placed, newest first.
func (s *OrderService) ListOrdersForUser(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if actor.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	orders, _, err := s.repo.List(ctx, repository.OrderFilter{UserID: &actor.UserID})
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return orders, nil
}

// ListAllOrders returns orders of every user with user and product details
// resolved. Admin only.
func (s *OrderService) ListAllOrders(ctx context.Context, actor domain.Actor, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, apperrors.Forbidden("only admins can list all orders")
	}
	if filter.Status != nil && !domain.IsValidStatus(*filter.Status) {
		return nil, 0, domain.InvalidStatus(*filter.Status)
	}
	filter.UserID = nil

	orders, total, err := s.repo.ListDetailed(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// SetStatus moves an order to newStatus. Admins may follow any allowed
// transition; a customer may only cancel their own pending order.
func (s *OrderService) SetStatus(ctx context.Context, id, newStatus string, actor domain.Actor) (_ *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.SetStatus")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("order.id", id), attribute.String("order.status", newStatus))

	if !domain.IsValidStatus(newStatus) {
		return nil, domain.InvalidStatus(newStatus)
	}

	order, err := s.GetOrder(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if order.IsClosed() {
		return nil, domain.OrderClosed(order.Status)
	}

	if !actor.IsAdmin() {
		if newStatus != domain.OrderStatusCancelled {
			return nil, apperrors.Forbidden("customers can only cancel their orders")
		}
		if order.Status != domain.OrderStatusPending {
			return nil, domain.InvalidTransition(order.Status, newStatus)
		}
	}

	if !order.CanTransitionTo(newStatus) {
		return nil, domain.InvalidTransition(order.Status, newStatus)
	}

	oldStatus := order.Status
	entry := domain.StatusEntry{Status: newStatus, Timestamp: s.now()}

	if err := s.repo.UpdateStatus(ctx, id, oldStatus, entry); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	order.ApplyStatus(entry.Status, entry.Timestamp)

	if err := s.producer.PublishOrderStatusChanged(ctx, order, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.opts.Metrics.statusChanged(oldStatus, newStatus)

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
		slog.String("actor_role", actor.Role),
	)

	return order, nil
}

// CancelOrder cancels an order on behalf of actor.
func (s *OrderService) CancelOrder(ctx context.Context, id string, actor domain.Actor) (*domain.Order, error) {
	return s.SetStatus(ctx, id, domain.OrderStatusCancelled, actor)
}

// DeleteOrder permanently removes an order. Admin only.
func (s *OrderService) DeleteOrder(ctx context.Context, id string, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("only admins can delete orders")
	}

	order, err := s.GetOrder(ctx, id, actor)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	if err := s.producer.PublishOrderDeleted(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.deleted event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order deleted",
		slog.String("order_id", id),
		slog.String("status", order.Status),
	)

	return nil
}
