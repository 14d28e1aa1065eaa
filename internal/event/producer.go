package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/coffeeshop/internal/domain"
	pkgkafka "github.com/utafrali/coffeeshop/pkg/kafka"
)

// Kafka topics for order domain events.
var (
	TopicOrderCreated       = pkgkafka.Topic("order", "created")
	TopicOrderStatusChanged = pkgkafka.Topic("order", "status_changed")
	TopicOrderDeleted       = pkgkafka.Topic("order", "deleted")
)

// Aggregate type constant.
const AggregateTypeOrder = "order"

// Source identifier for events originating from the order service.
const SourceOrderService = "order-service"

// OrderCreatedData is the payload for an order.created event (full order snapshot).
type OrderCreatedData struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"order_number"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	Items          []OrderItemData `json:"items"`
	SubtotalAmount int64           `json:"subtotal_amount"`
	DiscountAmount int64           `json:"discount_amount"`
	ShippingFee    int64           `json:"shipping_fee"`
	TotalAmount    int64           `json:"total_amount"`
	PaymentMethod  string          `json:"payment_method"`
	CreatedAt      time.Time       `json:"created_at"`
}

// OrderItemData is the event payload for an order item.
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedAt time.Time `json:"changed_at"`
}

// OrderDeletedData is the payload for an order.deleted event.
type OrderDeletedData struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Publisher is the Kafka side of the producer; *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes order domain events to Kafka.
type Producer struct {
	kafka        Publisher
	numbering    domain.OrderNumbering
	logger       *slog.Logger
}

// NewProducer creates a new event producer for the order service. numbering
// puts the display order number into order.created payloads.
func NewProducer(kafka Publisher, numbering domain.OrderNumbering, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:        kafka,
		numbering:    numbering,
		logger:       logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeOrder, SourceOrderService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithRequestContext(ctx)

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// PublishOrderCreated publishes an order.created event with the full order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemData{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
	}

	data := OrderCreatedData{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber(p.numbering),
		UserID:         order.UserID,
		Status:         order.Status,
		Items:          items,
		SubtotalAmount: order.SubtotalAmount,
		DiscountAmount: order.DiscountAmount,
		ShippingFee:    order.ShippingFee,
		TotalAmount:    order.TotalAmount,
		PaymentMethod:  order.PaymentMethod,
		CreatedAt:      order.CreatedAt,
	}

	if err := p.publish(ctx, TopicOrderCreated, order.ID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
	)
	return nil
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus string) error {
	data := OrderStatusChangedData{
		OrderID:   order.ID,
		UserID:    order.UserID,
		OldStatus: oldStatus,
		NewStatus: order.Status,
		ChangedAt: order.UpdatedAt,
	}

	if err := p.publish(ctx, TopicOrderStatusChanged, order.ID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.status_changed event",
		slog.String("order_id", order.ID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", order.Status),
	)
	return nil
}

// PublishOrderDeleted publishes an order.deleted event.
func (p *Producer) PublishOrderDeleted(ctx context.Context, order *domain.Order) error {
	data := OrderDeletedData{OrderID: order.ID, Status: order.Status}

	if err := p.publish(ctx, TopicOrderDeleted, order.ID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.deleted event", slog.String("order_id", order.ID))
	return nil
}

// Nop discards every event. It stands in for Producer when Kafka is disabled.
type Nop struct{}

func (Nop) PublishOrderCreated(context.Context, *domain.Order) error               { return nil }
func (Nop) PublishOrderStatusChanged(context.Context, *domain.Order, string) error { return nil }
func (Nop) PublishOrderDeleted(context.Context, *domain.Order) error               { return nil }
