package repository

import (
	"context"
	"time"

	"github.com/utafrali/coffeeshop/internal/domain"
)

// OrderFilter defines filter criteria for listing orders. A PerPage of zero
// returns every matching order.
type OrderFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// Offset returns the number of rows to skip for the filter's page.
func (f OrderFilter) Offset() int {
	if f.PerPage <= 0 || f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}

// OrderRepository defines the interface for order persistence operations.
// Lists are ordered newest first.
type OrderRepository interface {
	// Create inserts a new order, its items and its first history entry atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order with its items and history.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// ListDetailed is List with the placing user and each item's product resolved.
	ListDetailed(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus moves the order from status `from` to entry.Status and
	// appends entry to its history. It fails with apperrors.ErrConflict when
	// the stored status is no longer `from`, and apperrors.ErrNotFound when
	// the order does not exist.
	UpdateStatus(ctx context.Context, id, from string, entry domain.StatusEntry) error

	// Delete removes an order permanently.
	Delete(ctx context.Context, id string) error
}

// ProductCatalog reads products owned by the catalog service.
type ProductCatalog interface {
	// GetProduct returns apperrors.ErrNotFound when the product does not exist.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// IdempotencyStore remembers which order a client-supplied Idempotency-Key
// produced, scoped per user.
type IdempotencyStore interface {
	// Reserve claims key for userID. When the key was already used it returns
	// reserved=false and the order id it produced, or an empty id while the
	// first request is still in flight.
	Reserve(ctx context.Context, userID, key string, ttl time.Duration) (orderID string, reserved bool, err error)

	// Complete records the order created under a reserved key.
	Complete(ctx context.Context, userID, key, orderID string, ttl time.Duration) error

	// Release frees a reserved key after a failed attempt so it can be retried.
	Release(ctx context.Context, userID, key string) error
}
