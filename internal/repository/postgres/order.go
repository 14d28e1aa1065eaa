package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/repository"
	"github.com/utafrali/coffeeshop/pkg/database"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

var _ repository.OrderRepository = (*OrderRepository)(nil)

const (
	insertOrderSQL = `
		INSERT INTO orders (id, user_id, status, subtotal_amount, discount_amount, shipping_fee, total_amount,
			shipping_name, shipping_phone, shipping_email, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertItemSQL = `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertHistorySQL = `
		INSERT INTO order_status_history (order_id, status, changed_at)
		VALUES ($1, $2, $3)`

	// getOrderSQL loads an order with its items and history in one round trip.
	getOrderSQL = `
		SELECT
			o.id, o.user_id, o.status, o.subtotal_amount, o.discount_amount, o.shipping_fee,
			o.total_amount, o.shipping_name, o.shipping_phone, o.shipping_email, o.payment_method,
			o.created_at, o.updated_at,
			COALESCE((
				SELECT JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'id', oi.id,
						'productId', oi.product_id,
						'name', oi.name,
						'price', oi.price,
						'quantity', oi.quantity,
						'subtotal', oi.price * oi.quantity
					) ORDER BY oi.position)
				FROM order_items oi WHERE oi.order_id = o.id
			), '[]'::jsonb) AS items,
			COALESCE((
				SELECT JSONB_AGG(
					JSONB_BUILD_OBJECT('status', h.status, 'timestamp', h.changed_at) ORDER BY h.id)
				FROM order_status_history h WHERE h.order_id = o.id
			), '[]'::jsonb) AS status_history
		FROM orders o
		WHERE o.id = $1`

	updateStatusSQL = `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order, its items and its history atomically within a transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	ctx, end := database.TraceQuery(ctx, "orders.create", insertOrderSQL)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID,
		o.UserID,
		o.Status,
		o.SubtotalAmount,
		o.DiscountAmount,
		o.ShippingFee,
		o.TotalAmount,
		o.ShippingInfo.Name,
		o.ShippingInfo.Phone,
		o.ShippingInfo.Email,
		o.PaymentMethod,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range o.Items {
		_, err = tx.Exec(ctx, insertItemSQL,
			item.ID,
			o.ID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
			i,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	for _, entry := range o.StatusHistory {
		if _, err = tx.Exec(ctx, insertHistorySQL, o.ID, entry.Status, entry.Timestamp); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an order by its ID, eagerly loading items and history.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, end := database.TraceQuery(ctx, "orders.get", getOrderSQL)
	defer func() { end(err) }()

	var (
		o           domain.Order
		itemsJSON   []byte
		historyJSON []byte
	)

	err = r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.SubtotalAmount,
		&o.DiscountAmount,
		&o.ShippingFee,
		&o.TotalAmount,
		&o.ShippingInfo.Name,
		&o.ShippingInfo.Phone,
		&o.ShippingInfo.Email,
		&o.PaymentMethod,
		&o.CreatedAt,
		&o.UpdatedAt,
		&itemsJSON,
		&historyJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Items = []domain.OrderItem{}
	if len(itemsJSON) > 0 && string(itemsJSON) != "null" {
		if err = json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}

	o.StatusHistory = []domain.StatusEntry{}
	if len(historyJSON) > 0 && string(historyJSON) != "null" {
		if err = json.Unmarshal(historyJSON, &o.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshal status history: %w", err)
		}
	}

	return &o, nil
}

// List returns orders matching the given filter with the total count, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	return r.list(ctx, filter, false)
}

// ListDetailed is List with the placing user and each item's current product joined in.
func (r *OrderRepository) ListDetailed(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	return r.list(ctx, filter, true)
}

func (r *OrderRepository) list(ctx context.Context, filter repository.OrderFilter, detailed bool) (_ []domain.Order, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("o.user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	userColumns, userJoin := "", ""
	if detailed {
		userColumns = ", COALESCE(u.name, ''), COALESCE(u.email, '')"
		userJoin = "LEFT JOIN users u ON u.id = o.user_id"
	}

	pageClause := ""
	if filter.PerPage > 0 {
		pageClause = fmt.Sprintf("LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, filter.PerPage, filter.Offset())
	}

	// count(*) OVER() returns the unpaged total alongside each row.
	query := fmt.Sprintf(`
		SELECT o.id, o.user_id, o.status, o.subtotal_amount, o.discount_amount, o.shipping_fee,
			o.total_amount, o.shipping_name, o.shipping_phone, o.shipping_email, o.payment_method,
			o.created_at, o.updated_at, count(*) OVER() AS total_count%s
		FROM orders o
		%s
		%s
		ORDER BY o.created_at DESC, o.id DESC
		%s`,
		userColumns, userJoin, whereClause, pageClause,
	)

	ctx, end := database.TraceQuery(ctx, "orders.list", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)

	for rows.Next() {
		var o domain.Order
		dest := []any{
			&o.ID,
			&o.UserID,
			&o.Status,
			&o.SubtotalAmount,
			&o.DiscountAmount,
			&o.ShippingFee,
			&o.TotalAmount,
			&o.ShippingInfo.Name,
			&o.ShippingInfo.Phone,
			&o.ShippingInfo.Email,
			&o.PaymentMethod,
			&o.CreatedAt,
			&o.UpdatedAt,
			&totalCount,
		}
		var user domain.UserSummary
		if detailed {
			dest = append(dest, &user.Name, &user.Email)
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		if detailed {
			user.ID = o.UserID
			o.User = &user
		}
		orders = append(orders, o)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if len(orders) == 0 {
		return orders, totalCount, nil
	}

	orderIDs := make([]string, len(orders))
	for i := range orders {
		orderIDs[i] = orders[i].ID
	}

	itemsByOrderID, err := r.loadItems(ctx, orderIDs, detailed)
	if err != nil {
		return nil, 0, err
	}
	historyByOrderID, err := r.loadHistory(ctx, orderIDs)
	if err != nil {
		return nil, 0, err
	}

	for i := range orders {
		orders[i].Items = itemsByOrderID[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
		orders[i].StatusHistory = historyByOrderID[orders[i].ID]
		if orders[i].StatusHistory == nil {
			orders[i].StatusHistory = []domain.StatusEntry{}
		}
	}

	return orders, totalCount, nil
}

// loadItems batch-loads the items of every order in orderIDs. With detailed
// set, the current catalog product is joined onto each item when it still exists.
func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string, detailed bool) (map[string][]domain.OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.name, oi.price, oi.quantity, oi.price * oi.quantity AS subtotal
		FROM order_items oi
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position`
	if detailed {
		query = `
		SELECT oi.id, oi.order_id, oi.product_id, oi.name, oi.price, oi.quantity, oi.price * oi.quantity AS subtotal,
			p.id, p.name, p.price, p.image_url
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position`
	}

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("batch load order items: %w", err)
	}
	defer rows.Close()

	itemsByOrderID := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			item                   domain.OrderItem
			productID, name, image *string
			price                  *int64
		)
		dest := []any{
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.Subtotal,
		}
		if detailed {
			dest = append(dest, &productID, &name, &price, &image)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if productID != nil {
			item.Product = &domain.ProductSummary{ID: *productID}
			if name != nil {
				item.Product.Name = *name
			}
			if price != nil {
				item.Product.Price = *price
			}
			if image != nil {
				item.Product.ImageURL = *image
			}
		}
		itemsByOrderID[item.OrderID] = append(itemsByOrderID[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch order item rows: %w", err)
	}

	return itemsByOrderID, nil
}

func (r *OrderRepository) loadHistory(ctx context.Context, orderIDs []string) (map[string][]domain.StatusEntry, error) {
	query := `
		SELECT order_id, status, changed_at
		FROM order_status_history
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("batch load status history: %w", err)
	}
	defer rows.Close()

	historyByOrderID := make(map[string][]domain.StatusEntry, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			entry   domain.StatusEntry
		)
		if err := rows.Scan(&orderID, &entry.Status, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		historyByOrderID[orderID] = append(historyByOrderID[orderID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history rows: %w", err)
	}

	return historyByOrderID, nil
}

// UpdateStatus moves an order from status `from` to entry.Status and records
// entry in the history table. The status comparison happens inside the UPDATE
// so two concurrent writers cannot both succeed.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, from string, entry domain.StatusEntry) (err error) {
	ctx, end := database.TraceQuery(ctx, "orders.update_status", updateStatusSQL)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, updateStatusSQL, entry.Status, entry.Timestamp, id, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var current string
		err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("order", id)
		}
		if err != nil {
			return fmt.Errorf("check order status: %w", err)
		}
		return apperrors.Conflict(fmt.Sprintf("order status changed from %q to %q concurrently", from, current))
	}

	if _, err = tx.Exec(ctx, insertHistorySQL, id, entry.Status, entry.Timestamp); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Delete removes an order. Items and history go with it through ON DELETE CASCADE.
func (r *OrderRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, "orders.delete", deleteOrderSQL)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", id)
	}

	return nil
}
