// Package mongo stores orders as single documents with embedded items and
// status history, the layout the storefront's original document store used.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/repository"
	"github.com/utafrali/coffeeshop/pkg/database"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

const (
	ordersCollection   = "orders"
	usersCollection    = "users"
	productsCollection = "products"
)

var _ repository.OrderRepository = (*OrderRepository)(nil)

type orderDocument struct {
	ID             string           `bson:"_id"`
	UserID         string           `bson:"userId"`
	Items          []itemDocument   `bson:"items"`
	SubtotalAmount int64            `bson:"subtotalAmount"`
	DiscountAmount int64            `bson:"discountAmount"`
	ShippingFee    int64            `bson:"shippingFee"`
	TotalAmount    int64            `bson:"totalAmount"`
	ShippingInfo   shippingDocument `bson:"shippingInfo"`
	PaymentMethod  string           `bson:"paymentMethod"`
	Status         string           `bson:"status"`
	StatusHistory  []statusDocument `bson:"statusHistory"`
	CreatedAt      time.Time        `bson:"createdAt"`
	UpdatedAt      time.Time        `bson:"updatedAt"`
}

type itemDocument struct {
	ID        string `bson:"id"`
	ProductID string `bson:"product"`
	Name      string `bson:"name"`
	Price     int64  `bson:"price"`
	Quantity  int    `bson:"quantity"`
}

type shippingDocument struct {
	Name  string `bson:"name"`
	Phone string `bson:"phone"`
	Email string `bson:"email"`
}

type statusDocument struct {
	Status    string    `bson:"status"`
	Timestamp time.Time `bson:"timestamp"`
}

type userDocument struct {
	ID    string `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

func toDocument(o *domain.Order) orderDocument {
	doc := orderDocument{
		ID:             o.ID,
		UserID:         o.UserID,
		Items:          make([]itemDocument, len(o.Items)),
		SubtotalAmount: o.SubtotalAmount,
		DiscountAmount: o.DiscountAmount,
		ShippingFee:    o.ShippingFee,
		TotalAmount:    o.TotalAmount,
		ShippingInfo:   shippingDocument(o.ShippingInfo),
		PaymentMethod:  o.PaymentMethod,
		Status:         o.Status,
		StatusHistory:  make([]statusDocument, len(o.StatusHistory)),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for i, item := range o.Items {
		doc.Items[i] = itemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
	}
	for i, e := range o.StatusHistory {
		doc.StatusHistory[i] = statusDocument(e)
	}
	return doc
}

func (d *orderDocument) toDomain() domain.Order {
	o := domain.Order{
		ID:             d.ID,
		UserID:         d.UserID,
		Items:          make([]domain.OrderItem, len(d.Items)),
		SubtotalAmount: d.SubtotalAmount,
		DiscountAmount: d.DiscountAmount,
		ShippingFee:    d.ShippingFee,
		TotalAmount:    d.TotalAmount,
		ShippingInfo:   domain.ShippingInfo(d.ShippingInfo),
		PaymentMethod:  d.PaymentMethod,
		Status:         d.Status,
		StatusHistory:  make([]domain.StatusEntry, len(d.StatusHistory)),
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	for i, item := range d.Items {
		o.Items[i] = domain.OrderItem{
			ID:        item.ID,
			OrderID:   d.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Price * int64(item.Quantity),
		}
	}
	for i, e := range d.StatusHistory {
		o.StatusHistory[i] = domain.StatusEntry{Status: e.Status, Timestamp: e.Timestamp.UTC()}
	}
	return o
}

// OrderRepository implements repository.OrderRepository on MongoDB.
type OrderRepository struct {
	orders   *mongo.Collection
	users    *mongo.Collection
	products *mongo.Collection
}

// NewOrderRepository creates a repository over the orders, users and
// products collections of db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{
		orders:   db.Collection(ordersCollection),
		users:    db.Collection(usersCollection),
		products: db.Collection(productsCollection),
	}
}

// EnsureIndexes creates the indexes the list queries rely on.
func (r *OrderRepository) EnsureIndexes(ctx context.Context) (err error) {
	ctx, end := database.TraceCollection(ctx, "createIndexes", ordersCollection)
	defer func() { end(err) }()

	_, err = r.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}
	return nil
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	ctx, end := database.TraceCollection(ctx, "insertOne", ordersCollection)
	defer func() { end(err) }()

	if _, err = r.orders.InsertOne(ctx, toDocument(o)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("order", "id", o.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, end := database.TraceCollection(ctx, "findOne", ordersCollection)
	defer func() { end(err) }()

	var doc orderDocument
	if err = r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}

	o := doc.toDomain()
	return &o, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	return r.list(ctx, filter)
}

// ListDetailed resolves users and products with one $in query each.
func (r *OrderRepository) ListDetailed(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	orders, total, err := r.list(ctx, filter)
	if err != nil || len(orders) == 0 {
		return orders, total, err
	}

	users, err := r.loadUsers(ctx, orders)
	if err != nil {
		return nil, 0, err
	}
	products, err := r.loadProducts(ctx, orders)
	if err != nil {
		return nil, 0, err
	}

	for i := range orders {
		u, ok := users[orders[i].UserID]
		if !ok {
			u = domain.UserSummary{ID: orders[i].UserID}
		}
		orders[i].User = &u
		for j := range orders[i].Items {
			if p, ok := products[orders[i].Items[j].ProductID]; ok {
				orders[i].Items[j].Product = p.Summary()
			}
		}
	}
	return orders, total, nil
}

func (r *OrderRepository) list(ctx context.Context, filter repository.OrderFilter) (_ []domain.Order, _ int, err error) {
	ctx, end := database.TraceCollection(ctx, "find", ordersCollection)
	defer func() { end(err) }()

	query := bson.M{}
	if filter.UserID != nil {
		query["userId"] = *filter.UserID
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}

	total, err := r.orders.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	if total == 0 {
		return orders, 0, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.PerPage > 0 {
		opts.SetSkip(int64(filter.Offset())).SetLimit(int64(filter.PerPage))
	}

	cursor, err := r.orders.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc orderDocument
		if err = cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode order: %w", err)
		}
		orders = append(orders, doc.toDomain())
	}
	if err = cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, int(total), nil
}

func (r *OrderRepository) loadUsers(ctx context.Context, orders []domain.Order) (_ map[string]domain.UserSummary, err error) {
	ctx, end := database.TraceCollection(ctx, "find", usersCollection)
	defer func() { end(err) }()

	ids := make([]string, 0, len(orders))
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			ids = append(ids, o.UserID)
		}
	}

	cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1, "email": 1}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var docs []userDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make(map[string]domain.UserSummary, len(docs))
	for _, d := range docs {
		users[d.ID] = domain.UserSummary(d)
	}
	return users, nil
}

func (r *OrderRepository) loadProducts(ctx context.Context, orders []domain.Order) (_ map[string]domain.Product, err error) {
	ctx, end := database.TraceCollection(ctx, "find", productsCollection)
	defer func() { end(err) }()

	var ids []string
	seen := make(map[string]bool)
	for _, o := range orders {
		for _, item := range o.Items {
			if !seen[item.ProductID] {
				seen[item.ProductID] = true
				ids = append(ids, item.ProductID)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}

	cursor, err := r.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var docs []productDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make(map[string]domain.Product, len(docs))
	for _, d := range docs {
		products[d.ID] = d.toDomain()
	}
	return products, nil
}

// UpdateStatus applies the transition with a single findAndModify guarded on
// the expected current status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, from string, entry domain.StatusEntry) (err error) {
	ctx, end := database.TraceCollection(ctx, "findOneAndUpdate", ordersCollection)
	defer func() { end(err) }()

	update := bson.M{
		"$set":  bson.M{"status": entry.Status, "updatedAt": entry.Timestamp},
		"$push": bson.M{"statusHistory": statusDocument(entry)},
	}
	err = r.orders.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, update).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("update order status: %w", err)
	}

	n, err := r.orders.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("order", id)
	}
	return apperrors.Conflict(fmt.Sprintf("order status is no longer %q", from))
}

func (r *OrderRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceCollection(ctx, "deleteOne", ordersCollection)
	defer func() { end(err) }()

	res, err := r.orders.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}
