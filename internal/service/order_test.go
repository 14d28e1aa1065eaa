package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	"github.com/utafrali/coffeeshop/internal/repository"
	"github.com/utafrali/coffeeshop/internal/repository/memory"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

// --- Mock Repository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) ListDetailed(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id, from string, entry domain.StatusEntry) error {
	args := m.Called(ctx, id, from, entry)
	return args.Error(0)
}

func (m *mockOrderRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockPublisher) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus string) error {
	return m.Called(ctx, order, oldStatus).Error(0)
}

func (m *mockPublisher) PublishOrderDeleted(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

// --- Test Helpers ---

const (
	latteID  = "prod-latte"
	filterID = "prod-filter"
	beansID  = "prod-beans"
)

var (
	customer = domain.Actor{UserID: "user-001", Role: domain.RoleUser}
	stranger = domain.Actor{UserID: "user-999", Role: domain.RoleUser}
	admin    = domain.Actor{UserID: "admin-001", Role: domain.RoleAdmin}

	filterPackRule = pricing.DiscountRule{ProductName: "Filter Pack", QualifyingQuantity: 2, DiscountPerGroup: 10}
	clockStart     = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newCatalog() *memory.Store {
	store := memory.NewStore()
	store.PutProduct(domain.Product{ID: latteID, Name: "Latte", Price: 150, Stock: 20})
	store.PutProduct(domain.Product{ID: filterID, Name: "Filter Pack", Price: 50, Stock: 40})
	store.PutProduct(domain.Product{ID: beansID, Name: "House Beans", Price: 100, Stock: 10})
	store.PutUser(domain.UserSummary{ID: customer.UserID, Name: "Mei Lin", Email: "mei@example.com"})
	return store
}

// newTestService wires the service over an in-memory store with a
// deterministic clock and id sequence.
func newTestService(t *testing.T, opts Options) (*OrderService, *memory.Store, *mockPublisher) {
	t.Helper()
	store := newCatalog()
	pub := new(mockPublisher)
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil).Maybe()
	pub.On("PublishOrderStatusChanged", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	pub.On("PublishOrderDeleted", mock.Anything, mock.Anything).Return(nil).Maybe()

	if opts.Discount == (pricing.DiscountRule{}) {
		opts.Discount = filterPackRule
	}
	svc := NewOrderService(store, store, pub, opts, newTestLogger())

	clock := clockStart
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", seq)
	}
	return svc, store, pub
}

func validInput(items ...CreateOrderItemInput) CreateOrderInput {
	return CreateOrderInput{
		UserID:        customer.UserID,
		Items:         items,
		ShippingInfo:  domain.ShippingInfo{Name: "Mei Lin", Phone: "0912345678", Email: "mei@example.com"},
		PaymentMethod: domain.PaymentCashTaipei,
	}
}

func placeOrder(t *testing.T, svc *OrderService) *domain.Order {
	t.Helper()
	res, err := svc.CreateOrder(context.Background(), validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150}))
	require.NoError(t, err)
	return res.Order
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

// --- CreateOrder ---

func TestCreateOrder_LatteAndFilterPack(t *testing.T) {
	svc, store, pub := newTestService(t, Options{})

	res, err := svc.CreateOrder(context.Background(), validInput(
		CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150},
		CreateOrderItemInput{ProductID: filterID, Quantity: 4, Price: 50},
	))

	require.NoError(t, err)
	assert.False(t, res.Replayed)
	o := res.Order
	assert.Equal(t, int64(350), o.SubtotalAmount)
	assert.Equal(t, int64(20), o.DiscountAmount)
	assert.Equal(t, int64(0), o.ShippingFee)
	assert.Equal(t, int64(330), o.TotalAmount)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, domain.OrderStatusPending, o.StatusHistory[0].Status)
	assert.Equal(t, o.CreatedAt, o.StatusHistory[0].Timestamp)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "Filter Pack", o.Items[1].Name)
	assert.Equal(t, int64(200), o.Items[1].Subtotal)
	for _, item := range o.Items {
		assert.Equal(t, o.ID, item.OrderID)
		assert.NotEmpty(t, item.ID)
	}

	stored, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(330), stored.TotalAmount)
	pub.AssertCalled(t, "PublishOrderCreated", mock.Anything, mock.AnythingOfType("*domain.Order"))
}

func TestCreateOrder_RoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	res, err := svc.CreateOrder(context.Background(), validInput(CreateOrderItemInput{ProductID: beansID, Quantity: 3, Price: 100}))
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), res.Order.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.TotalAmount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.Equal(t, int64(100), got.Items[0].Price)
}

func TestCreateOrder_ShippingFeeAndTrimmedContact(t *testing.T) {
	svc, _, _ := newTestService(t, Options{ShippingFee: 60})

	input := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 2, Price: 150})
	input.ShippingInfo.Name = "  Mei Lin  "

	res, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(360), res.Order.TotalAmount)
	assert.Equal(t, int64(60), res.Order.ShippingFee)
	assert.Equal(t, "Mei Lin", res.Order.ShippingInfo.Name)
}

func TestCreateOrder_ValidationOrder(t *testing.T) {
	latte := CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150}

	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
		code   string
	}{
		{
			name:   "empty order wins over everything",
			mutate: func(in *CreateOrderInput) { in.Items = nil; in.ShippingInfo = domain.ShippingInfo{}; in.PaymentMethod = "" },
			code:   domain.CodeEmptyOrder,
		},
		{
			name:   "blank phone",
			mutate: func(in *CreateOrderInput) { in.ShippingInfo.Phone = "   "; in.PaymentMethod = "" },
			code:   domain.CodeIncompleteShippingInfo,
		},
		{
			name:   "missing payment method",
			mutate: func(in *CreateOrderInput) { in.PaymentMethod = "" },
			code:   domain.CodeInvalidPaymentMethod,
		},
		{
			name:   "unknown payment method",
			mutate: func(in *CreateOrderInput) { in.PaymentMethod = "credit-card" },
			code:   domain.CodeInvalidPaymentMethod,
		},
		{
			name:   "zero quantity",
			mutate: func(in *CreateOrderInput) { in.Items[0].Quantity = 0 },
			code:   domain.CodeInvalidQuantity,
		},
		{
			name:   "unknown product",
			mutate: func(in *CreateOrderInput) { in.Items[0].ProductID = "prod-gone" },
			code:   domain.CodeProductNotFound,
		},
		{
			name:   "stale price",
			mutate: func(in *CreateOrderInput) { in.Items[0].Price = 140 },
			code:   domain.CodePriceMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, pub := newTestService(t, Options{})
			input := validInput(latte)
			tt.mutate(&input)

			res, err := svc.CreateOrder(context.Background(), input)

			assert.Nil(t, res)
			requireCode(t, err, tt.code)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Equal(t, 0, store.Len())
			pub.AssertNotCalled(t, "PublishOrderCreated", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrder_PriceMismatchNamesProductAndWritesNothing(t *testing.T) {
	repo := new(mockOrderRepository)
	catalog := newCatalog()
	svc := NewOrderService(repo, catalog, new(mockPublisher), Options{}, newTestLogger())

	_, err := svc.CreateOrder(context.Background(), validInput(
		CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150},
		CreateOrderItemInput{ProductID: filterID, Quantity: 2, Price: 45},
	))

	requireCode(t, err, domain.CodePriceMismatch)
	assert.ErrorIs(t, err, domain.ErrPriceMismatch)
	assert.Contains(t, err.Error(), "Filter Pack")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	input := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150})
	input.UserID = ""

	_, err := svc.CreateOrder(context.Background(), input)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestCreateOrder_RepositoryError(t *testing.T) {
	repo := new(mockOrderRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(errors.New("connection reset"))
	svc := NewOrderService(repo, newCatalog(), new(mockPublisher), Options{}, newTestLogger())

	_, err := svc.CreateOrder(context.Background(), validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	repo.AssertExpectations(t)
}

func TestCreateOrder_PublishFailureDoesNotFail(t *testing.T) {
	store := newCatalog()
	pub := new(mockPublisher)
	pub.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	svc := NewOrderService(store, store, pub, Options{}, newTestLogger())

	res, err := svc.CreateOrder(context.Background(), validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150}))

	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.NotEmpty(t, res.Order.ID)
	pub.AssertExpectations(t)
}

func TestCreateOrder_Idempotency(t *testing.T) {
	keys := memory.NewIdempotencyStore()
	svc, store, pub := newTestService(t, Options{Idempotency: keys, IdempotencyTTL: time.Hour})
	ctx := context.Background()

	input := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150})
	input.IdempotencyKey = "confirm-click-1"

	first, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, store.Len())
	pub.AssertNumberOfCalls(t, "PublishOrderCreated", 1)

	// Another user with the same key gets their own order.
	input.UserID = "user-002"
	third, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.False(t, third.Replayed)
	assert.Equal(t, 2, store.Len())
}

func TestCreateOrder_IdempotencyInFlight(t *testing.T) {
	keys := memory.NewIdempotencyStore()
	svc, store, _ := newTestService(t, Options{Idempotency: keys})
	ctx := context.Background()

	_, reserved, err := keys.Reserve(ctx, customer.UserID, "k1", time.Hour)
	require.NoError(t, err)
	require.True(t, reserved)

	input := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150})
	input.IdempotencyKey = "k1"

	_, err = svc.CreateOrder(ctx, input)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 0, store.Len())
}

func TestCreateOrder_IdempotencyKeyReleasedOnValidationFailure(t *testing.T) {
	keys := memory.NewIdempotencyStore()
	svc, store, _ := newTestService(t, Options{Idempotency: keys})
	ctx := context.Background()

	input := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 120})
	input.IdempotencyKey = "retry-me"

	_, err := svc.CreateOrder(ctx, input)
	requireCode(t, err, domain.CodePriceMismatch)

	input.Items[0].Price = 150
	res, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 1, store.Len())
}

// unrecordableKeys reserves and releases normally but cannot record the
// order id, as when Redis drops the connection mid-request.
type unrecordableKeys struct {
	*memory.IdempotencyStore
}

func (unrecordableKeys) Complete(context.Context, string, string, string, time.Duration) error {
	return errors.New("redis: connection reset")
}

func TestCreateOrder_IdempotencyKeyReleasedWhenRecordFails(t *testing.T) {
	keys := unrecordableKeys{memory.NewIdempotencyStore()}
	svc, store, _ := newTestService(t, Options{Idempotency: keys, IdempotencyTTL: time.Hour})
	ctx := context.Background()

	input := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150})
	input.IdempotencyKey = "flaky-redis"

	first, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	_, reserved, err := keys.Reserve(ctx, customer.UserID, "flaky-redis", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved, "key must not stay reserved without an order id")
	require.NoError(t, keys.Release(ctx, customer.UserID, "flaky-redis"))

	second, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.NotEqual(t, first.Order.ID, second.Order.ID)
}

func TestCreateOrder_IdempotencyKeyForDeletedOrder(t *testing.T) {
	keys := memory.NewIdempotencyStore()
	svc, store, _ := newTestService(t, Options{Idempotency: keys, IdempotencyTTL: time.Hour})
	ctx := context.Background()

	input := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150})
	input.IdempotencyKey = "reused-after-delete"

	first, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOrder(ctx, first.Order.ID, admin))

	second, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.False(t, second.Replayed)
	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, store.Len())

	third, err := svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.Equal(t, second.Order.ID, third.Order.ID)
}

func TestCreateOrder_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc, _, _ := newTestService(t, Options{Metrics: metrics})
	ctx := context.Background()

	placeOrder(t, svc)
	_, err := svc.CreateOrder(ctx, validInput())
	requireCode(t, err, domain.CodeEmptyOrder)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections.WithLabelValues(domain.CodeEmptyOrder)))
}

// --- Reads ---

func TestGetOrder_Visibility(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	o := placeOrder(t, svc)
	ctx := context.Background()

	_, err := svc.GetOrder(ctx, o.ID, customer)
	assert.NoError(t, err)

	_, err = svc.GetOrder(ctx, o.ID, admin)
	assert.NoError(t, err)

	_, errForeign := svc.GetOrder(ctx, o.ID, stranger)
	_, errMissing := svc.GetOrder(ctx, "no-such-order", customer)
	requireCode(t, errForeign, "NOT_FOUND")
	requireCode(t, errMissing, "NOT_FOUND")
}

func TestListOrdersForUser_NewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	first := placeOrder(t, svc)
	second := placeOrder(t, svc)

	other := validInput(CreateOrderItemInput{ProductID: latteID, Quantity: 1, Price: 150})
	other.UserID = stranger.UserID
	_, err := svc.CreateOrder(context.Background(), other)
	require.NoError(t, err)

	orders, err := svc.ListOrdersForUser(context.Background(), customer)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}

func TestListOrdersForUser_RequiresUser(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	_, err := svc.ListOrdersForUser(context.Background(), domain.Actor{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestListAllOrders(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	placeOrder(t, svc)
	placeOrder(t, svc)
	ctx := context.Background()

	t.Run("admin sees resolved orders", func(t *testing.T) {
		orders, total, err := svc.ListAllOrders(ctx, admin, repository.OrderFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, orders, 2)
		require.NotNil(t, orders[0].User)
		assert.Equal(t, "Mei Lin", orders[0].User.Name)
		require.NotNil(t, orders[0].Items[0].Product)
		assert.Equal(t, "Latte", orders[0].Items[0].Product.Name)
	})

	t.Run("customer is forbidden", func(t *testing.T) {
		_, _, err := svc.ListAllOrders(ctx, customer, repository.OrderFilter{})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("bad status filter", func(t *testing.T) {
		status := "lost"
		_, _, err := svc.ListAllOrders(ctx, admin, repository.OrderFilter{Status: &status})
		requireCode(t, err, domain.CodeInvalidStatus)
	})

	t.Run("status filter and paging", func(t *testing.T) {
		status := domain.OrderStatusPending
		orders, total, err := svc.ListAllOrders(ctx, admin, repository.OrderFilter{Status: &status, Page: 2, PerPage: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, orders, 1)
	})
}

// --- Status workflow ---

func TestSetStatus_AdminHappyPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc, store, pub := newTestService(t, Options{Metrics: metrics})
	o := placeOrder(t, svc)
	ctx := context.Background()

	for _, next := range []string{domain.OrderStatusProcessing, domain.OrderStatusShipping, domain.OrderStatusCompleted} {
		updated, err := svc.SetStatus(ctx, o.ID, next, admin)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}

	stored, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, stored.Status)
	require.Len(t, stored.StatusHistory, 4)
	assert.Equal(t, stored.Status, stored.StatusHistory[3].Status)
	assert.True(t, stored.UpdatedAt.After(stored.CreatedAt))

	pub.AssertCalled(t, "PublishOrderStatusChanged", mock.Anything, mock.Anything, domain.OrderStatusShipping)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues(domain.OrderStatusPending, domain.OrderStatusProcessing)))
}

func TestSetStatus_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown status", func(t *testing.T) {
		svc, _, _ := newTestService(t, Options{})
		o := placeOrder(t, svc)
		_, err := svc.SetStatus(ctx, o.ID, "refunded", admin)
		requireCode(t, err, domain.CodeInvalidStatus)
	})

	t.Run("unknown status checked before existence", func(t *testing.T) {
		svc, _, _ := newTestService(t, Options{})
		_, err := svc.SetStatus(ctx, "missing", "refunded", admin)
		requireCode(t, err, domain.CodeInvalidStatus)
	})

	t.Run("missing order", func(t *testing.T) {
		svc, _, _ := newTestService(t, Options{})
		_, err := svc.SetStatus(ctx, "missing", domain.OrderStatusProcessing, admin)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("admin skipping a stage", func(t *testing.T) {
		svc, _, _ := newTestService(t, Options{})
		o := placeOrder(t, svc)
		_, err := svc.SetStatus(ctx, o.ID, domain.OrderStatusCompleted, admin)
		requireCode(t, err, domain.CodeInvalidTransition)
	})

	t.Run("admin cannot cancel a shipping order", func(t *testing.T) {
		svc, _, _ := newTestService(t, Options{})
		o := placeOrder(t, svc)
		_, err := svc.SetStatus(ctx, o.ID, domain.OrderStatusProcessing, admin)
		require.NoError(t, err)
		_, err = svc.SetStatus(ctx, o.ID, domain.OrderStatusShipping, admin)
		require.NoError(t, err)
		_, err = svc.CancelOrder(ctx, o.ID, admin)
		requireCode(t, err, domain.CodeInvalidTransition)
	})

	t.Run("customer cannot advance", func(t *testing.T) {
		svc, _, _ := newTestService(t, Options{})
		o := placeOrder(t, svc)
		_, err := svc.SetStatus(ctx, o.ID, domain.OrderStatusProcessing, customer)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("stranger sees not found", func(t *testing.T) {
		svc, _, _ := newTestService(t, Options{})
		o := placeOrder(t, svc)
		_, err := svc.CancelOrder(ctx, o.ID, stranger)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestCancelOrder_Twice(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	o := placeOrder(t, svc)
	ctx := context.Background()

	cancelled, err := svc.CancelOrder(ctx, o.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Len(t, cancelled.StatusHistory, 2)
	assert.True(t, cancelled.StatusHistory[1].Timestamp.After(cancelled.StatusHistory[0].Timestamp))

	_, err = svc.CancelOrder(ctx, o.ID, customer)
	requireCode(t, err, domain.CodeOrderClosed)

	stored, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, stored.StatusHistory, 2)
}

func TestCancelOrder_CustomerNotPending(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	o := placeOrder(t, svc)
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, o.ID, domain.OrderStatusProcessing, admin)
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, o.ID, customer)
	requireCode(t, err, domain.CodeInvalidTransition)
}

func TestSetStatus_TerminalRejectsEveryTarget(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Options{})

	completed := placeOrder(t, svc)
	for _, s := range []string{domain.OrderStatusProcessing, domain.OrderStatusShipping, domain.OrderStatusCompleted} {
		_, err := svc.SetStatus(ctx, completed.ID, s, admin)
		require.NoError(t, err)
	}
	cancelled := placeOrder(t, svc)
	_, err := svc.CancelOrder(ctx, cancelled.ID, admin)
	require.NoError(t, err)

	for _, id := range []string{completed.ID, cancelled.ID} {
		for _, target := range domain.ValidStatuses() {
			for _, actor := range []domain.Actor{admin, customer} {
				_, err := svc.SetStatus(ctx, id, target, actor)
				requireCode(t, err, domain.CodeOrderClosed)
			}
		}
	}
}

func TestSetStatus_ConcurrentChange(t *testing.T) {
	repo := new(mockOrderRepository)
	pub := new(mockPublisher)
	svc := NewOrderService(repo, newCatalog(), pub, Options{}, newTestLogger())
	ctx := context.Background()

	o := domain.NewOrder("order-001", customer.UserID, clockStart)
	repo.On("GetByID", mock.Anything, "order-001").Return(o, nil)
	repo.On("UpdateStatus", mock.Anything, "order-001", domain.OrderStatusPending, mock.AnythingOfType("domain.StatusEntry")).
		Return(apperrors.ErrConflict)

	_, err := svc.CancelOrder(ctx, "order-001", customer)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	pub.AssertNotCalled(t, "PublishOrderStatusChanged", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

// --- DeleteOrder ---

func TestDeleteOrder(t *testing.T) {
	svc, store, pub := newTestService(t, Options{})
	o := placeOrder(t, svc)
	ctx := context.Background()

	err := svc.DeleteOrder(ctx, o.ID, customer)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, svc.DeleteOrder(ctx, o.ID, admin))
	assert.Equal(t, 0, store.Len())
	pub.AssertCalled(t, "PublishOrderDeleted", mock.Anything, mock.AnythingOfType("*domain.Order"))

	err = svc.DeleteOrder(ctx, o.ID, admin)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
