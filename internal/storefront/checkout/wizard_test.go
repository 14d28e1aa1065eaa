package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	"github.com/utafrali/coffeeshop/internal/storefront/cart"
	"github.com/utafrali/coffeeshop/internal/storefront/client"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) CreateOrder(ctx context.Context, req client.CreateOrderRequest, key string) (*client.Order, error) {
	args := m.Called(ctx, req, key)
	o, _ := args.Get(0).(*client.Order)
	return o, args.Error(1)
}

var (
	latte      = domain.Product{ID: "prod-latte", Name: "Latte", Price: 150}
	filterPack = domain.Product{ID: "prod-filter", Name: "Filter Pack", Price: 50}
	shipping   = domain.ShippingInfo{Name: "Mei Lin", Phone: "0912345678", Email: "mei@example.com"}
)

func newWizard(t *testing.T) (*Wizard, *cart.Store, *mockSubmitter) {
	t.Helper()
	store, err := cart.NewStore(cart.NewMemoryStorage(),
		cart.WithDiscount(pricing.DiscountRule{ProductName: "Filter Pack", QualifyingQuantity: 2, DiscountPerGroup: 10}))
	require.NoError(t, err)

	sub := new(mockSubmitter)
	w := NewWizard(store, sub, Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n := 0
	w.newKey = func() string {
		n++
		return "key-" + string(rune('0'+n))
	}
	return w, store, sub
}

func fillCart(t *testing.T, store *cart.Store) {
	t.Helper()
	require.NoError(t, store.AddItem(latte))
	for range 4 {
		require.NoError(t, store.AddItem(filterPack))
	}
}

func toReview(t *testing.T, w *Wizard) {
	t.Helper()
	w.SetShipping(shipping)
	require.NoError(t, w.Next())
	w.SelectPayment(domain.PaymentCashTaipei)
	require.NoError(t, w.Next())
	require.Equal(t, StageReview, w.Stage())
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

// ============================================================================
// Stage transitions
// ============================================================================

func TestNext_ShippingValidation(t *testing.T) {
	tests := []struct {
		name string
		info domain.ShippingInfo
	}{
		{name: "missing name", info: domain.ShippingInfo{Phone: "1", Email: "a@b.c"}},
		{name: "missing phone", info: domain.ShippingInfo{Name: "A", Email: "a@b.c"}},
		{name: "missing email", info: domain.ShippingInfo{Name: "A", Phone: "1"}},
		{name: "whitespace only", info: domain.ShippingInfo{Name: "  ", Phone: "1", Email: "a@b.c"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, store, _ := newWizard(t)
			fillCart(t, store)
			w.SetShipping(tc.info)

			err := w.Next()

			requireCode(t, err, domain.CodeIncompleteShippingInfo)
			assert.Equal(t, StageShipping, w.Stage())
		})
	}
}

func TestNext_EmptyCartCannotStart(t *testing.T) {
	w, _, _ := newWizard(t)
	w.SetShipping(shipping)

	requireCode(t, w.Next(), domain.CodeEmptyOrder)
	assert.Equal(t, StageShipping, w.Stage())
}

func TestNext_PaymentValidation(t *testing.T) {
	w, store, _ := newWizard(t)
	fillCart(t, store)
	w.SetShipping(shipping)
	require.NoError(t, w.Next())
	require.Equal(t, StagePayment, w.Stage())

	requireCode(t, w.Next(), domain.CodeInvalidPaymentMethod)

	w.SelectPayment("credit-card")
	requireCode(t, w.Next(), domain.CodeInvalidPaymentMethod)
	assert.Equal(t, StagePayment, w.Stage())

	w.SelectPayment(domain.PaymentCashSanchong)
	require.NoError(t, w.Next())
	assert.Equal(t, StageReview, w.Stage())
}

func TestNext_ReviewIsLast(t *testing.T) {
	w, store, _ := newWizard(t)
	fillCart(t, store)
	toReview(t, w)

	assert.ErrorIs(t, w.Next(), apperrors.ErrInvalidInput)
	assert.Equal(t, StageReview, w.Stage())
}

func TestBack(t *testing.T) {
	w, store, _ := newWizard(t)
	fillCart(t, store)

	w.Back()
	assert.Equal(t, StageShipping, w.Stage(), "back on the first stage is a no-op")

	toReview(t, w)
	w.Back()
	assert.Equal(t, StagePayment, w.Stage())
	w.Back()
	assert.Equal(t, StageShipping, w.Stage())
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "shipping", StageShipping.String())
	assert.Equal(t, "payment", StagePayment.String())
	assert.Equal(t, "review", StageReview.String())
	assert.Equal(t, "unknown", Stage(9).String())
}

// ============================================================================
// Review and submit
// ============================================================================

func TestSummary_PricesLiveCart(t *testing.T) {
	w, store, _ := newWizard(t)
	fillCart(t, store)
	toReview(t, w)

	s := w.Summary()

	assert.Equal(t, pricing.Totals{Subtotal: 350, Discount: 20, Total: 330}, s.Totals)
	require.Len(t, s.Lines, 2)
	assert.Equal(t, int64(150), s.Lines[0].LineTotal)
	assert.Equal(t, int64(0), s.Lines[0].Discount)
	assert.Equal(t, int64(200), s.Lines[1].LineTotal)
	assert.Equal(t, int64(20), s.Lines[1].Discount)
	assert.Equal(t, shipping, s.ShippingInfo)
	assert.Equal(t, "Cash on pickup - Taipei Main Station", s.PaymentLabel)

	// The summary follows cart edits made after reaching review.
	require.NoError(t, store.UpdateQuantity(filterPack.ID, -1))
	assert.Equal(t, int64(290), w.Summary().Totals.Total)
}

func TestSubmit_Success(t *testing.T) {
	w, store, sub := newWizard(t)
	fillCart(t, store)
	toReview(t, w)

	created := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	wantReq := client.CreateOrderRequest{
		Items: []client.OrderItem{
			{ProductID: "prod-latte", Quantity: 1, Price: 150},
			{ProductID: "prod-filter", Quantity: 4, Price: 50},
		},
		ShippingInfo:  shipping,
		PaymentMethod: domain.PaymentCashTaipei,
	}
	sub.On("CreateOrder", mock.Anything, wantReq, "key-1").Return(&client.Order{
		Order: domain.Order{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", TotalAmount: 330, Status: domain.OrderStatusPending, CreatedAt: created},
	}, nil).Once()

	conf, err := w.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &Confirmation{
		OrderNumber:  "CF26101728950e",
		OrderID:      "0f8fad5b-d9cb-469f-a165-70867728950e",
		Total:        330,
		TrackingPath: "/order-tracking?order=CF26101728950e",
	}, conf)
	assert.True(t, store.IsEmpty())
	assert.Equal(t, StageShipping, w.Stage())
	assert.Empty(t, w.LastError())
	sub.AssertExpectations(t)
}

func TestSubmit_FailureKeepsCartAndStage(t *testing.T) {
	w, store, sub := newWizard(t)
	fillCart(t, store)
	toReview(t, w)

	sub.On("CreateOrder", mock.Anything, mock.Anything, "key-1").
		Return(nil, domain.PriceMismatch("Latte")).Once()

	conf, err := w.Submit(context.Background())

	assert.Nil(t, conf)
	requireCode(t, err, domain.CodePriceMismatch)
	assert.Equal(t, "price of Latte has changed, please refresh your cart", w.LastError())
	assert.Equal(t, StageReview, w.Stage())
	assert.Equal(t, 5, store.Count())
}

func TestSubmit_RetryReusesKeyUntilBack(t *testing.T) {
	w, store, sub := newWizard(t)
	fillCart(t, store)
	toReview(t, w)

	sub.On("CreateOrder", mock.Anything, mock.Anything, "key-1").
		Return(nil, errors.New("connection reset")).Twice()
	sub.On("CreateOrder", mock.Anything, mock.Anything, "key-2").
		Return(nil, errors.New("connection reset")).Once()

	_, err := w.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, genericFailure, w.LastError())

	_, err = w.Submit(context.Background())
	require.Error(t, err)

	w.Back()
	assert.Empty(t, w.LastError())
	require.NoError(t, w.Next())
	_, err = w.Submit(context.Background())
	require.Error(t, err)

	sub.AssertExpectations(t)
}

func TestSubmit_ServerErrorHidesDetail(t *testing.T) {
	w, store, sub := newWizard(t)
	fillCart(t, store)
	toReview(t, w)

	sub.On("CreateOrder", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.Internal(errors.New("pq: relation missing"))).Once()

	_, err := w.Submit(context.Background())

	require.Error(t, err)
	assert.Equal(t, genericFailure, w.LastError())
}

func TestSubmit_NotOnReview(t *testing.T) {
	w, store, sub := newWizard(t)
	fillCart(t, store)

	_, err := w.Submit(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	sub.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_CartEmptiedOnReview(t *testing.T) {
	w, store, sub := newWizard(t)
	fillCart(t, store)
	toReview(t, w)
	require.NoError(t, store.Clear())

	_, err := w.Submit(context.Background())

	requireCode(t, err, domain.CodeEmptyOrder)
	assert.Equal(t, "order must contain at least one item", w.LastError())
	sub.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_InFlightDuplicateRejected(t *testing.T) {
	w, store, sub := newWizard(t)
	fillCart(t, store)
	toReview(t, w)

	release := make(chan struct{})
	entered := make(chan struct{})
	sub.On("CreateOrder", mock.Anything, mock.Anything, "key-1").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&client.Order{Order: domain.Order{ID: "abcdef123456", CreatedAt: time.Now()}}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-entered

	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	close(release)
	require.NoError(t, <-done)
	sub.AssertExpectations(t)
}

func TestOptions_CustomPaymentMethodsAndPrefix(t *testing.T) {
	store, err := cart.NewStore(cart.NewMemoryStorage())
	require.NoError(t, err)
	sub := new(mockSubmitter)
	w := NewWizard(store, sub, Options{PaymentMethods: []string{"cash-taipei"}, OrderNumbering: domain.OrderNumbering{Prefix: "KF"}},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, []string{"cash-taipei"}, w.PaymentMethods())

	require.NoError(t, store.AddItem(latte))
	w.SetShipping(shipping)
	require.NoError(t, w.Next())
	w.SelectPayment(domain.PaymentCashSanchong)
	requireCode(t, w.Next(), domain.CodeInvalidPaymentMethod)
	w.SelectPayment(domain.PaymentCashTaipei)
	require.NoError(t, w.Next())

	sub.On("CreateOrder", mock.Anything, mock.Anything, mock.Anything).
		Return(&client.Order{Order: domain.Order{ID: "abcdef123456", TotalAmount: 150, CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}}, nil)

	conf, err := w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "KF260102123456", conf.OrderNumber)
}

func TestSubmit_OrderNumberDate(t *testing.T) {
	taipei := time.FixedZone("CST", 8*3600)
	created := time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		returned client.Order
		want     string
	}{
		{
			name:     "derived in shop time zone",
			returned: client.Order{Order: domain.Order{ID: "abcdef123456", CreatedAt: created}},
			want:     "CF260103123456",
		},
		{
			name:     "server number wins",
			returned: client.Order{Order: domain.Order{ID: "abcdef123456", CreatedAt: created}, OrderNumber: "CF260102123456"},
			want:     "CF260102123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := cart.NewStore(cart.NewMemoryStorage())
			require.NoError(t, err)
			sub := new(mockSubmitter)
			w := NewWizard(store, sub, Options{OrderNumbering: domain.OrderNumbering{Prefix: "CF", Location: taipei}},
				slog.New(slog.NewTextHandler(io.Discard, nil)))

			require.NoError(t, store.AddItem(latte))
			w.SetShipping(shipping)
			require.NoError(t, w.Next())
			w.SelectPayment(domain.PaymentCashTaipei)
			require.NoError(t, w.Next())

			returned := tt.returned
			sub.On("CreateOrder", mock.Anything, mock.Anything, mock.Anything).Return(&returned, nil)

			conf, err := w.Submit(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, conf.OrderNumber)
		})
	}
}
