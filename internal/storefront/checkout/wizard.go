// Package checkout drives the storefront's three-stage checkout: shipping
// details, payment method, then review and submit.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	"github.com/utafrali/coffeeshop/internal/storefront/cart"
	"github.com/utafrali/coffeeshop/internal/storefront/client"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
	"github.com/utafrali/coffeeshop/pkg/httpclient"
)

// Stage is a checkout step.
type Stage int

const (
	StageShipping Stage = iota + 1
	StagePayment
	StageReview
)

func (s Stage) String() string {
	switch s {
	case StageShipping:
		return "shipping"
	case StagePayment:
		return "payment"
	case StageReview:
		return "review"
	}
	return "unknown"
}

// TrackingPath is where a confirmed order can be followed.
const TrackingPath = "/order-tracking"

// genericFailure is shown when an error carries no user-readable message.
const genericFailure = "We could not place your order. Please try again."

// OrderSubmitter places an order. *client.Client satisfies it.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req client.CreateOrderRequest, idempotencyKey string) (*client.Order, error)
}

// Options configures a Wizard.
type Options struct {
	// PaymentMethods offered on the payment stage. Defaults to the shop's
	// cash-on-pickup locations.
	PaymentMethods []string
	OrderNumbering domain.OrderNumbering
}

// SummaryLine is one priced cart line on the review stage.
type SummaryLine struct {
	pricing.CartLine
	LineTotal int64 `json:"lineTotal"`
	Discount  int64 `json:"discount"`
}

// Summary is what the review stage shows.
type Summary struct {
	Lines         []SummaryLine       `json:"lines"`
	Totals        pricing.Totals      `json:"totals"`
	ShippingInfo  domain.ShippingInfo `json:"shippingInfo"`
	PaymentMethod string              `json:"paymentMethod"`
	PaymentLabel  string              `json:"paymentLabel"`
}

// Confirmation is the result of a successful submission.
type Confirmation struct {
	OrderNumber  string `json:"orderNumber"`
	OrderID      string `json:"orderId"`
	Total        int64  `json:"total"`
	TrackingPath string `json:"trackingPath"`
}

// Wizard is one checkout session over a cart. It is safe for concurrent use;
// a second Submit while one is in flight is rejected.
type Wizard struct {
	mu         sync.Mutex
	cart       *cart.Store
	submitter  OrderSubmitter
	methods    []string
	numbering  domain.OrderNumbering
	logger     *slog.Logger
	newKey     func() string
	stage      Stage
	shipping   domain.ShippingInfo
	payment    string
	lastErr    string
	key        string
	submitting bool
}

// NewWizard starts a checkout at the shipping stage.
func NewWizard(c *cart.Store, submitter OrderSubmitter, opts Options, logger *slog.Logger) *Wizard {
	methods := opts.PaymentMethods
	if len(methods) == 0 {
		methods = domain.DefaultPaymentMethods()
	}
	return &Wizard{
		cart:      c,
		submitter: submitter,
		methods:   methods,
		numbering: opts.OrderNumbering,
		logger:    logger,
		newKey:    uuid.NewString,
		stage:     StageShipping,
	}
}

// Stage returns the current step.
func (w *Wizard) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// PaymentMethods returns the options offered on the payment stage.
func (w *Wizard) PaymentMethods() []string {
	return slices.Clone(w.methods)
}

// SetShipping records the recipient. Surrounding whitespace is dropped.
func (w *Wizard) SetShipping(info domain.ShippingInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shipping = domain.ShippingInfo{
		Name:  strings.TrimSpace(info.Name),
		Phone: strings.TrimSpace(info.Phone),
		Email: strings.TrimSpace(info.Email),
	}
}

// SelectPayment records the chosen payment method, replacing any earlier one.
func (w *Wizard) SelectPayment(method string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payment = method
}

// Next advances one stage once the current stage validates.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.stage {
	case StageShipping:
		if w.cart.IsEmpty() {
			return domain.EmptyOrder()
		}
		if !w.shipping.Complete() {
			return domain.IncompleteShippingInfo()
		}
		w.stage = StagePayment
	case StagePayment:
		if !domain.IsAllowedPaymentMethod(w.payment, w.methods) {
			return domain.InvalidPaymentMethod(w.payment, w.methods)
		}
		w.stage = StageReview
		w.lastErr = ""
	default:
		return apperrors.InvalidInput("review is the last checkout stage, submit the order instead")
	}
	return nil
}

// Back returns to the previous stage. On the first stage it does nothing.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage > StageShipping {
		w.stage--
	}
	// The cart or details may change before the next review, so a later
	// submission is a new order.
	w.key = ""
	w.lastErr = ""
}

// Summary prices the live cart for the review stage.
func (w *Wizard) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summaryLocked()
}

func (w *Wizard) summaryLocked() Summary {
	lines := w.cart.Lines()
	out := Summary{
		Lines:         make([]SummaryLine, 0, len(lines)),
		Totals:        w.cart.Totals(),
		ShippingInfo:  w.shipping,
		PaymentMethod: w.payment,
		PaymentLabel:  domain.PaymentLabel(w.payment),
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, SummaryLine{
			CartLine:  l,
			LineTotal: l.LineTotal(),
			Discount:  w.cart.LineDiscount(l),
		})
	}
	return out
}

// LastError is the user-readable message of the last failed submission.
func (w *Wizard) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Submit places the order shown by Summary. On success the cart is cleared
// and the wizard starts over. On failure the cart is kept, the wizard stays
// on review and LastError explains what went wrong.
func (w *Wizard) Submit(ctx context.Context) (*Confirmation, error) {
	w.mu.Lock()
	if w.stage != StageReview {
		w.mu.Unlock()
		return nil, apperrors.InvalidInput("checkout is not ready for review yet")
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, apperrors.Conflict("the order is already being submitted")
	}
	if w.key == "" {
		w.key = w.newKey()
	}
	req := w.requestLocked()
	key := w.key
	w.submitting = true
	w.mu.Unlock()

	var (
		order *client.Order
		err   error
	)
	if len(req.Items) == 0 {
		err = domain.EmptyOrder()
	} else {
		order, err = w.submitter.CreateOrder(ctx, req, key)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if err != nil {
		w.lastErr = userMessage(err)
		w.logger.WarnContext(ctx, "order submission failed",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if clearErr := w.cart.Clear(); clearErr != nil {
		w.logger.ErrorContext(ctx, "failed to clear cart after order",
			slog.String("order_id", order.ID),
			slog.String("error", clearErr.Error()),
		)
	}

	number := order.OrderNumber
	if number == "" {
		number = w.numbering.Format(order.ID, order.CreatedAt)
	}
	conf := &Confirmation{
		OrderNumber:  number,
		OrderID:      order.ID,
		Total:        order.TotalAmount,
		TrackingPath: TrackingPath + "?order=" + url.QueryEscape(number),
	}

	w.stage = StageShipping
	w.payment = ""
	w.key = ""
	w.lastErr = ""

	w.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("order_number", number),
	)
	return conf, nil
}

func (w *Wizard) requestLocked() client.CreateOrderRequest {
	lines := w.cart.Lines()
	items := make([]client.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, client.OrderItem{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.UnitPrice})
	}
	return client.CreateOrderRequest{
		Items:         items,
		ShippingInfo:  w.shipping,
		PaymentMethod: w.payment,
	}
}

func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" && httpclient.IsClientError(appErr.Status) {
		return appErr.Message
	}
	return genericFailure
}
