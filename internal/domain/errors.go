package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

// Error codes returned to API clients.
const (
	CodeEmptyOrder             = "EMPTY_ORDER"
	CodeIncompleteShippingInfo = "INCOMPLETE_SHIPPING_INFO"
	CodeInvalidPaymentMethod   = "INVALID_PAYMENT_METHOD"
	CodeInvalidQuantity        = "INVALID_QUANTITY"
	CodeProductNotFound        = "PRODUCT_NOT_FOUND"
	CodePriceMismatch          = "PRICE_MISMATCH"
	CodeInvalidStatus          = "INVALID_STATUS"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeOrderClosed            = "ORDER_CLOSED"
)

// Sentinels for order rule violations. Each wraps apperrors.ErrInvalidInput.
var (
	ErrEmptyOrder             = fmt.Errorf("empty order: %w", apperrors.ErrInvalidInput)
	ErrIncompleteShippingInfo = fmt.Errorf("incomplete shipping info: %w", apperrors.ErrInvalidInput)
	ErrInvalidPaymentMethod   = fmt.Errorf("invalid payment method: %w", apperrors.ErrInvalidInput)
	ErrInvalidQuantity        = fmt.Errorf("invalid quantity: %w", apperrors.ErrInvalidInput)
	ErrProductNotFound        = fmt.Errorf("product not found: %w", apperrors.ErrInvalidInput)
	ErrPriceMismatch          = fmt.Errorf("price mismatch: %w", apperrors.ErrInvalidInput)
	ErrInvalidStatus          = fmt.Errorf("invalid status: %w", apperrors.ErrInvalidInput)
	ErrInvalidTransition      = fmt.Errorf("invalid transition: %w", apperrors.ErrInvalidInput)
	ErrOrderClosed            = fmt.Errorf("order closed: %w", apperrors.ErrInvalidInput)
)

func EmptyOrder() *apperrors.AppError {
	return apperrors.Validation(CodeEmptyOrder, "order must contain at least one item", ErrEmptyOrder)
}

func IncompleteShippingInfo() *apperrors.AppError {
	return apperrors.Validation(CodeIncompleteShippingInfo,
		"shipping name, phone and email are required", ErrIncompleteShippingInfo)
}

func InvalidPaymentMethod(method string, allowed []string) *apperrors.AppError {
	msg := "a payment method must be selected"
	if method != "" {
		msg = fmt.Sprintf("payment method %q is not one of: %s", method, strings.Join(allowed, ", "))
	}
	return apperrors.Validation(CodeInvalidPaymentMethod, msg, ErrInvalidPaymentMethod)
}

func InvalidQuantity(productID string) *apperrors.AppError {
	return apperrors.Validation(CodeInvalidQuantity,
		fmt.Sprintf("quantity for product %s must be at least 1", productID), ErrInvalidQuantity)
}

func ProductNotFound(productID string) *apperrors.AppError {
	return apperrors.Validation(CodeProductNotFound,
		fmt.Sprintf("product %s not found", productID), ErrProductNotFound)
}

// PriceMismatch names the product so the shopper knows which cart line is stale.
func PriceMismatch(productName string) *apperrors.AppError {
	return apperrors.Validation(CodePriceMismatch,
		fmt.Sprintf("price of %s has changed, please refresh your cart", productName), ErrPriceMismatch)
}

func InvalidStatus(status string) *apperrors.AppError {
	return apperrors.Validation(CodeInvalidStatus,
		fmt.Sprintf("invalid status %q, must be one of: %s", status, strings.Join(ValidStatuses(), ", ")), ErrInvalidStatus)
}

func InvalidTransition(from, to string) *apperrors.AppError {
	return apperrors.Validation(CodeInvalidTransition,
		fmt.Sprintf("cannot transition order from %q to %q", from, to), ErrInvalidTransition)
}

func OrderClosed(status string) *apperrors.AppError {
	return apperrors.Validation(CodeOrderClosed,
		fmt.Sprintf("order is %s and can no longer change", status), ErrOrderClosed)
}
