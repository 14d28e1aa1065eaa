package domain

import "slices"

// Payment methods offered by the shop: cash on pickup at one of two stores.
const (
	PaymentCashTaipei   = "cash-taipei"
	PaymentCashSanchong = "cash-sanchong"
)

// DefaultPaymentMethods is the enumerated set used when none is configured.
func DefaultPaymentMethods() []string {
	return []string{PaymentCashTaipei, PaymentCashSanchong}
}

var paymentLabels = map[string]string{
	PaymentCashTaipei:   "Cash on pickup - Taipei Main Station",
	PaymentCashSanchong: "Cash on pickup - Sanchong",
}

// PaymentLabel returns the display label for method, or method itself when
// no label is known.
func PaymentLabel(method string) string {
	if l, ok := paymentLabels[method]; ok {
		return l
	}
	return method
}

// IsAllowedPaymentMethod reports whether method is non-empty and in allowed.
func IsAllowedPaymentMethod(method string, allowed []string) bool {
	return method != "" && slices.Contains(allowed, method)
}
