// Package pricing computes cart and order totals. The same functions back the
// storefront's cart summary and order creation, so a displayed total and a
// persisted total can never disagree.
package pricing

// CartLine is one product entry in a cart. Amounts are integer currency units.
type CartLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// LineTotal returns UnitPrice × Quantity.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// DiscountRule grants DiscountPerGroup off every QualifyingQuantity units of
// the product named ProductName.
type DiscountRule struct {
	ProductName        string `json:"productName"`
	QualifyingQuantity int    `json:"qualifyingQuantity"`
	DiscountPerGroup   int64  `json:"discountPerGroup"`
}

// Enabled reports whether the rule can ever produce a discount.
func (r DiscountRule) Enabled() bool {
	return r.ProductName != "" && r.QualifyingQuantity > 0 && r.DiscountPerGroup > 0
}

// Totals is a priced cart.
type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	Discount    int64 `json:"discount"`
	ShippingFee int64 `json:"shippingFee"`
	Total       int64 `json:"total"`
}

// LineDiscount returns the discount one line earns under rule. Lines for other
// products, or below the qualifying quantity, earn nothing.
func LineDiscount(line CartLine, rule DiscountRule) int64 {
	if !rule.Enabled() || line.Name != rule.ProductName || line.Quantity < rule.QualifyingQuantity {
		return 0
	}
	groups := line.Quantity / rule.QualifyingQuantity
	return int64(groups) * rule.DiscountPerGroup
}

// ComputeCartTotals prices lines: subtotal minus discount plus shippingFee.
// An empty cart totals to shippingFee.
func ComputeCartTotals(lines []CartLine, rule DiscountRule, shippingFee int64) Totals {
	t := Totals{ShippingFee: shippingFee}
	for _, line := range lines {
		t.Subtotal += line.LineTotal()
		t.Discount += LineDiscount(line, rule)
	}
	t.Total = t.Subtotal - t.Discount + t.ShippingFee
	return t
}
