package domain

// OrderItem is a line of an order. Price and Name are captured from the
// catalog when the order is placed.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"-"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     int64           `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  int64           `json:"subtotal"`
	Product   *ProductSummary `json:"product,omitempty"`
}

// LineTotal returns the total price for this line item.
func (i *OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}
