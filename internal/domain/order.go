package domain

import (
	"slices"
	"strings"
	"time"
)

// Order status constants.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipping   = "shipping"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// Order is a placed, priced purchase. After creation only Status and
// StatusHistory change.
type Order struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	User           *UserSummary  `json:"user,omitempty"`
	Items          []OrderItem   `json:"items"`
	SubtotalAmount int64         `json:"subtotalAmount"`
	DiscountAmount int64         `json:"discountAmount"`
	ShippingFee    int64         `json:"shippingFee"`
	TotalAmount    int64         `json:"totalAmount"`
	ShippingInfo   ShippingInfo  `json:"shippingInfo"`
	PaymentMethod  string        `json:"paymentMethod"`
	Status         string        `json:"status"`
	StatusHistory  []StatusEntry `json:"statusHistory"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// ShippingInfo is the recipient's contact data. All fields are required.
type ShippingInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Complete reports whether every field has a non-blank value.
func (s ShippingInfo) Complete() bool {
	return strings.TrimSpace(s.Name) != "" &&
		strings.TrimSpace(s.Phone) != "" &&
		strings.TrimSpace(s.Email) != ""
}

// StatusEntry is one record of the append-only status log.
type StatusEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// UserSummary is the placing user as shown in the admin order list.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// NewOrder builds a pending order with its first history entry.
func NewOrder(id, userID string, now time.Time) *Order {
	return &Order{
		ID:            id,
		UserID:        userID,
		Status:        OrderStatusPending,
		StatusHistory: []StatusEntry{{Status: OrderStatusPending, Timestamp: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusShipping,
		OrderStatusCompleted,
		OrderStatusCancelled,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	return slices.Contains(ValidStatuses(), status)
}

// AllowedTransitions defines which status transitions are valid.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipping, OrderStatusCancelled},
		OrderStatusShipping:   {OrderStatusCompleted},
		OrderStatusCompleted:  {},
		OrderStatusCancelled:  {},
	}
}

// IsTerminal reports whether status accepts no further transitions.
func IsTerminal(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusCancelled
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	return slices.Contains(AllowedTransitions()[o.Status], target)
}

// IsClosed reports whether the order is in a terminal status.
func (o *Order) IsClosed() bool {
	return IsTerminal(o.Status)
}

// ApplyStatus sets the status and appends the matching history entry. It
// does not check the transition; see CanTransitionTo.
func (o *Order) ApplyStatus(status string, at time.Time) StatusEntry {
	entry := StatusEntry{Status: status, Timestamp: at}
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, entry)
	o.UpdatedAt = at
	return entry
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}
