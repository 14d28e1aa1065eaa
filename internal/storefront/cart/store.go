// Package cart holds the storefront's shopping cart. A Store is owned by the
// caller (one per browsing session or device) and persists its full line list
// through a Storage port after every mutation.
package cart

import (
	"fmt"
	"slices"
	"sync"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

// MaxQuantityPerLine caps a single line so a stuck "+" button cannot build an
// order the shop would never fill.
const MaxQuantityPerLine = 100

// ChangeFunc is called with fresh totals after every successful mutation.
type ChangeFunc func(lines []pricing.CartLine, totals pricing.Totals)

// Store is a shopping cart bound to a Storage. It is safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	lines       []pricing.CartLine
	storage     Storage
	rule        pricing.DiscountRule
	shippingFee int64
	onChange    ChangeFunc
}

// Option configures a Store.
type Option func(*Store)

// WithDiscount sets the multi-buy rule applied by Totals.
func WithDiscount(rule pricing.DiscountRule) Option {
	return func(s *Store) { s.rule = rule }
}

// WithShippingFee sets the flat fee added by Totals.
func WithShippingFee(fee int64) Option {
	return func(s *Store) { s.shippingFee = fee }
}

// OnChange registers fn as the re-render hook.
func OnChange(fn ChangeFunc) Option {
	return func(s *Store) { s.onChange = fn }
}

// NewStore loads any previously saved lines from storage.
func NewStore(storage Storage, opts ...Option) (*Store, error) {
	s := &Store{storage: storage}
	for _, opt := range opts {
		opt(s)
	}

	lines, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	s.lines = lines
	return s, nil
}

// AddItem puts one unit of p in the cart. Lines are keyed by product name, so
// adding a product whose name is already in the cart increments that line.
func (s *Store) AddItem(p domain.Product) error {
	if p.ID == "" || p.Name == "" {
		return apperrors.InvalidInput("product id and name are required")
	}
	if p.Price < 0 {
		return apperrors.InvalidInput("price must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.lines)
	if i := indexByName(next, p.Name); i >= 0 {
		if next[i].Quantity >= MaxQuantityPerLine {
			return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
		}
		next[i].Quantity++
	} else {
		next = append(next, pricing.CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  1,
			ImageURL:  p.ImageURL,
		})
	}
	return s.commit(next)
}

// RemoveItem drops the line for productID. Removing an absent line is a no-op.
func (s *Store) RemoveItem(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.lines, productID)
	if i < 0 {
		return nil
	}
	return s.commit(slices.Delete(slices.Clone(s.lines), i, i+1))
}

// UpdateQuantity adds delta to the line's quantity and removes the line when
// the result drops to zero or below.
func (s *Store) UpdateQuantity(productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.lines, productID)
	if i < 0 {
		return apperrors.NotFound("cart line", productID)
	}

	next := slices.Clone(s.lines)
	qty := next[i].Quantity + delta
	switch {
	case qty <= 0:
		next = slices.Delete(next, i, i+1)
	case qty > MaxQuantityPerLine:
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	default:
		next[i].Quantity = qty
	}
	return s.commit(next)
}

// Clear empties the cart and its persisted copy.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Clear(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.lines = nil
	s.notify()
	return nil
}

// Lines returns a copy of the cart's lines in insertion order.
func (s *Store) Lines() []pricing.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

// Totals prices the current lines.
func (s *Store) Totals() pricing.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.ComputeCartTotals(s.lines, s.rule, s.shippingFee)
}

// LineDiscount returns what line earns under the store's discount rule.
func (s *Store) LineDiscount(line pricing.CartLine) int64 {
	return pricing.LineDiscount(line, s.rule)
}

// Count returns the number of units in the cart, for the header badge.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

// commit persists next and only then makes it the live state, so a failed
// save leaves the cart as it was. Callers hold s.mu.
func (s *Store) commit(next []pricing.CartLine) error {
	if err := s.storage.Save(next); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	s.lines = next
	s.notify()
	return nil
}

func (s *Store) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(slices.Clone(s.lines), pricing.ComputeCartTotals(s.lines, s.rule, s.shippingFee))
}

func indexByName(lines []pricing.CartLine, name string) int {
	return slices.IndexFunc(lines, func(l pricing.CartLine) bool { return l.Name == name })
}

func indexByID(lines []pricing.CartLine, productID string) int {
	return slices.IndexFunc(lines, func(l pricing.CartLine) bool { return l.ProductID == productID })
}
