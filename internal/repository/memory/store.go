// Package memory keeps orders, products and users in process memory. It backs
// STORAGE_DRIVER=memory for local runs and end-to-end tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/repository"
	apperrors "github.com/utafrali/coffeeshop/pkg/errors"
)

var (
	_ repository.OrderRepository = (*Store)(nil)
	_ repository.ProductCatalog  = (*Store)(nil)
)

// Store implements repository.OrderRepository and repository.ProductCatalog.
type Store struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	products map[string]domain.Product
	users    map[string]domain.UserSummary
}

func NewStore() *Store {
	return &Store{
		orders:   make(map[string]*domain.Order),
		products: make(map[string]domain.Product),
		users:    make(map[string]domain.UserSummary),
	}
}

// PutProduct adds or replaces a catalog product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutUser adds or replaces a user shown in detailed listings.
func (s *Store) PutUser(u domain.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &p, nil
}

func (s *Store) Create(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return apperrors.AlreadyExists("order", "id", o.ID)
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) List(_ context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders, total := s.list(filter)
	return orders, total, nil
}

func (s *Store) ListDetailed(_ context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders, total := s.list(filter)
	for i := range orders {
		u, ok := s.users[orders[i].UserID]
		if !ok {
			u = domain.UserSummary{ID: orders[i].UserID}
		}
		orders[i].User = &u
		for j := range orders[i].Items {
			if p, ok := s.products[orders[i].Items[j].ProductID]; ok {
				orders[i].Items[j].Product = p.Summary()
			}
		}
	}
	return orders, total, nil
}

// list must be called with s.mu held.
func (s *Store) list(filter repository.OrderFilter) ([]domain.Order, int) {
	matched := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		matched = append(matched, *cloneOrder(o))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.PerPage <= 0 {
		return matched, total
	}
	start := min(filter.Offset(), total)
	end := min(start+filter.PerPage, total)
	return matched[start:end], total
}

func (s *Store) UpdateStatus(_ context.Context, id, from string, entry domain.StatusEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return apperrors.NotFound("order", id)
	}
	if o.Status != from {
		return apperrors.Conflict("order status changed concurrently")
	}
	o.ApplyStatus(entry.Status, entry.Timestamp)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return apperrors.NotFound("order", id)
	}
	delete(s.orders, id)
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	for i := range c.Items {
		c.Items[i].Product = nil
	}
	c.StatusHistory = append([]domain.StatusEntry(nil), o.StatusHistory...)
	c.User = nil
	if c.Items == nil {
		c.Items = []domain.OrderItem{}
	}
	return &c
}
