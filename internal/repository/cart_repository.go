package repository

import (
	"context"
	"sync"

	"storefront/internal/domain"
)

// CartRepository stores one cart per user
type CartRepository interface {
	Get(ctx context.Context, userID string) ([]domain.CartLine, error)
	// Update replaces the user's cart with the result of fn, atomically
	Update(ctx context.Context, userID string, fn func(lines []domain.CartLine) ([]domain.CartLine, error)) ([]domain.CartLine, error)
}

type cartRepository struct {
	mu    sync.Mutex
	carts map[string][]domain.CartLine
}

// NewCartRepository creates an in-memory CartRepository
func NewCartRepository() CartRepository {
	return &cartRepository{carts: make(map[string][]domain.CartLine)}
}

func (r *cartRepository) Get(ctx context.Context, userID string) ([]domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CartLine{}, r.carts[userID]...), nil
}

func (r *cartRepository) Update(ctx context.Context, userID string, fn func(lines []domain.CartLine) ([]domain.CartLine, error)) ([]domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines, err := fn(append([]domain.CartLine{}, r.carts[userID]...))
	if err != nil {
		return nil, err
	}
	r.carts[userID] = lines
	return append([]domain.CartLine{}, lines...), nil
}
