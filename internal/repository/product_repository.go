package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"storefront/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrReviewNotFound  = errors.New("review not found")
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	// Update applies fn to the stored product under the repository lock
	Update(ctx context.Context, id string, fn func(p *domain.Product) error) error
}

type productRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

// NewProductRepository creates an in-memory ProductRepository
func NewProductRepository() ProductRepository {
	return &productRepository{products: make(map[string]*domain.Product)}
}

func cloneProduct(p *domain.Product) domain.Product {
	cp := *p
	cp.Sizes = append([]domain.Size(nil), p.Sizes...)
	cp.Images = append([]string(nil), p.Images...)
	cp.Reviews = make([]domain.Review, len(p.Reviews))
	for i, r := range p.Reviews {
		cp.Reviews[i] = r
		cp.Reviews[i].ReviewImages = append([]string(nil), r.ReviewImages...)
		if r.AdminReply != nil {
			reply := *r.AdminReply
			cp.Reviews[i].AdminReply = &reply
		}
	}
	return cp
}

// Create stores a product, replacing any with the same id
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := cloneProduct(product)
	r.products[product.ID] = &cp
	return nil
}

// FindByID retrieves a product with its reviews
func (r *productRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := cloneProduct(p)
	return &cp, nil
}

// List returns every product, newest first
func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, cloneProduct(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update runs fn on a copy of the product and stores it if fn succeeds
func (r *productRepository) Update(ctx context.Context, id string, fn func(p *domain.Product) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	cp := cloneProduct(p)
	if err := fn(&cp); err != nil {
		return err
	}
	r.products[id] = &cp
	return nil
}
