// Package catalog caches the product listing for the lifetime of the app session.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/state"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DetailTimeout bounds a shared product detail fetch, which outlives any one caller's context
const DetailTimeout = 30 * time.Second

var (
	ErrLoadFailed      = errors.New("failed to load products")
	ErrProductNotFound = errors.New("product not found")
)

// Fetcher reads products from the backend
type Fetcher interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Cache holds the product list, replaced wholesale by LoadAll
type Cache struct {
	mu       sync.RWMutex
	products []domain.Product
	index    map[string]int
	loadedAt time.Time

	fetcher  Fetcher
	app      *state.Store
	notifier notify.Notifier
	detail   singleflight.Group
	timeout  time.Duration
	logger   *zap.Logger
}

// NewCache creates an empty cache
func NewCache(fetcher Fetcher, app *state.Store, notifier notify.Notifier, logger *zap.Logger) *Cache {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fetcher:  fetcher,
		app:      app,
		notifier: notifier,
		index:    make(map[string]int),
		timeout:  DetailTimeout,
		logger:   logger,
	}
}

// LoadAll fetches the full product list and replaces the cache.
// On failure the previous contents are kept and the error wraps ErrLoadFailed.
func (c *Cache) LoadAll(ctx context.Context) error {
	products, err := c.fetcher.ListProducts(ctx)
	if err != nil {
		c.logger.Error("Failed to load products", zap.Error(err))
		c.notifier.Notify(notify.LevelError, "Failed to load products")
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	index := make(map[string]int, len(products))
	for i, p := range products {
		index[p.ID] = i
	}

	c.mu.Lock()
	c.products = products
	c.index = index
	c.loadedAt = time.Now()
	c.mu.Unlock()

	if c.app != nil {
		c.app.Dispatch(state.CatalogLoaded{Products: products})
	}

	c.logger.Info("Catalog loaded", zap.Int("products", len(products)))
	return nil
}

// Products returns a copy of the cached list
func (c *Cache) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Product(nil), c.products...)
}

// LoadedAt returns when the cache was last replaced
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Lookup returns the cached product without touching the network
func (c *Cache) Lookup(id string) (domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return domain.Product{}, false
	}
	return c.products[i], true
}

// Price returns the current cached price of a product
func (c *Cache) Price(id string) (int64, bool) {
	p, ok := c.Lookup(id)
	if !ok {
		return 0, false
	}
	return p.Price, true
}

// GetByID returns the cached product when it carries full detail, otherwise it
// fetches the product. Fetched detail is not merged back into the cache.
func (c *Cache) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if p, ok := c.Lookup(id); ok && p.HasDetail() {
		return &p, nil
	}
	return c.Detail(ctx, id)
}

// Detail always fetches the product from the backend.
// Concurrent requests for the same id share one call; a caller whose context
// ends stops waiting without canceling the fetch for the others.
func (c *Cache) Detail(ctx context.Context, id string) (*domain.Product, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.detail.DoChan(id, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(fetchCtx, c.timeout)
		defer cancel()
		return c.fetcher.GetProduct(ctx, id)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		c.logger.Debug("Product detail fetch failed", zap.String("product_id", id), zap.Error(res.Err))
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, res.Err)
	}

	p := *res.Val.(*domain.Product)
	p.Reviews = append([]domain.Review{}, p.Reviews...)
	return &p, nil
}

// Filter returns cached products matching the optional category, sub-category and bestseller flags
func (c *Cache) Filter(category, subCategory string, bestsellerOnly bool) []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Product
	for _, p := range c.products {
		if category != "" && p.Category != category {
			continue
		}
		if subCategory != "" && p.SubCategory != subCategory {
			continue
		}
		if bestsellerOnly && !p.Bestseller {
			continue
		}
		out = append(out, p)
	}
	return out
}
