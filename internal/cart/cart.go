// Package cart keeps the user's cart in sync with the backend.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/api"
	"storefront/internal/domain"
	"storefront/internal/kvstore"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	"storefront/internal/state"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	ErrValidation = errors.New("invalid cart request")
)

// Backend is the cart part of the REST API
type Backend interface {
	GetCart(ctx context.Context) ([]domain.CartLine, error)
	AddToCart(ctx context.Context, req api.AddToCartRequest) ([]domain.CartLine, error)
	UpdateCartLine(ctx context.Context, req api.UpdateCartRequest) ([]domain.CartLine, error)
	RemoveCartLine(ctx context.Context, req api.RemoveCartRequest) ([]domain.CartLine, error)
	Checkout(ctx context.Context, req api.CheckoutRequest) (*api.CheckoutResponse, error)
}

// Gate guards cart operations behind an active session
type Gate interface {
	Require(ctx context.Context) (domain.Session, error)
	HandleAuthFailure(ctx context.Context, cause error)
}

// Catalog resolves current product data
type Catalog interface {
	Lookup(id string) (domain.Product, bool)
}

// Controller owns the cart slice of the app state
type Controller struct {
	backend  Backend
	gate     Gate
	catalog  Catalog
	app      *state.Store
	journal  kvstore.Store
	notifier notify.Notifier
	metrics  *metrics.Recorder
	validate *validator.Validate
	sweep    SweepPolicy
	now      func() time.Time
	logger   *zap.Logger

	seqMu   sync.Mutex
	issued  uint64
	applied uint64
}

// Option configures a Controller
type Option func(*Controller)

// WithMetrics records operation outcomes
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithNotifier sets where user-facing notices go
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithSweepPolicy overrides the retry policy of the post-checkout sweep
func WithSweepPolicy(p SweepPolicy) Option {
	return func(c *Controller) { c.sweep = p }
}

// WithClock replaces the time source used for selection snapshots
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a cart controller. journal persists pending checkout sweeps.
func NewController(backend Backend, gate Gate, catalog Catalog, app *state.Store, journal kvstore.Store, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		backend:  backend,
		gate:     gate,
		catalog:  catalog,
		app:      app,
		journal:  journal,
		notifier: notify.Discard{},
		validate: validator.New(),
		sweep:    DefaultSweepPolicy,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lines returns the current cart lines
func (c *Controller) Lines() []domain.CartLine {
	return c.app.Snapshot().Cart
}

// Count returns the total quantity over all lines
func (c *Controller) Count() int {
	total := 0
	for _, line := range c.Lines() {
		total += line.Quantity
	}
	return total
}

// Amount returns the cart total at current catalog prices.
// The price captured on the line is ignored; lines whose product is not cached add nothing.
func (c *Controller) Amount() int64 {
	var total int64
	for _, line := range c.Lines() {
		p, ok := c.catalog.Lookup(line.ProductID)
		if !ok {
			continue
		}
		total += p.Price * int64(line.Quantity)
	}
	return total
}

// Refresh reloads the cart from the backend
func (c *Controller) Refresh(ctx context.Context) error {
	return c.mutate(ctx, "cart_refresh", "Failed to load cart", func(ctx context.Context) ([]domain.CartLine, error) {
		return c.backend.GetCart(ctx)
	})
}

// AddToCart adds quantity of a product in size. An existing line for the same
// product and size has its quantity increased instead of gaining a duplicate.
func (c *Controller) AddToCart(ctx context.Context, productID string, size domain.Size, price int64, name string, quantity int) error {
	req := api.AddToCartRequest{
		ProductID: productID,
		Size:      size,
		Price:     price,
		Quantity:  quantity,
		Name:      name,
	}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return c.mutate(ctx, "cart_add", "Failed to add to cart", func(ctx context.Context) ([]domain.CartLine, error) {
		lines, err := c.backend.GetCart(ctx)
		if err != nil {
			return nil, err
		}

		key := domain.LineKey{ProductID: productID, Size: size}
		for _, line := range lines {
			if line.Key() == key {
				return c.backend.UpdateCartLine(ctx, api.UpdateCartRequest{
					ProductID: productID,
					Size:      size,
					Quantity:  line.Quantity + quantity,
				})
			}
		}

		req.ImageURL = c.imageFor(productID)
		return c.backend.AddToCart(ctx, req)
	})
}

func (c *Controller) imageFor(productID string) string {
	if p, ok := c.catalog.Lookup(productID); ok {
		if img, ok := p.FirstImage(); ok {
			return img
		}
	}
	return domain.PlaceholderImage
}

// UpdateQuantity sets the absolute quantity of a line
func (c *Controller) UpdateQuantity(ctx context.Context, productID string, size domain.Size, quantity int) error {
	req := api.UpdateCartRequest{ProductID: productID, Size: size, Quantity: quantity}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return c.mutate(ctx, "cart_update", "Failed to update cart", func(ctx context.Context) ([]domain.CartLine, error) {
		return c.backend.UpdateCartLine(ctx, req)
	})
}

// RemoveFromCart deletes a line
func (c *Controller) RemoveFromCart(ctx context.Context, productID string, size domain.Size) error {
	req := api.RemoveCartRequest{ProductID: productID, Size: size}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return c.mutate(ctx, "cart_remove", "Failed to remove item", func(ctx context.Context) ([]domain.CartLine, error) {
		return c.backend.RemoveCartLine(ctx, req)
	})
}

// mutate runs one sequenced cart call and applies its response
func (c *Controller) mutate(ctx context.Context, op, failMsg string, call func(context.Context) ([]domain.CartLine, error)) error {
	epoch := c.app.Epoch()
	if _, err := c.gate.Require(ctx); err != nil {
		return err
	}

	seq := c.nextSeq()
	lines, err := call(ctx)
	if err != nil {
		c.metrics.RecordOperation(op, false)
		return c.fail(ctx, op, failMsg, err)
	}

	c.apply(seq, epoch, lines)
	c.metrics.RecordOperation(op, true)
	return nil
}

func (c *Controller) nextSeq() uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.issued++
	return c.issued
}

// apply replaces the cart with lines unless a newer request has already been
// applied or the session that issued the request has since ended
func (c *Controller) apply(seq, epoch uint64, lines []domain.CartLine) bool {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	if seq <= c.applied {
		c.logger.Debug("Discarding stale cart response",
			zap.Uint64("seq", seq),
			zap.Uint64("applied", c.applied),
		)
		return false
	}
	c.applied = seq
	if _, ok := c.app.DispatchIf(state.SameEpoch(epoch), state.CartReplaced{Lines: lines}); !ok {
		c.logger.Debug("Discarding cart response from an ended session", zap.Uint64("seq", seq))
		return false
	}
	return true
}

func (c *Controller) fail(ctx context.Context, op, msg string, err error) error {
	c.logger.Error("Cart operation failed", zap.String("op", op), zap.Error(err))
	switch {
	case api.IsAuth(err):
		c.gate.HandleAuthFailure(ctx, err)
	case errors.Is(err, context.Canceled):
	default:
		c.notifier.Notify(notify.LevelError, msg)
	}
	return fmt.Errorf("failed to %s: %w", opName(op), err)
}

func opName(op string) string {
	switch op {
	case "cart_add":
		return "add to cart"
	case "cart_update":
		return "update cart"
	case "cart_remove":
		return "remove from cart"
	case "cart_refresh":
		return "load cart"
	case "cart_checkout":
		return "checkout"
	}
	return op
}
