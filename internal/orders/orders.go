// Package orders keeps the order list in sync with the backend and drives
// status changes, including the review that completes an order.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

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
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	ErrInvalidReview        = errors.New("invalid review")
	ErrNoReviewableProduct  = errors.New("order has no product to review")
)

// Backend is the order and review part of the REST API
type Backend interface {
	ListAllOrders(ctx context.Context) ([]domain.Order, error)
	ListUserOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	DeleteOrder(ctx context.Context, orderID string) error
	SubmitReview(ctx context.Context, productID string, form domain.ReviewForm) error
}

// Gate guards order operations behind an active session
type Gate interface {
	Require(ctx context.Context) (domain.Session, error)
	RequireRole(ctx context.Context, role domain.Role) (domain.Session, error)
	HandleAuthFailure(ctx context.Context, cause error)
}

// Controller owns the orders slice of the app state
type Controller struct {
	backend  Backend
	gate     Gate
	app      *state.Store
	journal  kvstore.Store
	notifier notify.Notifier
	metrics  *metrics.Recorder
	validate *validator.Validate
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

// NewController creates an order controller. journal persists unfinished review completions.
func NewController(backend Backend, gate Gate, app *state.Store, journal kvstore.Store, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		backend:  backend,
		gate:     gate,
		app:      app,
		journal:  journal,
		notifier: notify.Discard{},
		validate: validator.New(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Orders returns the current order list
func (c *Controller) Orders() []domain.Order {
	return c.app.Snapshot().Orders
}

// Find returns the order with id from the current list
func (c *Controller) Find(id string) (domain.Order, bool) {
	for _, o := range c.Orders() {
		if o.ID == id {
			return o, true
		}
	}
	return domain.Order{}, false
}

// FetchOrders replaces the order list. Admins get every order, customers their own.
func (c *Controller) FetchOrders(ctx context.Context) error {
	epoch := c.app.Epoch()
	sess, err := c.gate.Require(ctx)
	if err != nil {
		return err
	}

	seq := c.nextSeq()
	var orders []domain.Order
	if sess.Role == domain.RoleAdmin {
		orders, err = c.backend.ListAllOrders(ctx)
	} else {
		orders, err = c.backend.ListUserOrders(ctx)
	}
	if err != nil {
		c.metrics.RecordOperation("orders_fetch", false)
		return c.fail(ctx, "load orders", "Failed to load orders", err)
	}

	c.apply(seq, epoch, orders)
	c.metrics.RecordOperation("orders_fetch", true)
	return nil
}

// UpdateOrderStatus sends a status change and then reloads the list.
// Customers are held to the transitions open to them before anything is sent.
func (c *Controller) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	sess, err := c.gate.Require(ctx)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrTransitionNotAllowed, status)
	}
	if sess.Role != domain.RoleAdmin {
		if order, ok := c.Find(orderID); ok && order.Status != status && !domain.CanTransition(order.Status, status, sess.Role) {
			return fmt.Errorf("%w: %s to %s", ErrTransitionNotAllowed, order.Status, status)
		}
	}

	if err := c.backend.UpdateOrderStatus(ctx, orderID, status); err != nil {
		c.metrics.RecordOperation("orders_update_status", false)
		return c.fail(ctx, "update order", "Failed to update order", err)
	}
	c.metrics.RecordOperation("orders_update_status", true)
	c.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
	)

	return c.FetchOrders(ctx)
}

// CancelOrder moves an order to Canceled
func (c *Controller) CancelOrder(ctx context.Context, orderID string) error {
	return c.UpdateOrderStatus(ctx, orderID, domain.StatusCanceled)
}

// DeleteOrder removes an order and reloads the list; admin only
func (c *Controller) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := c.gate.RequireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	if err := c.backend.DeleteOrder(ctx, orderID); err != nil {
		c.metrics.RecordOperation("orders_delete", false)
		return c.fail(ctx, "delete order", "Failed to delete order", err)
	}
	c.metrics.RecordOperation("orders_delete", true)
	c.notifier.Notify(notify.LevelSuccess, "Order deleted")

	return c.FetchOrders(ctx)
}

func (c *Controller) nextSeq() uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.issued++
	return c.issued
}

// apply replaces the order list unless a newer fetch has already landed
func (c *Controller) apply(seq, epoch uint64, orders []domain.Order) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	if seq <= c.applied {
		c.logger.Debug("Discarding stale order list", zap.Uint64("seq", seq))
		return
	}
	c.applied = seq
	if _, ok := c.app.DispatchIf(state.SameEpoch(epoch), state.OrdersReplaced{Orders: orders}); !ok {
		c.logger.Debug("Discarding order list from an ended session", zap.Uint64("seq", seq))
	}
}

func (c *Controller) fail(ctx context.Context, action, msg string, err error) error {
	c.logger.Error("Order operation failed", zap.String("action", action), zap.Error(err))
	switch {
	case api.IsAuth(err):
		c.gate.HandleAuthFailure(ctx, err)
	case errors.Is(err, context.Canceled):
	default:
		c.notifier.Notify(notify.LevelError, msg)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
