package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/api"
	"storefront/internal/domain"
	"storefront/internal/kvstore"
	"storefront/internal/notify"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// KeySweepPrefix prefixes the journal key of each order's pending post-checkout sweep
const KeySweepPrefix = "checkoutSweep:"

func sweepKey(orderID string) string {
	return KeySweepPrefix + orderID
}

// SweepPolicy controls retries of each line removal after checkout
type SweepPolicy struct {
	Base       time.Duration
	MaxRetries uint64
	MaxDelay   time.Duration
}

// DefaultSweepPolicy retries each removal a few times with exponential backoff
var DefaultSweepPolicy = SweepPolicy{
	Base:       200 * time.Millisecond,
	MaxRetries: 4,
	MaxDelay:   2 * time.Second,
}

func (p SweepPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Sweep is the journaled list of cart lines a placed order still has to remove
type Sweep struct {
	OrderID   string           `json:"orderId"`
	Remaining []domain.LineKey `json:"remaining"`
}

// SweepError reports cart lines left behind after an order was placed
type SweepError struct {
	OrderID   string
	Remaining []domain.LineKey
	Err       error
}

func (e *SweepError) Error() string {
	return fmt.Sprintf("order %s placed but %d cart line(s) were not removed: %v", e.OrderID, len(e.Remaining), e.Err)
}

func (e *SweepError) Unwrap() error { return e.Err }

// Checkout places an order for the selected items and removes them from the cart.
// onSuccess receives the order id once the cart sweep completes; any failure,
// including an incomplete sweep, goes to onError.
func (c *Controller) Checkout(ctx context.Context, req api.CheckoutRequest, onSuccess func(orderID string), onError func(error)) error {
	err := c.checkout(ctx, req, onSuccess)
	if err != nil && onError != nil {
		onError(err)
	}
	return err
}

func (c *Controller) checkout(ctx context.Context, req api.CheckoutRequest, onSuccess func(string)) error {
	epoch := c.app.Epoch()
	if _, err := c.gate.Require(ctx); err != nil {
		return err
	}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	resp, err := c.backend.Checkout(ctx, req)
	if err != nil {
		c.metrics.RecordOperation("cart_checkout", false)
		return c.fail(ctx, "cart_checkout", "Failed to place order", err)
	}
	c.metrics.RecordOperation("cart_checkout", true)
	c.logger.Info("Order placed",
		zap.String("order_id", resp.OrderID),
		zap.Int("items", len(req.SelectedItems)),
	)

	sweep := Sweep{OrderID: resp.OrderID}
	seen := make(map[domain.LineKey]bool, len(req.SelectedItems))
	for _, item := range req.SelectedItems {
		if !seen[item.Key()] {
			seen[item.Key()] = true
			sweep.Remaining = append(sweep.Remaining, item.Key())
		}
	}
	if err := c.saveSweep(ctx, sweep); err != nil {
		c.logger.Error("Failed to journal checkout sweep", zap.Error(err))
	}

	if err := c.runSweep(ctx, epoch, sweep); err != nil {
		return err
	}

	c.notifier.Notify(notify.LevelSuccess, "Order placed")
	if onSuccess != nil {
		onSuccess(resp.OrderID)
	}
	return nil
}

// SelectAll snapshots every current cart line for checkout
func (c *Controller) SelectAll() []domain.SelectedItem {
	lines := c.Lines()
	at := c.now()
	items := make([]domain.SelectedItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.Select(line, at))
	}
	return items
}

// PendingSweeps returns the journaled sweeps of every order whose removals have not finished
func (c *Controller) PendingSweeps(ctx context.Context) ([]Sweep, error) {
	keys, err := c.journal.Keys(ctx, KeySweepPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout sweeps: %w", err)
	}
	sort.Strings(keys)

	out := make([]Sweep, 0, len(keys))
	for _, key := range keys {
		raw, err := c.journal.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read checkout sweep: %w", err)
		}

		var sweep Sweep
		if err := json.Unmarshal([]byte(raw), &sweep); err != nil || sweep.OrderID == "" {
			c.logger.Warn("Dropping malformed checkout sweep", zap.String("key", key))
			_ = c.journal.Delete(ctx, key)
			continue
		}
		out = append(out, sweep)
	}
	return out, nil
}

// ResumeSweep continues the sweeps left unfinished by earlier checkouts.
// Every pending sweep is attempted; the first failure is returned.
func (c *Controller) ResumeSweep(ctx context.Context) error {
	pending, err := c.PendingSweeps(ctx)
	if err != nil || len(pending) == 0 {
		return err
	}
	epoch := c.app.Epoch()
	if _, err := c.gate.Require(ctx); err != nil {
		return err
	}

	var first error
	for _, sweep := range pending {
		c.logger.Info("Resuming checkout sweep",
			zap.String("order_id", sweep.OrderID),
			zap.Int("remaining", len(sweep.Remaining)),
		)
		if err := c.runSweep(ctx, epoch, sweep); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// runSweep removes each remaining line, journaling progress after every removal
func (c *Controller) runSweep(ctx context.Context, epoch uint64, sweep Sweep) error {
	backoff := c.sweep.backoff

	for len(sweep.Remaining) > 0 {
		key := sweep.Remaining[0]
		seq := c.nextSeq()

		var lines []domain.CartLine
		err := retry.Do(ctx, backoff(), func(ctx context.Context) error {
			var err error
			lines, err = c.backend.RemoveCartLine(ctx, api.RemoveCartRequest{ProductID: key.ProductID, Size: key.Size})
			switch {
			case err == nil:
				return nil
			case errors.Is(err, api.ErrNotFound):
				lines = nil
				return nil
			case retryable(err):
				c.logger.Debug("Retrying cart line removal", zap.String("product_id", key.ProductID), zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		})
		if err != nil {
			c.metrics.RecordOperation("cart_sweep", false)
			c.logger.Error("Checkout sweep stopped",
				zap.String("order_id", sweep.OrderID),
				zap.Int("remaining", len(sweep.Remaining)),
				zap.Error(err),
			)
			if api.IsAuth(err) {
				c.gate.HandleAuthFailure(ctx, err)
			} else {
				c.notifier.Notify(notify.LevelWarning, "Order placed, but some items are still in your cart")
			}
			return &SweepError{OrderID: sweep.OrderID, Remaining: append([]domain.LineKey(nil), sweep.Remaining...), Err: err}
		}

		if lines != nil {
			c.apply(seq, epoch, lines)
		}
		sweep.Remaining = sweep.Remaining[1:]
		if err := c.saveSweep(ctx, sweep); err != nil {
			c.logger.Error("Failed to journal checkout sweep", zap.Error(err))
		}
	}

	c.metrics.RecordOperation("cart_sweep", true)
	return c.refreshAfterSweep(ctx, epoch)
}

// refreshAfterSweep picks up the authoritative cart when the last removal was already absent
func (c *Controller) refreshAfterSweep(ctx context.Context, epoch uint64) error {
	seq := c.nextSeq()
	lines, err := c.backend.GetCart(ctx)
	if err != nil {
		c.logger.Warn("Failed to reload cart after checkout", zap.Error(err))
		return nil
	}
	c.apply(seq, epoch, lines)
	return nil
}

func (c *Controller) saveSweep(ctx context.Context, sweep Sweep) error {
	if len(sweep.Remaining) == 0 {
		return c.journal.Delete(ctx, sweepKey(sweep.OrderID))
	}
	data, err := json.Marshal(sweep)
	if err != nil {
		return err
	}
	return c.journal.Set(ctx, sweepKey(sweep.OrderID), string(data))
}

// retryable reports whether a removal failure may succeed on a later attempt
func retryable(err error) bool {
	if api.IsTransport(err) {
		return true
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return false
}
