package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/api"
	"storefront/internal/domain"
	"storefront/internal/kvstore"
	"storefront/internal/notify"

	"go.uber.org/zap"
)

// KeyPendingCompletion prefixes the journal entries of unfinished review completions
const KeyPendingCompletion = "pendingCompletion:"

// Completion is the journaled progress of a review that completes an order
type Completion struct {
	OrderID      string            `json:"orderId"`
	ProductID    string            `json:"productId"`
	Form         domain.ReviewForm `json:"form"`
	ReviewPosted bool              `json:"reviewPosted"`
}

func completionKey(orderID string) string {
	return KeyPendingCompletion + orderID
}

// SubmitReview posts a review for the order's product and then marks the order Completed.
// Progress is journaled so that Reconcile can finish a completion interrupted between the two calls.
func (c *Controller) SubmitReview(ctx context.Context, form domain.ReviewForm, order domain.Order) error {
	sess, err := c.gate.Require(ctx)
	if err != nil {
		return err
	}
	if err := c.validate.Struct(form); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReview, err)
	}
	productID, ok := order.ReviewProductID()
	if !ok {
		return ErrNoReviewableProduct
	}
	if order.Status != domain.StatusCompleted && !domain.CanTransition(order.Status, domain.StatusCompleted, sess.Role) {
		return fmt.Errorf("%w: %s to %s", ErrTransitionNotAllowed, order.Status, domain.StatusCompleted)
	}

	form.OrderID = order.ID
	comp := Completion{OrderID: order.ID, ProductID: productID, Form: form}
	if err := c.saveCompletion(ctx, comp); err != nil {
		c.logger.Error("Failed to journal review completion", zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := c.complete(ctx, &comp); err != nil {
		return err
	}

	c.notifier.Notify(notify.LevelSuccess, "Review submitted")
	return c.FetchOrders(ctx)
}

// complete runs the remaining steps of comp and clears its journal entry when done
func (c *Controller) complete(ctx context.Context, comp *Completion) error {
	if !comp.ReviewPosted {
		err := c.backend.SubmitReview(ctx, comp.ProductID, comp.Form)
		switch {
		case err == nil:
		case errors.Is(err, api.ErrConflict):
			c.logger.Info("Review already posted for order", zap.String("order_id", comp.OrderID))
		default:
			c.metrics.RecordOperation("orders_submit_review", false)
			if !api.IsTransport(err) {
				c.dropCompletion(ctx, comp.OrderID)
			}
			return c.fail(ctx, "submit review", "Failed to submit review", err)
		}
		c.metrics.RecordOperation("orders_submit_review", true)

		comp.ReviewPosted = true
		if err := c.saveCompletion(ctx, *comp); err != nil {
			c.logger.Error("Failed to journal review completion", zap.String("order_id", comp.OrderID), zap.Error(err))
		}
	}

	if err := c.backend.UpdateOrderStatus(ctx, comp.OrderID, domain.StatusCompleted); err != nil {
		c.metrics.RecordOperation("orders_update_status", false)
		if errors.Is(err, api.ErrNotFound) {
			c.dropCompletion(ctx, comp.OrderID)
		}
		return c.fail(ctx, "complete order", "Review saved, but the order could not be completed", err)
	}
	c.metrics.RecordOperation("orders_update_status", true)
	c.logger.Info("Order completed by review", zap.String("order_id", comp.OrderID))

	c.dropCompletion(ctx, comp.OrderID)
	return nil
}

// PendingCompletions returns the journaled completions that have not finished
func (c *Controller) PendingCompletions(ctx context.Context) ([]Completion, error) {
	keys, err := c.journal.Keys(ctx, KeyPendingCompletion)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending completions: %w", err)
	}

	out := make([]Completion, 0, len(keys))
	for _, key := range keys {
		raw, err := c.journal.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}

		var comp Completion
		if err := json.Unmarshal([]byte(raw), &comp); err != nil || comp.OrderID == "" {
			c.logger.Warn("Dropping malformed completion entry", zap.String("key", key))
			_ = c.journal.Delete(ctx, key)
			continue
		}
		out = append(out, comp)
	}
	return out, nil
}

// Reconcile finishes review completions left behind by an interrupted SubmitReview.
// Every entry is attempted; the first failure is returned.
func (c *Controller) Reconcile(ctx context.Context) error {
	pending, err := c.PendingCompletions(ctx)
	if err != nil || len(pending) == 0 {
		return err
	}
	if _, err := c.gate.Require(ctx); err != nil {
		return err
	}

	var first error
	for i := range pending {
		comp := pending[i]
		c.logger.Info("Reconciling review completion",
			zap.String("order_id", comp.OrderID),
			zap.Bool("review_posted", comp.ReviewPosted),
		)
		if err := c.complete(ctx, &comp); err != nil && first == nil {
			first = err
		}
	}

	if err := c.FetchOrders(ctx); err != nil && first == nil {
		first = err
	}
	return first
}

func (c *Controller) saveCompletion(ctx context.Context, comp Completion) error {
	data, err := json.Marshal(comp)
	if err != nil {
		return err
	}
	return c.journal.Set(ctx, completionKey(comp.OrderID), string(data))
}

func (c *Controller) dropCompletion(ctx context.Context, orderID string) {
	if err := c.journal.Delete(ctx, completionKey(orderID)); err != nil {
		c.logger.Error("Failed to clear completion entry", zap.String("order_id", orderID), zap.Error(err))
	}
}
