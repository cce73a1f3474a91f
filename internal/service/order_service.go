package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

var (
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	ErrNotOrderOwner        = errors.New("order belongs to another user")
)

// OrderService manages placed orders
type OrderService interface {
	ListAll(ctx context.Context) ([]domain.Order, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Order, error)
	// UpdateStatus lets admins force any status and customers take the transitions open to them on their own orders
	UpdateStatus(ctx context.Context, userID string, role domain.Role, orderID string, status domain.OrderStatus) error
	Delete(ctx context.Context, orderID string) error
}

type orderService struct {
	orderRepo repository.OrderRepository
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orderRepo repository.OrderRepository) OrderService {
	return &orderService{orderRepo: orderRepo}
}

func (s *orderService) ListAll(ctx context.Context) ([]domain.Order, error) {
	return s.orderRepo.List(ctx)
}

func (s *orderService) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}

func (s *orderService) UpdateStatus(ctx context.Context, userID string, role domain.Role, orderID string, status domain.OrderStatus) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if role != domain.RoleAdmin && order.UserID != userID {
		return ErrNotOrderOwner
	}
	if order.Status == status {
		return nil
	}
	if !domain.CanTransition(order.Status, status, role) {
		return fmt.Errorf("%w: %s to %s", ErrTransitionNotAllowed, order.Status, status)
	}
	return s.orderRepo.UpdateStatus(ctx, orderID, status)
}

func (s *orderService) Delete(ctx context.Context, orderID string) error {
	return s.orderRepo.Delete(ctx, orderID)
}
