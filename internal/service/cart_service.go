package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrLineNotFound     = errors.New("cart line not found")
	ErrSizeUnavailable  = errors.New("size not offered for product")
	ErrEmptySelection   = errors.New("no items selected")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrUnknownPayMethod = errors.New("unknown payment method")
)

// PaymentMethods accepted at checkout
var PaymentMethods = []string{"cod", "card", "transfer"}

// CheckoutInput is everything a checkout needs besides the caller
type CheckoutInput struct {
	Shipping       domain.Shipping
	PaymentMethod  string
	Items          []domain.SelectedItem
	IdempotencyKey string
}

// CartService manages per-user carts and turns selections into orders
type CartService interface {
	GetCart(ctx context.Context, userID string) ([]domain.CartLine, error)
	AddLine(ctx context.Context, userID string, line domain.CartLine) ([]domain.CartLine, error)
	UpdateLine(ctx context.Context, userID string, key domain.LineKey, quantity int) ([]domain.CartLine, error)
	RemoveLine(ctx context.Context, userID string, key domain.LineKey) ([]domain.CartLine, error)
	// Checkout creates a pending order; the selected lines stay in the cart
	Checkout(ctx context.Context, userID string, in CheckoutInput) (*domain.Order, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	now         func() time.Time

	mu          sync.Mutex
	idempotency map[string]string
}

// NewCartService creates a new instance of CartService
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, orderRepo repository.OrderRepository) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		now:         time.Now,
		idempotency: make(map[string]string),
	}
}

func (s *cartService) GetCart(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return s.cartRepo.Get(ctx, userID)
}

// AddLine merges into an existing line for the same product and size
func (s *cartService) AddLine(ctx context.Context, userID string, line domain.CartLine) ([]domain.CartLine, error) {
	if line.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.productRepo.FindByID(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.OffersSize(line.Size) {
		return nil, ErrSizeUnavailable
	}

	return s.cartRepo.Update(ctx, userID, func(lines []domain.CartLine) ([]domain.CartLine, error) {
		for i := range lines {
			if lines[i].Key() == line.Key() {
				lines[i].Quantity += line.Quantity
				return lines, nil
			}
		}
		return append(lines, line), nil
	})
}

func (s *cartService) UpdateLine(ctx context.Context, userID string, key domain.LineKey, quantity int) ([]domain.CartLine, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return s.cartRepo.Update(ctx, userID, func(lines []domain.CartLine) ([]domain.CartLine, error) {
		for i := range lines {
			if lines[i].Key() == key {
				lines[i].Quantity = quantity
				return lines, nil
			}
		}
		return nil, ErrLineNotFound
	})
}

func (s *cartService) RemoveLine(ctx context.Context, userID string, key domain.LineKey) ([]domain.CartLine, error) {
	return s.cartRepo.Update(ctx, userID, func(lines []domain.CartLine) ([]domain.CartLine, error) {
		for i := range lines {
			if lines[i].Key() == key {
				return append(lines[:i], lines[i+1:]...), nil
			}
		}
		return nil, ErrLineNotFound
	})
}

// Checkout prices the selection at current catalog prices. A repeated
// idempotency key returns the order created by the first call.
func (s *cartService) Checkout(ctx context.Context, userID string, in CheckoutInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptySelection
	}
	if !validPaymentMethod(in.PaymentMethod) {
		return nil, ErrUnknownPayMethod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idemKey := ""
	if in.IdempotencyKey != "" {
		idemKey = userID + ":" + in.IdempotencyKey
		if orderID, ok := s.idempotency[idemKey]; ok {
			return s.orderRepo.FindByID(ctx, orderID)
		}
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, sel := range in.Items {
		if sel.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		product, err := s.productRepo.FindByID(ctx, sel.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", sel.ProductID, err)
		}
		if !product.OffersSize(sel.Size) {
			return nil, ErrSizeUnavailable
		}
		image, _ := product.FirstImage()
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  sel.Quantity,
			Size:      sel.Size,
			ImageURL:  image,
		})
	}

	order := &domain.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Items:         items,
		Status:        domain.StatusPending,
		Shipping:      in.Shipping,
		PaymentMethod: in.PaymentMethod,
		OrderDate:     s.now(),
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range items {
		_ = s.productRepo.Update(ctx, item.ProductID, func(p *domain.Product) error {
			p.SoldCount += item.Quantity
			return nil
		})
	}

	if idemKey != "" {
		s.idempotency[idemKey] = order.ID
	}
	return order, nil
}

func validPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}
