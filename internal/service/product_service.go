package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrReviewNotAllowed = errors.New("no eligible order for this product")
	ErrReviewExists     = errors.New("order already reviewed")
)

// ProductService serves the catalog and its reviews
type ProductService interface {
	// ListProducts returns the catalog without review detail
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	AddReview(ctx context.Context, userID, productID string, form domain.ReviewForm) (*domain.Review, error)
	ReplyToReview(ctx context.Context, productID, reviewID, reply string) error
	DeleteReview(ctx context.Context, productID, reviewID string) error
}

type productService struct {
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	userRepo    repository.UserRepository
	now         func() time.Time
}

// NewProductService creates a new instance of ProductService
func NewProductService(productRepo repository.ProductRepository, orderRepo repository.OrderRepository, userRepo repository.UserRepository) ProductService {
	return &productService{
		productRepo: productRepo,
		orderRepo:   orderRepo,
		userRepo:    userRepo,
		now:         time.Now,
	}
}

func (s *productService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	for i := range products {
		products[i].Reviews = nil
	}
	return products, nil
}

func (s *productService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, id)
}

// AddReview attaches a review written by userID. The user must hold a shipped or
// completed order containing the product; an order can be reviewed once.
func (s *productService) AddReview(ctx context.Context, userID, productID string, form domain.ReviewForm) (*domain.Review, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	orders, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if !eligibleForReview(orders, productID, form.OrderID) {
		return nil, ErrReviewNotAllowed
	}

	review := domain.Review{
		ID:           uuid.NewString(),
		Username:     user.Name,
		Rating:       form.Rating,
		Size:         form.Size,
		ReviewText:   strings.TrimSpace(form.ReviewText),
		ReviewImages: append([]string{}, form.ReviewImages...),
		CreatedAt:    s.now(),
		OrderID:      form.OrderID,
	}

	err = s.productRepo.Update(ctx, productID, func(p *domain.Product) error {
		if form.OrderID != "" {
			for _, existing := range p.Reviews {
				if existing.OrderID == form.OrderID {
					return ErrReviewExists
				}
			}
		}
		p.Reviews = append(p.Reviews, review)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func eligibleForReview(orders []domain.Order, productID, orderID string) bool {
	for _, o := range orders {
		if orderID != "" && o.ID != orderID {
			continue
		}
		if o.Status != domain.StatusShipped && o.Status != domain.StatusCompleted {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == productID {
				return true
			}
		}
	}
	return false
}

func (s *productService) ReplyToReview(ctx context.Context, productID, reviewID, reply string) error {
	return s.productRepo.Update(ctx, productID, func(p *domain.Product) error {
		for i := range p.Reviews {
			if p.Reviews[i].ID == reviewID {
				text := strings.TrimSpace(reply)
				p.Reviews[i].AdminReply = &text
				return nil
			}
		}
		return repository.ErrReviewNotFound
	})
}

func (s *productService) DeleteReview(ctx context.Context, productID, reviewID string) error {
	return s.productRepo.Update(ctx, productID, func(p *domain.Product) error {
		for i := range p.Reviews {
			if p.Reviews[i].ID == reviewID {
				p.Reviews = append(p.Reviews[:i], p.Reviews[i+1:]...)
				return nil
			}
		}
		return repository.ErrReviewNotFound
	})
}
