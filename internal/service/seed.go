package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// SeedUser is an account created at startup
type SeedUser struct {
	Email    string
	Password string
	Name     string
	Role     domain.Role
}

// DefaultUsers are the accounts of a fresh development backend
var DefaultUsers = []SeedUser{
	{Email: "admin@example.com", Password: "admin12345", Name: "Admin", Role: domain.RoleAdmin},
	{Email: "user@example.com", Password: "user12345", Name: "Demo User", Role: domain.RoleUser},
}

// DefaultProducts returns a small demo catalog
func DefaultProducts(now time.Time) []domain.Product {
	all := []domain.Size{domain.SizeS, domain.SizeM, domain.SizeL, domain.SizeXL}
	return []domain.Product{
		{
			ID: "p-tee", Name: "Cotton Tee", Description: "Everyday crew neck tee",
			Price: 150000, Category: "Men", SubCategory: "Topwear", Sizes: all,
			Images: []string{"/images/tee-1.jpg", "/images/tee-2.jpg"}, Bestseller: true,
			Reviews: []domain.Review{}, CreatedAt: now.Add(-72 * time.Hour),
		},
		{
			ID: "p-dress", Name: "Linen Dress", Description: "Relaxed fit summer dress",
			Price: 420000, Category: "Women", SubCategory: "Topwear", Sizes: []domain.Size{domain.SizeS, domain.SizeM, domain.SizeL},
			Images: []string{"/images/dress-1.jpg"}, Bestseller: true,
			Reviews: []domain.Review{}, CreatedAt: now.Add(-48 * time.Hour),
		},
		{
			ID: "p-jacket", Name: "Puffer Jacket", Description: "Water resistant winter jacket",
			Price: 990000, Category: "Men", SubCategory: "Winterwear", Sizes: append(all, domain.SizeXXL),
			Images:  []string{"/images/jacket-1.jpg"},
			Reviews: []domain.Review{}, CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			ID: "p-kids", Name: "Kids Hoodie", Description: "Soft fleece hoodie",
			Price: 210000, Category: "Kids", SubCategory: "Winterwear", Sizes: []domain.Size{domain.SizeS, domain.SizeM},
			Reviews: []domain.Review{}, CreatedAt: now,
		},
	}
}

// Seed creates users and products, skipping accounts that already exist
func Seed(ctx context.Context, users UserService, products repository.ProductRepository, seedUsers []SeedUser, seedProducts []domain.Product) error {
	for _, u := range seedUsers {
		if _, err := users.Register(ctx, u.Email, u.Password, u.Name, u.Role); err != nil {
			if errors.Is(err, repository.ErrUserAlreadyExists) {
				continue
			}
			return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
		}
	}
	for i := range seedProducts {
		if err := products.Create(ctx, &seedProducts[i]); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", seedProducts[i].ID, err)
		}
	}
	return nil
}
