package domain

import (
	"fmt"
	"strings"
	"time"
)

// Size is a garment size code offered by a product
type Size string

const (
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// AllSizes lists the size codes in display order
var AllSizes = []Size{SizeS, SizeM, SizeL, SizeXL, SizeXXL}

// ParseSize validates a size code, ignoring case and surrounding spaces
func ParseSize(s string) (Size, error) {
	candidate := Size(strings.ToUpper(strings.TrimSpace(s)))
	for _, size := range AllSizes {
		if size == candidate {
			return size, nil
		}
	}
	return "", fmt.Errorf("unknown size %q", s)
}

// Product represents a product in the catalog
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	SubCategory string    `json:"subCategory"`
	Sizes       []Size    `json:"sizes"`
	Images      []string  `json:"images"`
	Bestseller  bool      `json:"bestseller"`
	SoldCount   int       `json:"soldCount"`
	Reviews     []Review  `json:"reviews,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasDetail reports whether the payload carried the review list.
// A nil slice means the listing omitted it; an empty slice means no reviews yet.
func (p *Product) HasDetail() bool {
	return p.Reviews != nil
}

// FirstImage returns the product's first non-empty image URL
func (p *Product) FirstImage() (string, bool) {
	for _, img := range p.Images {
		if img != "" {
			return img, true
		}
	}
	return "", false
}

// OffersSize reports whether size is one of the product's sizes
func (p *Product) OffersSize(size Size) bool {
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}
