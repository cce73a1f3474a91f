package domain

import "time"

// Review is a customer review attached to a product
type Review struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Rating       int       `json:"rating"`
	Size         Size      `json:"size"`
	ReviewText   string    `json:"reviewText"`
	ReviewImages []string  `json:"reviewImages"`
	CreatedAt    time.Time `json:"createdAt"`
	AdminReply   *string   `json:"adminReply,omitempty"`
	OrderID      string    `json:"orderId,omitempty"`
}

// HasImage reports whether the review carries at least one image
func (r *Review) HasImage() bool {
	return len(r.ReviewImages) > 0
}

// ReviewForm is the payload a customer submits for a completed order.
// OrderID lets the backend reject a second review for the same order.
type ReviewForm struct {
	OrderID      string   `json:"orderId,omitempty"`
	Rating       int      `json:"rating" validate:"required,gte=1,lte=5"`
	ReviewText   string   `json:"reviewText" validate:"required"`
	Size         Size     `json:"size" validate:"required,oneof=S M L XL XXL"`
	ReviewImages []string `json:"reviewImages" validate:"omitempty,max=5,dive,url"`
}
