package domain

import "time"

// PlaceholderImage is used for cart lines whose product has no image
const PlaceholderImage = "/assets/placeholder.png"

// LineKey identifies a cart line
type LineKey struct {
	ProductID string `json:"productId"`
	Size      Size   `json:"size"`
}

// CartLine is one (product, size) pairing in a user's cart.
// Price, Name and ImageURL are captured when the line is created.
type CartLine struct {
	ProductID string `json:"productId"`
	Size      Size   `json:"size"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl"`
}

// Key returns the line's identity
func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.Size}
}

// SelectedItem is a snapshot of a cart line chosen for checkout
type SelectedItem struct {
	ProductID  string    `json:"productId" validate:"required"`
	Size       Size      `json:"size" validate:"required,oneof=S M L XL XXL"`
	Quantity   int       `json:"quantity" validate:"gte=1"`
	Price      int64     `json:"price" validate:"gte=0"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"imageUrl"`
	SelectedAt time.Time `json:"selectedAt"`
}

// Key returns the identity of the cart line the item was taken from
func (s SelectedItem) Key() LineKey {
	return LineKey{ProductID: s.ProductID, Size: s.Size}
}

// Select snapshots a cart line for checkout
func Select(line CartLine, at time.Time) SelectedItem {
	return SelectedItem{
		ProductID:  line.ProductID,
		Size:       line.Size,
		Quantity:   line.Quantity,
		Price:      line.Price,
		Name:       line.Name,
		ImageURL:   line.ImageURL,
		SelectedAt: at,
	}
}
