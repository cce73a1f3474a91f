package api

import "storefront/internal/domain"

// LoginRequest is the body of POST /user/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued session; ExpiresIn is in seconds
type LoginResponse struct {
	Token     string      `json:"token"`
	Role      domain.Role `json:"role"`
	ExpiresIn int64       `json:"expiresIn"`
}

// CartResponse is the authoritative cart returned by every cart endpoint
type CartResponse struct {
	Items []domain.CartLine `json:"items"`
}

// AddToCartRequest is the body of POST /cart/add
type AddToCartRequest struct {
	ProductID string      `json:"productId" validate:"required"`
	Size      domain.Size `json:"size" validate:"required,oneof=S M L XL XXL"`
	Price     int64       `json:"price" validate:"gte=0"`
	Quantity  int         `json:"quantity" validate:"gte=1"`
	Name      string      `json:"name"`
	ImageURL  string      `json:"imageUrl"`
}

// UpdateCartRequest is the body of PUT /cart/update; Quantity is absolute
type UpdateCartRequest struct {
	ProductID string      `json:"productId" validate:"required"`
	Size      domain.Size `json:"size" validate:"required,oneof=S M L XL XXL"`
	Quantity  int         `json:"quantity" validate:"gte=1"`
}

// RemoveCartRequest is the body of POST /cart/remove
type RemoveCartRequest struct {
	ProductID string      `json:"productId" validate:"required"`
	Size      domain.Size `json:"size" validate:"required,oneof=S M L XL XXL"`
}

// CheckoutRequest is the body of POST /cart/checkout
type CheckoutRequest struct {
	domain.Shipping
	PaymentMethod  string                `json:"paymentMethod" validate:"required,oneof=cod card transfer"`
	SelectedItems  []domain.SelectedItem `json:"selectedItems" validate:"required,min=1,dive"`
	IdempotencyKey string                `json:"idempotencyKey,omitempty"`
}

// CheckoutResponse acknowledges a placed order
type CheckoutResponse struct {
	OrderID string `json:"orderId"`
	Message string `json:"message,omitempty"`
}

// OrdersResponse wraps the order list endpoints
type OrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// UpdateOrderStatusRequest is the body of PUT /orders/status
type UpdateOrderStatusRequest struct {
	OrderID string             `json:"orderId" validate:"required"`
	Status  domain.OrderStatus `json:"status" validate:"required"`
}

// AdminReplyRequest is the body of the review reply endpoint
type AdminReplyRequest struct {
	AdminReply string `json:"adminReply" validate:"required"`
}

// MessageResponse is a generic acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
