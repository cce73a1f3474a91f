package domain

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusPaid       OrderStatus = "Paid"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusCompleted  OrderStatus = "Completed"
	StatusReturned   OrderStatus = "Returned"
	StatusCanceled   OrderStatus = "Canceled"
)

// AllStatuses lists every order status in lifecycle order
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusPaid,
	StatusProcessing,
	StatusShipped,
	StatusCompleted,
	StatusReturned,
	StatusCanceled,
}

// forward is the fulfilment path an admin normally walks an order through
var forward = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusPaid},
	StatusPaid:       {StatusProcessing},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusCompleted, StatusReturned},
}

// customer lists the transitions a customer may initiate
var customer = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusCanceled},
	StatusPaid:    {StatusCanceled},
	StatusShipped: {StatusReturned, StatusCompleted},
}

// ParseOrderStatus validates a status name
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, status := range AllStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	_, err := ParseOrderStatus(string(s))
	return err == nil
}

// Terminal reports whether no further fulfilment step follows s
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusReturned || s == StatusCanceled
}

// NextStatuses returns the fulfilment steps that follow s
func NextStatuses(s OrderStatus) []OrderStatus {
	return append([]OrderStatus(nil), forward[s]...)
}

// CanTransition reports whether role may move an order from one status to another.
// Admins may force any transition to a known status.
func CanTransition(from, to OrderStatus, role Role) bool {
	if !to.Valid() {
		return false
	}
	if role == RoleAdmin {
		return true
	}
	for _, allowed := range customer[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ReturnInfo records a return request for an order item
type ReturnInfo struct {
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requestedAt"`
}

// OrderItem is a purchased product line
type OrderItem struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     int64       `json:"price"`
	Quantity  int         `json:"quantity"`
	Size      Size        `json:"size"`
	ImageURL  string      `json:"imageUrl"`
	Return    *ReturnInfo `json:"return,omitempty"`
}

// Address is the postal part of the shipping details
type Address struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country"`
}

// Shipping holds the recipient details captured at checkout
type Shipping struct {
	Name    string  `json:"name" validate:"required"`
	Email   string  `json:"email" validate:"required,email"`
	Address Address `json:"address" validate:"required"`
	Phone   string  `json:"phone" validate:"required,min=6"`
}

// Order represents a placed order
type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	Items         []OrderItem `json:"items"`
	Status        OrderStatus `json:"status"`
	Shipping      Shipping    `json:"shipping"`
	PaymentMethod string      `json:"paymentMethod"`
	OrderDate     time.Time   `json:"orderDate"`
}

// Total returns the sum of price times quantity over the order items
func (o *Order) Total() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

// ReviewProductID returns the product a completion review is posted against
func (o *Order) ReviewProductID() (string, bool) {
	if len(o.Items) == 0 || o.Items[0].ProductID == "" {
		return "", false
	}
	return o.Items[0].ProductID, true
}
