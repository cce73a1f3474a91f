package api

import (
	"context"
	"net/http"

	"storefront/internal/domain"
)

// Login exchanges credentials for a session token
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, call{
		op:     "user.login",
		method: http.MethodPost,
		path:   "/user/login",
		body:   LoginRequest{Email: email, Password: password},
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProducts fetches the full catalog
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := c.do(ctx, call{
		op:     "products.list",
		method: http.MethodGet,
		path:   "/products/all",
		out:    &products,
	})
	return products, err
}

// GetProduct fetches one product including its reviews
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, call{
		op:     "products.get",
		method: http.MethodGet,
		path:   "/products/" + escape(id),
		out:    &product,
	})
	if err != nil {
		return nil, err
	}
	if product.Reviews == nil {
		product.Reviews = []domain.Review{}
	}
	return &product, nil
}

// GetCart fetches the server-side cart
func (c *Client) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	return c.cartCall(ctx, "cart.get", http.MethodGet, "/cart", nil)
}

// AddToCart creates a cart line
func (c *Client) AddToCart(ctx context.Context, req AddToCartRequest) ([]domain.CartLine, error) {
	return c.cartCall(ctx, "cart.add", http.MethodPost, "/cart/add", req)
}

// UpdateCartLine sets the absolute quantity of a cart line
func (c *Client) UpdateCartLine(ctx context.Context, req UpdateCartRequest) ([]domain.CartLine, error) {
	return c.cartCall(ctx, "cart.update", http.MethodPut, "/cart/update", req)
}

// RemoveCartLine deletes a cart line
func (c *Client) RemoveCartLine(ctx context.Context, req RemoveCartRequest) ([]domain.CartLine, error) {
	return c.cartCall(ctx, "cart.remove", http.MethodPost, "/cart/remove", req)
}

func (c *Client) cartCall(ctx context.Context, op, method, path string, body interface{}) ([]domain.CartLine, error) {
	var resp CartResponse
	err := c.do(ctx, call{op: op, method: method, path: path, auth: true, body: body, out: &resp})
	if err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []domain.CartLine{}
	}
	return resp.Items, nil
}

// Checkout places an order for the selected items
func (c *Client) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	var resp CheckoutResponse
	err := c.do(ctx, call{
		op:     "cart.checkout",
		method: http.MethodPost,
		path:   "/cart/checkout",
		auth:   true,
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAllOrders fetches every order; admin only
func (c *Client) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	return c.ordersCall(ctx, "orders.list_all", "/orders")
}

// ListUserOrders fetches the caller's own orders
func (c *Client) ListUserOrders(ctx context.Context) ([]domain.Order, error) {
	return c.ordersCall(ctx, "orders.list_user", "/orders/user-orders")
}

func (c *Client) ordersCall(ctx context.Context, op, path string) ([]domain.Order, error) {
	var resp OrdersResponse
	err := c.do(ctx, call{op: op, method: http.MethodGet, path: path, auth: true, out: &resp})
	if err != nil {
		return nil, err
	}
	if resp.Orders == nil {
		resp.Orders = []domain.Order{}
	}
	return resp.Orders, nil
}

// UpdateOrderStatus changes an order's status
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	return c.do(ctx, call{
		op:     "orders.update_status",
		method: http.MethodPut,
		path:   "/orders/status",
		auth:   true,
		body:   UpdateOrderStatusRequest{OrderID: orderID, Status: status},
	})
}

// DeleteOrder removes an order; admin only
func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, call{
		op:     "orders.delete",
		method: http.MethodDelete,
		path:   "/orders/" + escape(orderID),
		auth:   true,
	})
}

// SubmitReview posts a review against a product
func (c *Client) SubmitReview(ctx context.Context, productID string, form domain.ReviewForm) error {
	if form.ReviewImages == nil {
		form.ReviewImages = []string{}
	}
	return c.do(ctx, call{
		op:     "reviews.submit",
		method: http.MethodPost,
		path:   "/products/" + escape(productID) + "/review",
		auth:   true,
		body:   form,
	})
}

// ReplyToReview sets the admin reply of a review
func (c *Client) ReplyToReview(ctx context.Context, productID, reviewID, reply string) error {
	return c.do(ctx, call{
		op:     "reviews.reply",
		method: http.MethodPut,
		path:   "/products/admin/" + escape(productID) + "/reviews/" + escape(reviewID) + "/reply",
		auth:   true,
		body:   AdminReplyRequest{AdminReply: reply},
	})
}

// DeleteReview removes a review; admin only
func (c *Client) DeleteReview(ctx context.Context, productID, reviewID string) error {
	return c.do(ctx, call{
		op:     "reviews.delete",
		method: http.MethodDelete,
		path:   "/products/admin/" + escape(productID) + "/reviews/" + escape(reviewID),
		auth:   true,
	})
}
