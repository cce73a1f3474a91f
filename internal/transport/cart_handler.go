package transport

import (
	"errors"
	"net/http"

	"storefront/internal/api"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CartHandler serves the cart and checkout endpoints
type CartHandler struct {
	cartService service.CartService
	logger      *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{cartService: cartService, logger: logger}
}

// RegisterRoutes registers the cart routes; all of them need a session
func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.Get)
		r.Post("/add", h.Add)
		r.Put("/update", h.Update)
		r.Post("/update", h.Update)
		r.Post("/remove", h.Remove)
		r.Post("/checkout", h.Checkout)
	})
}

// Get returns the caller's cart
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	lines, err := h.cartService.GetCart(r.Context(), userID)
	h.respondCart(w, "get cart", lines, err)
}

// Add creates a line or merges into the existing one
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req api.AddToCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	lines, err := h.cartService.AddLine(r.Context(), userID, domain.CartLine{
		ProductID: req.ProductID,
		Size:      req.Size,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Name:      req.Name,
		ImageURL:  req.ImageURL,
	})
	h.respondCart(w, "add to cart", lines, err)
}

// Update sets a line's absolute quantity
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	key := domain.LineKey{ProductID: req.ProductID, Size: req.Size}
	lines, err := h.cartService.UpdateLine(r.Context(), userID, key, req.Quantity)
	h.respondCart(w, "update cart", lines, err)
}

// Remove deletes a line
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req api.RemoveCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	key := domain.LineKey{ProductID: req.ProductID, Size: req.Size}
	lines, err := h.cartService.RemoveLine(r.Context(), userID, key)
	h.respondCart(w, "remove from cart", lines, err)
}

// Checkout places an order for the selected items
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req api.CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	userID, _ := middleware.GetUserID(r.Context())
	order, err := h.cartService.Checkout(r.Context(), userID, service.CheckoutInput{
		Shipping:       req.Shipping,
		PaymentMethod:  req.PaymentMethod,
		Items:          req.SelectedItems,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, "checkout", err)
		return
	}

	h.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int64("total", order.Total()),
	)
	middleware.RespondWithJSON(w, http.StatusOK, api.CheckoutResponse{OrderID: order.ID, Message: "order placed"})
}

func (h *CartHandler) respondCart(w http.ResponseWriter, op string, lines []domain.CartLine, err error) {
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, api.CartResponse{Items: lines})
}

func (h *CartHandler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, service.ErrLineNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "cart line not found")
	case errors.Is(err, service.ErrSizeUnavailable),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmptySelection),
		errors.Is(err, service.ErrUnknownPayMethod):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Cart request failed", zap.String("op", op), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
