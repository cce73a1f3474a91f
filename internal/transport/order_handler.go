package transport

import (
	"errors"
	"net/http"

	"storefront/internal/api"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OrderHandler serves the order endpoints
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, logger: logger}
}

// RegisterRoutes registers the order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/user-orders", h.ListMine)
		r.Put("/status", h.UpdateStatus)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", h.ListAll)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// ListAll returns every order
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListAll(r.Context())
	if err != nil {
		h.respondError(w, "list orders", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, api.OrdersResponse{Orders: orders})
}

// ListMine returns the caller's orders
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	orders, err := h.orderService.ListForUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, "list orders", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, api.OrdersResponse{Orders: orders})
}

// UpdateStatus moves an order to a new status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateOrderStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}
	if !req.Status.Valid() {
		middleware.RespondWithError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	role, _ := middleware.GetUserRole(r.Context())
	if err := h.orderService.UpdateStatus(r.Context(), userID, role, req.OrderID, req.Status); err != nil {
		h.respondError(w, "update order status", err)
		return
	}

	h.logger.Info("Order status updated",
		zap.String("order_id", req.OrderID),
		zap.String("status", string(req.Status)),
		zap.String("role", string(role)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, api.MessageResponse{Message: "status updated"})
}

// Delete removes an order
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.orderService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete order", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, api.MessageResponse{Message: "order deleted"})
}

func (h *OrderHandler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrNotOrderOwner):
		middleware.RespondWithError(w, http.StatusForbidden, "order belongs to another user")
	case errors.Is(err, service.ErrTransitionNotAllowed):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Order request failed", zap.String("op", op), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
