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

// ProductHandler serves the catalog and review endpoints
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{productService: productService, logger: logger}
}

// RegisterRoutes registers the product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/all", h.List)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/{id}/review", h.SubmitReview)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Put("/admin/{id}/reviews/{reviewId}/reply", h.Reply)
				r.Delete("/admin/{id}/reviews/{reviewId}", h.DeleteReview)
			})
		})
	})
}

// List returns every product without reviews
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.productService.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Get returns one product with its reviews
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get product", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// SubmitReview posts a customer review
func (h *ProductHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var form domain.ReviewForm
	if err := middleware.DecodeAndValidate(r, &form); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	review, err := h.productService.AddReview(r.Context(), userID, chi.URLParam(r, "id"), form)
	if err != nil {
		h.respondError(w, "submit review", err)
		return
	}

	h.logger.Info("Review submitted",
		zap.String("product_id", chi.URLParam(r, "id")),
		zap.String("review_id", review.ID),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, review)
}

// Reply sets an admin reply
func (h *ProductHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req api.AdminReplyRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	err := h.productService.ReplyToReview(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reviewId"), req.AdminReply)
	if err != nil {
		h.respondError(w, "reply to review", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, api.MessageResponse{Message: "reply saved"})
}

// DeleteReview removes a review
func (h *ProductHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	err := h.productService.DeleteReview(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reviewId"))
	if err != nil {
		h.respondError(w, "delete review", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, api.MessageResponse{Message: "review deleted"})
}

func (h *ProductHandler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, repository.ErrReviewNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "review not found")
	case errors.Is(err, service.ErrReviewNotAllowed):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrReviewExists):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Product request failed", zap.String("op", op), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
