package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/catalog/internal/catalog"
	"github.com/forgecommerce/catalog/internal/images"
)

// ProductReader reads catalog records.
type ProductReader interface {
	List(ctx context.Context) ([]catalog.Product, error)
	Featured(ctx context.Context) ([]catalog.Product, error)
	ByCategory(ctx context.Context, category string) ([]catalog.Product, error)
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// ImageResolver resolves product images to signed URLs.
type ImageResolver interface {
	Resolve(ctx context.Context, productID int64, forceRefresh bool) []images.Descriptor
	First(ctx context.Context, productID int64, forceRefresh bool) (images.Descriptor, bool)
}

// PublicHandler holds dependencies for public-facing API handlers.
type PublicHandler struct {
	products ProductReader
	images   ImageResolver
	logger   *slog.Logger
}

// NewPublicHandler creates a new public API handler.
func NewPublicHandler(products ProductReader, imgs ImageResolver, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{
		products: products,
		images:   imgs,
		logger:   logger,
	}
}

// RegisterRoutes registers all public API routes on the given router.
func (h *PublicHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/products", h.ListProducts)
	r.Get("/api/v1/products/featured", h.FeaturedProducts)
	r.Get("/api/v1/products/category/{category}", h.ProductsByCategory)
	r.Get("/api/v1/products/{id}", h.GetProduct)
	r.Get("/api/v1/products/{id}/images", h.ListProductImages)
}

// --- JSON response types ---

// listResponse is the standard list response wrapper.
type listResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// productSummary is the public-facing product representation for list endpoints.
type productSummary struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Price       decimal.Decimal    `json:"price"`
	Category    string             `json:"category"`
	IsFeatured  bool               `json:"is_featured"`
	IsAvailable bool               `json:"is_available"`
	CreatedAt   time.Time          `json:"created_at"`
	Image       *images.Descriptor `json:"image"`
}

// productDetail is the full product representation with every image.
type productDetail struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Price       decimal.Decimal     `json:"price"`
	Category    string              `json:"category"`
	IsFeatured  bool                `json:"is_featured"`
	IsAvailable bool                `json:"is_available"`
	CreatedAt   time.Time           `json:"created_at"`
	Images      []images.Descriptor `json:"images"`
}

type imagesResponse struct {
	ProductID int64               `json:"product_id"`
	Images    []images.Descriptor `json:"images"`
}

// errorJSON is the error response format.
type errorJSON struct {
	Error string `json:"error"`
}

// --- Handlers ---

// ListProducts handles GET /api/v1/products
func (h *PublicHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		return
	}
	h.writeSummaries(w, r, products)
}

// FeaturedProducts handles GET /api/v1/products/featured
func (h *PublicHandler) FeaturedProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.Featured(r.Context())
	if err != nil {
		h.logger.Error("failed to list featured products", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		return
	}
	h.writeSummaries(w, r, products)
}

// ProductsByCategory handles GET /api/v1/products/category/{category}
func (h *PublicHandler) ProductsByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if category == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "category is required"})
		return
	}

	products, err := h.products.ByCategory(r.Context(), category)
	if err != nil {
		h.logger.Error("failed to list products by category", "category", category, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		return
	}
	h.writeSummaries(w, r, products)
}

// GetProduct handles GET /api/v1/products/{id}
func (h *PublicHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.availableProduct(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, productDetail{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		IsFeatured:  p.IsFeatured,
		IsAvailable: p.IsAvailable,
		CreatedAt:   p.CreatedAt,
		Images:      h.images.Resolve(r.Context(), p.ID, forceRefresh(r)),
	})
}

// ListProductImages handles GET /api/v1/products/{id}/images
func (h *PublicHandler) ListProductImages(w http.ResponseWriter, r *http.Request) {
	p, ok := h.availableProduct(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, imagesResponse{
		ProductID: p.ID,
		Images:    h.images.Resolve(r.Context(), p.ID, forceRefresh(r)),
	})
}

// --- Helpers ---

// availableProduct loads the product named by the {id} path parameter and
// writes the error response itself when it is missing or unavailable.
func (h *PublicHandler) availableProduct(w http.ResponseWriter, r *http.Request) (catalog.Product, bool) {
	id, err := productID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid product id"})
		return catalog.Product{}, false
	}

	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorJSON{Error: "product not found"})
			return catalog.Product{}, false
		}
		h.logger.Error("failed to get product", "product_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		return catalog.Product{}, false
	}

	// Only expose available products via the public API.
	if !p.IsAvailable {
		writeJSON(w, http.StatusNotFound, errorJSON{Error: "product not found"})
		return catalog.Product{}, false
	}
	return p, true
}

func (h *PublicHandler) writeSummaries(w http.ResponseWriter, r *http.Request, products []catalog.Product) {
	force := forceRefresh(r)

	summaries := make([]productSummary, len(products))
	for i, p := range products {
		summaries[i] = productSummary{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			IsFeatured:  p.IsFeatured,
			IsAvailable: p.IsAvailable,
			CreatedAt:   p.CreatedAt,
		}
		if img, ok := h.images.First(r.Context(), p.ID, force); ok {
			summaries[i].Image = &img
		}
	}

	writeJSON(w, http.StatusOK, listResponse{Data: summaries, Total: len(summaries)})
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, images.ErrInvalidProductID
	}
	return id, nil
}

func forceRefresh(r *http.Request) bool {
	return images.ParseForceRefresh(r.URL.Query().Get("force_refresh"))
}

// writeJSON encodes v as JSON and writes it to the response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// At this point headers are already sent; just log the error.
		slog.Error("failed to encode JSON response", "error", err)
	}
}
