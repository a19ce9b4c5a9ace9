package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forgecommerce/catalog/internal/catalog"
	"github.com/forgecommerce/catalog/internal/images"
	"github.com/forgecommerce/catalog/internal/storage"
)

// ImageStore is the write side of the image engine.
type ImageStore interface {
	Upload(ctx context.Context, productID int64, filename string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, productID int64, filename string) error
	Invalidate(ctx context.Context, productID int64) error
}

// ProductGetter looks up catalog records.
type ProductGetter interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// ImageHandler handles admin product image management endpoints.
type ImageHandler struct {
	images   ImageStore
	products ProductGetter
	logger   *slog.Logger
}

// NewImageHandler creates a new image handler.
func NewImageHandler(imgs ImageStore, products ProductGetter, logger *slog.Logger) *ImageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageHandler{
		images:   imgs,
		products: products,
		logger:   logger,
	}
}

// RegisterRoutes registers product image admin routes on the given router.
func (h *ImageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/admin/v1/products/{id}/images", h.UploadImage)
	r.Post("/admin/v1/products/{id}/images/invalidate", h.InvalidateImages)
	r.Delete("/admin/v1/products/{id}/images/{filename}", h.DeleteImage)
}

type uploadResponse struct {
	ProductID int64  `json:"product_id"`
	Filename  string `json:"filename"`
	Key       string `json:"key"`
}

type errorJSON struct {
	Error string `json:"error"`
}

// UploadImage handles POST /admin/v1/products/{id}/images.
// Expects a multipart form with an "image" file and an optional "filename".
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, ok := parseProductID(w, r)
	if !ok {
		return
	}

	if _, err := h.products.Get(ctx, productID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorJSON{Error: "product not found"})
			return
		}
		h.logger.Error("failed to get product", "product_id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+(1<<20))
	if err := r.ParseMultipartForm(maxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorJSON{Error: ErrFileTooLarge.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid form data"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "image file is required"})
		return
	}
	defer file.Close()

	contentType, err := validateUpload(file, header)
	if err != nil {
		status := http.StatusUnsupportedMediaType
		if errors.Is(err, ErrFileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		} else if !errors.Is(err, ErrInvalidContentType) && !errors.Is(err, ErrInvalidMagicBytes) {
			h.logger.Error("failed to read uploaded file", "product_id", productID, "error", err)
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorJSON{Error: err.Error()})
		return
	}

	name := r.FormValue("filename")
	if name == "" {
		name = header.Filename
	}
	filename := uploadFilename(name, contentType)

	if err := h.images.Upload(ctx, productID, filename, file, header.Size, contentType); err != nil {
		writeEngineError(w, err)
		return
	}

	key, _ := images.ObjectKey(productID, filename)
	writeJSON(w, http.StatusCreated, uploadResponse{
		ProductID: productID,
		Filename:  filename,
		Key:       key,
	})
}

// DeleteImage handles DELETE /admin/v1/products/{id}/images/{filename}.
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(w, r)
	if !ok {
		return
	}

	if err := h.images.Delete(r.Context(), productID, chi.URLParam(r, "filename")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateImages handles POST /admin/v1/products/{id}/images/invalidate.
func (h *ImageHandler) InvalidateImages(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(w, r)
	if !ok {
		return
	}

	if err := h.images.Invalidate(r.Context(), productID); err != nil {
		h.logger.Error("failed to invalidate image cache", "product_id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func parseProductID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid product id"})
		return 0, false
	}
	return id, true
}

// writeEngineError maps write-path errors to responses. The engine has
// already logged storage failures.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, images.ErrInvalidProductID), errors.Is(err, images.ErrInvalidFilename):
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorJSON{Error: "image not found"})
	case errors.Is(err, storage.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorJSON{Error: "storage unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
