package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/forgecommerce/catalog/internal/cache"
	"github.com/forgecommerce/catalog/internal/catalog"
	"github.com/forgecommerce/catalog/internal/images"
	"github.com/forgecommerce/catalog/internal/storage"
)

// fakeProducts is an in-memory ProductReader.
type fakeProducts struct {
	products     []catalog.Product
	err          error
	lastCategory string
}

func (f *fakeProducts) List(context.Context) ([]catalog.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.Product
	for _, p := range f.products {
		if p.IsAvailable {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Featured(ctx context.Context) ([]catalog.Product, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []catalog.Product
	for _, p := range all {
		if p.IsFeatured {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) ByCategory(ctx context.Context, category string) ([]catalog.Product, error) {
	f.lastCategory = category
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []catalog.Product
	for _, p := range all {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Get(_ context.Context, id int64) (catalog.Product, error) {
	if f.err != nil {
		return catalog.Product{}, f.err
	}
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

type testServer struct {
	router   chi.Router
	products *fakeProducts
	media    string
}

// newTestServer wires the handler to a real engine over local storage and an
// in-process cache. The default image and two images of product 7 exist.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	media := t.TempDir()
	writeFile(t, media, "image_not_found.png")
	writeFile(t, media, "7/a.jpg")
	writeFile(t, media, "7/b.jpg")

	mem, err := cache.NewMemory(100, nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	engine, err := images.New(storage.NewLocal(media, "/media"), mem, images.Config{}, logger)
	if err != nil {
		t.Fatalf("images.New: %v", err)
	}

	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	products := &fakeProducts{products: []catalog.Product{
		{ID: 7, Name: "Bunny", Price: decimal.RequireFromString("24.50"), Category: "ANIMAL", IsFeatured: true, IsAvailable: true, CreatedAt: created},
		{ID: 8, Name: "Doll", Price: decimal.RequireFromString("18.00"), Category: "DOLL", IsAvailable: true, CreatedAt: created},
		{ID: 9, Name: "Retired Fox", Price: decimal.RequireFromString("12.00"), Category: "ANIMAL", IsAvailable: false, CreatedAt: created},
	}}

	r := chi.NewRouter()
	NewPublicHandler(products, engine, logger).RegisterRoutes(r)

	return &testServer{router: r, products: products, media: media}
}

func writeFile(t *testing.T, base, key string) {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

type summaryResp struct {
	Data []struct {
		ID    int64              `json:"id"`
		Price string             `json:"price"`
		Image *images.Descriptor `json:"image"`
	} `json:"data"`
	Total int `json:"total"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// --------------------------------------------------------------------------
// List endpoints
// --------------------------------------------------------------------------

func TestListProducts(t *testing.T) {
	s := newTestServer(t)

	rr := s.get(t, "/api/v1/products")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q, want %q", ct, "application/json")
	}

	var resp summaryResp
	decode(t, rr, &resp)

	if resp.Total != 2 || len(resp.Data) != 2 {
		t.Fatalf("total: got %d (%d items), want 2", resp.Total, len(resp.Data))
	}
	if resp.Data[0].Price != "24.5" {
		t.Errorf("price: got %q, want %q", resp.Data[0].Price, "24.5")
	}

	bunny := resp.Data[0].Image
	if bunny == nil || bunny.Key != "7/a.jpg" || bunny.URL != "/media/7/a.jpg" || bunny.IsDefault {
		t.Errorf("product 7 image: got %+v, want first stored image", bunny)
	}
	doll := resp.Data[1].Image
	if doll == nil || !doll.IsDefault || doll.Key != "image_not_found.png" {
		t.Errorf("product 8 image: got %+v, want default image", doll)
	}
}

func TestListProducts_RepositoryError(t *testing.T) {
	s := newTestServer(t)
	s.products.err = errors.New("db down")

	rr := s.get(t, "/api/v1/products")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	var resp errorJSON
	decode(t, rr, &resp)
	if resp.Error != "internal server error" {
		t.Errorf("error: got %q, want %q", resp.Error, "internal server error")
	}
}

func TestFeaturedProducts(t *testing.T) {
	s := newTestServer(t)

	rr := s.get(t, "/api/v1/products/featured")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp summaryResp
	decode(t, rr, &resp)
	if len(resp.Data) != 1 || resp.Data[0].ID != 7 {
		t.Errorf("featured: got %+v, want only product 7", resp.Data)
	}
}

func TestProductsByCategory(t *testing.T) {
	s := newTestServer(t)

	rr := s.get(t, "/api/v1/products/category/animal")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if s.products.lastCategory != "animal" {
		t.Errorf("category passed to repository: got %q, want %q", s.products.lastCategory, "animal")
	}
	var resp summaryResp
	decode(t, rr, &resp)
	if len(resp.Data) != 1 || resp.Data[0].ID != 7 {
		t.Errorf("animal products: got %+v, want only product 7", resp.Data)
	}
}

// --------------------------------------------------------------------------
// Detail endpoints
// --------------------------------------------------------------------------

func TestGetProduct(t *testing.T) {
	s := newTestServer(t)

	rr := s.get(t, "/api/v1/products/7")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp productDetail
	decode(t, rr, &resp)

	if resp.Name != "Bunny" {
		t.Errorf("name: got %q, want %q", resp.Name, "Bunny")
	}
	if len(resp.Images) != 2 {
		t.Fatalf("images: got %d, want 2", len(resp.Images))
	}
	if resp.Images[0].Filename != "a.jpg" || resp.Images[1].Filename != "b.jpg" {
		t.Errorf("image order: got %q, %q", resp.Images[0].Filename, resp.Images[1].Filename)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"unknown id", "/api/v1/products/404", http.StatusNotFound},
		{"unavailable", "/api/v1/products/9", http.StatusNotFound},
		{"non-numeric id", "/api/v1/products/bunny", http.StatusBadRequest},
		{"zero id", "/api/v1/products/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.get(t, tt.target)
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestListProductImages(t *testing.T) {
	s := newTestServer(t)

	rr := s.get(t, "/api/v1/products/8/images")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp imagesResponse
	decode(t, rr, &resp)
	if resp.ProductID != 8 {
		t.Errorf("product_id: got %d, want 8", resp.ProductID)
	}
	if len(resp.Images) != 1 || !resp.Images[0].IsDefault {
		t.Errorf("images: got %+v, want single default", resp.Images)
	}
}

func TestListProductImages_ForceRefresh(t *testing.T) {
	s := newTestServer(t)

	s.get(t, "/api/v1/products/7/images")
	writeFile(t, s.media, "7/c.jpg")

	var cached imagesResponse
	decode(t, s.get(t, "/api/v1/products/7/images?force_refresh=no"), &cached)
	if len(cached.Images) != 2 {
		t.Errorf("cached images: got %d, want 2", len(cached.Images))
	}

	var fresh imagesResponse
	decode(t, s.get(t, "/api/v1/products/7/images?force_refresh=TRUE"), &fresh)
	if len(fresh.Images) != 3 {
		t.Errorf("refreshed images: got %d, want 3", len(fresh.Images))
	}
}
