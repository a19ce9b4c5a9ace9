package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/forgecommerce/catalog/internal/cache"
	"github.com/forgecommerce/catalog/internal/storage"
)

const (
	DefaultCacheTTL        = time.Hour
	DefaultFallbackTTL     = 5 * time.Minute
	DefaultURLLifetime     = time.Hour
	DefaultImageKey        = "image_not_found.png"
	DefaultValidityBuffer  = 5 * time.Minute
	DefaultSignConcurrency = 8
)

// defaultUnavailable is reported on a default descriptor whose object could
// not be signed.
const defaultUnavailable = "default image not available"

// Config tunes the engine. Zero fields take the package defaults.
type Config struct {
	// CacheTTL is how long a resolved image set stays cached.
	CacheTTL time.Duration
	// FallbackTTL is how long the default image is cached for a product
	// without images.
	FallbackTTL time.Duration
	// URLLifetime is the validity of every signed URL.
	URLLifetime time.Duration
	// DefaultImageKey is the object served when a product has no images.
	DefaultImageKey string
	// ValidityBuffer is the minimum remaining lifetime a cached URL must
	// have to be served.
	ValidityBuffer time.Duration
	// SignConcurrency bounds parallel presign calls per rebuild.
	SignConcurrency int
	// CoalesceMisses shares one rebuild between concurrent misses on the
	// same product.
	CoalesceMisses bool
}

func (c Config) withDefaults() Config {
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.FallbackTTL == 0 {
		c.FallbackTTL = DefaultFallbackTTL
	}
	if c.URLLifetime == 0 {
		c.URLLifetime = DefaultURLLifetime
	}
	if c.DefaultImageKey == "" {
		c.DefaultImageKey = DefaultImageKey
	}
	if c.ValidityBuffer == 0 {
		c.ValidityBuffer = DefaultValidityBuffer
	}
	if c.SignConcurrency == 0 {
		c.SignConcurrency = DefaultSignConcurrency
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.CacheTTL < 0:
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	case c.FallbackTTL < 0:
		return fmt.Errorf("fallback ttl must be positive, got %s", c.FallbackTTL)
	case c.ValidityBuffer < 0:
		return fmt.Errorf("validity buffer must be positive, got %s", c.ValidityBuffer)
	case c.SignConcurrency < 0:
		return fmt.Errorf("sign concurrency must be positive, got %d", c.SignConcurrency)
	case c.URLLifetime <= c.ValidityBuffer:
		// Freshly signed URLs would already count as stale.
		return fmt.Errorf("url lifetime %s must exceed validity buffer %s", c.URLLifetime, c.ValidityBuffer)
	}
	return nil
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records engine activity on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine resolves product images. It holds no per-product state of its own;
// everything shared between requests lives in the cache store, so any number
// of engines may serve the same products.
type Engine struct {
	storage  storage.Storage
	cache    cache.Store
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	metrics  *Metrics
	inflight singleflight.Group
}

// New creates an Engine over the given object storage and cache.
func New(store storage.Storage, c cache.Store, cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("images: storage is required")
	}
	if c == nil {
		return nil, errors.New("images: cache is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		storage: store,
		cache:   c,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Resolve returns the product's images with signed URLs, in storage listing
// order. It never fails: a product without images, or one whose images cannot
// be listed or signed, gets a single default descriptor. forceRefresh skips
// the cached set and rebuilds it from storage.
func (e *Engine) Resolve(ctx context.Context, productID int64, forceRefresh bool) []Descriptor {
	if forceRefresh {
		e.metrics.lookup(lookupBypass)
		e.logger.Debug("bypassing image cache", "product_id", productID)
		return e.rebuild(ctx, productID)
	}

	if entry, ok := e.cached(ctx, productID); ok {
		return entry.Images
	}

	if !e.cfg.CoalesceMisses {
		return e.rebuild(ctx, productID)
	}
	// The shared rebuild outlives any one caller, so it must not inherit the
	// first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, _, _ := e.inflight.Do(CacheKey(productID), func() (any, error) {
		return e.rebuild(shared, productID), nil
	})
	// Callers sharing a rebuild must not share its backing array.
	return slices.Clone(v.([]Descriptor))
}

// First returns the first image Resolve would return. ok is false only when
// no descriptor is available at all.
func (e *Engine) First(ctx context.Context, productID int64, forceRefresh bool) (Descriptor, bool) {
	imgs := e.Resolve(ctx, productID, forceRefresh)
	if len(imgs) == 0 {
		return Descriptor{}, false
	}
	return imgs[0], true
}

// Invalidate drops the product's cached image set. The next Resolve rebuilds
// it from storage.
func (e *Engine) Invalidate(ctx context.Context, productID int64) error {
	if err := e.cache.Delete(ctx, CacheKey(productID)); err != nil {
		return fmt.Errorf("invalidating images of product %d: %w", productID, err)
	}
	e.metrics.invalidation()
	e.logger.Info("image cache invalidated", "product_id", productID)
	return nil
}

// Upload stores an image under the product's prefix and invalidates the
// product's cached set. The cache is left untouched when the upload fails.
func (e *Engine) Upload(ctx context.Context, productID int64, filename string, body io.Reader, size int64, contentType string) error {
	key, err := ObjectKey(productID, filename)
	if err != nil {
		return err
	}
	if err := e.storage.Put(ctx, key, body, size, contentType); err != nil {
		e.logger.Error("uploading product image failed", "product_id", productID, "key", key, "error", err)
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	e.logger.Info("product image uploaded", "product_id", productID, "key", key)
	e.invalidateAfterWrite(ctx, productID)
	return nil
}

// Delete removes an image from the product's prefix and invalidates the
// product's cached set. The cache is left untouched when the delete fails.
func (e *Engine) Delete(ctx context.Context, productID int64, filename string) error {
	key, err := ObjectKey(productID, filename)
	if err != nil {
		return err
	}
	if err := e.storage.Delete(ctx, key); err != nil {
		e.logger.Error("deleting product image failed", "product_id", productID, "key", key, "error", err)
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	e.logger.Info("product image deleted", "product_id", productID, "key", key)
	e.invalidateAfterWrite(ctx, productID)
	return nil
}

// DefaultDescriptor signs the configured default image. When signing fails
// the descriptor carries no URL and Error is set.
func (e *Engine) DefaultDescriptor(ctx context.Context) Descriptor {
	d, err := e.sign(ctx, e.cfg.DefaultImageKey)
	if err != nil {
		e.logger.Error("signing default image failed", "key", e.cfg.DefaultImageKey, "error", err)
		d = Descriptor{
			Filename:  path.Base(e.cfg.DefaultImageKey),
			Key:       e.cfg.DefaultImageKey,
			ExpiresAt: e.now().Add(e.cfg.URLLifetime),
			Error:     defaultUnavailable,
		}
	}
	d.IsDefault = true
	return d
}

// invalidateAfterWrite runs after a successful storage write. The write has
// already happened, so a failure here is logged rather than returned; the
// stale entry ages out with its TTL.
func (e *Engine) invalidateAfterWrite(ctx context.Context, productID int64) {
	if err := e.Invalidate(ctx, productID); err != nil {
		e.logger.Error("invalidating image cache after write failed", "product_id", productID, "error", err)
	}
}

// cached returns the product's cached entry when every URL in it is still
// valid for longer than the buffer.
func (e *Engine) cached(ctx context.Context, productID int64) (Entry, bool) {
	key := CacheKey(productID)

	raw, err := e.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		e.metrics.lookup(lookupMiss)
		return Entry{}, false
	}
	if err != nil {
		e.metrics.lookup(lookupError)
		e.logger.Warn("reading image cache failed, treating as miss", "product_id", productID, "error", err)
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		e.metrics.lookup(lookupError)
		e.logger.Warn("decoding cached images failed, treating as miss", "product_id", productID, "error", err)
		return Entry{}, false
	}
	if !entry.validAt(e.now(), e.cfg.ValidityBuffer) {
		e.metrics.lookup(lookupStale)
		e.logger.Debug("cached image urls expiring, rebuilding", "product_id", productID)
		return Entry{}, false
	}

	e.metrics.lookup(lookupHit)
	return entry, true
}

// rebuild lists and signs the product's images and caches the result.
func (e *Engine) rebuild(ctx context.Context, productID int64) []Descriptor {
	keys, err := e.storage.List(ctx, Prefix(productID))
	if err != nil {
		// Not cached: the product may well have images once storage recovers.
		e.metrics.fallback(fallbackListError)
		e.logger.Error("listing product images failed, serving default image", "product_id", productID, "error", err)
		return []Descriptor{e.DefaultDescriptor(ctx)}
	}

	if len(keys) == 0 {
		e.metrics.fallback(fallbackEmpty)
		e.logger.Debug("product has no images, serving default image", "product_id", productID)
		d := e.DefaultDescriptor(ctx)
		e.store(ctx, productID, Entry{
			Images:    []Descriptor{d},
			CachedAt:  e.now(),
			IsDefault: true,
		}, e.cfg.FallbackTTL)
		return []Descriptor{d}
	}

	imgs := e.signAll(ctx, productID, keys)
	if len(imgs) == 0 {
		e.metrics.fallback(fallbackSignError)
		e.logger.Error("no product image could be signed, serving default image", "product_id", productID, "keys", len(keys))
		return []Descriptor{e.DefaultDescriptor(ctx)}
	}

	e.store(ctx, productID, Entry{Images: imgs, CachedAt: e.now()}, e.cfg.CacheTTL)
	e.logger.Debug("product images resolved", "product_id", productID, "count", len(imgs))
	return imgs
}

// signAll presigns keys in parallel, keeping listing order. Keys that fail to
// sign are dropped.
func (e *Engine) signAll(ctx context.Context, productID int64, keys []string) []Descriptor {
	signed := make([]Descriptor, len(keys))
	ok := make([]bool, len(keys))

	var g errgroup.Group
	g.SetLimit(e.cfg.SignConcurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			d, err := e.sign(ctx, key)
			if err != nil {
				e.metrics.signFailure()
				e.logger.Warn("skipping product image that could not be signed", "product_id", productID, "key", key, "error", err)
				return nil
			}
			signed[i], ok[i] = d, true
			return nil
		})
	}
	_ = g.Wait()

	imgs := make([]Descriptor, 0, len(keys))
	for i := range signed {
		if ok[i] {
			imgs = append(imgs, signed[i])
		}
	}
	return imgs
}

func (e *Engine) sign(ctx context.Context, key string) (Descriptor, error) {
	issued := e.now()
	url, err := e.storage.PresignGet(ctx, key, e.cfg.URLLifetime)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %w", ErrSigningFailed, key, err)
	}
	return Descriptor{
		URL:       url,
		Filename:  path.Base(key),
		Key:       key,
		ExpiresAt: issued.Add(e.cfg.URLLifetime),
	}, nil
}

func (e *Engine) store(ctx context.Context, productID int64, entry Entry, ttl time.Duration) {
	raw, err := json.Marshal(entry)
	if err != nil {
		e.logger.Error("encoding image cache entry failed", "product_id", productID, "error", err)
		return
	}
	if err := e.cache.Set(ctx, CacheKey(productID), raw, ttl); err != nil {
		e.logger.Warn("writing image cache failed", "product_id", productID, "error", err)
	}
}
