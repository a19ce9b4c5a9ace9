// Package bootstrap builds the image engine and its backends from configuration.
// Both the HTTP server and imagectl go through it so they always agree on
// drivers and settings.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forgecommerce/catalog/internal/cache"
	"github.com/forgecommerce/catalog/internal/config"
	"github.com/forgecommerce/catalog/internal/images"
	"github.com/forgecommerce/catalog/internal/storage"
)

// Images is a ready engine plus whatever needs closing on shutdown.
type Images struct {
	Engine  *images.Engine
	Storage storage.Storage
	Cache   cache.Store

	closers []io.Closer
}

// Close releases network clients opened by NewImages.
func (i *Images) Close() error {
	var first error
	for _, c := range i.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewImages opens the configured storage and cache backends and builds the
// engine over them. reg may be nil, in which case no metrics are recorded.
func NewImages(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Images, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out := &Images{Storage: store}

	c, err := NewCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out.Cache = c
	if closer, ok := c.(io.Closer); ok {
		out.closers = append(out.closers, closer)
	}

	var opts []images.Option
	if reg != nil {
		opts = append(opts, images.WithMetrics(images.NewMetrics(reg)))
	}

	engine, err := images.New(store, c, cfg.Images.Engine(), logger, opts...)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("creating image engine: %w", err)
	}
	out.Engine = engine

	logger.Info("image engine ready",
		"storage_driver", cfg.StorageDriver,
		"cache_driver", cfg.Cache.Driver,
		"bucket", cfg.S3.Bucket,
	)
	return out, nil
}

// NewStorage opens the object store selected by STORAGE_DRIVER.
func NewStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageLocal:
		return storage.NewLocal(cfg.MediaPath, cfg.MediaURLPrefix), nil
	case config.StorageS3:
		s, err := storage.NewS3(ctx, storage.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Bucket:         cfg.S3.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 storage: %w", err)
		}
		return s, nil
	case config.StorageMinio:
		m, err := storage.NewMinio(storage.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Bucket:    cfg.S3.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("creating minio storage: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// NewCache opens the cache selected by CACHE_DRIVER. A Redis cache is pinged
// before it is returned.
func NewCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case config.CacheMemory:
		m, err := cache.NewMemory(cfg.Cache.MemorySize, nil)
		if err != nil {
			return nil, fmt.Errorf("creating memory cache: %w", err)
		}
		return m, nil
	case config.CacheRedis:
		r, err := cache.NewRedis(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("creating redis cache: %w", err)
		}
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("pinging redis: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}
