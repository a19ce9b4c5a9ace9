package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgecommerce/catalog/internal/bootstrap"
	"github.com/forgecommerce/catalog/internal/catalog"
	"github.com/forgecommerce/catalog/internal/config"
	"github.com/forgecommerce/catalog/internal/database"
	"github.com/forgecommerce/catalog/internal/images"
)

// imageManager is the part of the image engine the commands drive.
type imageManager interface {
	Resolve(ctx context.Context, productID int64, forceRefresh bool) []images.Descriptor
	Upload(ctx context.Context, productID int64, filename string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, productID int64, filename string) error
	Invalidate(ctx context.Context, productID int64) error
}

// productLookup is the part of the catalog the commands read.
type productLookup interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
	IDs(ctx context.Context) ([]int64, error)
}

// app carries the dependencies shared by every subcommand. They are opened
// lazily so that --help works without a database or object store.
type app struct {
	verbose bool
	logger  *slog.Logger

	images   imageManager
	products productLookup

	// cacheDriver is the configured cache backend. A memory cache is private
	// to this process, so invalidations made here never reach the server.
	cacheDriver string

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// open connects to the database and builds the image engine from the
// environment. Dependencies already set (as in tests) are kept.
func (a *app) open(ctx context.Context) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	if a.images != nil && a.products != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cacheDriver = cfg.Cache.Driver

	if a.products == nil {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.products = catalog.NewRepository(pool)
	}

	if a.images == nil {
		imgs, err := bootstrap.NewImages(ctx, cfg, nil, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { imgs.Close() })
		a.images = imgs.Engine
	}

	a.logger.Debug("configuration loaded",
		"storage_driver", cfg.StorageDriver,
		"cache_driver", cfg.Cache.Driver,
	)
	return nil
}

// localCache reports whether the image cache lives only in this process.
func (a *app) localCache() bool {
	return a.cacheDriver == config.CacheMemory
}

// warnLocalCache tells the user that the server's cached set of productID was
// left untouched.
func (a *app) warnLocalCache(w io.Writer, productID int64) {
	if !a.localCache() {
		return
	}
	fmt.Fprintf(w, "Warning: CACHE_DRIVER=memory is private to imagectl; the server may serve "+
		"the old images of product %d until CACHE_TTL passes. Use CACHE_DRIVER=redis.\n", productID)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "imagectl",
		Short: "Manage product images and the image cache",
		Long: `imagectl uploads, deletes and resolves product images, and clears
cached image sets.

Configuration is read from the environment (and an optional .env file), the
same way the API server reads it.

Example usage:
  imagectl upload --product-id 12 --image-dir ./photos/12
  imagectl resolve --product-id 12
  imagectl delete --product-id 12 --filename front.jpg
  imagectl clear-cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newUploadCmd(a),
		newDeleteCmd(a),
		newResolveCmd(a),
		newClearCacheCmd(a),
	)
	return root
}
