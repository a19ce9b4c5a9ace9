package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgecommerce/catalog/internal/bootstrap"
	"github.com/forgecommerce/catalog/internal/catalog"
	"github.com/forgecommerce/catalog/internal/config"
	"github.com/forgecommerce/catalog/internal/database"
	adminhandlers "github.com/forgecommerce/catalog/internal/handlers/admin"
	apihandlers "github.com/forgecommerce/catalog/internal/handlers/api"
	"github.com/forgecommerce/catalog/internal/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("database connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	imgs, err := bootstrap.NewImages(ctx, cfg, reg, logger)
	if err != nil {
		slog.Error("failed to initialize image engine", "error", err)
		os.Exit(1)
	}
	defer imgs.Close()

	products := catalog.NewRepository(pool)

	publicHandler := apihandlers.NewPublicHandler(products, imgs.Engine, logger)
	imageHandler := adminhandlers.NewImageHandler(imgs.Engine, products, logger)

	// Admin server (image management + metrics)
	adminRouter := chi.NewRouter()
	adminRouter.Use(
		chimw.RequestID,
		middleware.RequestLogger(logger),
		middleware.Recover(logger),
		middleware.SecurityHeaders,
	)

	adminRouter.Get("/admin/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	adminRouter.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	imageHandler.RegisterRoutes(adminRouter)

	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AdminPort),
		Handler:      adminRouter,
		ReadTimeout:  30 * time.Second, // multipart uploads
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// API server (JSON REST)
	apiRouter := chi.NewRouter()
	apiRouter.Use(
		chimw.RequestID,
		middleware.RequestLogger(logger),
		middleware.Recover(logger),
		middleware.SecurityHeaders,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{cfg.BaseURL},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}),
		middleware.RefreshLimiter(cfg.Images.RefreshRate, cfg.Images.RefreshBurst),
	)

	apiRouter.Get("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	// The local driver's "signed" URLs point here.
	if cfg.StorageDriver == config.StorageLocal {
		prefix := cfg.MediaURLPrefix + "/"
		apiRouter.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.MediaPath))))
	}

	publicHandler.RegisterRoutes(apiRouter)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start servers
	errCh := make(chan error, 2)

	go func() {
		slog.Info("admin server starting", "port", cfg.AdminPort)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin server shutdown error", "error", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown error", "error", err)
	}

	slog.Info("servers stopped")
}
