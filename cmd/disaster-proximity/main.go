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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mr1hm/go-disaster-proximity/internal/api"
	"github.com/mr1hm/go-disaster-proximity/internal/app"
	"github.com/mr1hm/go-disaster-proximity/internal/config"
	internalgrpc "github.com/mr1hm/go-disaster-proximity/internal/grpc"
	"github.com/mr1hm/go-disaster-proximity/internal/ingestion"
	"github.com/mr1hm/go-disaster-proximity/internal/logging"
	"github.com/mr1hm/go-disaster-proximity/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "db_driver", cfg.DB.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := app.OpenStore(ctx, cfg.DB)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metrics := observability.NewMetrics()
	search := app.NewSearch(cfg, store, metrics)
	if cfg.Search.ProbeOnStartup {
		d := search.Probe.Diagnostics(ctx)
		slog.Info("spatial capability probed", "state", d.State, "available", d.Available, "reason", d.Reason)
	}

	cacheStore := app.NewCacheStore(ctx, cfg.Cache)
	defer cacheStore.Close()

	// Start ingestion manager
	mgr := ingestion.NewManager(cfg, store, ingestion.WithRecorder(metrics))
	mgr.Start(ctx)

	// Start gRPC health server
	grpcServer := internalgrpc.NewServer(search.Probe, cfg.GRPC.HealthInterval)
	go grpcServer.WatchCapability(ctx)
	go func() {
		grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
		if err := grpcServer.Start(grpcAddr); err != nil {
			logging.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	opts := []api.Option{
		api.WithDiagnostics(search.Probe, search.Harness),
		api.WithMetricsHandler(promhttp.Handler()),
	}
	if geocoder := app.NewGeocoder(cfg, cacheStore, metrics); geocoder != nil {
		opts = append(opts, api.WithGeocoder(geocoder))
	}
	handler := api.NewHandler(store, search.Coordinator, opts...)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	grpcServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
