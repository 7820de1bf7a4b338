package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"smartlab/internal/access"
	"smartlab/internal/app"
	"smartlab/internal/attendance"
	"smartlab/internal/auth"
	"smartlab/internal/badge"
	"smartlab/internal/config"
	"smartlab/internal/httpapi"
	"smartlab/internal/logging"
	"smartlab/internal/metrics"
	"smartlab/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	loc, _ := cfg.Location()
	clock := attendance.NewSystemClock(loc)
	policy, _ := attendance.ParsePolicy(cfg.AttendancePolicy)

	resolver := attendance.NewResolver(backends.Attendance, backends.People, policy, logger.Named("attendance"))
	directory := badge.NewDirectory(backends.People, backends.Attendance, logger.Named("badge"))
	accessSvc := access.NewService(directory, resolver, clock,
		access.WithReaderCache(backends.ReaderCache, cfg.ReaderScanTTL),
		access.WithMetrics(m),
		access.WithLogger(logger.Named("access")),
	)

	if cfg.QueueBackend == "memory" {
		// jobs published here are only visible in this process
		w := worker.New(backends.Queue, resolver, m, logger.Named("worker"))
		go func() { _ = w.Run(ctx) }()
	}

	h := httpapi.New(httpapi.Deps{
		Access:          accessSvc,
		Badges:          directory,
		Attendance:      resolver,
		Clock:           clock,
		Devices:         backends.Devices,
		Issuer:          auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Queue:           backends.Queue,
		Metrics:         m,
		ProvisioningKey: cfg.ProvisioningKey,
		Health:          backends.Health(),
		Log:             logger.Named("http"),
	})
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		AllowOrigins:    cfg.CORSAllowOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Gatherer:        reg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreBackend),
			zap.String("policy", string(policy)),
			zap.String("timezone", cfg.Timezone))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
