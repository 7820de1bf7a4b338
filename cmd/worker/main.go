package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smartlab/internal/app"
	"smartlab/internal/attendance"
	"smartlab/internal/config"
	"smartlab/internal/logging"
	"smartlab/internal/metrics"
	"smartlab/internal/worker"
)

// Worker consumes absence jobs and enqueues the daily one after the cutoff.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open backends", zap.Error(err))
	}
	defer backends.Close()
	if cfg.QueueBackend == "memory" {
		logger.Warn("in-memory queue: this worker only sees jobs it schedules itself")
	}

	loc, _ := cfg.Location()
	cutoff, _ := cfg.Cutoff()
	policy, _ := attendance.ParsePolicy(cfg.AttendancePolicy)
	clock := attendance.NewSystemClock(loc)

	m := metrics.New(prometheus.NewRegistry())
	resolver := attendance.NewResolver(backends.Attendance, backends.People, policy, logger.Named("attendance"))
	w := worker.New(backends.Queue, resolver, m, logger.Named("worker"))
	sched := worker.NewScheduler(backends.Queue, clock, cutoff, logger.Named("scheduler"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		sched.Run(gctx, time.Minute)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker failed", zap.Error(err))
	}
	logger.Info("worker exited")
}
