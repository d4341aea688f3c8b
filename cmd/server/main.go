package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campuspay/internal/app"
	"campuspay/internal/config"
	"campuspay/internal/metrics"
	"campuspay/internal/scheduler"
	"campuspay/pkg/db"
)

const (
	graduationJobTimeout = 30 * time.Minute
	maintenanceTimeout   = 5 * time.Minute
	shutdownTimeout      = 15 * time.Second
)

func main() {
	log.Println("campuspay API starting...")
	cfg := config.Load()
	log.Println("Config loaded")

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx, a.DB); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	metrics.InitMetrics()
	if cfg.MetricsPasswordHash == "" {
		log.Println("Warning: METRICS_PASSWORD_HASH not set, /metrics will reject every request")
	}

	var jobs *scheduler.Scheduler
	if cfg.Jobs.Enabled {
		jobs, err = startScheduler(a)
		if err != nil {
			log.Fatalf("Scheduler setup failed: %v", err)
		}
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
		// Verify calls the gateway, so the write timeout must exceed the gateway timeout.
		WriteTimeout: cfg.Payment.GatewayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Println("Shutdown signal received, starting graceful shutdown")
		shutdown(server, jobs)
	}()

	log.Printf("Server running on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	<-stopped
	log.Println("Server stopped")
}

func startScheduler(a *app.App) (*scheduler.Scheduler, error) {
	cfg := a.Config
	s := scheduler.New()

	if err := s.Register(scheduler.JobGraduation, cfg.Jobs.GraduationSpec, graduationJobTimeout,
		scheduler.GraduationJob(a.Graduation)); err != nil {
		return nil, err
	}
	if err := s.Register(scheduler.JobOverdueSweep, cfg.Jobs.OverdueSweepSpec, maintenanceTimeout,
		scheduler.OverdueSweepJob(a.Payments)); err != nil {
		return nil, err
	}
	if err := s.Register(scheduler.JobReverify, cfg.Jobs.ReverifySpec, maintenanceTimeout,
		scheduler.ReverifyJob(a.Payments, cfg.Payment.ReverifyAfter, cfg.Payment.ReverifyBatchSize)); err != nil {
		return nil, err
	}

	s.Start()
	return s, nil
}

func shutdown(server *http.Server, jobs *scheduler.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
	if jobs != nil {
		if err := jobs.Stop(ctx); err != nil {
			log.Printf("Scheduler shutdown failed: %v", err)
		}
	}
}
