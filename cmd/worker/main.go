package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront_payments/internal/app"
	"storefront_payments/internal/config"
	"storefront_payments/internal/tasks"
	"storefront_payments/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	schedule, err := tasks.ParseSchedule(cfg.ReconcileSchedule, time.Now())
	if err != nil {
		log.Fatalf("Invalid RECONCILE_SCHEDULE: %v", err)
	}

	// Initialize Task Registry
	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, a.Orders, a.Payments)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Printf("Worker started with schedule %s", cfg.ReconcileSchedule)

	// One sweep at startup so a restart does not wait a full interval.
	runTasks(ctx, registry)

	for {
		next := schedule.Next(time.Now())
		if next.IsZero() {
			log.Println("Schedule exhausted, worker exiting")
			return
		}
		log.Printf("Next sweep at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			runTasks(ctx, registry)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func runTasks(ctx context.Context, registry *tasks.Registry) {
	for _, name := range registry.Names() {
		if ctx.Err() != nil {
			return
		}
		handler, _ := registry.Get(name)

		startTime := time.Now()
		result, err := handler(ctx, nil)
		duration := time.Since(startTime)
		if err != nil {
			log.Printf("Task %s failed after %s: %v", name, duration, err)
			continue
		}
		log.Printf("Task %s completed in %s: %v", name, duration, result)
	}
}
