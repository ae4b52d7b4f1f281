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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storefront_payments/internal/app"
	"storefront_payments/internal/config"
	"storefront_payments/internal/handlers"
	webhookMiddleware "storefront_payments/internal/middleware"
	"storefront_payments/internal/services"
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

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	limiter := a.NewRateLimiter()
	verifier := services.NewSignatureVerifier(cfg.Webhook.Secret, cfg.Webhook.MaxSignatureAge)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = webhookMiddleware.CustomErrorHandler
	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(verifier, a.Payments)
	reprocessHandler := handlers.NewReprocessHandler(a.Payments, a.Deliveries)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// Gateway routes
	webhook := []echo.MiddlewareFunc{
		webhookMiddleware.RecordDelivery(a.Deliveries),
		webhookMiddleware.RateLimit(limiter),
	}
	if cfg.Allowlist.Enabled {
		allowlist, err := services.NewIPAllowlist(cfg.Allowlist.SandboxRanges, cfg.Allowlist.ProductionRanges)
		if err != nil {
			log.Fatalf("Invalid IP allowlist: %v", err)
		}
		webhook = append(webhook, webhookMiddleware.IPAllowlist(allowlist, cfg.Gateway.Mode, cfg.Allowlist.Enforce))
	}
	e.GET("/webhooks/payments", webhookHandler.Probe)
	e.POST("/webhooks/payments", webhookHandler.HandleNotification, webhook...)

	// Operator routes
	requireSecret := webhookMiddleware.RequireSecret(cfg.ReprocessSecret)
	e.POST("/webhooks/reprocess", reprocessHandler.Reprocess, requireSecret)
	e.GET("/webhooks/deliveries", reprocessHandler.Deliveries, requireSecret)

	go func() {
		log.Printf("Server starting on port %s (%s mode)", cfg.Port, cfg.Gateway.Mode)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("Telemetry shutdown error: %v", err)
	}
}
