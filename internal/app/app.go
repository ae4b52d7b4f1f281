package app

import (
	"errors"
	"fmt"
	"log"

	"storefront_payments/internal/config"
	"storefront_payments/internal/services"
)

// App holds the wired services shared by the server, the worker and the
// reprocess CLI.
type App struct {
	Config     *config.Config
	Orders     *services.OrderStore
	Products   *services.ProductStore
	Gateway    *services.MercadoPagoService
	Notifier   *services.NotificationService
	Payments   *services.PaymentService
	Deliveries services.DeliveryLog

	closers []func() error
}

// New builds the reconciliation stack from cfg. The delivery log is SQL
// backed when WEBHOOK_LOG_DSN is set and a JSON ring buffer otherwise.
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	a.Orders = services.NewOrderStore(cfg.OrdersPath())
	a.Products = services.NewProductStore(cfg.ProductsPath())
	a.Gateway = services.NewMercadoPagoService(cfg.Gateway)

	var email services.EmailSender
	if cfg.SMTP.Host != "" {
		email = services.NewEmailService(cfg.SMTP)
	} else {
		log.Println("Warning: SMTP_HOST not set, email notifications disabled")
	}
	var chat services.ChatSender
	if cfg.Telegram.BotToken != "" {
		chat = services.NewTelegramService(cfg.Telegram)
	} else {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, telegram notifications disabled")
	}
	a.Notifier = services.NewNotificationService(email, chat, cfg.Admin)

	a.Payments = services.NewPaymentService(a.Gateway, a.Orders, services.NewStockAdjuster(a.Products), a.Notifier)

	if cfg.Webhook.LogDSN != "" {
		db, err := services.InitDB(cfg.Webhook.LogDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to delivery log database: %w", err)
		}
		if err := services.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqlDB.Close)
		a.Deliveries = services.NewSQLDeliveryLog(db, cfg.Webhook.LogSize)
	} else {
		a.Deliveries = services.NewFileDeliveryLog(cfg.WebhookLogPath(), cfg.Webhook.LogSize)
	}

	return a, nil
}

// NewRateLimiter picks the Redis window store when REDIS_URL is set, falling
// back to the JSON file if Redis is unreachable.
func (a *App) NewRateLimiter() *services.RateLimiter {
	cfg := a.Config.Webhook
	var store services.TimestampStore
	if a.Config.RedisURL != "" {
		redisStore, err := services.NewRedisTimestampStore(a.Config.RedisURL, cfg.RateLimitWindow)
		if err != nil {
			log.Printf("Warning: Redis unavailable (%v), using file rate-limit store", err)
		} else {
			a.closers = append(a.closers, redisStore.Close)
			store = redisStore
		}
	}
	if store == nil {
		store = services.NewFileTimestampStore(a.Config.RateLimitPath())
	}
	return services.NewRateLimiter(store, cfg.RateLimitMax, cfg.RateLimitWindow)
}

// Close releases database and Redis connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
