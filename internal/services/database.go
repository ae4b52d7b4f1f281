package services

import (
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront_payments/internal/models"
)

// InitDB opens the delivery log database. postgres:// and postgresql:// DSNs
// go to Postgres; anything else is treated as a SQLite path or URI.
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(dialectorFor(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("[DB] delivery log database connection established")
	return db, nil
}

func dialectorFor(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
}

// AutoMigrate creates the delivery log table.
func AutoMigrate(db *gorm.DB) error {
	log.Println("[DB] running migrations...")

	if err := db.AutoMigrate(&models.WebhookDelivery{}); err != nil {
		return err
	}

	log.Println("[DB] migrations completed")
	return nil
}
