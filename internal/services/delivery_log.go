package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront_payments/internal/models"
)

// DeliveryLog keeps the most recent raw webhook deliveries for diagnostics.
type DeliveryLog interface {
	Append(ctx context.Context, d models.WebhookDelivery) error
	// Recent returns up to limit deliveries, newest first.
	Recent(ctx context.Context, limit int) ([]models.WebhookDelivery, error)
}

func stampDelivery(d *models.WebhookDelivery) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}
}

type deliveryFile struct {
	Deliveries []models.WebhookDelivery `json:"deliveries"`
}

// FileDeliveryLog is a ring buffer of the last size deliveries in a JSON file.
type FileDeliveryLog struct {
	doc  *jsonDocument[deliveryFile]
	size int
}

var _ DeliveryLog = (*FileDeliveryLog)(nil)

func NewFileDeliveryLog(path string, size int) *FileDeliveryLog {
	if size <= 0 {
		size = 1
	}
	return &FileDeliveryLog{doc: newJSONDocument[deliveryFile](path), size: size}
}

func (l *FileDeliveryLog) Append(ctx context.Context, d models.WebhookDelivery) error {
	stampDelivery(&d)
	return l.doc.Update(ctx, func(doc *deliveryFile) error {
		doc.Deliveries = append(doc.Deliveries, d)
		if over := len(doc.Deliveries) - l.size; over > 0 {
			doc.Deliveries = append([]models.WebhookDelivery(nil), doc.Deliveries[over:]...)
		}
		return nil
	})
}

func (l *FileDeliveryLog) Recent(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	doc, err := l.doc.Read(ctx)
	if err != nil {
		return nil, err
	}
	n := len(doc.Deliveries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.WebhookDelivery, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, doc.Deliveries[i])
	}
	return out, nil
}

// SQLDeliveryLog stores deliveries in a table and prunes rows beyond size.
type SQLDeliveryLog struct {
	db   *gorm.DB
	size int
}

var _ DeliveryLog = (*SQLDeliveryLog)(nil)

func NewSQLDeliveryLog(db *gorm.DB, size int) *SQLDeliveryLog {
	if size <= 0 {
		size = 1
	}
	return &SQLDeliveryLog{db: db, size: size}
}

func (l *SQLDeliveryLog) Append(ctx context.Context, d models.WebhookDelivery) error {
	stampDelivery(&d)
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&d).Error; err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}

		var cutoff models.WebhookDelivery
		err := tx.Order("received_at DESC").Offset(l.size - 1).Limit(1).Take(&cutoff).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find prune cutoff: %w", err)
		}
		res := tx.Where("received_at < ?", cutoff.ReceivedAt).Delete(&models.WebhookDelivery{})
		if res.Error != nil {
			return fmt.Errorf("prune deliveries: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			log.Printf("[DeliveryLog] pruned %d old deliveries", res.RowsAffected)
		}
		return nil
	})
}

func (l *SQLDeliveryLog) Recent(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	var out []models.WebhookDelivery
	err := l.db.WithContext(ctx).Order("received_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return out, nil
}
