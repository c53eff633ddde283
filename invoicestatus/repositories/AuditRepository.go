package repositories

import (
	"context"
	"fmt"

	"freight-billing-backend/db/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditRepository interface {
	RecordAuditEvent(ctx context.Context, event *models.ShipmentAuditEvent) error
	ListAuditEvents(ctx context.Context, shipmentID uuid.UUID, limit int) ([]models.ShipmentAuditEvent, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) RecordAuditEvent(ctx context.Context, event *models.ShipmentAuditEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to record audit event for shipment %s: %w", event.ShipmentID, err)
	}
	return nil
}

// ListAuditEvents returns the newest events first.
func (r *auditRepository) ListAuditEvents(ctx context.Context, shipmentID uuid.UUID, limit int) ([]models.ShipmentAuditEvent, error) {
	var events []models.ShipmentAuditEvent
	db := r.db.WithContext(ctx).Where("shipment_id = ?", shipmentID).Order("occurred_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit events for shipment %s: %w", shipmentID, err)
	}
	return events, nil
}
