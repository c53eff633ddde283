package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusWrite is the full set of columns a transition changes.
type StatusWrite struct {
	StatusCode        string
	HasManualOverride bool
	UpdatedAt         time.Time
	UpdatedBy         string
}

type ShipmentStatusRepository interface {
	FindByShipmentNumber(ctx context.Context, shipmentNumber string) (*models.Shipment, error)
	GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	// UpdateInvoiceStatus writes only when status_version still equals expectedVersion.
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, write StatusWrite) error
}

type shipmentStatusRepository struct {
	db *gorm.DB
}

func NewShipmentStatusRepository(db *gorm.DB) ShipmentStatusRepository {
	return &shipmentStatusRepository{db: db}
}

func (r *shipmentStatusRepository) FindByShipmentNumber(ctx context.Context, shipmentNumber string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).Where("shipment_number = ?", shipmentNumber).First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.KindNotFound, "find shipment", "shipment not found").WithID(shipmentNumber)
		}
		return nil, utils.NewAppError(utils.KindTransient, "find shipment", "shipment lookup failed").
			WithID(shipmentNumber).Wrap(err)
	}
	return &shipment, nil
}

func (r *shipmentStatusRepository) GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).First(&shipment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.KindNotFound, "get shipment", "shipment not found").WithID(id.String())
		}
		return nil, fmt.Errorf("failed to load shipment %s: %w", id, err)
	}
	return &shipment, nil
}

func (r *shipmentStatusRepository) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, write StatusWrite) error {
	result := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND status_version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"invoice_status":            write.StatusCode,
			"has_manual_override":       write.HasManualOverride,
			"invoice_status_updated_at": write.UpdatedAt,
			"invoice_status_updated_by": write.UpdatedBy,
			"status_version":            gorm.Expr("status_version + 1"),
		})
	if result.Error != nil {
		return utils.NewAppError(utils.KindWriteFailed, "update invoice status", "status write failed").
			WithID(id.String()).Wrap(result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.NewAppError(utils.KindConflict, "update invoice status", "shipment changed concurrently").
			WithID(id.String())
	}
	return nil
}
