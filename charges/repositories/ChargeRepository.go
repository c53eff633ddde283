package repositories

import (
	"context"
	"errors"
	"fmt"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChargeRepository interface {
	GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	GetFilteredShipments(ctx context.Context, pageSize int, offset int, filters map[string]string) ([]models.Shipment, int64, error)
	ListShipments(ctx context.Context, filters map[string]string) ([]models.Shipment, error)
}

type chargeRepository struct {
	db *gorm.DB
}

func NewChargeRepository(db *gorm.DB) ChargeRepository {
	return &chargeRepository{
		db: db,
	}
}

func (r *chargeRepository) GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
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

// GetFilteredShipments retrieves shipments with filtering and pagination
func (r *chargeRepository) GetFilteredShipments(ctx context.Context, pageSize int, offset int, filters map[string]string) ([]models.Shipment, int64, error) {
	var shipments []models.Shipment
	var total int64

	db := applyShipmentFilters(r.db.WithContext(ctx).Model(&models.Shipment{}), filters)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Limit(pageSize).Offset(offset).Order("shipment_date DESC").Find(&shipments).Error; err != nil {
		return nil, 0, err
	}

	return shipments, total, nil
}

// ListShipments returns every shipment matching filters, for aggregation.
func (r *chargeRepository) ListShipments(ctx context.Context, filters map[string]string) ([]models.Shipment, error) {
	var shipments []models.Shipment
	db := applyShipmentFilters(r.db.WithContext(ctx).Model(&models.Shipment{}), filters)
	if err := db.Order("shipment_date DESC").Find(&shipments).Error; err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	return shipments, nil
}

func applyShipmentFilters(db *gorm.DB, filters map[string]string) *gorm.DB {
	for key, value := range filters {
		if value == "" {
			continue
		}
		switch key {
		case "company_id":
			db = db.Where("company_id = ?", value)
		case "customer_id":
			db = db.Where("customer_id = ?", value)
		case "carrier":
			db = db.Where("carrier = ?", value)
		case "invoice_status":
			db = db.Where("invoice_status = ?", value)
		case "start_date":
			db = db.Where("Date(shipment_date) >= ?", value)
		case "end_date":
			db = db.Where("Date(shipment_date) <= ?", value)
		case "shipment_number":
			db = db.Where("shipment_number ILIKE ?", "%"+value+"%")
		case "manual_override":
			db = db.Where("has_manual_override = ?", value == "true")
		}
	}
	return db
}
