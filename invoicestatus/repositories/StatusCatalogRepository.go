package repositories

import (
	"context"
	"errors"
	"fmt"

	seed "freight-billing-backend/db"
	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"gorm.io/gorm"
)

// StatusCatalogRepository reads and maintains one invoice status collection.
type StatusCatalogRepository interface {
	Name() string
	ListStatuses(ctx context.Context) ([]models.InvoiceStatusDefinition, error)
	SeedDefaults(ctx context.Context, createdBy string) (int64, error)
	UpdateStatus(ctx context.Context, statusCode string, updates map[string]interface{}) (*models.InvoiceStatusDefinition, error)
}

type statusCatalogRepository struct {
	db    *gorm.DB
	table string
}

// NewStatusCatalogRepository is the primary catalog (invoice_statuses).
func NewStatusCatalogRepository(db *gorm.DB) StatusCatalogRepository {
	return &statusCatalogRepository{db: db, table: models.InvoiceStatusDefinition{}.TableName()}
}

// NewLegacyStatusCatalogRepository reads the alternate collection used when the primary is unreachable.
func NewLegacyStatusCatalogRepository(db *gorm.DB) StatusCatalogRepository {
	return &statusCatalogRepository{db: db, table: models.LegacyInvoiceStatusTable}
}

func (r *statusCatalogRepository) Name() string {
	return r.table
}

func (r *statusCatalogRepository) ListStatuses(ctx context.Context) ([]models.InvoiceStatusDefinition, error) {
	var statuses []models.InvoiceStatusDefinition
	err := r.db.WithContext(ctx).
		Table(r.table).
		Order("sort_order ASC").
		Order("status_label ASC").
		Find(&statuses).Error
	if err != nil {
		return nil, utils.NewAppError(utils.KindTransient, "list invoice statuses", "status catalog unreachable").
			WithStore(r.table).Wrap(err)
	}
	return statuses, nil
}

func (r *statusCatalogRepository) SeedDefaults(ctx context.Context, createdBy string) (int64, error) {
	return seed.SeedInvoiceStatuses(r.db.WithContext(ctx).Table(r.table), createdBy)
}

func (r *statusCatalogRepository) UpdateStatus(ctx context.Context, statusCode string, updates map[string]interface{}) (*models.InvoiceStatusDefinition, error) {
	var status models.InvoiceStatusDefinition
	db := r.db.WithContext(ctx).Table(r.table)

	if err := db.Where("status_code = ?", statusCode).First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.KindNotFound, "update invoice status", "status code not found").WithID(statusCode)
		}
		return nil, fmt.Errorf("failed to load invoice status %s: %w", statusCode, err)
	}

	if err := r.db.WithContext(ctx).Table(r.table).
		Where("status_code = ?", statusCode).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update invoice status %s: %w", statusCode, err)
	}

	if err := r.db.WithContext(ctx).Table(r.table).Where("status_code = ?", statusCode).First(&status).Error; err != nil {
		return nil, fmt.Errorf("failed to reload invoice status %s: %w", statusCode, err)
	}
	return &status, nil
}
