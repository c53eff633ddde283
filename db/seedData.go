package db

import (
	_ "embed"
	"fmt"

	"freight-billing-backend/db/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed invoice_statuses.yaml
var defaultInvoiceStatusesYAML []byte

// DefaultInvoiceStatuses returns a fresh copy of the seven system invoice statuses.
func DefaultInvoiceStatuses() []models.InvoiceStatusDefinition {
	var defs []models.InvoiceStatusDefinition
	if err := yaml.Unmarshal(defaultInvoiceStatusesYAML, &defs); err != nil {
		// The file is embedded at build time, so this only fires on a broken build.
		panic(fmt.Sprintf("invalid embedded invoice_statuses.yaml: %v", err))
	}
	return defs
}

// SeedInvoiceStatuses inserts the default catalog keyed by status_code. Rows that already
// exist are left untouched, so concurrent or repeated seeding never duplicates entries.
// It returns how many rows were actually inserted.
func SeedInvoiceStatuses(db *gorm.DB, createdBy string) (int64, error) {
	defs := DefaultInvoiceStatuses()
	for i := range defs {
		defs[i].CreatedBy = createdBy
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "status_code"}},
		DoNothing: true,
	}).Create(&defs)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to seed invoice statuses: %w", result.Error)
	}
	return result.RowsAffected, nil
}
