package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultInvoiceStatusCode is assigned to every new shipment.
const DefaultInvoiceStatusCode = "uninvoiced"

// InvoiceStatusDefinition is one entry of the status catalog. StatusCode is the only
// stable reference; labels and colors are display-only.
type InvoiceStatusDefinition struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;" json:"id" yaml:"-"`
	StatusCode  string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"status_code" yaml:"status_code"`
	StatusLabel string    `gorm:"not null" json:"status_label" yaml:"status_label"`
	Color       string    `gorm:"type:varchar(20)" json:"color" yaml:"color"`
	FontColor   string    `gorm:"type:varchar(20)" json:"font_color" yaml:"font_color"`
	SortOrder   int       `gorm:"not null;default:0;index" json:"sort_order" yaml:"sort_order"`
	Enabled     bool      `gorm:"default:true" json:"enabled" yaml:"enabled"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at" yaml:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at" yaml:"-"`
	CreatedBy string    `gorm:"not null;default:'system'" json:"created_by" yaml:"-"`
}

func (InvoiceStatusDefinition) TableName() string {
	return "invoice_statuses"
}

func (d *InvoiceStatusDefinition) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return
}

// LegacyInvoiceStatusTable is the alternate catalog collection read when the primary one is unreachable.
const LegacyInvoiceStatusTable = "invoice_statuses_legacy"
