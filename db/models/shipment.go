package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ManualRateLine is one hand-entered charge on a shipment created through the quick path.
type ManualRateLine struct {
	ChargeName string           `json:"chargeName"`
	Cost       *decimal.Decimal `json:"cost,omitempty"`
	Charge     *decimal.Decimal `json:"charge,omitempty"`
	Currency   string           `json:"currency,omitempty"`
}

// Shipment is the billing entity. ShipmentNumber is the business key callers use;
// ID is the storage identity and the two are never assumed equal.
type Shipment struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	ShipmentNumber string    `gorm:"uniqueIndex;not null" json:"shipment_number"`

	CompanyID    string    `gorm:"index" json:"company_id"`
	CustomerID   string    `gorm:"index" json:"customer_id"`
	Carrier      string    `json:"carrier"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	ShipmentDate time.Time `gorm:"index" json:"shipment_date"`
	Currency     *string   `gorm:"type:varchar(10)" json:"currency"`

	// Rate representations. At most one is chosen per shipment at load time.
	ManualRates          datatypes.JSONSlice[ManualRateLine] `gorm:"type:jsonb" json:"manual_rates,omitempty"`
	ActualRateTotal      *decimal.Decimal                    `gorm:"type:decimal(18,2)" json:"actual_rate_total"`
	ActualRateCurrency   *string                             `gorm:"type:varchar(10)" json:"actual_rate_currency"`
	MarkupRateTotal      *decimal.Decimal                    `gorm:"type:decimal(18,2)" json:"markup_rate_total"`
	MarkupRateCurrency   *string                             `gorm:"type:varchar(10)" json:"markup_rate_currency"`
	SelectedRateTotal    *decimal.Decimal                    `gorm:"type:decimal(18,2)" json:"selected_rate_total"`
	SelectedRateCurrency *string                             `gorm:"type:varchar(10)" json:"selected_rate_currency"`

	// Invoice status assignment. Only the transition authority writes these.
	InvoiceStatus          string     `gorm:"type:varchar(50);default:'uninvoiced';index" json:"invoice_status"`
	HasManualOverride      bool       `gorm:"default:false" json:"has_manual_override"`
	InvoiceStatusUpdatedAt *time.Time `json:"invoice_status_updated_at"`
	InvoiceStatusUpdatedBy *string    `json:"invoice_status_updated_by"`
	StatusVersion          int64      `gorm:"not null;default:0" json:"status_version"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *Shipment) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.InvoiceStatus == "" {
		s.InvoiceStatus = DefaultInvoiceStatusCode
	}
	return
}
