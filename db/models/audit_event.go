package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditEventType string

const (
	InvoiceStatusChangedEvent AuditEventType = "INVOICE_STATUS_CHANGED"
)

// ShipmentAuditEvent is addressed to the shipment's storage identity, never its business key.
type ShipmentAuditEvent struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key;" json:"id"`
	ShipmentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"shipment_id"`
	EventType  AuditEventType `gorm:"type:varchar(50);not null" json:"event_type"`

	PreviousStatusCode  string `json:"previous_status_code"`
	PreviousStatusLabel string `json:"previous_status_label"`
	NewStatusCode       string `json:"new_status_code"`
	NewStatusLabel      string `json:"new_status_label"`

	Actor      string         `gorm:"not null" json:"actor"`
	OccurredAt time.Time      `gorm:"not null;index" json:"occurred_at"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
}

func (e *ShipmentAuditEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return
}
