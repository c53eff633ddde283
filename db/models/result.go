package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RecordType string

const (
	ShipmentRecordType RecordType = "shipment"
	ChargeRecordType   RecordType = "charge"
)

// ExtractedRecord is one line item produced by the extraction engine.
type ExtractedRecord struct {
	RecordType RecordType     `json:"recordType,omitempty"`
	Fields     map[string]any `json:"fields"`
}

// Type returns the record type, treating untagged legacy records as shipments.
func (r ExtractedRecord) Type() RecordType {
	if r.RecordType == "" {
		return ShipmentRecordType
	}
	return r.RecordType
}

// ResultRecord is written once by the extraction engine and never mutated here.
type ResultRecord struct {
	ID               uuid.UUID                            `gorm:"type:uuid;primary_key;" json:"id"`
	UploadID         uuid.UUID                            `gorm:"type:uuid;index" json:"upload_id"`
	Records          datatypes.JSONSlice[ExtractedRecord] `gorm:"type:jsonb" json:"records"`
	Carrier          string                               `json:"carrier"`
	ConfidenceScore  float64                              `json:"confidence_score"`
	ProcessingTimeMs int64                                `json:"processing_time_ms"`
	RawSample        *string                              `json:"raw_sample,omitempty"`
	CreatedAt        time.Time                            `gorm:"autoCreateTime" json:"created_at"`
}

func (ResultRecord) TableName() string {
	return "edi_results"
}

func (r *ResultRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// LineItems returns the records in order with legacy record types filled in.
func (r *ResultRecord) LineItems() []ExtractedRecord {
	items := make([]ExtractedRecord, 0, len(r.Records))
	for _, rec := range r.Records {
		rec.RecordType = rec.Type()
		items = append(items, rec)
	}
	return items
}

func (r *ResultRecord) ShipmentRecords() []ExtractedRecord {
	return r.recordsOfType(ShipmentRecordType)
}

func (r *ResultRecord) ChargeRecords() []ExtractedRecord {
	return r.recordsOfType(ChargeRecordType)
}

func (r *ResultRecord) recordsOfType(t RecordType) []ExtractedRecord {
	var out []ExtractedRecord
	for _, rec := range r.LineItems() {
		if rec.RecordType == t {
			out = append(out, rec)
		}
	}
	return out
}
