package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessingStatus values are persisted verbatim; the extraction engine writes them.
type ProcessingStatus string

const (
	QueuedProcessing     ProcessingStatus = "queued"
	InProgressProcessing ProcessingStatus = "processing"
	CompletedProcessing  ProcessingStatus = "completed"
	FailedProcessing     ProcessingStatus = "failed"
)

func (s ProcessingStatus) IsTerminal() bool {
	return s == CompletedProcessing || s == FailedProcessing
}

func (s ProcessingStatus) IsValid() bool {
	switch s {
	case QueuedProcessing, InProgressProcessing, CompletedProcessing, FailedProcessing:
		return true
	}
	return false
}

// UploadRecord tracks one submitted EDI file. Version is bumped by the extraction
// engine on every write and lets observers drop duplicate notifications.
type UploadRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	FileName    string    `gorm:"not null" json:"file_name"`
	FileSize    int64     `json:"file_size"`
	CarrierID   string    `gorm:"not null;index" json:"carrier_id"`
	StoragePath string    `json:"storage_path,omitempty"`

	ProcessingStatus ProcessingStatus `gorm:"type:varchar(20);not null;default:'queued';index" json:"processing_status"`
	ResultID         *uuid.UUID       `gorm:"type:uuid" json:"result_id,omitempty"`
	Error            *string          `json:"error,omitempty"`

	UploadedAt  time.Time  `gorm:"not null" json:"uploaded_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Version     int64      `gorm:"not null;default:0" json:"version"`
	UploadedBy  string     `json:"uploaded_by"`
}

func (UploadRecord) TableName() string {
	return "edi_uploads"
}

func (u *UploadRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ProcessingStatus == "" {
		u.ProcessingStatus = QueuedProcessing
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now()
	}
	return
}

// LastTransitionAt is the best known time the record last changed state.
func (u *UploadRecord) LastTransitionAt() time.Time {
	if u.ProcessedAt != nil {
		return *u.ProcessedAt
	}
	if !u.UpdatedAt.IsZero() {
		return u.UpdatedAt
	}
	return u.UploadedAt
}
