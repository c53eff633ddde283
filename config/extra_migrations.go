package config

import "gorm.io/gorm"

// CreateUnfinishedUploadsPartialIndex indexes only queued and processing uploads by
// updated_at. The stalled-upload sweep scans exactly this set, and it stays small while
// edi_uploads keeps every terminal record.
func CreateUnfinishedUploadsPartialIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_edi_uploads_unfinished
		ON edi_uploads (updated_at)
		WHERE processing_status IN ('queued', 'processing')
	`).Error
}

// CreateShipmentStatusVersionIndex backs the compare-and-set on invoice status writes.
func CreateShipmentStatusVersionIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_shipments_id_status_version
		ON shipments (id, status_version)
	`).Error
}
