package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func statusRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"status_code", "status_label", "sort_order", "enabled"}).
		AddRow("uninvoiced", "Uninvoiced", 10, true).
		AddRow("invoiced", "Invoiced", 40, true)
}

func TestListStatusesOrdersBySortOrderAndLabel(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStatusCatalogRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "invoice_statuses" ORDER BY sort_order ASC,status_label ASC`).
		WillReturnRows(statusRows())

	statuses, err := repo.ListStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "uninvoiced", statuses[0].StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLegacyCatalogReadsAlternateTable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLegacyStatusCatalogRepository(db)
	assert.Equal(t, models.LegacyInvoiceStatusTable, repo.Name())

	mock.ExpectQuery(`SELECT \* FROM "invoice_statuses_legacy"`).WillReturnRows(statusRows())

	statuses, err := repo.ListStatuses(context.Background())
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStatusesUnreachableIsTransient(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStatusCatalogRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "invoice_statuses"`).WillReturnError(errors.New("connection refused"))

	_, err := repo.ListStatuses(context.Background())
	assert.ErrorIs(t, err, utils.ErrTransient)
}

func TestFindByShipmentNumber(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShipmentStatusRepository(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "shipments" WHERE shipment_number = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "shipment_number", "invoice_status", "status_version"}).
			AddRow(id.String(), "SHP-1", "invoiced", 3))

	shipment, err := repo.FindByShipmentNumber(context.Background(), "SHP-1")
	require.NoError(t, err)
	assert.Equal(t, id, shipment.ID)
	assert.Equal(t, int64(3), shipment.StatusVersion)
}

func TestFindByShipmentNumberNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShipmentStatusRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "shipments" WHERE shipment_number = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByShipmentNumber(context.Background(), "SHP-404")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestUpdateInvoiceStatusComparesVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShipmentStatusRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "shipments" SET .*"status_version"=status_version \+ 1.* WHERE \(id = \$\d+ AND status_version = \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateInvoiceStatus(context.Background(), id, 2, StatusWrite{
		StatusCode:        "paid",
		HasManualOverride: true,
		UpdatedAt:         time.Now(),
		UpdatedBy:         "ops",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInvoiceStatusStaleVersionConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShipmentStatusRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "shipments" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdateInvoiceStatus(context.Background(), uuid.New(), 1, StatusWrite{StatusCode: "paid", UpdatedBy: "ops"})
	assert.ErrorIs(t, err, utils.ErrConflict)
}

func TestUpdateInvoiceStatusDatabaseErrorIsWriteFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewShipmentStatusRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "shipments" SET`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.UpdateInvoiceStatus(context.Background(), uuid.New(), 1, StatusWrite{StatusCode: "paid", UpdatedBy: "ops"})
	assert.ErrorIs(t, err, utils.ErrWriteFailed)
}

func TestListAuditEventsNewestFirst(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)
	shipmentID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "shipment_audit_events" WHERE shipment_id = \$1 ORDER BY occurred_at DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "shipment_id", "event_type", "new_status_code", "actor"}).
			AddRow(uuid.New().String(), shipmentID.String(), "INVOICE_STATUS_CHANGED", "paid", "ops"))

	events, err := repo.ListAuditEvents(context.Background(), shipmentID, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.InvoiceStatusChangedEvent, events[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
