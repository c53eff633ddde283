package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/invoicestatus/repositories"
	"freight-billing-backend/metrics"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type ShipmentStatusStore interface {
	FindByShipmentNumber(ctx context.Context, shipmentNumber string) (*models.Shipment, error)
	GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, write repositories.StatusWrite) error
}

type AuditRecorder interface {
	RecordAuditEvent(ctx context.Context, event *models.ShipmentAuditEvent) error
}

type StatusCatalog interface {
	LoadStatuses(ctx context.Context) ([]models.InvoiceStatusDefinition, error)
}

const (
	outcomeApplied  = "applied"
	outcomeNoop     = "noop"
	outcomeRejected = "rejected"
	outcomeConflict = "conflict"
	outcomeFailed   = "failed"
)

// TransitionAuthority is the only writer of a shipment's invoice status.
type TransitionAuthority struct {
	shipments ShipmentStatusStore
	audit     AuditRecorder
	catalog   StatusCatalog
	notifier  utils.Notifier
	locks     *utils.KeyedMutex
	logger    *zap.Logger
	metrics   *metrics.Registry
	now       func() time.Time

	hooksMu sync.Mutex
	hooks   []TransitionHook
}

// TransitionHook runs after a status write lands. Hooks must not block.
type TransitionHook func(shipmentID uuid.UUID, from, to string)

func NewTransitionAuthority(
	shipments ShipmentStatusStore,
	audit AuditRecorder,
	catalog StatusCatalog,
	notifier utils.Notifier,
	logger *zap.Logger,
	m *metrics.Registry,
) *TransitionAuthority {
	if notifier == nil {
		notifier = utils.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionAuthority{
		shipments: shipments,
		audit:     audit,
		catalog:   catalog,
		notifier:  notifier,
		locks:     utils.NewKeyedMutex(),
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// OnTransition registers a hook fired after every applied transition.
func (a *TransitionAuthority) OnTransition(hook TransitionHook) {
	a.hooksMu.Lock()
	a.hooks = append(a.hooks, hook)
	a.hooksMu.Unlock()
}

func (a *TransitionAuthority) fireHooks(id uuid.UUID, from, to string) {
	a.hooksMu.Lock()
	hooks := append([]TransitionHook(nil), a.hooks...)
	a.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(id, from, to)
	}
}

// Transition moves the shipment identified by its business key to newStatusCode.
// Setting the current status again writes nothing and records no audit event, even when
// that status has since been disabled in the catalog.
func (a *TransitionAuthority) Transition(ctx context.Context, businessKey, newStatusCode, actor string) error {
	const op = "transition invoice status"

	businessKey = strings.TrimSpace(businessKey)
	newStatusCode = strings.TrimSpace(newStatusCode)
	actor = strings.TrimSpace(actor)
	if businessKey == "" || newStatusCode == "" || actor == "" {
		a.metrics.Transition(outcomeRejected)
		return utils.NewAppError(utils.KindValidation, op, "shipment number, status code and actor are required")
	}

	// Business key to storage identity; everything below is addressed by ID.
	resolved, err := a.shipments.FindByShipmentNumber(ctx, businessKey)
	if err != nil {
		a.metrics.Transition(outcomeFailed)
		return err
	}

	unlock := a.locks.Lock(resolved.ID.String())
	defer unlock()

	current, err := a.shipments.GetShipmentByID(ctx, resolved.ID)
	if err != nil {
		a.metrics.Transition(outcomeFailed)
		return err
	}

	if current.InvoiceStatus == newStatusCode {
		a.metrics.Transition(outcomeNoop)
		a.logger.Debug("Invoice status unchanged, skipping write",
			zap.String("shipment_number", businessKey),
			zap.String("status", newStatusCode))
		return nil
	}

	catalog, err := a.catalog.LoadStatuses(ctx)
	if err != nil {
		a.metrics.Transition(outcomeFailed)
		return err
	}
	target, ok := findStatus(catalog, newStatusCode)
	if !ok || !target.Enabled {
		a.metrics.Transition(outcomeRejected)
		return utils.NewAppError(utils.KindValidation, op, "status code is not an enabled catalog entry").WithID(newStatusCode)
	}

	previous := current.InvoiceStatus
	at := a.now().UTC()
	err = a.shipments.UpdateInvoiceStatus(ctx, current.ID, current.StatusVersion, repositories.StatusWrite{
		StatusCode:        newStatusCode,
		HasManualOverride: true,
		UpdatedAt:         at,
		UpdatedBy:         actor,
	})
	if err != nil {
		if utils.KindOf(err) == utils.KindConflict {
			a.metrics.Transition(outcomeConflict)
		} else {
			a.metrics.Transition(outcomeFailed)
		}
		a.logger.Error("Failed to write invoice status",
			zap.String("shipment_id", current.ID.String()),
			zap.String("shipment_number", businessKey),
			zap.String("status", newStatusCode),
			zap.Error(err))
		return err
	}

	a.verifyWrite(ctx, current.ID, newStatusCode)

	previousLabel := previous
	if def, ok := findStatus(catalog, previous); ok {
		previousLabel = def.StatusLabel
	}
	a.recordAudit(ctx, &models.ShipmentAuditEvent{
		ShipmentID:          current.ID,
		EventType:           models.InvoiceStatusChangedEvent,
		PreviousStatusCode:  previous,
		PreviousStatusLabel: previousLabel,
		NewStatusCode:       target.StatusCode,
		NewStatusLabel:      target.StatusLabel,
		Actor:               actor,
		OccurredAt:          at,
		Payload:             auditPayload(businessKey, current.StatusVersion+1),
	})

	a.fireHooks(current.ID, previous, newStatusCode)

	a.metrics.Transition(outcomeApplied)
	a.logger.Info("Invoice status changed",
		zap.String("shipment_id", current.ID.String()),
		zap.String("shipment_number", businessKey),
		zap.String("from", previous),
		zap.String("to", newStatusCode),
		zap.String("actor", actor))
	a.notifier.Notify(utils.Notification{
		Level:     utils.NotifySuccess,
		Topic:     businessKey,
		Message:   fmt.Sprintf("Shipment %s marked %s", businessKey, target.StatusLabel),
		Timestamp: at,
	})
	return nil
}

// verifyWrite re-reads the record. A mismatch is logged only; the write already succeeded.
func (a *TransitionAuthority) verifyWrite(ctx context.Context, id uuid.UUID, expected string) {
	stored, err := a.shipments.GetShipmentByID(ctx, id)
	if err != nil {
		a.logger.Warn("Could not read back invoice status after write",
			zap.String("shipment_id", id.String()),
			zap.Error(err))
		return
	}
	if stored.InvoiceStatus != expected {
		a.logger.Warn("Invoice status read-back mismatch",
			zap.String("shipment_id", id.String()),
			zap.String("expected", expected),
			zap.String("stored", stored.InvoiceStatus))
	}
}

// recordAudit never fails the transition.
func (a *TransitionAuthority) recordAudit(ctx context.Context, event *models.ShipmentAuditEvent) {
	if err := a.audit.RecordAuditEvent(ctx, event); err != nil {
		a.metrics.AuditFailed()
		a.logger.Error("Failed to record invoice status audit event",
			zap.String("shipment_id", event.ShipmentID.String()),
			zap.String("new_status", event.NewStatusCode),
			zap.Error(err))
	}
}

func auditPayload(businessKey string, version int64) datatypes.JSON {
	raw, err := json.Marshal(map[string]interface{}{
		"shipment_number": businessKey,
		"status_version":  version,
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func findStatus(catalog []models.InvoiceStatusDefinition, code string) (models.InvoiceStatusDefinition, bool) {
	for _, def := range catalog {
		if def.StatusCode == code {
			return def, true
		}
	}
	return models.InvoiceStatusDefinition{}, false
}
