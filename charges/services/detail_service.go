package services

import (
	"context"
	"fmt"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/google/uuid"
)

type ShipmentReader interface {
	GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
}

type HistoryReader interface {
	ListAuditEvents(ctx context.Context, shipmentID uuid.UUID, limit int) ([]models.ShipmentAuditEvent, error)
}

type StatusLookup interface {
	LoadStatuses(ctx context.Context) ([]models.InvoiceStatusDefinition, error)
}

const detailHistoryLimit = 50

// DetailService builds DetailViews from the raw shipment, its audit trail and the status catalog.
type DetailService struct {
	Shipments ShipmentReader
	History   HistoryReader
	Statuses  StatusLookup
	Now       func() time.Time
}

func NewDetailService(shipments ShipmentReader, history HistoryReader, statuses StatusLookup) *DetailService {
	return &DetailService{
		Shipments: shipments,
		History:   history,
		Statuses:  statuses,
		Now:       time.Now,
	}
}

func (s *DetailService) FetchDetail(ctx context.Context, shipmentID string) (*DetailView, error) {
	id, err := uuid.Parse(shipmentID)
	if err != nil {
		return nil, utils.NewAppError(utils.KindValidation, "load shipment detail", "invalid shipment id").
			WithID(shipmentID).Wrap(err)
	}

	shipment, err := s.Shipments.GetShipmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	loaded := LoadShipment(shipment)
	view := &DetailView{
		Charge:   loaded.View(),
		Rates:    loaded.Rates,
		LoadedAt: s.Now(),
	}

	if s.History != nil {
		history, err := s.History.ListAuditEvents(ctx, id, detailHistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load audit history: %w", err)
		}
		view.History = history
	}

	if s.Statuses != nil {
		statuses, err := s.Statuses.LoadStatuses(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load status catalog: %w", err)
		}
		view.StatusLabel = shipment.InvoiceStatus
		for _, st := range statuses {
			if st.StatusCode == shipment.InvoiceStatus {
				view.StatusLabel = st.StatusLabel
				view.StatusColor = st.Color
				view.StatusFontColor = st.FontColor
				break
			}
		}
	}

	return view, nil
}
