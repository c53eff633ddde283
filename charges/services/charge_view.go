package services

import (
	"strings"
	"time"

	"freight-billing-backend/db/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoadedShipment pairs a shipment row with its rate representation, built once at load.
type LoadedShipment struct {
	Shipment *models.Shipment
	Rates    RateRepresentation
}

func LoadShipment(s *models.Shipment) LoadedShipment {
	return LoadedShipment{Shipment: s, Rates: RepresentationFromShipment(s)}
}

func LoadShipments(rows []models.Shipment) []LoadedShipment {
	out := make([]LoadedShipment, 0, len(rows))
	for i := range rows {
		out = append(out, LoadShipment(&rows[i]))
	}
	return out
}

// ChargeView is the reconciliation projection of a shipment. It is recomputed on every read.
type ChargeView struct {
	ShipmentID        uuid.UUID       `json:"shipment_id"`
	ShipmentNumber    string          `json:"shipment_number"`
	CompanyID         string          `json:"company_id"`
	CustomerID        string          `json:"customer_id"`
	Cost              decimal.Decimal `json:"cost"`
	Charge            decimal.Decimal `json:"charge"`
	Margin            decimal.Decimal `json:"margin"`
	Currency          string          `json:"currency"`
	RateKind          string          `json:"rate_kind"`
	InvoiceStatus     string          `json:"invoice_status"`
	HasManualOverride bool            `json:"has_manual_override"`
	Carrier           string          `json:"carrier"`
	Route             string          `json:"route"`
	ShipmentDate      time.Time       `json:"shipment_date"`
}

func (l LoadedShipment) View() ChargeView {
	n := Normalize(l.Rates)
	s := l.Shipment
	return ChargeView{
		ShipmentID:        s.ID,
		ShipmentNumber:    s.ShipmentNumber,
		CompanyID:         s.CompanyID,
		CustomerID:        s.CustomerID,
		Cost:              n.Cost,
		Charge:            n.Charge,
		Margin:            n.Margin(),
		Currency:          n.Currency,
		RateKind:          l.Rates.Kind.String(),
		InvoiceStatus:     s.InvoiceStatus,
		HasManualOverride: s.HasManualOverride,
		Carrier:           s.Carrier,
		Route:             route(s.Origin, s.Destination),
		ShipmentDate:      s.ShipmentDate,
	}
}

func route(origin, destination string) string {
	origin, destination = strings.TrimSpace(origin), strings.TrimSpace(destination)
	switch {
	case origin == "" && destination == "":
		return ""
	case origin == "":
		return destination
	case destination == "":
		return origin
	}
	return origin + " -> " + destination
}

func ChargeViews(shipments []LoadedShipment) []ChargeView {
	views := make([]ChargeView, 0, len(shipments))
	for _, s := range shipments {
		views = append(views, s.View())
	}
	return views
}
