package services

import (
	"strings"

	"freight-billing-backend/db/models"

	"github.com/shopspring/decimal"
)

// FallbackCurrency is used only when no currency is found anywhere on a shipment.
const FallbackCurrency = "CAD"

// RateKind tags which rate scheme a shipment carries.
type RateKind int

const (
	RateKindNone RateKind = iota
	RateKindManual
	RateKindDual
	RateKindSingle
)

func (k RateKind) String() string {
	switch k {
	case RateKindManual:
		return "manual"
	case RateKindDual:
		return "dual_rate"
	case RateKindSingle:
		return "single_rate"
	default:
		return "none"
	}
}

type ManualLine struct {
	ChargeName string          `json:"charge_name"`
	Cost       decimal.Decimal `json:"cost"`
	Charge     decimal.Decimal `json:"charge"`
	Currency   string          `json:"currency,omitempty"`
}

type DualRate struct {
	ActualTotal    decimal.Decimal `json:"actual_total"`
	ActualCurrency string          `json:"actual_currency,omitempty"`
	MarkupTotal    decimal.Decimal `json:"markup_total"`
	MarkupCurrency string          `json:"markup_currency,omitempty"`
}

type SingleRate struct {
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency,omitempty"`
}

// RateRepresentation is built once per shipment at load time. Only the field matching
// Kind is meaningful; the currency fields carry the shipment-level fallbacks.
type RateRepresentation struct {
	Kind   RateKind     `json:"kind"`
	Manual []ManualLine `json:"manual,omitempty"`
	Dual   DualRate     `json:"dual"`
	Single SingleRate   `json:"single"`

	ShipmentCurrency string `json:"shipment_currency,omitempty"`
	SelectedCurrency string `json:"selected_currency,omitempty"`
}

// NormalizedRate is the canonical cost/charge/currency tuple of one shipment.
type NormalizedRate struct {
	Cost     decimal.Decimal `json:"cost"`
	Charge   decimal.Decimal `json:"charge"`
	Currency string          `json:"currency"`
}

func (n NormalizedRate) Margin() decimal.Decimal {
	return n.Charge.Sub(n.Cost)
}

// RepresentationFromShipment picks the rate scheme with precedence Manual > DualRate > SingleRate.
func RepresentationFromShipment(s *models.Shipment) RateRepresentation {
	rep := RateRepresentation{
		ShipmentCurrency: currencyOf(s.Currency),
		SelectedCurrency: currencyOf(s.SelectedRateCurrency),
	}

	switch {
	case len(s.ManualRates) > 0:
		rep.Kind = RateKindManual
		rep.Manual = make([]ManualLine, 0, len(s.ManualRates))
		for _, line := range s.ManualRates {
			rep.Manual = append(rep.Manual, ManualLine{
				ChargeName: line.ChargeName,
				Cost:       decimalOf(line.Cost),
				Charge:     decimalOf(line.Charge),
				Currency:   cleanCurrency(line.Currency),
			})
		}
	case s.ActualRateTotal != nil && s.MarkupRateTotal != nil:
		rep.Kind = RateKindDual
		rep.Dual = DualRate{
			ActualTotal:    *s.ActualRateTotal,
			ActualCurrency: currencyOf(s.ActualRateCurrency),
			MarkupTotal:    *s.MarkupRateTotal,
			MarkupCurrency: currencyOf(s.MarkupRateCurrency),
		}
	case s.SelectedRateTotal != nil:
		rep.Kind = RateKindSingle
		rep.Single = SingleRate{
			Total:    *s.SelectedRateTotal,
			Currency: rep.SelectedCurrency,
		}
	default:
		rep.Kind = RateKindNone
	}
	return rep
}

// Normalize converts any rate representation into exactly one cost/charge/currency tuple.
// Missing numbers are zero and a missing currency becomes FallbackCurrency.
func Normalize(rep RateRepresentation) NormalizedRate {
	switch rep.Kind {
	case RateKindManual:
		out := NormalizedRate{Cost: decimal.Zero, Charge: decimal.Zero}
		for _, line := range rep.Manual {
			out.Cost = out.Cost.Add(line.Cost)
			out.Charge = out.Charge.Add(line.Charge)
		}
		var first string
		if len(rep.Manual) > 0 {
			first = rep.Manual[0].Currency
		}
		out.Currency = firstCurrency(first, rep.ShipmentCurrency)
		return out

	case RateKindDual:
		return NormalizedRate{
			Cost:   rep.Dual.ActualTotal,
			Charge: rep.Dual.MarkupTotal,
			Currency: firstCurrency(
				rep.Dual.MarkupCurrency,
				rep.ShipmentCurrency,
				rep.SelectedCurrency,
				rep.Dual.ActualCurrency,
			),
		}

	case RateKindSingle:
		return NormalizedRate{
			Cost:     rep.Single.Total,
			Charge:   rep.Single.Total,
			Currency: firstCurrency(rep.Single.Currency, rep.ShipmentCurrency),
		}

	default:
		return NormalizedRate{
			Cost:     decimal.Zero,
			Charge:   decimal.Zero,
			Currency: firstCurrency(rep.ShipmentCurrency, rep.SelectedCurrency),
		}
	}
}

func firstCurrency(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return FallbackCurrency
}

func cleanCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func currencyOf(c *string) string {
	if c == nil {
		return ""
	}
	return cleanCurrency(*c)
}

func decimalOf(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
