package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Predicate selects which shipments take part in an aggregation.
type Predicate func(ChargeView) bool

// Totals are per-currency running sums. Currencies never seen are absent; read with
// the accessor methods to default to zero.
type Totals struct {
	TotalShipments map[string]int             `json:"total_shipments"`
	TotalRevenue   map[string]decimal.Decimal `json:"total_revenue"`
	TotalCosts     map[string]decimal.Decimal `json:"total_costs"`
}

func NewTotals() Totals {
	return Totals{
		TotalShipments: make(map[string]int),
		TotalRevenue:   make(map[string]decimal.Decimal),
		TotalCosts:     make(map[string]decimal.Decimal),
	}
}

// Aggregate folds the shipments accepted by predicate into per-currency totals.
// It keeps no state between calls; a nil predicate accepts everything.
func Aggregate(shipments []LoadedShipment, predicate Predicate) Totals {
	totals := NewTotals()
	for _, s := range shipments {
		view := s.View()
		if predicate != nil && !predicate(view) {
			continue
		}
		totals.add(view.Currency, 1, view.Charge, view.Cost)
	}
	return totals
}

func (t Totals) add(currency string, count int, revenue, cost decimal.Decimal) {
	t.TotalShipments[currency] += count
	t.TotalRevenue[currency] = t.TotalRevenue[currency].Add(revenue)
	t.TotalCosts[currency] = t.TotalCosts[currency].Add(cost)
}

// Merge returns the per-currency sum of t and o without modifying either.
func (t Totals) Merge(o Totals) Totals {
	out := NewTotals()
	for _, src := range []Totals{t, o} {
		for c, n := range src.TotalShipments {
			out.TotalShipments[c] += n
		}
		for c, v := range src.TotalRevenue {
			out.TotalRevenue[c] = out.TotalRevenue[c].Add(v)
		}
		for c, v := range src.TotalCosts {
			out.TotalCosts[c] = out.TotalCosts[c].Add(v)
		}
	}
	return out
}

func (t Totals) Shipments(currency string) int {
	return t.TotalShipments[currency]
}

func (t Totals) Revenue(currency string) decimal.Decimal {
	return t.TotalRevenue[currency]
}

func (t Totals) Costs(currency string) decimal.Decimal {
	return t.TotalCosts[currency]
}

func (t Totals) Margin(currency string) decimal.Decimal {
	return t.Revenue(currency).Sub(t.Costs(currency))
}

// Currencies lists every currency present, sorted for stable output.
func (t Totals) Currencies() []string {
	seen := make(map[string]struct{})
	for c := range t.TotalShipments {
		seen[c] = struct{}{}
	}
	for c := range t.TotalRevenue {
		seen[c] = struct{}{}
	}
	for c := range t.TotalCosts {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Equal compares numerically, so 1.50 and 1.5 are the same amount.
func (t Totals) Equal(o Totals) bool {
	a, b := t.Currencies(), o.Currencies()
	if len(a) != len(b) {
		return false
	}
	for i, c := range a {
		if b[i] != c {
			return false
		}
		if t.Shipments(c) != o.Shipments(c) ||
			!t.Revenue(c).Equal(o.Revenue(c)) ||
			!t.Costs(c).Equal(o.Costs(c)) {
			return false
		}
	}
	return true
}

// FilterCriteria is what the reconciliation screen submits; empty fields match everything.
type FilterCriteria struct {
	CompanyID     string     `json:"company_id"`
	CustomerID    string     `json:"customer_id"`
	Carrier       string     `json:"carrier"`
	InvoiceStatus string     `json:"invoice_status"`
	Currency      string     `json:"currency"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
}

func (f FilterCriteria) Predicate() Predicate {
	return func(v ChargeView) bool {
		if f.CompanyID != "" && v.CompanyID != f.CompanyID {
			return false
		}
		if f.CustomerID != "" && v.CustomerID != f.CustomerID {
			return false
		}
		if f.Carrier != "" && v.Carrier != f.Carrier {
			return false
		}
		if f.InvoiceStatus != "" && v.InvoiceStatus != f.InvoiceStatus {
			return false
		}
		if f.Currency != "" && v.Currency != cleanCurrency(f.Currency) {
			return false
		}
		if f.From != nil && v.ShipmentDate.Before(*f.From) {
			return false
		}
		if f.To != nil && v.ShipmentDate.After(*f.To) {
			return false
		}
		return true
	}
}
