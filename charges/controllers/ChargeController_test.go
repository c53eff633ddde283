package controllers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"freight-billing-backend/charges/services"
	"freight-billing-backend/db/models"
	"freight-billing-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCharges struct {
	shipments []models.Shipment
}

func (m *memoryCharges) GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	for _, s := range m.shipments {
		if s.ID == id {
			found := s
			return &found, nil
		}
	}
	return nil, utils.NewAppError(utils.KindNotFound, "get shipment", "shipment not found").WithID(id.String())
}

func (m *memoryCharges) GetFilteredShipments(ctx context.Context, pageSize int, offset int, filters map[string]string) ([]models.Shipment, int64, error) {
	return m.shipments, int64(len(m.shipments)), nil
}

func (m *memoryCharges) ListShipments(ctx context.Context, filters map[string]string) ([]models.Shipment, error) {
	return m.shipments, nil
}

type stubDetails struct {
	calls int32
}

func (s *stubDetails) FetchDetail(ctx context.Context, shipmentID string) (*services.DetailView, error) {
	atomic.AddInt32(&s.calls, 1)
	if shipmentID == "missing" {
		return nil, utils.NewAppError(utils.KindNotFound, "fetch detail", "shipment not found").WithID(shipmentID)
	}
	return &services.DetailView{StatusLabel: "Invoiced", LoadedAt: time.Now()}, nil
}

func decimalPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func stringPtr(s string) *string { return &s }

func newChargeApp(details *stubDetails) *fiber.App {
	repo := &memoryCharges{shipments: []models.Shipment{
		{ID: uuid.New(), CompanyID: "acme", ActualRateTotal: decimalPtr("100"), MarkupRateTotal: decimalPtr("130"), MarkupRateCurrency: stringPtr("USD")},
		{ID: uuid.New(), CompanyID: "acme", ActualRateTotal: decimalPtr("50"), MarkupRateTotal: decimalPtr("55.50"), MarkupRateCurrency: stringPtr("USD")},
		{ID: uuid.New(), CompanyID: "acme", ActualRateTotal: decimalPtr("200"), MarkupRateTotal: decimalPtr("260"), MarkupRateCurrency: stringPtr("CAD")},
	}}
	controller := &ChargeController{
		ChargeRepo:  repo,
		DetailCache: services.NewDetailCache(details, nil, nil),
	}
	app := fiber.New()
	app.Get("/charges", controller.GetFilteredChargesController)
	app.Get("/charges/summary", controller.GetChargesSummaryController)
	app.Get("/charges/:shipmentId/details", controller.GetShipmentDetailController)
	return app
}

func TestChargesSummaryPerCurrency(t *testing.T) {
	app := newChargeApp(&stubDetails{})

	resp, err := app.Test(httptest.NewRequest("GET", "/charges/summary?company_id=acme", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data chargesSummary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"CAD", "USD"}, body.Data.Currencies)
	assert.Equal(t, 2, body.Data.TotalShipments["USD"])
	assert.Equal(t, "35.50", body.Data.TotalMargin["USD"])
	assert.True(t, decimal.RequireFromString("185.5").Equal(body.Data.TotalRevenue["USD"]))
}

func TestChargesSummaryRejectsBadDate(t *testing.T) {
	app := newChargeApp(&stubDetails{})

	resp, err := app.Test(httptest.NewRequest("GET", "/charges/summary?start_date=yesterday", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestFilteredChargesListsViews(t *testing.T) {
	app := newChargeApp(&stubDetails{})

	resp, err := app.Test(httptest.NewRequest("GET", "/charges", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestShipmentDetailIsCached(t *testing.T) {
	details := &stubDetails{}
	app := newChargeApp(details)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/charges/abc/details", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&details.calls))

	resp, err := app.Test(httptest.NewRequest("GET", "/charges/missing/details", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
