package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	seed "freight-billing-backend/db"
	"freight-billing-backend/db/models"
	"freight-billing-backend/invoicestatus/repositories"
	"freight-billing-backend/invoicestatus/services"
	"freight-billing-backend/middleware"
	"freight-billing-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCatalog struct {
	mu   sync.Mutex
	rows []models.InvoiceStatusDefinition
}

func (m *memoryCatalog) Name() string { return "invoice_statuses" }

func (m *memoryCatalog) ListStatuses(ctx context.Context) ([]models.InvoiceStatusDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.InvoiceStatusDefinition(nil), m.rows...), nil
}

func (m *memoryCatalog) SeedDefaults(ctx context.Context, createdBy string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = seed.DefaultInvoiceStatuses()
	return int64(len(m.rows)), nil
}

func (m *memoryCatalog) UpdateStatus(ctx context.Context, code string, updates map[string]interface{}) (*models.InvoiceStatusDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].StatusCode != code {
			continue
		}
		if label, ok := updates["status_label"].(string); ok {
			m.rows[i].StatusLabel = label
		}
		row := m.rows[i]
		return &row, nil
	}
	return nil, utils.NewAppError(utils.KindNotFound, "update invoice status", "status code not found").WithID(code)
}

type memoryShipments struct {
	mu       sync.Mutex
	shipment models.Shipment
}

func (m *memoryShipments) FindByShipmentNumber(ctx context.Context, number string) (*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if number != m.shipment.ShipmentNumber {
		return nil, utils.NewAppError(utils.KindNotFound, "find shipment", "shipment not found").WithID(number)
	}
	s := m.shipment
	return &s, nil
}

func (m *memoryShipments) GetShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.shipment
	return &s, nil
}

func (m *memoryShipments) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, version int64, write repositories.StatusWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipment.InvoiceStatus = write.StatusCode
	m.shipment.StatusVersion++
	return nil
}

type discardAudit struct{}

func (discardAudit) RecordAuditEvent(ctx context.Context, event *models.ShipmentAuditEvent) error {
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *memoryShipments, *services.Registry) {
	t.Helper()
	catalog := &memoryCatalog{}
	registry := services.NewRegistry(catalog, nil, 0, nil, nil)
	shipments := &memoryShipments{shipment: models.Shipment{
		ID:             uuid.New(),
		ShipmentNumber: "SHP-1",
		InvoiceStatus:  models.DefaultInvoiceStatusCode,
	}}
	authority := services.NewTransitionAuthority(shipments, discardAudit{}, registry, nil, nil, nil)

	controller := &InvoiceStatusController{Registry: registry, Authority: authority, CatalogRepo: catalog}
	app := fiber.New()
	app.Get("/invoice-statuses", controller.GetInvoiceStatusesController)
	app.Patch("/invoice-statuses/:statusCode", middleware.ActorRoute(), controller.UpdateInvoiceStatusDefinitionController)
	app.Patch("/shipments/:shipmentNumber/invoice-status", middleware.ActorRoute(), controller.TransitionInvoiceStatusController)
	return app, shipments, registry
}

func decodeBody(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestGetInvoiceStatusesSeedsAndOrders(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/invoice-statuses", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 7)
	assert.Equal(t, "uninvoiced", data[0].(map[string]interface{})["status_code"])
}

func TestTransitionEndpoint(t *testing.T) {
	app, shipments, _ := newTestApp(t)

	req := httptest.NewRequest("PATCH", "/shipments/SHP-1/invoice-status", strings.NewReader(`{"status_code":"invoiced"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorHeader, "jane")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "invoiced", shipments.shipment.InvoiceStatus)
}

func TestTransitionEndpointMapsErrors(t *testing.T) {
	app, _, _ := newTestApp(t)

	cases := []struct {
		path   string
		body   string
		status int
	}{
		{"/shipments/SHP-1/invoice-status", `{"status_code":"archived"}`, fiber.StatusUnprocessableEntity},
		{"/shipments/SHP-9/invoice-status", `{"status_code":"paid"}`, fiber.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("PATCH", tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.ActorHeader, "jane")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
	}
}

func TestUpdateDefinitionInvalidatesRegistry(t *testing.T) {
	app, _, registry := newTestApp(t)
	changed := make(chan struct{}, 1)
	registry.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	req := httptest.NewRequest("PATCH", "/invoice-statuses/paid", strings.NewReader(`{"status_label":"Settled"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorHeader, "admin")

	_, err := registry.LoadStatuses(context.Background())
	require.NoError(t, err)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	select {
	case <-changed:
	default:
		t.Fatal("expected change listeners to fire")
	}
}

func TestUpdateDefinitionRejectsDisablingDefault(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("PATCH", "/invoice-statuses/uninvoiced", strings.NewReader(`{"enabled":false}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorHeader, "admin")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}
