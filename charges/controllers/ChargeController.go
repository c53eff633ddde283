package controllers

import (
	"time"

	"freight-billing-backend/charges/repositories"
	"freight-billing-backend/charges/services"
	"freight-billing-backend/config"
	"freight-billing-backend/utils"
	"freight-billing-backend/utils/pagination"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ChargeController struct {
	ChargeRepo   repositories.ChargeRepository
	DetailCache  *services.DetailCache
	SummaryCache *utils.RedisCache
}

type chargesSummary struct {
	Currencies     []string                   `json:"currencies"`
	TotalShipments map[string]int             `json:"total_shipments"`
	TotalRevenue   map[string]decimal.Decimal `json:"total_revenue"`
	TotalCosts     map[string]decimal.Decimal `json:"total_costs"`
	TotalMargin    map[string]string          `json:"total_margin"`
}

// GetFilteredChargesController lists charge views with pagination.
func (cc *ChargeController) GetFilteredChargesController(c *fiber.Ctx) error {
	params := pagination.ParsePaginationParams(c)
	if err := pagination.ValidatePaginationParams(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid pagination parameters",
			"error":   err.Error(),
		})
	}

	shipments, total, err := cc.ChargeRepo.GetFilteredShipments(c.UserContext(), params.PageSize, params.Offset(), params.Filters)
	if err != nil {
		config.Logger.Error("Failed to fetch filtered charges", zap.Error(err))
		return utils.RespondError(c, err, "Failed to fetch charges")
	}

	views := services.ChargeViews(services.LoadShipments(shipments))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Charges retrieved successfully",
		"data":    pagination.NewPaginatedResponse(c, views, total, params),
	})
}

// GetChargesSummaryController returns per-currency shipment counts, revenue and costs.
func (cc *ChargeController) GetChargesSummaryController(c *fiber.Ctx) error {
	criteria, err := parseCriteria(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid filter",
			"error":   err.Error(),
		})
	}

	// The currency is derived per shipment, so it is filtered after normalization only.
	dbFilters := map[string]string{
		"company_id":     criteria.CompanyID,
		"customer_id":    criteria.CustomerID,
		"carrier":        criteria.Carrier,
		"invoice_status": criteria.InvoiceStatus,
		"start_date":     c.Query("start_date"),
		"end_date":       c.Query("end_date"),
	}

	cacheFilters := map[string]string{"currency": criteria.Currency}
	for key, value := range dbFilters {
		cacheFilters[key] = value
	}
	cacheKey := cc.SummaryCache.GenerateKey(cacheFilters)

	var summary chargesSummary
	found, err := cc.SummaryCache.GetJSON(c.UserContext(), cacheKey, &summary)
	if err != nil {
		config.Logger.Warn("Charges summary cache read failed", zap.Error(err))
	}

	if !found {
		shipments, err := cc.ChargeRepo.ListShipments(c.UserContext(), dbFilters)
		if err != nil {
			config.Logger.Error("Failed to load shipments for summary", zap.Error(err))
			return utils.RespondError(c, err, "Failed to compute charges summary")
		}

		totals := services.Aggregate(services.LoadShipments(shipments), criteria.Predicate())
		summary = chargesSummary{
			Currencies:     totals.Currencies(),
			TotalShipments: totals.TotalShipments,
			TotalRevenue:   totals.TotalRevenue,
			TotalCosts:     totals.TotalCosts,
			TotalMargin:    make(map[string]string, len(totals.Currencies())),
		}
		for _, currency := range totals.Currencies() {
			summary.TotalMargin[currency] = totals.Margin(currency).StringFixed(2)
		}

		if err := cc.SummaryCache.SetJSON(c.UserContext(), cacheKey, summary); err != nil {
			config.Logger.Warn("Charges summary cache write failed", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Charges summary computed successfully",
		"data":    summary,
	})
}

// GetShipmentDetailController serves the expanded row through the detail cache.
func (cc *ChargeController) GetShipmentDetailController(c *fiber.Ctx) error {
	shipmentID := c.Params("shipmentId")

	detail, err := cc.DetailCache.Load(c.UserContext(), shipmentID)
	if err != nil {
		config.Logger.Warn("Failed to load shipment detail",
			zap.String("shipment_id", shipmentID),
			zap.Error(err))
		return utils.RespondError(c, err, "Failed to load shipment detail")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Shipment detail retrieved successfully",
		"data":    detail,
	})
}

func parseCriteria(c *fiber.Ctx) (services.FilterCriteria, error) {
	criteria := services.FilterCriteria{
		CompanyID:     c.Query("company_id"),
		CustomerID:    c.Query("customer_id"),
		Carrier:       c.Query("carrier"),
		InvoiceStatus: c.Query("invoice_status"),
		Currency:      c.Query("currency"),
	}

	if raw := c.Query("start_date"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return criteria, err
		}
		criteria.From = &from
	}
	if raw := c.Query("end_date"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return criteria, err
		}
		// Include the whole end day.
		to = to.Add(24*time.Hour - time.Nanosecond)
		criteria.To = &to
	}
	return criteria, nil
}
