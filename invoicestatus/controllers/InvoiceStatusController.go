package controllers

import (
	"strings"

	"freight-billing-backend/config"
	"freight-billing-backend/db/models"
	"freight-billing-backend/invoicestatus/repositories"
	"freight-billing-backend/invoicestatus/services"
	"freight-billing-backend/middleware"
	"freight-billing-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type InvoiceStatusController struct {
	Registry    *services.Registry
	Authority   *services.TransitionAuthority
	CatalogRepo repositories.StatusCatalogRepository
}

type TransitionRequest struct {
	StatusCode string `json:"status_code"`
}

type UpdateStatusDefinitionRequest struct {
	StatusLabel *string `json:"status_label"`
	Color       *string `json:"color"`
	FontColor   *string `json:"font_color"`
	SortOrder   *int    `json:"sort_order"`
	Enabled     *bool   `json:"enabled"`
}

// GetInvoiceStatusesController returns the catalog in display order.
func (ic *InvoiceStatusController) GetInvoiceStatusesController(c *fiber.Ctx) error {
	statuses, err := ic.Registry.LoadStatuses(c.UserContext())
	if err != nil {
		config.Logger.Error("Failed to load invoice statuses", zap.Error(err))
		return utils.RespondError(c, err, "Failed to load invoice statuses")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Invoice statuses retrieved successfully",
		"data":    statuses,
	})
}

// TransitionInvoiceStatusController sets a shipment's invoice status by shipment number.
func (ic *InvoiceStatusController) TransitionInvoiceStatusController(c *fiber.Ctx) error {
	shipmentNumber := c.Params("shipmentNumber")

	var req TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	actor := middleware.Actor(c)
	if err := ic.Authority.Transition(c.UserContext(), shipmentNumber, req.StatusCode, actor); err != nil {
		config.Logger.Warn("Invoice status transition failed",
			zap.String("shipment_number", shipmentNumber),
			zap.String("status_code", req.StatusCode),
			zap.String("actor", actor),
			zap.Error(err))
		return utils.RespondError(c, err, "Failed to update invoice status")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Invoice status updated successfully",
		"data": fiber.Map{
			"shipment_number": shipmentNumber,
			"status_code":     req.StatusCode,
		},
	})
}

// UpdateInvoiceStatusDefinitionController edits display fields of a catalog entry.
// Status codes themselves are immutable.
func (ic *InvoiceStatusController) UpdateInvoiceStatusDefinitionController(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Params("statusCode"))

	var req UpdateStatusDefinitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	updates := make(map[string]interface{})
	if req.StatusLabel != nil {
		if strings.TrimSpace(*req.StatusLabel) == "" {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"success": false,
				"message": "Invalid status definition",
				"error":   "status_label cannot be empty",
			})
		}
		updates["status_label"] = strings.TrimSpace(*req.StatusLabel)
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if req.FontColor != nil {
		updates["font_color"] = *req.FontColor
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if req.Enabled != nil {
		if !*req.Enabled && code == models.DefaultInvoiceStatusCode {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"success": false,
				"message": "Invalid status definition",
				"error":   "the default status cannot be disabled",
			})
		}
		updates["enabled"] = *req.Enabled
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No fields to update",
		})
	}

	status, err := ic.CatalogRepo.UpdateStatus(c.UserContext(), code, updates)
	if err != nil {
		config.Logger.Error("Failed to update invoice status definition",
			zap.String("status_code", code),
			zap.Error(err))
		return utils.RespondError(c, err, "Failed to update invoice status definition")
	}

	// Labels and colors feed cached detail views.
	ic.Registry.Invalidate()

	config.Logger.Info("Invoice status definition updated",
		zap.String("status_code", code),
		zap.String("actor", middleware.Actor(c)))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Invoice status definition updated successfully",
		"data":    status,
	})
}
