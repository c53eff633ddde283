package controllers

import (
	"strings"
	"time"

	"freight-billing-backend/config"
	"freight-billing-backend/db/models"
	"freight-billing-backend/ingestion/services"
	"freight-billing-backend/middleware"
	"freight-billing-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UploadController struct {
	Uploads *services.UploadService
	Chain   *services.StoreChain
	Repair  *services.RepairService
}

type RepairRequest struct {
	OlderThan string `json:"older_than"`
}

// CreateUploadController accepts a multipart EDI file with its carrier id.
func (uc *UploadController) CreateUploadController(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get file",
			"error":   err.Error(),
		})
	}

	src, err := file.Open()
	if err != nil {
		config.Logger.Error("Failed to open uploaded file", zap.String("file_name", file.Filename), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read file",
			"error":   err.Error(),
		})
	}
	defer src.Close()

	located, err := uc.Uploads.Submit(c.UserContext(), services.SubmitUploadInput{
		FileName:   file.Filename,
		CarrierID:  c.FormValue("carrier_id"),
		UploadedBy: middleware.Actor(c),
		Content:    src,
	})
	if err != nil {
		config.Logger.Warn("EDI upload rejected",
			zap.String("file_name", file.Filename),
			zap.Error(err))
		return utils.RespondError(c, err, "Failed to submit upload")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Upload queued for processing",
		"data":    located,
	})
}

// GetUploadController returns the upload's processing status and the store it was read from.
func (uc *UploadController) GetUploadController(c *fiber.Ctx) error {
	id, ok := parseUploadID(c)
	if !ok {
		return invalidUploadID(c)
	}

	located, err := uc.Chain.FindUpload(c.UserContext(), id)
	if err != nil {
		return utils.RespondError(c, err, "Failed to load upload")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Upload retrieved successfully",
		"data":    located,
	})
}

// GetUploadResultController returns the extracted line items of a completed upload.
func (uc *UploadController) GetUploadResultController(c *fiber.Ctx) error {
	const op = "get upload result"

	id, ok := parseUploadID(c)
	if !ok {
		return invalidUploadID(c)
	}

	located, err := uc.Chain.FindUpload(c.UserContext(), id)
	if err != nil {
		return utils.RespondError(c, err, "Failed to load upload")
	}

	upload := located.Upload
	switch upload.ProcessingStatus {
	case models.CompletedProcessing:
	case models.FailedProcessing:
		message := "extraction failed"
		if upload.Error != nil {
			message = *upload.Error
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": "Upload processing failed",
			"error":   message,
		})
	default:
		err := utils.NewAppError(utils.KindConflict, op, "upload has not finished processing").WithID(id.String())
		return utils.RespondError(c, err, "Upload is still "+string(upload.ProcessingStatus))
	}

	if upload.ResultID == nil {
		err := utils.NewAppError(utils.KindDataIntegrity, op, "completed upload has no result id").
			WithID(id.String()).WithStore(located.Store)
		config.Logger.Error("Completed upload without result", zap.Error(err))
		return utils.RespondError(c, err, "Upload result unavailable")
	}

	result, err := uc.Chain.FindResult(c.UserContext(), located.Store, *upload.ResultID)
	if err != nil {
		config.Logger.Error("Failed to load upload result",
			zap.String("upload_id", id.String()),
			zap.String("store", located.Store),
			zap.Error(err))
		return utils.RespondError(c, err, "Upload result unavailable")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Upload result retrieved successfully",
		"data": fiber.Map{
			"upload":       upload,
			"store":        located.Store,
			"result":       result.Result,
			"result_store": result.Store,
			"line_items":   result.Result.LineItems(),
		},
	})
}

// GetStalledUploadsController lists uploads idle longer than ?older_than (default sweep threshold).
func (uc *UploadController) GetStalledUploadsController(c *fiber.Ctx) error {
	olderThan, err := parseOlderThan(c.Query("older_than"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid older_than",
			"error":   err.Error(),
		})
	}

	stalled, err := uc.Repair.Diagnose(c.UserContext(), olderThan)
	if err != nil {
		return utils.RespondError(c, err, "Failed to diagnose stalled uploads")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Stalled uploads retrieved successfully",
		"data":    stalled,
	})
}

// RepairUploadsController re-enqueues extraction for stalled uploads.
func (uc *UploadController) RepairUploadsController(c *fiber.Ctx) error {
	var req RepairRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid request body",
				"error":   err.Error(),
			})
		}
	}
	olderThan, err := parseOlderThan(req.OlderThan)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid older_than",
			"error":   err.Error(),
		})
	}

	report, err := uc.Repair.Repair(c.UserContext(), olderThan)
	if err != nil {
		config.Logger.Error("Stalled upload repair failed", zap.Error(err))
		return utils.RespondError(c, err, "Failed to repair stalled uploads")
	}

	config.Logger.Info("Stalled upload repair requested",
		zap.String("actor", middleware.Actor(c)),
		zap.Int("requeued", report.Requeued))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Stalled uploads re-enqueued",
		"data":    report,
	})
}

func parseUploadID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

func invalidUploadID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Invalid upload ID",
	})
}

// parseOlderThan returns zero for an empty value, which selects the service default.
func parseOlderThan(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
