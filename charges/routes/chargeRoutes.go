package routes

import (
	"freight-billing-backend/charges/controllers"
	"freight-billing-backend/charges/repositories"
	"freight-billing-backend/charges/services"
	"freight-billing-backend/utils"

	"github.com/gofiber/fiber/v2"
)

func ChargeRouterInit(
	app *fiber.App,
	chargeRepository repositories.ChargeRepository,
	detailCache *services.DetailCache,
	summaryCache *utils.RedisCache,
) {
	chargeController := &controllers.ChargeController{
		ChargeRepo:   chargeRepository,
		DetailCache:  detailCache,
		SummaryCache: summaryCache,
	}

	api := app.Group("/api/v1")

	api.Get("/charges", chargeController.GetFilteredChargesController)
	api.Get("/charges/summary", chargeController.GetChargesSummaryController)
	api.Get("/charges/:shipmentId/details", chargeController.GetShipmentDetailController)
}
