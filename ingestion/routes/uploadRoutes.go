package routes

import (
	"freight-billing-backend/ingestion/controllers"
	"freight-billing-backend/ingestion/services"
	"freight-billing-backend/middleware"

	"github.com/gofiber/fiber/v2"
)

func UploadRouterInit(
	app *fiber.App,
	uploadService *services.UploadService,
	chain *services.StoreChain,
	repairService *services.RepairService,
) {
	uploadController := &controllers.UploadController{
		Uploads: uploadService,
		Chain:   chain,
		Repair:  repairService,
	}

	api := app.Group("/api/v1/edi")

	api.Post("/uploads", middleware.ActorRoute(), uploadController.CreateUploadController)
	api.Get("/uploads/stalled", uploadController.GetStalledUploadsController)
	api.Post("/uploads/repair", middleware.ActorRoute(), uploadController.RepairUploadsController)
	api.Get("/uploads/:id", uploadController.GetUploadController)
	api.Get("/uploads/:id/result", uploadController.GetUploadResultController)
}
