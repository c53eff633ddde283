package routes

import (
	"freight-billing-backend/invoicestatus/controllers"
	"freight-billing-backend/invoicestatus/repositories"
	"freight-billing-backend/invoicestatus/services"
	"freight-billing-backend/middleware"

	"github.com/gofiber/fiber/v2"
)

func InvoiceStatusRouterInit(
	app *fiber.App,
	registry *services.Registry,
	authority *services.TransitionAuthority,
	catalogRepository repositories.StatusCatalogRepository,
) {
	invoiceStatusController := &controllers.InvoiceStatusController{
		Registry:    registry,
		Authority:   authority,
		CatalogRepo: catalogRepository,
	}

	api := app.Group("/api/v1")

	api.Get("/invoice-statuses", invoiceStatusController.GetInvoiceStatusesController)
	api.Patch("/invoice-statuses/:statusCode", middleware.ActorRoute(), invoiceStatusController.UpdateInvoiceStatusDefinitionController)
	api.Patch("/shipments/:shipmentNumber/invoice-status", middleware.ActorRoute(), invoiceStatusController.TransitionInvoiceStatusController)
}
