// handlers/billing_routes.go
package handlers

import (
	"affiliate-tracking-system/middleware"
	"affiliate-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBillingRoutes(app *fiber.App, conversionService *services.ConversionService, ledgerService *services.LedgerService) {
	// Service-to-service ingestion — called by the checkout and
	// refund-approval collaborators through the Gateway
	app.Post("/conversions", conversionService.IngestConversion)
	app.Post("/refunds", ledgerService.IngestRefund)

	// Admin read APIs
	admin := app.Group("/admin", middleware.AdminContextMiddleware())

	admin.Get("/affiliates/:id/conversions", conversionService.GetAffiliateConversions)
	admin.Get("/affiliates/:id/balance", ledgerService.GetAffiliateBalance)
	admin.Get("/affiliates/:id/statement", ledgerService.GetAffiliateStatement)
}
