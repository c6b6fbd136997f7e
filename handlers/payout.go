// handlers/payout_routes.go
package handlers

import (
	"affiliate-tracking-system/middleware"
	"affiliate-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPayoutRoutes(app *fiber.App, payoutService *services.PayoutService) {
	// All payout operations are admin-only
	admin := app.Group("/admin", middleware.AdminContextMiddleware())

	admin.Post("/payouts/generate", payoutService.GeneratePayout)
	admin.Post("/payouts/:id/approve", payoutService.ApprovePayout)
	admin.Post("/payouts/:id/pay", payoutService.PayPayout)
	admin.Get("/payouts/export", payoutService.ExportPayouts)
	admin.Get("/affiliates/:id/payouts", payoutService.GetAffiliatePayouts)
}
