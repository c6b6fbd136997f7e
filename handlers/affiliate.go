// handlers/affiliate_routes.go
package handlers

import (
	"affiliate-tracking-system/middleware"
	"affiliate-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAffiliateRoutes(app *fiber.App, affiliateService *services.AffiliateService) {
	// Public route — application form submission (still behind Gateway auth)
	app.Post("/affiliates/apply", affiliateService.SubmitApplication)

	// Admin routes — require admin context forwarded by the Gateway
	admin := app.Group("/admin", middleware.AdminContextMiddleware())

	admin.Get("/affiliates", affiliateService.ListAffiliates)
	admin.Get("/affiliates/:id", affiliateService.GetAffiliate)
	admin.Patch("/affiliates/:id/status", affiliateService.UpdateAffiliateStatus)
}
