// handlers/tracking_routes.go
package handlers

import (
	"affiliate-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTrackingRoutes(app *fiber.App, trackingService *services.TrackingService) {
	// Referral redirect — visitor-facing, forwarded by the Gateway.
	// Always responds with a redirect; click recording is best-effort.
	app.Get("/r/:code", trackingService.Redirect)
}
