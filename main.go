package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"affiliate-tracking-system/handlers"
	"affiliate-tracking-system/middleware"
	"affiliate-tracking-system/models"
	"affiliate-tracking-system/services"
	"affiliate-tracking-system/utils"
	"affiliate-tracking-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOrigins = "http://localhost:3000"
	}
	origins := strings.Split(allowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, User-Agent, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("❌ DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("❌ failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("❌ failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Affiliate{},
		&models.Click{},
		&models.Conversion{},
		&models.LedgerEntry{},
		&models.Payout{},
	); err != nil {
		log.Fatal("❌ failed to migrate database:", err)
	}

	defaultRateBps := envInt("COMMISSION_RATE_BPS", 1000)
	windowDays := envInt("ATTRIBUTION_WINDOW_DAYS", 30)
	siteRoot := os.Getenv("SITE_ROOT_URL")

	notifier := workers.NewNotifier(os.Getenv("NOTIFY_SERVICE_URL"), os.Getenv("AFFILIATE_SERVICE_TOKEN"))
	clickWorker := workers.NewClickWorker(db, 1024)

	affiliateService := services.NewAffiliateService(db, notifier, defaultRateBps)
	trackingService := services.NewTrackingService(affiliateService, clickWorker, siteRoot, time.Duration(windowDays)*24*time.Hour)
	conversionService := services.NewConversionService(db)
	ledgerService := services.NewLedgerService(db)
	payoutService := services.NewPayoutService(db, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go clickWorker.Start(ctx)
	go notifier.Start(ctx)

	payoutService.StartPayoutScheduler(affiliateService)

	handlers.SetupTrackingRoutes(app, trackingService)
	handlers.SetupAffiliateRoutes(app, affiliateService)
	handlers.SetupBillingRoutes(app, conversionService, ledgerService)
	handlers.SetupPayoutRoutes(app, payoutService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("❌ Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ Attribution window: %d days, default commission rate: %d bps", windowDays, defaultRateBps)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}
