package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MWest2020/openregister/internal/config"
	"github.com/MWest2020/openregister/internal/database"
	"github.com/MWest2020/openregister/internal/handlers"
	"github.com/MWest2020/openregister/internal/middleware"
	"github.com/MWest2020/openregister/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Event dispatcher with the audit subscriber attached
	events := services.NewDispatcher()
	services.RegisterAuditSubscriber(events, db, cfg)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("openregister")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// API routes under /api
	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())
	api.Use(middleware.SessionMiddleware())

	// Create handlers
	objectsHandler := &handlers.ObjectsHandler{DB: db, Events: events, Config: cfg}
	registersHandler := &handlers.RegistersHandler{DB: db}
	schemasHandler := &handlers.SchemasHandler{DB: db}
	auditHandler := &handlers.AuditHandler{DB: db}
	healthHandler := &handlers.HealthHandler{DB: db, Config: cfg}

	// Health
	api.Get("/health", healthHandler.GetHealth)

	// Register routes
	api.Get("/registers", registersHandler.ListRegisters)
	api.Post("/registers", registersHandler.CreateRegister)
	api.Get("/registers/:id", registersHandler.GetRegister)
	api.Put("/registers/:id", registersHandler.UpdateRegister)
	api.Delete("/registers/:id", registersHandler.DeleteRegister)

	// Schema routes
	api.Get("/schemas", schemasHandler.ListSchemas)
	api.Post("/schemas", schemasHandler.CreateSchema)
	api.Get("/schemas/:id", schemasHandler.GetSchema)
	api.Put("/schemas/:id", schemasHandler.UpdateSchema)
	api.Delete("/schemas/:id", schemasHandler.DeleteSchema)

	// Object routes. Fixed paths come before the :id wildcard.
	api.Get("/objects", objectsHandler.ListObjects)
	api.Post("/objects", objectsHandler.CreateObject)
	api.Post("/objects/facets", objectsHandler.GetFacets)
	api.Get("/objects/facetable", objectsHandler.GetFacetableFields)
	api.Get("/objects/relations/:value", objectsHandler.FindByRelation)
	api.Get("/objects/:id", objectsHandler.GetObject)
	api.Put("/objects/:id", objectsHandler.UpdateObject)
	api.Delete("/objects/:id", objectsHandler.DeleteObject)
	api.Post("/objects/:id/lock", objectsHandler.LockObject)
	api.Post("/objects/:id/unlock", objectsHandler.UnlockObject)
	api.Post("/objects/:id/revert", objectsHandler.RevertObject)
	api.Get("/objects/:id/audit-trails", objectsHandler.GetObjectAuditTrails)

	// Audit trail routes
	api.Post("/audit-trails/statistics", auditHandler.GetStatistics)
	api.Get("/audit-trails/statistics/detailed", auditHandler.GetDetailedStatistics)
	api.Get("/audit-trails/chart", auditHandler.GetActionChartData)
	api.Get("/audit-trails/distribution", auditHandler.GetActionDistribution)
	api.Get("/audit-trails/most-active", auditHandler.GetMostActiveObjects)
	api.Delete("/audit-trails/expired", auditHandler.ClearLogs)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	// Start server
	port := cfg.Port
	log.Printf("Starting server on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
	})
}
