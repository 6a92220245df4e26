package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"princo/internal/config"
	"princo/internal/handlers"
	"princo/internal/middleware"
	"princo/internal/models"
	"princo/internal/repositories"
	"princo/internal/services"
	"princo/pkg/gateway"
	"princo/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	// Loaded once and validated before anything talks to the gateway: a
	// misconfigured key secret should kill the process, not surface as 500s.
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// --- Database ---
	// TranslateError makes unique index violations surface as
	// gorm.ErrDuplicatedKey, which the order repository relies on for the
	// payment idempotency guarantee.
	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.User{}, &models.Order{}, &models.OrderItem{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// --- Order events (optional) ---
	var events services.OrderEventPublisher
	var mqClient *rabbitmq.Client
	if cfg.RabbitMQURL != "" {
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL})
		if err != nil {
			// Order events are best-effort; the API runs without them.
			log.Printf("Warning: RabbitMQ unavailable, order events disabled: %v", err)
		} else {
			defer mqClient.Close()
			events = mqClient
		}
	}

	// --- Payment gateway client ---
	// Explicitly constructed and passed into the services that need it;
	// credentials were validated above and are immutable from here on.
	gatewayClient := gateway.NewClient(gateway.Config{
		KeyID:     cfg.GatewayKeyID,
		KeySecret: cfg.GatewayKeySecret,
		BaseURL:   cfg.GatewayBaseURL,
		Timeout:   cfg.GatewayTimeout,
	})

	// --- Repositories ---
	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	// --- Services ---
	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(orderRepo, events)
	paymentService := services.NewPaymentService(orderRepo, gatewayClient, cfg.GatewayKeySecret, events)
	authService := services.NewAuthService(userRepo, cfg.JWTSecret)

	// Bootstrap the admin account if configured and not present yet.
	ensureAdmin(authService, userRepo, cfg)

	// --- Handlers ---
	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.GatewayKeyID)
	authHandler := handlers.NewAuthHandler(authService)

	// --- Fiber App ---
	app := fiber.New()
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowHeaders: "Content-Type, Authorization, X-Requested-With",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	// --- API Routes ---
	api := app.Group("/api")

	// Health check. Registered before the admin group below: Fiber matches
	// routes in registration order, so anything added after that group's
	// middleware would sit behind the JWT gate.
	api.Get("/health", func(c *fiber.Ctx) error {
		dbStatus := "Connected"
		if sqlDB, dbErr := db.DB(); dbErr != nil || sqlDB.Ping() != nil {
			dbStatus = "Disconnected"
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "OK",
			"database":  dbStatus,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public surface: auth, catalog reads, payment flows, guest orders.
	authHandler.RegisterRoutes(api)
	productHandler.RegisterRoutes(api)
	paymentHandler.RegisterRoutes(api)
	orderHandler.RegisterRoutes(api)

	// Admin surface: catalog mutations, order management, customer list.
	admin := api.Group("", middleware.AuthRequired(authService), middleware.AdminRequired())
	productHandler.RegisterAdminRoutes(admin)
	orderHandler.RegisterAdminRoutes(admin)
	authHandler.RegisterAdminRoutes(admin)

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", cfg.AppPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// openDatabase opens the configured GORM database.
func openDatabase(cfg config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true}
	if cfg.DBDriver == "postgres" {
		return gorm.Open(postgres.Open(cfg.DatabaseDSN), gormCfg)
	}
	return gorm.Open(sqlite.Open(cfg.DatabaseDSN), gormCfg)
}

// ensureAdmin creates the admin account on first startup when configured.
func ensureAdmin(authService *services.AuthService, userRepo repositories.UserRepository, cfg config.Config) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	if existing, err := userRepo.GetByEmail(cfg.AdminEmail); err == nil && existing != nil {
		return
	}
	admin := &models.User{
		Name:     "Admin",
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     models.RoleAdmin,
	}
	if err := authService.RegisterUser(admin); err != nil {
		log.Printf("Warning: admin bootstrap failed: %v", err)
		return
	}
	log.Printf("Admin account created for %s", cfg.AdminEmail)
}
