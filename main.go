package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"grocetrack/internal/handlers"
	"grocetrack/internal/middleware"
	"grocetrack/internal/models"
	"grocetrack/internal/repositories"
	"grocetrack/internal/services"
	"grocetrack/pkg/rabbitmq"
	"grocetrack/pkg/vision"
)

func main() {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("SQLITE_PATH", "grocery.db")
	viper.SetDefault("UPLOAD_DIR", "static/uploads")
	viper.SetDefault("JWT_SECRET", "your-secret-key-here")
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.AutomaticEnv() // Load environment variables

	appPort := viper.GetString("APP_PORT")
	uploadDir := viper.GetString("UPLOAD_DIR")

	// --- Database ---
	// PostgreSQL in production when DATABASE_URL is set, SQLite locally.
	var dialector gorm.Dialector
	if databaseURL := viper.GetString("DATABASE_URL"); databaseURL != "" {
		log.Println("Using PostgreSQL database")
		dialector = postgres.Open(databaseURL)
	} else {
		sqlitePath := viper.GetString("SQLITE_PATH")
		log.Printf("Using SQLite database at %s", sqlitePath)
		dialector = sqlite.Open(sqlitePath)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.GroceryItem{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// --- Upload area ---
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload directory %s: %v", uploadDir, err)
	}

	// --- Optional RabbitMQ event publisher ---
	var publisher services.EventPublisher
	if mqURL := viper.GetString("RABBITMQ_URL"); mqURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: mqURL})
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, item events disabled: %v", err)
		} else {
			defer mqClient.Close()
			publisher = mqClient
		}
	}

	// --- Vision model client ---
	visionClient := vision.NewClient(vision.Config{
		APIKey: viper.GetString("OPENAI_API_KEY"),
		Model:  viper.GetString("OPENAI_MODEL"),
	})

	// --- Repositories ---
	userRepo := repositories.NewGORMUserRepository(db)
	itemRepo := repositories.NewGORMItemRepository(db)

	// --- Services ---
	authService := services.NewAuthService(userRepo, viper.GetString("JWT_SECRET"))
	itemService := services.NewItemService(itemRepo, visionClient, fs, uploadDir, publisher)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	itemHandler := handlers.NewItemHandler(itemService)

	// --- Initialize Fiber App ---
	app := fiber.New(fiber.Config{
		BodyLimit:    16 * 1024 * 1024, // two photos per request
		ErrorHandler: handlers.ErrorHandler,
	})

	// --- Middleware ---
	app.Use(logger.New()) // Request logger
	app.Use(cors.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
	}))

	// --- API Routes ---
	api := app.Group("/api")

	// Public auth routes
	authHandler.RegisterRoutes(api)

	// Protected routes (require JWT authentication)
	protected := api.Group("", middleware.AuthRequired(authService))
	authHandler.RegisterProtectedRoutes(protected)
	itemHandler.RegisterRoutes(protected)

	// Stored item images
	app.Static("/uploads", uploadDir)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", appPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
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
