package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"contest-lifecycle-system/handlers"
	"contest-lifecycle-system/middleware"
	"contest-lifecycle-system/models"
	"contest-lifecycle-system/services"
	"contest-lifecycle-system/utils"
	"contest-lifecycle-system/workers"

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

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024 * 1024, // snapshot payloads can be large
	})

	// 🔐 GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	archiveEnabled := os.Getenv("SNAPSHOT_ARCHIVE_DISABLED") != "true"
	if archiveEnabled {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.ContestInstance{},
		&models.ContestStateTransition{},
		&models.EventDataSnapshot{},
		&models.SettlementConsumption{},
		&models.LifecycleOutboxEvent{},
		&models.SettlementRecord{},
		&models.PayoutLine{},
		&models.ContestStanding{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	transitionService := services.NewTransitionService(db)
	settlementService := services.NewSettlementService(db, services.RankShareStrategy(db))
	sweepService := services.NewSweepService(db, transitionService, settlementService)
	outboxService := services.NewOutboxService(db)
	contestService := services.NewContestService(db, transitionService, sweepService, outboxService)
	snapshotService := services.NewSnapshotService(db, archiveEnabled)

	batchSize := 50
	if batchStr := os.Getenv("OUTBOX_BATCH_SIZE"); batchStr != "" {
		if n, err := strconv.Atoi(batchStr); err == nil && n > 0 {
			batchSize = n
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outboxWorker := workers.NewSettlementOutboxWorker(db, outboxService, settlementService, batchSize)
	outboxWorker.Start(ctx)

	sched, err := sweepService.StartLifecycleScheduler()
	if err != nil {
		log.Fatal("failed to start lifecycle scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	handlers.SetupContestRoutes(app, contestService, snapshotService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Lifecycle sweeps scheduled (every 1m)")
	log.Println("✅ Settlement Outbox Worker running")

	<-ctx.Done()
	log.Println("Shutting down server...")
}
