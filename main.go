package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bidhub/auction-backend/config"
	"github.com/bidhub/auction-backend/database"
	"github.com/bidhub/auction-backend/handlers"
	"github.com/bidhub/auction-backend/jobs"
	"github.com/bidhub/auction-backend/realtime"
	"github.com/bidhub/auction-backend/scheduler"
	"github.com/bidhub/auction-backend/services"
	"github.com/bidhub/auction-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	shared.ConfigureLogging(shared.LoggingConfig{
		Level:       cfg.LogLevel,
		Format:      "json",
		Output:      cfg.LogFile,
		ServiceName: "auction-backend",
	})

	// Connect to database
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations and seed the channel pool
	if err := database.Migrate("database/schema.sql"); err != nil {
		log.Printf("Migration warning: %v", err)
	}
	if err := database.SeedLiveChannels(cfg.ChannelPoolSize); err != nil {
		log.Printf("Channel seed warning: %v", err)
	}

	// Scheduler pool shared by alarms and end triggers
	pool := scheduler.NewPool(cfg.SchedulerWorkers)
	defer pool.Stop()

	// Realtime fan-out
	hub := realtime.NewHub()

	// Services
	tokenProvider := services.NewTokenProvider(
		cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRefreshToken,
		cfg.GoogleTokenURL, 60*time.Second, nil)
	youtubeService := services.NewYouTubeService(cfg.YouTubeAPIBaseURL, tokenProvider, nil, nil)

	auctionService := services.NewAuctionService(database.DB)
	channelAllocator := services.NewChannelAllocator(database.DB)
	notificationService := services.NewNotificationService(database.DB)
	settlementService := services.NewSettlementService(database.DB, notificationService, hub)
	auctionScheduler := services.NewAuctionScheduler(pool, settlementService, notificationService, cfg.AlarmLeadTime())
	liveService := services.NewLiveAuctionService(auctionService, channelAllocator, youtubeService, settlementService)

	// Rebuild end triggers lost in the restart, then keep the pool honest
	resyncJob := jobs.NewEndResyncJob(auctionService, auctionScheduler)
	if err := resyncJob.Run(context.Background()); err != nil {
		log.Printf("End trigger resync warning: %v", err)
	}
	auditJob := jobs.NewChannelAuditJob(database.DB, 15*time.Minute)
	auditJob.Start()
	defer auditJob.Stop()

	// Handlers
	auctionHandler := handlers.NewAuctionHandler(auctionService, auctionScheduler)
	liveHandler := handlers.NewLiveHandler(liveService, channelAllocator)
	systemHandler := handlers.NewSystemHandler(settlementService.Metrics(), youtubeService.Metrics())

	// Realtime feed on its own listener
	feedServer := realtime.NewFeedServer(":"+cfg.RealtimePort, hub)
	go func() {
		if err := feedServer.ListenAndServe(); err != nil {
			logrus.WithError(err).Error("Realtime feed server stopped")
		}
	}()

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api/v1")

	// Auction routes
	api.Post("/auctions", auctionHandler.CreateAuction)
	api.Get("/auctions/live", auctionHandler.GetLiveAuctions)
	api.Get("/auctions/:id", auctionHandler.GetAuction)
	api.Post("/auctions/:id/bids", auctionHandler.PlaceBid)
	api.Post("/auctions/:id/alarm", auctionHandler.RegisterAlarm)
	api.Get("/auctions/:id/channel", liveHandler.GetChannel)

	// Live broadcast routes
	api.Post("/live/:id/channel", liveHandler.CreateChannel)
	api.Delete("/live/:id/channel", liveHandler.DeleteChannel)
	api.Post("/live/:id/start", liveHandler.StartLive)
	api.Post("/live/:id/end", liveHandler.EndLive)

	// System routes
	api.Get("/system/metrics", systemHandler.GetMetrics)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := feedServer.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("Realtime feed shutdown failed")
		}
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Warn("HTTP server shutdown failed")
		}
	}()

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
