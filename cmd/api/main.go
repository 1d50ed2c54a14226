package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roleshop-api/internal/cache"
	"roleshop-api/internal/config"
	"roleshop-api/internal/event"
	"roleshop-api/internal/handler"
	"roleshop-api/internal/middleware"
	"roleshop-api/internal/repository"
	"roleshop-api/internal/rolesync"
	"roleshop-api/internal/router"
	"roleshop-api/internal/service"

	_ "github.com/go-sql-driver/mysql"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting roleshop API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize shop repository based on config
	var shopRepo repository.ShopRepository
	switch cfg.ShopDB.Type {
	case "postgres", "postgresql":
		pgRepo, err := repository.NewPostgresShopRepository(cfg.ShopDB.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		defer pgRepo.Close()
		shopRepo = pgRepo
		log.Println("PostgreSQL shop repository initialized")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteShopRepository(cfg.ShopDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		defer sqliteRepo.Close()
		shopRepo = sqliteRepo
		log.Println("SQLite shop repository initialized")
	}

	// Initialize history repository (optional - shop works without an
	// audit trail, degraded)
	var historyRepo repository.HistoryRepository
	switch cfg.History.Type {
	case "mongodb", "mongo":
		mongoRepo, err := repository.NewMongoDBHistoryRepository(
			cfg.History.MongoURI,
			cfg.History.MongoDatabase,
			cfg.History.MongoCollection,
		)
		if err != nil {
			log.Printf("Warning: MongoDB history unavailable: %v", err)
		} else {
			defer mongoRepo.Close()
			historyRepo = mongoRepo
			log.Println("MongoDB history repository initialized")
		}
	default: // sqlite
		sqliteHist, err := repository.NewSQLiteHistoryRepository(cfg.History.Path)
		if err != nil {
			log.Printf("Warning: SQLite history unavailable: %v", err)
		} else {
			defer sqliteHist.Close()
			historyRepo = sqliteHist
			log.Println("SQLite history repository initialized")
		}
	}

	// Initialize MySQL member directory (optional)
	var memberRepo repository.MemberRepository
	if cfg.MemberDB.Enabled {
		mysqlDB, err := sql.Open("mysql", cfg.MemberDB.DSN())
		if err != nil {
			log.Printf("Warning: MySQL connection failed: %v", err)
		} else {
			mysqlDB.SetMaxOpenConns(10)
			mysqlDB.SetMaxIdleConns(5)
			mysqlDB.SetConnMaxLifetime(5 * time.Minute)

			if err := mysqlDB.Ping(); err != nil {
				log.Printf("Warning: MySQL ping failed: %v", err)
				mysqlDB.Close()
			} else {
				defer mysqlDB.Close()
				memberRepo = repository.NewMySQLMemberRepository(mysqlDB)
				log.Println("MySQL member directory initialized")
			}
		}
	}

	// Initialize config cache (Redis with memory fallback)
	var configCache cache.Cache = cache.NewMemoryCache()
	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis unavailable, using memory cache: %v", err)
		} else {
			defer redisCache.Close()
			configCache = redisCache
			log.Println("Redis cache initialized")
		}
	}

	// Initialize Discord role adapter (optional)
	var syncAdapter rolesync.Adapter
	if cfg.Discord.BotToken != "" && cfg.Discord.GuildID != "" {
		syncAdapter = rolesync.NewDiscordAdapter(rolesync.DiscordConfig{
			BaseURL: cfg.Discord.BaseURL,
			Token:   cfg.Discord.BotToken,
			GuildID: cfg.Discord.GuildID,
		})
		log.Println("Discord role adapter initialized")
	} else {
		log.Println("Warning: Discord credentials not set, role sync disabled")
	}

	// Initialize event publisher (disabled when no RabbitMQ URI)
	publisher, err := event.NewEventPublisher(cfg.Events.RabbitURI)
	if err != nil {
		log.Printf("Warning: RabbitMQ unavailable, notifications disabled: %v", err)
		publisher, _ = event.NewEventPublisher("")
	}
	defer publisher.Close()

	// Initialize services
	configService := service.NewConfigService(shopRepo, configCache, cfg.Cache.TTL)
	shopService := service.NewShopService(shopRepo, historyRepo, memberRepo, syncAdapter, publisher, configService)
	sharingService := service.NewSharingService(shopRepo, memberRepo, syncAdapter, configService, shopService)
	auctionService := service.NewAuctionService(shopRepo, syncAdapter, publisher, configService, shopService)

	scheduler := service.NewMaintenanceScheduler(
		shopRepo, historyRepo, memberRepo, syncAdapter, publisher,
		auctionService, shopService,
		service.SchedulerConfig{
			TickInterval:       cfg.Scheduler.TickInterval,
			ReminderThresholds: cfg.Scheduler.ReminderThresholds,
			RetentionDays:      cfg.Scheduler.RetentionDays,
		},
	)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize handlers
	healthHandler := handler.New(shopRepo)
	shopHandler := handler.NewShopHandler(shopService, sharingService)
	auctionHandler := handler.NewAuctionHandler(auctionService)
	adminHandler := handler.NewAdminHandler(
		shopService, configService, scheduler,
		shopRepo, memberRepo, syncAdapter, cfg.ShopDB.Type,
	)

	// Create auth middleware with injected dependencies
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		APIKeys:  cfg.App.Keys(),
		AdminKey: cfg.App.AdminKey,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		ShopHandler:    shopHandler,
		AuctionHandler: auctionHandler,
		AdminHandler:   adminHandler,
		AuthMiddleware: authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop the scheduler before the server so no sweep runs against
	// half-closed dependencies.
	scheduler.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
