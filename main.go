// Package main provides the main entry point for the Mijikai link shortening service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mijikai/mijikai/app/handlers"
	"github.com/mijikai/mijikai/app/router"
	"github.com/mijikai/mijikai/app/services"
	businessflow "github.com/mijikai/mijikai/business_flow"
	"github.com/mijikai/mijikai/config"
	"github.com/mijikai/mijikai/repository"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Mijikai application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging directs the standard logger to a rotating file when configured
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output != "file" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	// TranslateError turns driver unique-violation errors into
	// gorm.ErrDuplicatedKey, which the repositories rely on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Redis connection established")
	return rc, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	// Challenge store: distributed when redis is configured, in-process otherwise
	var store services.ChallengeStore
	if rc != nil {
		store = services.NewRedisChallengeStore(rc, cfg.Cache.RedisPrefix, cfg.Captcha.TTL)
	} else {
		store = services.NewMemoryChallengeStore(cfg.Captcha.TTL, cfg.Captcha.SweepInterval)
	}
	stopFuncs = append(stopFuncs, store.Stop)

	// Repositories
	linkRepo := repository.NewLinkRepository(db)
	reputationRepo := repository.NewReputationRepository(db)

	// Services
	captchaService := services.NewCaptchaService(
		store,
		cfg.Captcha.TTL,
		cfg.Captcha.CodeLength,
		cfg.Captcha.ImageWidth,
		cfg.Captcha.ImageHeight,
	)

	var verifier services.BotVerifier
	if cfg.Verifier.Endpoint == "mock" {
		log.Println("Using mock bot verifier")
		verifier = services.NewMockBotVerifier("mock-identity")
	} else {
		verifier = services.NewHTTPBotVerifier(cfg.Verifier.Endpoint, cfg.Verifier.Timeout)
	}

	// Business flows
	denylist := businessflow.NewDenylist(
		cfg.Shortener.BannedWords,
		cfg.Shortener.BannedDomains,
		cfg.Shortener.BannedAliases,
		cfg.Shortener.Domain,
		cfg.Shortener.StrictDomainMatch,
	)
	shortenFlow := businessflow.NewShortenFlow(linkRepo, reputationRepo, captchaService, verifier, denylist, businessflow.ShortenConfig{
		Domain:         cfg.Shortener.Domain,
		APIKey:         cfg.Shortener.APIKey,
		BanThreshold:   cfg.Shortener.BanThreshold,
		IdentityPepper: cfg.Shortener.IdentityPepper,
	})
	visitFlow := businessflow.NewVisitFlow(linkRepo)
	challengeFlow := businessflow.NewChallengeFlow(captchaService)

	// Handlers
	captchaHandler := handlers.NewCaptchaHandler(challengeFlow)
	createHandler := handlers.NewCreateLinkHandler(shortenFlow)
	redirectHandler := handlers.NewRedirectHandler(visitFlow)

	// Router
	appRouter := router.NewFiberRouter(cfg, captchaHandler, createHandler, redirectHandler)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
