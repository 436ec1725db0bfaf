package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cynix/agents"
	"cynix/config"
	"cynix/handlers"
	"cynix/middleware"
	"cynix/models"
	"cynix/services"
	"cynix/utils"
)

func main() {
	// 1. Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("rpc", cfg.Solana.RPCURL),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("mongodb", cfg.MongoDB.Database))

	// 2. Core Services
	geo, err := utils.NewGeoResolver(cfg.GeoIP.DBPath)
	if err != nil {
		logger.Warn("GeoIP database unavailable, countries will be Unknown", zap.Error(err))
	}
	defer geo.Close()

	store := services.NewStore(cfg, logger)
	defer store.Close()

	mongoService, err := services.NewMongoDBService(cfg, logger)
	if err != nil {
		logger.Warn("MongoDB connection failed, event history disabled", zap.Error(err))
		mongoService = &services.MongoDBService{}
	}
	defer mongoService.Close()

	solana := services.NewSolanaClient(cfg, logger)
	reader, err := services.NewAccountReader(solana, cfg, logger)
	if err != nil {
		logger.Fatal("Invalid Solana configuration", zap.Error(err))
	}

	accessCache := services.NewAccessCache(time.Duration(cfg.Cache.AccessTTL) * time.Second)
	go accessCache.Start()
	defer accessCache.Stop()
	accessService := services.NewAccessService(reader, accessCache, logger)

	limiter := services.NewRateLimiter(store, cfg.RateLimit.Limit, time.Duration(cfg.RateLimit.Window)*time.Second)
	verifier := services.NewCredentialVerifier(cfg.Auth)
	requestLogs := services.NewRequestLogger(store, limiter, logger)

	// 3. Upstream clients
	github, err := services.NewGitHubClient(cfg.GitHub, logger)
	if err != nil {
		logger.Fatal("Invalid GitHub configuration", zap.Error(err))
	}
	twitter := services.NewTwitterClient(cfg.Twitter, logger)
	vision := services.NewVisionClient(cfg.Vision)
	reverse := services.NewReverseSearchClient(cfg.ReverseSearch)
	generator := services.NewTextGenerator(cfg.Model)

	dataService := services.NewDataService(accessService, store, requestLogs,
		map[models.DataType]services.Fetcher{
			models.DataTypeGitHub:     services.GitHubFetcher(github),
			models.DataTypeTwitter:    services.TwitterFetcher(twitter),
			models.DataTypeBlockchain: services.BlockchainFetcher(reader),
		},
		mongoService,
		time.Duration(cfg.Cache.RawDataTTL)*time.Second,
		logger)

	aura := agents.NewAura(github, twitter, reader, generator, logger)
	myca := agents.NewMyca(vision, reverse, generator, logger)
	infy := agents.NewInfy(twitter, reader, generator, logger)

	// 4. Notification channels
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var channels []services.AlertChannel

	telegram, err := services.NewTelegramBotService(cfg, accessService, limiter, logger)
	if err != nil {
		logger.Warn("Telegram bot unavailable", zap.Error(err))
	} else {
		go telegram.Start(ctx)
		defer telegram.Close()
		channels = append(channels, telegram)
	}

	discord, err := services.NewDiscordBotService(cfg.Discord, accessService, limiter, logger)
	if err != nil {
		logger.Warn("Discord bot unavailable", zap.Error(err))
	} else {
		defer discord.Close()
		channels = append(channels, discord)
	}

	alertService := services.NewAlertService(channels, twitter, mongoService, logger)
	webhookService := services.NewWebhookService(alertService, myca, mongoService, logger)

	logger.Info("All services running",
		zap.String("store", string(store.Mode())),
		zap.Bool("mongodb", mongoService.Enabled()),
		zap.Bool("telegram", telegram.Enabled()),
		zap.Bool("discord", discord.Enabled()),
		zap.Bool("twitter", twitter.Enabled()),
		zap.Bool("model", generator.Enabled()))

	// 5. Web Server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	gate := middleware.NewGate(verifier, limiter, requestLogs, accessService, geo, logger)

	e.Use(middleware.RequestIDMiddleware())
	e.Use(middleware.LoggerMiddleware(logger))
	e.Use(middleware.RecoverMiddleware(logger))
	e.Use(gate.Middleware())
	e.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	e.Use(gate.Enforce())

	// 6. Routes
	handlers.Routes{
		System:  handlers.NewHandler(cfg, store, mongoService),
		Analyze: handlers.NewAnalyzeHandlers(aura, myca, infy),
		Data:    handlers.NewDataHandlers(dataService, requestLogs, accessService),
		Webhook: handlers.NewWebhookHandlers(webhookService),
		Alerts:  handlers.NewAlertHandlers(alertService),
	}.Register(e, gate)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// 7. Start Server with Graceful Shutdown
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		logger.Info("Server listening", zap.String("addr", serverAddr))
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("Graceful shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	stop()
	logger.Info("Server exited cleanly")
}
