package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dvfmarket/server/config"
	"dvfmarket/server/internal/api"
	"dvfmarket/server/internal/database"
	"dvfmarket/server/internal/geocoding"
	"dvfmarket/server/internal/ingest"
	"dvfmarket/server/internal/market"
	"dvfmarket/server/internal/notify"
	"dvfmarket/server/internal/scheduler"
	"dvfmarket/server/internal/stats"
	"dvfmarket/server/internal/telegram"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0o755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", cfg.Server.DBPath)

	db, err := database.NewDatabase(cfg.Server.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	cacheDir := filepath.Join(os.TempDir(), "dvfmarket", "geocode_cache")
	geocoder := geocoding.NewGeocoder(logger, cacheDir)

	hub := notify.NewHub(cfg.Notify.QueueSize, logger)
	defer hub.Close()

	var notifier notify.Sink = hub
	operatorChat := telegram.NewService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	if operatorChat.Enabled() {
		logger.Info("Telegram notifications enabled")
		notifier = notify.Fanout(hub, operatorChat)
	}

	downloader := ingest.NewHTTPDownloader(cfg.Source.BaseURL, time.Duration(cfg.Source.DownloadTimeout)*time.Second, logger)
	orchestrator := ingest.NewOrchestrator(db, downloader, notifier, cfg, logger)
	defer orchestrator.Stop()

	statsEngine := stats.NewEngine(db, logger)
	marketService := market.NewService(db, db, statsEngine, logger)

	if cfg.Refresh.Enabled {
		refresher := scheduler.NewScheduler(orchestrator, cfg, logger)
		if err := refresher.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start refresh scheduler")
		}
		defer refresher.Stop()
	}

	handler := api.NewHandler(db, orchestrator, statsEngine, marketService, hub, geocoder, logger)

	router := gin.Default()
	api.SetupRoutes(router, handler)

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
