package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/organlink/platform/pkg/common/config"
	"github.com/organlink/platform/pkg/common/database"
	"github.com/organlink/platform/pkg/common/kafka"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/middleware"
	"github.com/organlink/platform/pkg/features"
	"github.com/organlink/platform/pkg/lifecycle"
	"github.com/organlink/platform/pkg/matching"
	"github.com/organlink/platform/pkg/notification"
	"github.com/organlink/platform/pkg/observability/metrics"
	"github.com/organlink/platform/pkg/records"
	"github.com/organlink/platform/pkg/training"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	cache := records.NewPolicyCache(database.GetRedis(cfg), cfg.PolicyCacheTTL)
	defer database.CloseRedis()

	recordStore := records.NewRepository(db, cache)
	matchStore := lifecycle.NewGormStore(db)
	if err := recordStore.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate record tables")
	}
	if err := matchStore.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate match tables")
	}

	var (
		sink   notification.Sink = notification.LogSink{}
		events notification.Publisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		notifications := kafka.NewProducer(cfg, cfg.NotificationTopic)
		defer notifications.Close()
		matchEvents := kafka.NewProducer(cfg, cfg.MatchEventsTopic)
		defer matchEvents.Close()
		sink = notification.NewKafkaSink(notifications, 3, 100*time.Millisecond)
		events = matchEvents
	} else {
		logger.Log.Warn("No Kafka brokers configured, notifications will only be logged")
	}

	model := training.NewModelHandle(cfg)
	manager := lifecycle.NewManager(matchStore, recordStore, sink, events)
	engine := matching.NewEngine(recordStore, model, manager, features.NewVectorizer(nil), matching.Settings{
		MinProbability: cfg.MatchMinProbability,
		Limit:          cfg.MatchResultLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go model.Watch(ctx, cfg.ModelReloadInterval)
	go manager.RunSweeper(ctx, cfg.MatchSweepInterval, cfg.MatchExpiryTTL)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := kafka.NewConsumer(cfg, cfg.PatientEventsTopic, "")
		defer consumer.Close()
		go func() {
			if err := consumer.Consume(ctx, engine.PatientRegisteredHandler()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.WithError(err).Error("Patient event consumer stopped")
			}
		}()
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)
	api := router.PathPrefix("/api/v1").Subrouter()
	matching.NewHandler(engine, manager, model, cfg.MatchExpiryTTL).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.MatchingPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.MatchingPort,
		}).Info("Matching Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Matching Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Matching Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
