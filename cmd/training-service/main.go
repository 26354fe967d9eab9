package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/config"
	"github.com/organlink/platform/pkg/common/database"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/middleware"
	"github.com/organlink/platform/pkg/observability/metrics"
	"github.com/organlink/platform/pkg/training"
)

func main() {
	once := flag.Bool("once", false, "run a single training run and exit")
	source := flag.String("source", "", "training source for -once: csv or synthetic")
	dataset := flag.String("dataset", "", "CSV dataset path for -once (defaults to TRAINING_DATASET_PATH)")
	samples := flag.Int("samples", 0, "synthetic sample count for -once")
	algorithm := flag.String("algorithm", "", "random_forest or logistic (defaults to MODEL_ALGORITHM)")
	force := flag.Bool("force", false, "allow synthetic data to replace a CSV-trained model")
	flag.Parse()

	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	runs := training.NewRepository(db)
	if err := runs.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate training tables")
	}

	model := classifier.NewHandle(classifier.NewFileStore(cfg.ModelPath), training.ModelOptions(cfg))
	service := training.NewService(runs, model, training.SettingsFromConfig(cfg))

	if *once {
		run, err := service.Run(context.Background(), training.CreateRunInput{
			Source:      *source,
			DatasetPath: *dataset,
			Samples:     *samples,
			Algorithm:   *algorithm,
			Force:       *force,
		})
		if err != nil {
			logger.Log.WithError(err).WithField("run_id", run.ID).Error("Training run failed")
			os.Exit(1)
		}
		logger.Log.WithFields(map[string]interface{}{
			"run_id":        run.ID,
			"model_version": run.ModelVersion,
			"samples":       run.Samples,
			"metrics":       run.Metrics,
		}).Info("Training run completed")
		return
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)
	training.NewHandler(service).Register(router.PathPrefix("/api/v1").Subrouter())

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.TrainingPort),
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.TrainingPort,
		}).Info("Training Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Training Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Training Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
