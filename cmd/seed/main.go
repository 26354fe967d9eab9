package main

import (
	"context"
	"flag"

	"github.com/organlink/platform/pkg/common/config"
	"github.com/organlink/platform/pkg/common/database"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/records"
)

func main() {
	cfg := config.Load()
	path := flag.String("fixtures", cfg.SeedFixturesPath, "YAML fixture file with hospitals, donors, patients and policies")
	flag.Parse()

	logger.Init()

	fixtures, err := records.LoadFixtures(*path)
	if err != nil {
		logger.Log.WithError(err).WithField("path", *path).Fatal("Failed to load fixtures")
	}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	var cache *records.PolicyCache
	if cfg.RedisHost != "" {
		cache = records.NewPolicyCache(database.GetRedis(cfg), cfg.PolicyCacheTTL)
		defer database.CloseRedis()
	}

	repo := records.NewRepository(db, cache)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate record tables")
	}
	if err := repo.Seed(context.Background(), fixtures); err != nil {
		logger.Log.WithError(err).Fatal("Failed to seed records")
	}

	logger.Log.WithFields(map[string]interface{}{
		"hospitals": len(fixtures.Hospitals),
		"donors":    len(fixtures.Donors),
		"patients":  len(fixtures.Patients),
		"policies":  len(fixtures.Policies),
	}).Info("Seed completed")
}
