package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerHost     string
	MatchingPort   string
	TrainingPort   string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	PolicyCacheTTL time.Duration

	// Kafka
	KafkaBrokers       []string
	KafkaGroupID       string
	NotificationTopic  string
	MatchEventsTopic   string
	PatientEventsTopic string

	// Matching
	MatchMinProbability float64
	MatchResultLimit    int
	MatchExpiryTTL      time.Duration
	MatchSweepInterval  time.Duration

	// Model
	ModelPath           string
	ModelAlgorithm      string
	ModelTrees          int
	ModelMaxDepth       int
	ModelSeed           int64
	ModelReloadInterval time.Duration

	// Training
	ColdStartSynthetic  bool
	SyntheticSamples    int
	TrainingDatasetPath string
	TrainingTestRatio   float64

	// Seed
	SeedFixturesPath string
}

func Load() *Config {
	return &Config{
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		MatchingPort:   getEnv("MATCHING_PORT", "8090"),
		TrainingPort:   getEnv("TRAINING_PORT", "8091"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "organlink"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "organlink"),
		PostgresDB:       getEnv("POSTGRES_DB", "organlink"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		PolicyCacheTTL: getDuration("POLICY_CACHE_TTL", 5*time.Minute),

		KafkaBrokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "organlink-matching"),
		NotificationTopic:  getEnv("NOTIFICATION_TOPIC", "hospital-notifications"),
		MatchEventsTopic:   getEnv("MATCH_EVENTS_TOPIC", "match-events"),
		PatientEventsTopic: getEnv("PATIENT_EVENTS_TOPIC", "patient-events"),

		MatchMinProbability: getFloatEnv("MATCH_MIN_PROBABILITY", 0.5),
		MatchResultLimit:    getIntEnv("MATCH_RESULT_LIMIT", 10),
		MatchExpiryTTL:      getDuration("MATCH_EXPIRY_TTL", 72*time.Hour),
		MatchSweepInterval:  getDuration("MATCH_SWEEP_INTERVAL", 15*time.Minute),

		ModelPath:           getEnv("MODEL_PATH", "./artifacts/compatibility_model.json"),
		ModelAlgorithm:      getEnv("MODEL_ALGORITHM", "random_forest"),
		ModelTrees:          getIntEnv("MODEL_TREES", 100),
		ModelMaxDepth:       getIntEnv("MODEL_MAX_DEPTH", 10),
		ModelSeed:           int64(getIntEnv("MODEL_SEED", 42)),
		ModelReloadInterval: getDuration("MODEL_RELOAD_INTERVAL", time.Minute),

		ColdStartSynthetic:  getBoolEnv("COLD_START_SYNTHETIC", false),
		SyntheticSamples:    getIntEnv("SYNTHETIC_SAMPLES", 1000),
		TrainingDatasetPath: getEnv("TRAINING_DATASET_PATH", ""),
		TrainingTestRatio:   getFloatEnv("TRAINING_TEST_RATIO", 0.2),

		SeedFixturesPath: getEnv("SEED_FIXTURES_PATH", "./fixtures/seed.yaml"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
