package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultThumbnailsSubDir = "thumbnails"
	DefaultPreviewsSubDir   = "previews"
	DefaultArchivesSubDir   = "archives"
)

const (
	defaultWorkerConcurrency = 4
	defaultThumbnailMaxSize  = 300
	defaultPreviewMaxSize    = 1920
	defaultEmbeddingDim      = 512
	defaultSentinelInterval  = 30 * time.Second
	defaultScanLockTTL       = 10 * time.Minute
	defaultExportTTL         = 2 * time.Hour
	defaultBatchTTL          = time.Hour
	defaultGeocoderTimeout   = 5 * time.Second
	defaultGeocoderRPS       = 1
)

type Config struct {
	// asset store root (images/, videos/, raw/). may be empty until configured
	// through the config table
	StoragePath string

	// root for derived assets (thumbnails, previews, archives)
	HotStoragePath string

	DatabasePath string
	DBLogLevel   string

	// redis / queue
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	QueueName         string
	ExportQueueName   string
	WorkerConcurrency int

	// sentinel
	SentinelInterval time.Duration
	ScanLockTTL      time.Duration
	ExportTTL        time.Duration
	BatchTTL         time.Duration

	// derived asset sizes (longest side, px)
	ThumbnailMaxSize int
	PreviewMaxSize   int

	// collaborators
	EmbeddingURL    string
	EmbeddingDim    int
	GeocoderURL     string
	GeocoderTimeout time.Duration
	GeocoderRPS     int
	FFProbePath     string
	ExifToolPath    string

	// http
	Port        string
	CORSOrigins []string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	storagePath := os.Getenv("STORAGE_PATH")
	if storagePath != "" {
		abs, err := filepath.Abs(storagePath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to get absolute path for storage path '%s': %w", storagePath, err)
		}
		storagePath = abs
	}

	hotStorage := getEnvOrDefault("HOT_STORAGE_PATH", filepath.Join(".", "hot_storage"))
	absHotStorage, err := filepath.Abs(hotStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for hot storage '%s': %w", hotStorage, err)
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		redisDB, err = strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_DB '%s': %w", v, err)
		}
	}

	origins := strings.Split(getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	cfg := Config{
		StoragePath:       storagePath,
		HotStoragePath:    absHotStorage,
		DatabasePath:      getEnvOrDefault("DATABASE_PATH", "catalog.db"),
		DBLogLevel:        getEnvOrDefault("DB_LOG_LEVEL", "warn"),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		QueueName:         getEnvOrDefault("QUEUE_NAME", "ingest"),
		ExportQueueName:   getEnvOrDefault("EXPORT_QUEUE_NAME", "export"),
		WorkerConcurrency: getEnvIntOrDefault("WORKER_CONCURRENCY", defaultWorkerConcurrency),
		SentinelInterval:  getEnvDurationOrDefault("SENTINEL_INTERVAL", defaultSentinelInterval),
		ScanLockTTL:       getEnvDurationOrDefault("SCAN_LOCK_TTL", defaultScanLockTTL),
		ExportTTL:         getEnvDurationOrDefault("EXPORT_TTL", defaultExportTTL),
		BatchTTL:          getEnvDurationOrDefault("BATCH_TTL", defaultBatchTTL),
		ThumbnailMaxSize:  getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		PreviewMaxSize:    getEnvIntOrDefault("PREVIEW_MAX_SIZE", defaultPreviewMaxSize),
		EmbeddingURL:      getEnvOrDefault("EMBEDDING_URL", "http://localhost:8500"),
		EmbeddingDim:      getEnvIntOrDefault("EMBEDDING_DIM", defaultEmbeddingDim),
		GeocoderURL:       getEnvOrDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderTimeout:   getEnvDurationOrDefault("GEOCODER_TIMEOUT", defaultGeocoderTimeout),
		GeocoderRPS:       getEnvIntOrDefault("GEOCODER_RPS", defaultGeocoderRPS),
		FFProbePath:       getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		ExifToolPath:      getEnvOrDefault("EXIFTOOL_PATH", "exiftool"),
		Port:              getEnvOrDefault("PORT", "8080"),
		CORSOrigins:       origins,
	}

	return cfg, nil
}
