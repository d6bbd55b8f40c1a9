package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	AdminToken      string
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// StorageConfig holds the on-disk layout of the ingestion store.
type StorageConfig struct {
	DataDir       string
	SQLitePath    string
	PDFDir        string
	ImageDir      string
	TempDir       string
	QuarantineDir string
	BackupDir     string
	ChromaDataDir string
}

// ChromaConfig holds ChromaDB connection settings.
type ChromaConfig struct {
	Host     string
	Port     int
	Tenant   string
	Database string
	Timeout  time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// EngineConfig bounds the job engine.
type EngineConfig struct {
	MaxConcurrent    int
	MaxQueueSize     int
	JobRetentionDays int
	SweepInterval    time.Duration
}

// CircuitConfig configures every service circuit breaker.
type CircuitConfig struct {
	FailureThreshold int
	Window           time.Duration
	OpenDuration     time.Duration
	ProbeTimeout     time.Duration
}

// RetryConfig configures in-adapter retry with exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// AdapterConfig holds one external service's endpoint and call timeout.
type AdapterConfig struct {
	URL     string
	Timeout time.Duration
}

// AdaptersConfig holds all external service endpoints.
type AdaptersConfig struct {
	OCR      AdapterConfig
	Quality  AdapterConfig
	Layout   AdapterConfig
	LLM      AdapterConfig
	Embedder AdapterConfig
}

// DedupConfig configures the duplicate prevention engine.
type DedupConfig struct {
	L3Threshold float64
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxMB             int
	MinBytes          int64
	QuarantineEnabled bool
}

// RateConfig holds per-source-IP upload rate limits.
type RateConfig struct {
	UploadsPerHour int
	UploadsPerDay  int
}

// BackupConfig holds retention per backup tier.
type BackupConfig struct {
	DailyRetentionDays   int
	WeeklyRetentionDays  int
	MonthlyRetentionDays int
}

// EmbeddingConfig configures the process-wide embedder.
type EmbeddingConfig struct {
	ModelName string
	Dim       int
	Remote    bool
}

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Storage   StorageConfig
	Chroma    ChromaConfig
	Redis     RedisConfig
	Engine    EngineConfig
	Circuit   CircuitConfig
	Retry     RetryConfig
	Adapters  AdaptersConfig
	Dedup     DedupConfig
	Upload    UploadConfig
	Rate      RateConfig
	Backup    BackupConfig
	Embedding EmbeddingConfig
}

// FromEnv loads configuration from environment variables with defaults.
func FromEnv() Config {
	dataDir := getEnv("DATA_DIR", "data")

	cfg := Config{
		Server: ServerConfig{
			Addr:            getEnv("LISTEN_ADDR", ":8080"),
			AdminToken:      getEnv("ADMIN_TOKEN", ""),
			ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Pretty:     parseBool(getEnv("LOG_PRETTY", "false")),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
			MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
			MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
			Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
		},
		Storage: StorageConfig{
			DataDir:       dataDir,
			SQLitePath:    getEnv("SQLITE_PATH", filepath.Join(dataDir, "paperbase.db")),
			PDFDir:        getEnv("PDF_DIR", filepath.Join(dataDir, "pdfs")),
			ImageDir:      getEnv("IMAGE_DIR", filepath.Join(dataDir, "images")),
			TempDir:       getEnv("TEMP_DIR", filepath.Join(dataDir, "temp")),
			QuarantineDir: getEnv("QUARANTINE_DIR", filepath.Join(dataDir, "quarantine")),
			BackupDir:     getEnv("BACKUP_DIR", filepath.Join(dataDir, "backups")),
			ChromaDataDir: getEnv("CHROMA_DATA_DIR", filepath.Join(dataDir, "chroma")),
		},
		Chroma: ChromaConfig{
			Host:     getEnv("CHROMA_HOST", "localhost"),
			Port:     parseInt(getEnv("CHROMA_PORT", "8000"), 8000),
			Tenant:   getEnv("CHROMA_TENANT", "default_tenant"),
			Database: getEnv("CHROMA_DATABASE", "default_database"),
			Timeout:  parseDuration(getEnv("CHROMA_TIMEOUT", "30s"), 30*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     parseInt(getEnv("REDIS_PORT", "6379"), 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
			PoolSize: parseInt(getEnv("REDIS_POOL_SIZE", "10"), 10),
		},
		Engine: EngineConfig{
			MaxConcurrent:    parseInt(getEnv("MAX_CONCURRENT", "3"), 3),
			MaxQueueSize:     parseInt(getEnv("MAX_QUEUE_SIZE", "100"), 100),
			JobRetentionDays: parseInt(getEnv("JOB_RETENTION_DAYS", "7"), 7),
			SweepInterval:    parseDuration(getEnv("SWEEP_INTERVAL", "24h"), 24*time.Hour),
		},
		Circuit: CircuitConfig{
			FailureThreshold: parseInt(getEnv("CIRCUIT_FAILURE_THRESHOLD", "5"), 5),
			Window:           parseDuration(getEnv("CIRCUIT_WINDOW", "60s"), 60*time.Second),
			OpenDuration:     parseDuration(getEnv("CIRCUIT_OPEN_DURATION", "60s"), 60*time.Second),
			ProbeTimeout:     parseDuration(getEnv("CIRCUIT_PROBE_TIMEOUT", "30s"), 30*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: parseInt(getEnv("RETRY_MAX_ATTEMPTS", "3"), 3),
			Base:        parseDuration(getEnv("RETRY_BASE", "500ms"), 500*time.Millisecond),
			Cap:         parseDuration(getEnv("RETRY_CAP", "8s"), 8*time.Second),
		},
		Adapters: AdaptersConfig{
			OCR: AdapterConfig{
				URL:     getEnv("OCR_URL", "http://localhost:9001"),
				Timeout: parseDuration(getEnv("OCR_TIMEOUT", "600s"), 600*time.Second),
			},
			Quality: AdapterConfig{
				URL:     getEnv("QUALITY_URL", "http://localhost:9002"),
				Timeout: parseDuration(getEnv("QUALITY_TIMEOUT", "60s"), 60*time.Second),
			},
			Layout: AdapterConfig{
				URL:     getEnv("LAYOUT_URL", "http://localhost:9003"),
				Timeout: parseDuration(getEnv("LAYOUT_TIMEOUT", "300s"), 300*time.Second),
			},
			LLM: AdapterConfig{
				URL:     getEnv("LLM_URL", "http://localhost:9004"),
				Timeout: parseDuration(getEnv("LLM_TIMEOUT", "120s"), 120*time.Second),
			},
			Embedder: AdapterConfig{
				URL:     getEnv("EMBEDDER_URL", ""),
				Timeout: parseDuration(getEnv("EMBEDDER_TIMEOUT", "120s"), 120*time.Second),
			},
		},
		Dedup: DedupConfig{
			L3Threshold: parseFloat(getEnv("DEDUP_L3_THRESHOLD", "0.95"), 0.95),
		},
		Upload: UploadConfig{
			MaxMB:             parseInt(getEnv("UPLOAD_MAX_MB", "100"), 100),
			MinBytes:          int64(parseInt(getEnv("UPLOAD_MIN_BYTES", "1024"), 1024)),
			QuarantineEnabled: parseBool(getEnv("QUARANTINE_ENABLED", "false")),
		},
		Rate: RateConfig{
			UploadsPerHour: parseInt(getEnv("RATE_UPLOADS_PER_HOUR", "50"), 50),
			UploadsPerDay:  parseInt(getEnv("RATE_UPLOADS_PER_DAY", "200"), 200),
		},
		Backup: BackupConfig{
			DailyRetentionDays:   parseInt(getEnv("BACKUP_DAILY_RETENTION_DAYS", "7"), 7),
			WeeklyRetentionDays:  parseInt(getEnv("BACKUP_WEEKLY_RETENTION_DAYS", "30"), 30),
			MonthlyRetentionDays: parseInt(getEnv("BACKUP_MONTHLY_RETENTION_DAYS", "90"), 90),
		},
		Embedding: EmbeddingConfig{
			ModelName: getEnv("EMBEDDING_MODEL", "hashed-bow-v1"),
			Dim:       parseInt(getEnv("EMBEDDING_DIM", "384"), 384),
			Remote:    parseBool(getEnv("EMBEDDING_REMOTE", "false")),
		},
	}

	return cfg
}

// MaxUploadBytes returns the maximum accepted upload size in bytes.
func (u UploadConfig) MaxUploadBytes() int64 {
	return int64(u.MaxMB) << 20
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return def
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func parseDuration(s string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return def
}
