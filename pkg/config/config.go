package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Ingest   IngestConfig
	Exports  ExportsConfig
	Audit    AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig only carries validation material; token issuance lives in the
// external auth collaborator.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// IngestConfig bounds feed uploads.
type IngestConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ExportsConfig controls workbook generation and backup retention.
type ExportsConfig struct {
	StorageDir      string
	BackupSubdir    string
	SheetPassword   string
	PDFSummary      bool
	BackupRetention time.Duration
}

// AuditConfig tunes the change-history read cache.
type AuditConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUploadSize := v.GetInt64("INGEST_MAX_FILE_SIZE")
	if maxUploadSize <= 0 {
		maxUploadSize = 25 * 1024 * 1024
	}
	cfg.Ingest = IngestConfig{
		MaxFileSizeBytes: maxUploadSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("INGEST_ALLOWED_MIME_TYPES")),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		BackupSubdir:    v.GetString("EXPORTS_BACKUP_SUBDIR"),
		SheetPassword:   v.GetString("EXPORTS_SHEET_PASSWORD"),
		PDFSummary:      v.GetBool("EXPORTS_PDF_SUMMARY"),
		BackupRetention: parseDuration(v.GetString("EXPORTS_BACKUP_RETENTION"), 90*24*time.Hour),
	}

	cfg.Audit = AuditConfig{
		CacheEnabled: v.GetBool("AUDIT_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("AUDIT_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "easy_access")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("INGEST_MAX_FILE_SIZE", 25*1024*1024)
	v.SetDefault("INGEST_ALLOWED_MIME_TYPES", "text/csv,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_BACKUP_SUBDIR", "backups")
	v.SetDefault("EXPORTS_SHEET_PASSWORD", "easyaccess")
	v.SetDefault("EXPORTS_PDF_SUMMARY", false)
	v.SetDefault("EXPORTS_BACKUP_RETENTION", "2160h")

	v.SetDefault("AUDIT_CACHE_ENABLED", false)
	v.SetDefault("AUDIT_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
