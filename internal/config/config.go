package config

import (
	"os"
	"strconv"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
// Offloading of finished uploads is enabled only when Endpoint is set.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PresignExpiry int
}

// RedisConfig holds settings for the change-stream publisher.
// An empty Addr disables publishing to Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
}

// CollectionConfig holds the scalar knobs of the files collection.
// Function-typed hooks are attached in code, see collection.Options.
type CollectionConfig struct {
	StoragePath           string
	CollectionName        string
	CacheControl          string
	Throttle              int64
	DownloadRoute         string
	Permissions           int
	ParentDirPermissions  int
	IntegrityCheck        bool
	Strict                bool
	Protected             bool
	Public                bool
	AllowClientCode       bool
	Debug                 bool
	OnBeforeUnloadMessage string
}

// UploadConfig bounds upload processing.
type UploadConfig struct {
	MaxConcurrent int
	MaxChunkBytes int
	// SessionIdleSec aborts uploads that received no chunk for this long. Zero disables the sweep.
	SessionIdleSec int
}

// RateLimitConfig holds the per-IP request limiter settings. Zero RPS disables it.
type RateLimitConfig struct {
	RPS   int
	Burst int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost    string
	Port       string
	Database   DatabaseConfig
	MinIO      MinIOConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Collection CollectionConfig
	Upload     UploadConfig
	RateLimit  RateLimitConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", ""),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Bucket:        getEnv("MINIO_BUCKET", ""),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			PresignExpiry: getEnvInt("MINIO_PRESIGN_EXPIRY_SEC", 900),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "files:events"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Collection: CollectionConfig{
			StoragePath:           getEnv("FILES_STORAGE_PATH", ""),
			CollectionName:        getEnv("FILES_COLLECTION_NAME", ""),
			CacheControl:          getEnv("FILES_CACHE_CONTROL", ""),
			Throttle:              int64(getEnvInt("FILES_THROTTLE_BPS", 0)),
			DownloadRoute:         getEnv("FILES_DOWNLOAD_ROUTE", ""),
			Permissions:           getEnvOctal("FILES_PERMISSIONS", 0),
			ParentDirPermissions:  getEnvOctal("FILES_PARENT_DIR_PERMISSIONS", 0),
			IntegrityCheck:        getEnvBool("FILES_INTEGRITY_CHECK", true),
			Strict:                getEnvBool("FILES_STRICT", false),
			Protected:             getEnvBool("FILES_PROTECTED", false),
			Public:                getEnvBool("FILES_PUBLIC", false),
			AllowClientCode:       getEnvBool("FILES_ALLOW_CLIENT_CODE", true),
			Debug:                 getEnvBool("FILES_DEBUG", false),
			OnBeforeUnloadMessage: getEnv("FILES_BEFOREUNLOAD_MESSAGE", ""),
		},
		Upload: UploadConfig{
			MaxConcurrent:  getEnvInt("UPLOAD_MAX_CONCURRENT", 32),
			MaxChunkBytes:  getEnvInt("UPLOAD_MAX_CHUNK_BYTES", 8<<20),
			SessionIdleSec: getEnvInt("UPLOAD_SESSION_IDLE_SEC", 600),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvInt("RATE_LIMIT_RPS", 0),
			Burst: getEnvInt("RATE_LIMIT_BURST", 20),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvOctal parses permission bits written as "0644" or "644".
// Unparsable values yield -1 so that collection validation rejects them.
func getEnvOctal(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 8, 32)
		if err != nil {
			return -1
		}
		return int(i)
	}
	return def
}
