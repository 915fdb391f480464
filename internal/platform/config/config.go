package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultStoreURI        = "mongodb://localhost:27017"
	DefaultMongoDatabase   = "overlay_db"
	DefaultFFmpegPath      = "ffmpeg"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = "5000"
	DefaultHLSRoot         = "hls"
	DefaultReapInterval    = 30 * time.Second
	DefaultStreamRateLimit = 60
)

// Config is the process configuration assembled from the environment.
type Config struct {
	StoreURI      string
	MongoDatabase string
	FFmpegPath    string
	Host          string
	Port          string
	HLSRoot       string

	// ReapInterval is how often exited transcoders are pruned; <= 0 disables the loop.
	ReapInterval time.Duration
	// StreamRateLimit is the per-IP request budget per minute on /stream routes.
	StreamRateLimit int

	LogLevel  string
	LogFormat string
}

// Addr returns the listen address built from Host and Port.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from environment variables, falling back to the
// package defaults. OVERLAY_STORE_URI wins over the legacy MONGO_URI.
func FromEnv() Config {
	return Config{
		StoreURI:        GetEnv("OVERLAY_STORE_URI", GetEnv("MONGO_URI", DefaultStoreURI)),
		MongoDatabase:   GetEnv("MONGO_DATABASE", DefaultMongoDatabase),
		FFmpegPath:      GetEnv("FFMPEG_PATH", DefaultFFmpegPath),
		Host:            GetEnv("HOST", DefaultHost),
		Port:            GetEnv("PORT", DefaultPort),
		HLSRoot:         GetEnv("HLS_ROOT", DefaultHLSRoot),
		ReapInterval:    GetEnvDuration("REAP_INTERVAL", DefaultReapInterval),
		StreamRateLimit: GetEnvInt("STREAM_RATE_LIMIT", DefaultStreamRateLimit),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		LogFormat:       GetEnv("LOG_FORMAT", "json"),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses the variable with time.ParseDuration ("30s", "1m").
// Unset, empty or malformed values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
