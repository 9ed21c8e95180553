package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	DB        DatabaseConfig
	Search    SearchConfig
	Cache     CacheConfig
	Geocoder  GeocoderConfig
	Benchmark BenchmarkConfig
	Logging   LoggingConfig
}

type GRPCConfig struct {
	Port           int
	HealthInterval time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS float64
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	USGSEnabled       bool
	USGSURL           string
	USGSPollInterval  time.Duration
	GDACSEnabled      bool
	GDACSURL          string
	GDACSPollInterval time.Duration
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver string
	Path   string

	PGHost         string
	PGPort         int
	PGUser         string
	PGPassword     string
	PGName         string
	PGSSLMode      string
	PGMaxOpenConns int
	PGMaxIdleConns int
}

type SearchConfig struct {
	MaxRadiusMeters      float64
	BoundingBoxPrefilter bool
	ProbeOnStartup       bool
}

type CacheConfig struct {
	RedisEnabled  bool
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	Size          int
}

type GeocoderConfig struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

type BenchmarkConfig struct {
	Parallelism int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvFloat("RATE_LIMIT_RPS", 5),
		},
		GRPC: GRPCConfig{
			Port:           getEnvInt("GRPC_PORT", 50051),
			HealthInterval: getEnvDuration("GRPC_HEALTH_INTERVAL", 30*time.Second),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			USGSEnabled:       getEnvBool("USGS_ENABLED", true),
			USGSURL:           getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
			USGSPollInterval:  getEnvDuration("USGS_POLL_INTERVAL", 5*time.Minute),
			GDACSEnabled:      getEnvBool("GDACS_ENABLED", true),
			GDACSURL:          getEnv("GDACS_URL", "https://www.gdacs.org/xml/rss.xml"),
			GDACSPollInterval: getEnvDuration("GDACS_POLL_INTERVAL", 10*time.Minute),
		},
		DB: DatabaseConfig{
			Driver:         getEnv("DB_DRIVER", DriverSQLite),
			Path:           getEnv("DB_PATH", "./data/disaster-proximity.db"),
			PGHost:         getEnv("PG_HOST", "localhost"),
			PGPort:         getEnvInt("PG_PORT", 5432),
			PGUser:         getEnv("PG_USER", "postgres"),
			PGPassword:     getEnv("PG_PASSWORD", ""),
			PGName:         getEnv("PG_DB", "disasters"),
			PGSSLMode:      getEnv("PG_SSLMODE", "disable"),
			PGMaxOpenConns: getEnvInt("PG_MAX_OPEN_CONNS", 10),
			PGMaxIdleConns: getEnvInt("PG_MAX_IDLE_CONNS", 5),
		},
		Search: SearchConfig{
			MaxRadiusMeters:      getEnvFloat("SEARCH_MAX_RADIUS_METERS", 100_000),
			BoundingBoxPrefilter: getEnvBool("SCAN_BBOX_PREFILTER", false),
			ProbeOnStartup:       getEnvBool("PROBE_ON_STARTUP", true),
		},
		Cache: CacheConfig{
			RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
			RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
			RedisPort:     getEnvInt("REDIS_PORT", 6379),
			RedisPassword: getEnv("REDIS_PASS", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvDuration("CACHE_TTL", 24*time.Hour),
			Size:          getEnvInt("CACHE_SIZE", 1024),
		},
		Geocoder: GeocoderConfig{
			URL:       getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: getEnv("GEOCODER_USER_AGENT", "go-disaster-proximity/1.0"),
			Timeout:   getEnvDuration("GEOCODER_TIMEOUT", 5*time.Second),
		},
		Benchmark: BenchmarkConfig{
			Parallelism: getEnvInt("BENCHMARK_PARALLELISM", 4),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PostgresDSN builds a lib/pq connection URL from the PG_* settings.
func (d DatabaseConfig) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.PGUser, d.PGPassword),
		Host:   fmt.Sprintf("%s:%d", d.PGHost, d.PGPort),
		Path:   "/" + d.PGName,
	}
	q := url.Values{}
	q.Set("sslmode", d.PGSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c CacheConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.GRPC.HealthInterval < time.Second {
		return fmt.Errorf("gRPC health interval must be at least 1 second")
	}
	if c.Sources.USGSPollInterval < time.Minute {
		return fmt.Errorf("USGS poll interval must be at least 1 minute")
	}
	if c.Sources.GDACSPollInterval < time.Minute {
		return fmt.Errorf("GDACS poll interval must be at least 1 minute")
	}

	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DB.PGHost == "" || c.DB.PGName == "" {
			return fmt.Errorf("PG_HOST and PG_DB are required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s", c.DB.Driver)
	}

	if c.Search.MaxRadiusMeters <= 0 {
		return fmt.Errorf("search max radius must be positive")
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Benchmark.Parallelism < 1 {
		return fmt.Errorf("benchmark parallelism must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
