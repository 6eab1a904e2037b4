// Package config loads application configuration from TOML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML and the environment.
const (
	DefaultConfigPath       = "config.toml"
	DefaultSQLitePath       = "/data/bot.db"
	DefaultStorageRoot      = "/app/downloads"
	DefaultLinkTTL          = 30 * time.Minute
	DefaultJanitorSchedule  = "@every 10m"
	DefaultHTTPAddr         = ":5000"
	DefaultPublicBaseURL    = "http://localhost:5000"
	DefaultCookiesPath      = "/app/cookies.txt"
	DefaultShortenerURL     = "https://www.adtival.network/api"
	DefaultUploadLimitMB    = 50
	DefaultTransferAttempts = 3
	DefaultTransferBackoff  = 5 * time.Second
	DefaultReconnectDelay   = 15 * time.Second
	DefaultPollTimeout      = 60
	DefaultServiceName      = "tubegate"
)

// Ledger backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the root application configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Admin     AdminConfig     `toml:"admin"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Storage   StorageConfig   `toml:"storage"`
	HTTP      HTTPConfig      `toml:"http"`
	Extractor ExtractorConfig `toml:"extractor"`
	Shortener ShortenerConfig `toml:"shortener"`
	Delivery  DeliveryConfig  `toml:"delivery"`
	Tracing   TracingConfig   `toml:"tracing"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TelegramConfig holds bot credentials and polling behaviour.
type TelegramConfig struct {
	Token          string        `toml:"token"`
	PollTimeout    int           `toml:"poll_timeout"`
	ReconnectDelay time.Duration `toml:"reconnect_delay"`
	UploadLimitMB  int64         `toml:"upload_limit_mb"`
}

// UploadLimit returns the direct upload ceiling in bytes.
func (c TelegramConfig) UploadLimit() int64 {
	return c.UploadLimitMB * 1024 * 1024
}

// AdminConfig lists users exempt from gating and allowed to run admin commands.
type AdminConfig struct {
	UserIDs []int64 `toml:"user_ids"`
}

// LedgerConfig selects and configures the download counter store.
type LedgerConfig struct {
	Backend       string `toml:"backend"`
	SQLitePath    string `toml:"sqlite_path"`
	PostgresDSN   string `toml:"postgres_dsn"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// StorageConfig holds the download directory and retention settings.
type StorageConfig struct {
	Root            string        `toml:"root"`
	LinkTTL         time.Duration `toml:"link_ttl"`
	JanitorSchedule string        `toml:"janitor_schedule"`
}

// HTTPConfig holds the file server listen address and public URL.
type HTTPConfig struct {
	Addr          string `toml:"addr"`
	PublicBaseURL string `toml:"public_base_url"`
	AdminToken    string `toml:"admin_token"`
}

// ExtractorConfig configures the yt-dlp engine.
type ExtractorConfig struct {
	CookiesPath string `toml:"cookies_path"`
	Install     bool   `toml:"install"`
}

// ShortenerConfig configures the verification link provider.
type ShortenerConfig struct {
	APIURL string `toml:"api_url"`
	Token  string `toml:"token"`
}

// DeliveryConfig configures direct transfer retries.
type DeliveryConfig struct {
	TransferAttempts int           `toml:"transfer_attempts"`
	TransferBackoff  time.Duration `toml:"transfer_backoff"`
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
}

// Defaults returns a configuration populated with built-in defaults.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telegram: TelegramConfig{
			PollTimeout:    DefaultPollTimeout,
			ReconnectDelay: DefaultReconnectDelay,
			UploadLimitMB:  DefaultUploadLimitMB,
		},
		Ledger: LedgerConfig{
			Backend:    BackendSQLite,
			SQLitePath: DefaultSQLitePath,
			RedisAddr:  "localhost:6379",
		},
		Storage: StorageConfig{
			Root:            DefaultStorageRoot,
			LinkTTL:         DefaultLinkTTL,
			JanitorSchedule: DefaultJanitorSchedule,
		},
		HTTP: HTTPConfig{
			Addr:          DefaultHTTPAddr,
			PublicBaseURL: DefaultPublicBaseURL,
		},
		Extractor: ExtractorConfig{
			CookiesPath: DefaultCookiesPath,
		},
		Shortener: ShortenerConfig{
			APIURL: DefaultShortenerURL,
		},
		Delivery: DeliveryConfig{
			TransferAttempts: DefaultTransferAttempts,
			TransferBackoff:  DefaultTransferBackoff,
		},
		Tracing: TracingConfig{
			ServiceName: DefaultServiceName,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendSQLite:
		if c.Ledger.SQLitePath == "" {
			return errors.New("ledger.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Ledger.PostgresDSN == "" {
			return errors.New("ledger.postgres_dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Ledger.RedisAddr == "" {
			return errors.New("ledger.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Storage.Root == "" {
		return errors.New("storage.root is required")
	}
	if c.Storage.LinkTTL <= 0 {
		return errors.New("storage.link_ttl must be positive")
	}
	if c.Delivery.TransferAttempts < 1 {
		return errors.New("delivery.transfer_attempts must be at least 1")
	}
	if c.Telegram.UploadLimitMB <= 0 {
		return errors.New("telegram.upload_limit_mb must be positive")
	}
	return nil
}

// IsAdmin reports whether userID is listed as an administrator.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func applyEnv(cfg *Config) error {
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Telegram.Token = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.PollTimeout = getEnvAsInt("TELEGRAM_POLL_TIMEOUT", cfg.Telegram.PollTimeout)
	cfg.Telegram.ReconnectDelay = getEnvAsDuration("TELEGRAM_RECONNECT_DELAY", cfg.Telegram.ReconnectDelay)
	cfg.Telegram.UploadLimitMB = int64(getEnvAsInt("TELEGRAM_UPLOAD_LIMIT_MB", int(cfg.Telegram.UploadLimitMB)))

	if raw := os.Getenv("ADMIN_USER_IDS"); raw != "" {
		ids, err := parseIDs(raw)
		if err != nil {
			return fmt.Errorf("ADMIN_USER_IDS: %w", err)
		}
		cfg.Admin.UserIDs = ids
	}

	cfg.Ledger.Backend = strings.ToLower(getEnv("LEDGER_BACKEND", cfg.Ledger.Backend))
	cfg.Ledger.SQLitePath = getEnv("DB_PATH", cfg.Ledger.SQLitePath)
	cfg.Ledger.PostgresDSN = getEnv("DATABASE_URL", cfg.Ledger.PostgresDSN)
	cfg.Ledger.RedisAddr = getEnv("REDIS_ADDR", cfg.Ledger.RedisAddr)
	cfg.Ledger.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Ledger.RedisPassword)
	cfg.Ledger.RedisDB = getEnvAsInt("REDIS_DB", cfg.Ledger.RedisDB)

	cfg.Storage.Root = getEnv("DOWNLOAD_PATH", cfg.Storage.Root)
	cfg.Storage.LinkTTL = getEnvAsDuration("LINK_TTL", cfg.Storage.LinkTTL)
	cfg.Storage.JanitorSchedule = getEnv("JANITOR_SCHEDULE", cfg.Storage.JanitorSchedule)

	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	cfg.HTTP.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", cfg.HTTP.PublicBaseURL), "/")
	cfg.HTTP.AdminToken = getEnv("ADMIN_TOKEN", cfg.HTTP.AdminToken)

	cfg.Extractor.CookiesPath = getEnv("COOKIES_PATH", cfg.Extractor.CookiesPath)
	cfg.Extractor.Install = getEnvAsBool("YTDLP_INSTALL", cfg.Extractor.Install)

	cfg.Shortener.APIURL = getEnv("SHORTENER_API_URL", cfg.Shortener.APIURL)
	cfg.Shortener.Token = getEnv("ADTIVAL_API_TOKEN", cfg.Shortener.Token)

	cfg.Delivery.TransferAttempts = getEnvAsInt("TRANSFER_ATTEMPTS", cfg.Delivery.TransferAttempts)
	cfg.Delivery.TransferBackoff = getEnvAsDuration("TRANSFER_BACKOFF", cfg.Delivery.TransferBackoff)

	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Tracing.ServiceName)
	return nil
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
