package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string
	// LogFormat is "json" or "pretty".
	LogFormat string
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL empty selects the in-memory stores.
	DatabaseURL      string
	DBSchema         string
	DBMaxConns       int32
	DBMinConns       int32
	DBConnectRetries int
	DBMigrate        bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// PublicBaseURL prefixes invite links handed to clients.
	PublicBaseURL string

	// RequireStrongSecrets refuses to start with short secrets or insecure cookies.
	RequireStrongSecrets bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("HUDDLE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("HUDDLE_LOG_LEVEL", "info"),
		LogFormat: EnvString("HUDDLE_LOG_FORMAT", "json"),
		LogColor:  EnvBool("HUDDLE_LOG_COLOR", true),

		ReadHeaderTimeout: EnvDuration("HUDDLE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HUDDLE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HUDDLE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("HUDDLE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("HUDDLE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:      EnvString("HUDDLE_DATABASE_URL", ""),
		DBSchema:         EnvString("HUDDLE_DB_SCHEMA", "huddle"),
		DBMaxConns:       EnvInt32("HUDDLE_DB_MAX_CONNS", 10),
		DBMinConns:       EnvInt32("HUDDLE_DB_MIN_CONNS", 0),
		DBConnectRetries: EnvInt("HUDDLE_DB_CONNECT_RETRIES", 5),
		DBMigrate:        EnvBool("HUDDLE_DB_MIGRATE", false),

		ReadinessRequireDB: EnvBool("HUDDLE_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("HUDDLE_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("HUDDLE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("HUDDLE_CORS_MAX_AGE_SECONDS", 600),

		PublicBaseURL: EnvString("HUDDLE_PUBLIC_BASE_URL", ""),

		RequireStrongSecrets: EnvBool("HUDDLE_REQUIRE_STRONG_SECRETS", false),
	}
}
