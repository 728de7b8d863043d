package config // package config loads application configuration from environment variables

import (
    "os"      // os provides access to environment variables
    "strings"
    "time"

    "github.com/iliyamo/garage-parking/internal/logging"
)

// Store drivers accepted by STORE_DRIVER.
const (
    StoreMySQL  = "mysql"
    StoreMemory = "memory"
)

// Config holds the core runtime configuration.  Each field corresponds to
// an environment variable.  Optional integrations (cache, rate limit,
// garage bootstrap, queue, telemetry) have their own loaders.
type Config struct {
    Env             string        // application environment (e.g. "dev", "prod")
    Port            string        // HTTP port to listen on
    StoreDriver     string        // "mysql" or "memory"
    DBUser          string        // database username
    DBPass          string        // database password (optional)
    DBHost          string        // database host address
    DBPort          string        // database port number
    DBName          string        // database name
    JWTSecret       string        // secret used to verify operator tokens
    RevenueAuth     bool          // require an OPERATOR token on /revenue
    MaxAttempts     int           // reservation retries per sector
    ShutdownTimeout time.Duration // grace period for in-flight requests
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database settings
// are only required for the MySQL store; a JWT secret only when revenue
// auth is on.
func Load() Config {
    cfg := Config{
        Env:             must("APP_ENV"),
        Port:            must("APP_PORT"),
        StoreDriver:     strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
        DBPass:          os.Getenv("DB_PASS"), // empty allowed
        JWTSecret:       os.Getenv("JWT_SECRET"),
        RevenueAuth:     envBool("REVENUE_AUTH_ENABLED", false),
        MaxAttempts:     envInt("PARKING_MAX_ATTEMPTS", 64),
        ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
    }
    switch cfg.StoreDriver {
    case StoreMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    case StoreMemory:
    default:
        logging.Logger().Fatal().Str("driver", cfg.StoreDriver).Msg("unsupported STORE_DRIVER")
    }
    if cfg.RevenueAuth {
        cfg.JWTSecret = must("JWT_SECRET")
    }
    return cfg
}

// IsDevelopment reports whether logs should use the console writer.
func (c Config) IsDevelopment() bool {
    switch strings.ToLower(c.Env) {
    case "dev", "development", "local", "test":
        return true
    }
    return false
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        logging.Logger().Fatal().Str("key", key).Msg("missing required env var")
    }
    return v
}

// LoadTokenTTL returns the operator token lifetime from
// ACCESS_TOKEN_TTL_MIN (minutes, default 60).  It is read apart from Load
// so cmd/issue-token does not need the server's required variables.
func LoadTokenTTL() time.Duration {
    m := envInt("ACCESS_TOKEN_TTL_MIN", 60)
    if m <= 0 { m = 60 }
    return time.Duration(m) * time.Minute
}
