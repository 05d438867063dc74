package config // package config loads application configuration from environment variables

import (
    "errors"  // errors builds validation failures
    "fmt"     // fmt formats validation messages
    "os"      // os provides access to environment variables
    "strings" // strings trims trailing slashes from URLs
    "time"    // time parses the session lifetime

    "github.com/joho/godotenv" // godotenv reads a local .env file during development
)

// Development fallbacks.  They let the server boot on a laptop with no
// environment at all and are rejected by Validate when APP_ENV is "prod".
const (
    DevDatabaseURL = "root:root@tcp(localhost:3306)/tickets"
    DevSecretKey   = "dev-secret-key-change-in-production"
)

// envFile is read on startup.  Values already present in the process
// environment always win over the file.
const envFile = ".env"

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env         string        // application environment (e.g. "dev", "prod")
    Port        string        // HTTP port to listen on
    PublicURL   string        // externally visible base URL used in links and QR codes
    DatabaseURL string        // MySQL DSN
    SecretKey   string        // master secret for session and state signing
    SessionTTL  time.Duration // lifetime of the session cookie
    StaticDir   string        // directory served under /static; QR images go to <StaticDir>/qr
    LogLevel    string        // zap level name
    AMQPURL     string        // broker URL; empty disables ticket events

    Identity IdentityConfig
}

// IdentityConfig describes the OAuth application registered with the identity
// provider.  The same client is used for the browser login and for the
// client-credentials exchange.
type IdentityConfig struct {
    ClientID     string
    ClientSecret string
    Domain       string
    BaseURL      string // e.g. https://tenant.eu.auth0.com, no trailing slash
    Audience     string // API audience requested by the machine credential
}

// Load reads configuration values from the environment (after merging a local
// .env file) and validates them.
func Load() (Config, error) {
    // A missing .env file is the normal case outside development.
    _ = godotenv.Load(envFile)

    cfg := Config{
        Env:         getenv("APP_ENV", "dev"),
        Port:        getenv("APP_PORT", "8080"),
        PublicURL:   strings.TrimRight(getenv("PUBLIC_URL", ""), "/"),
        DatabaseURL: getenv("DATABASE_URL", DevDatabaseURL),
        SecretKey:   getenv("SECRET_KEY", DevSecretKey),
        SessionTTL:  envDur("SESSION_TTL", 24*time.Hour),
        StaticDir:   getenv("STATIC_DIR", "static"),
        LogLevel:    getenv("LOG_LEVEL", "info"),
        AMQPURL:     os.Getenv("AMQP_URL"),
        Identity: IdentityConfig{
            ClientID:     os.Getenv("AUTH0_CLIENT_ID"),
            ClientSecret: os.Getenv("AUTH0_CLIENT_SECRET"),
            Domain:       os.Getenv("AUTH0_DOMAIN"),
            BaseURL:      strings.TrimRight(os.Getenv("AUTH0_BASE_URL"), "/"),
            Audience:     os.Getenv("API_AUDIENCE"),
        },
    }
    if cfg.PublicURL == "" {
        cfg.PublicURL = "http://localhost:" + cfg.Port
    }
    if cfg.Identity.BaseURL == "" && cfg.Identity.Domain != "" {
        cfg.Identity.BaseURL = "https://" + cfg.Identity.Domain
    }
    if err := cfg.Validate(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// IsProd reports whether the service runs in the production environment.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }

// Validate checks that the identity provider is configured and, in
// production, that no development fallback leaked into the configuration.
func (c Config) Validate() error {
    var errs []error
    if c.Identity.ClientID == "" {
        errs = append(errs, errors.New("missing required env var: AUTH0_CLIENT_ID"))
    }
    if c.Identity.ClientSecret == "" {
        errs = append(errs, errors.New("missing required env var: AUTH0_CLIENT_SECRET"))
    }
    if c.Identity.BaseURL == "" {
        errs = append(errs, errors.New("missing required env var: AUTH0_BASE_URL or AUTH0_DOMAIN"))
    }
    if c.Identity.Audience == "" {
        errs = append(errs, errors.New("missing required env var: API_AUDIENCE"))
    }
    if c.SessionTTL <= 0 {
        errs = append(errs, fmt.Errorf("invalid SESSION_TTL: %s", c.SessionTTL))
    }
    if c.IsProd() {
        if c.SecretKey == DevSecretKey {
            errs = append(errs, errors.New("SECRET_KEY must be set in prod"))
        }
        if c.DatabaseURL == DevDatabaseURL {
            errs = append(errs, errors.New("DATABASE_URL must be set in prod"))
        }
    }
    return errors.Join(errs...)
}
