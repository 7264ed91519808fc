package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth/policy"
)

type Config struct {
	AppPort  string `yaml:"app_port"`
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	Piratenlogin Piratenlogin `yaml:"piratenlogin"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	DatabaseDSN string `yaml:"database_dsn"`

	LoginRateLimit int `yaml:"login_rate_limit"` // requests per minute per IP, 0 disables
	LoginRateBurst int `yaml:"login_rate_burst"`

	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Piratenlogin holds the identity provider and authorization settings.
type Piratenlogin struct {
	Enabled         bool   `yaml:"enabled"`
	RequiredRole    string `yaml:"required_role"`
	Group           string `yaml:"group"`
	Issuer          string `yaml:"issuer"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	RedirectURL     string `yaml:"redirect_url"`
	AuthorizeScope  string `yaml:"authorize_scope"`
	TokenScope      string `yaml:"token_scope"`
	AuthorizeParams string `yaml:"authorize_parameters"` // "|" separated names
	ErrorRedirects  string `yaml:"error_redirects"`      // "substring|url" per line
	VerboseLogging  bool   `yaml:"verbose_logging"`
	ConnectExisting bool   `yaml:"connect_existing"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		AppPort:  "8080",
		AppEnv:   "dev",
		LogLevel: "info",
		Piratenlogin: Piratenlogin{
			Enabled:         true,
			RequiredRole:    "Piratenpartei Deutschland",
			Group:           "Piraten",
			AuthorizeScope:  "openid profile email",
			ConnectExisting: true,
		},
		RedisAddr:      "localhost:6379",
		LoginRateLimit: 30,
		LoginRateBurst: 10,
		SessionTTL:     24 * time.Hour,
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE
// (if set), then environment variables. Later sources win.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("APP_PORT", &c.AppPort)
	str("APP_ENV", &c.AppEnv)
	str("LOG_LEVEL", &c.LogLevel)

	p := &c.Piratenlogin
	boolean("PIRATENLOGIN_ENABLED", &p.Enabled)
	str("PIRATENLOGIN_REQUIRED_ROLE", &p.RequiredRole)
	str("PIRATENLOGIN_GROUP", &p.Group)
	str("PIRATENLOGIN_ISSUER", &p.Issuer)
	str("PIRATENLOGIN_CLIENT_ID", &p.ClientID)
	str("PIRATENLOGIN_CLIENT_SECRET", &p.ClientSecret)
	str("PIRATENLOGIN_REDIRECT_URL", &p.RedirectURL)
	str("PIRATENLOGIN_AUTHORIZE_SCOPE", &p.AuthorizeScope)
	str("PIRATENLOGIN_TOKEN_SCOPE", &p.TokenScope)
	str("PIRATENLOGIN_AUTHORIZE_PARAMETERS", &p.AuthorizeParams)
	str("PIRATENLOGIN_ERROR_REDIRECTS", &p.ErrorRedirects)
	boolean("PIRATENLOGIN_VERBOSE_LOGGING", &p.VerboseLogging)
	boolean("PIRATENLOGIN_CONNECT_EXISTING", &p.ConnectExisting)

	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	integer("REDIS_DB", &c.RedisDB)

	str("DATABASE_DSN", &c.DatabaseDSN)

	integer("LOGIN_RATE_LIMIT", &c.LoginRateLimit)
	integer("LOGIN_RATE_BURST", &c.LoginRateBurst)
	duration("SESSION_TTL", &c.SessionTTL)

	return errors.Join(errs...)
}

// Validate checks the settings needed to serve logins.
func (c Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is required")
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Piratenlogin.Enabled {
		p := c.Piratenlogin
		if p.Issuer == "" || p.ClientID == "" || p.RedirectURL == "" {
			return errors.New("config: PIRATENLOGIN_ISSUER, PIRATENLOGIN_CLIENT_ID and PIRATENLOGIN_REDIRECT_URL are required")
		}
	}
	return nil
}

// Policy returns the authorization policy.
func (c Config) Policy() policy.Policy {
	return policy.Policy{
		RequiredRole: c.Piratenlogin.RequiredRole,
		GroupName:    c.Piratenlogin.Group,
	}
}

// Scopes splits the authorize scope on whitespace.
func (p Piratenlogin) Scopes() []string {
	return strings.Fields(p.AuthorizeScope)
}

// Passthrough splits the authorize parameter names on "|".
func (p Piratenlogin) Passthrough() []string {
	var out []string
	for _, name := range strings.Split(p.AuthorizeParams, "|") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
