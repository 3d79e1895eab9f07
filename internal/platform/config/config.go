// Package config loads process configuration from defaults, an optional
// config file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/focus-todo/project/internal/platform/dbpool"
	"github.com/spf13/viper"
)

type OIDC struct {
	Issuer       string   `mapstructure:"issuer"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	HTTPAddr        string         `mapstructure:"http_addr"`
	Host            string         `mapstructure:"host"`
	Port            string         `mapstructure:"port"`
	DatabaseURL     string         `mapstructure:"database_url"`
	DatabasePath    string         `mapstructure:"database_path"`
	SecretKey       string         `mapstructure:"secret_key"`
	NATSURL         string         `mapstructure:"nats_url"`
	NATSWait        time.Duration  `mapstructure:"nats_wait"`
	SessionTTL      time.Duration  `mapstructure:"session_ttl"`
	CookieSecure    bool           `mapstructure:"cookie_secure"`
	SweepOnStart    bool           `mapstructure:"sweep_on_start"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
	OIDC            OIDC           `mapstructure:"oidc"`
	Log             Log            `mapstructure:"log"`
	DB              dbpool.Options `mapstructure:"db"`
}

func setDefaults(v *viper.Viper) {
	pool := dbpool.DefaultOptions()

	v.SetDefault("http_addr", "")
	v.SetDefault("host", "")
	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("database_path", "database.db")
	v.SetDefault("secret_key", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_wait", 30*time.Second)
	v.SetDefault("session_ttl", 7*24*time.Hour)
	v.SetDefault("cookie_secure", false)
	v.SetDefault("sweep_on_start", false)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("oidc.issuer", "https://accounts.google.com")
	v.SetDefault("oidc.client_id", "")
	v.SetDefault("oidc.client_secret", "")
	v.SetDefault("oidc.redirect_url", "http://localhost:8080/authorize")
	v.SetDefault("oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("db.min_conns", pool.MinConns)
	v.SetDefault("db.max_conns", pool.MaxConns)
	v.SetDefault("db.max_conn_lifetime", pool.MaxConnLifetime)
	v.SetDefault("db.max_conn_idle_time", pool.MaxConnIdleTime)
	v.SetDefault("db.health_check_period", pool.HealthCheckPeriod)
}

// Load reads path (or $CONFIG_FILE when path is empty) if it exists and
// overlays environment variables such as DATABASE_URL or OIDC_CLIENT_ID.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("session_ttl must be positive, got %s", cfg.SessionTTL)
	}
	return cfg, nil
}

// Addr is HTTP_ADDR when set, otherwise HOST:PORT.
func (c Config) Addr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return net.JoinHostPort(c.Host, c.Port)
}

// Database returns DATABASE_URL, falling back to the SQLite file at
// DATABASE_PATH.
func (c Config) Database() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "sqlite:" + c.DatabasePath
}

func (c Config) OIDCConfigured() bool {
	return c.OIDC.Issuer != "" && c.OIDC.ClientID != "" && c.OIDC.ClientSecret != ""
}
