package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "wadesk"
	DefaultPGSSLMode     = "disable"
	DefaultDataRoot      = "data"
	DefaultMediaTTL      = "24h"
	DefaultGraphBaseURL  = "https://graph.facebook.com"
	DefaultGraphTimeout  = 30
	DefaultAPIVersion    = "v23.0"
	DefaultJWTExpiresIn  = "24h"
	DefaultPublicBaseURL = "http://127.0.0.1:8080"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Storage  StorageConfig  `toml:"storage"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is the externally reachable base URL used when
	// building signed media links.
	PublicBaseURL string `toml:"public_base_url"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// URL renders the connection string with the given URL scheme
// ("postgres" for pgxpool, "pgx5" for golang-migrate).
func (c PostgresConfig) URL(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type StorageConfig struct {
	// DataRoot is the host directory media objects are written under.
	DataRoot string `toml:"data_root"`
	// MediaURLTTL bounds how long a signed media URL stays valid.
	MediaURLTTL string `toml:"media_url_ttl"`
}

type WhatsAppConfig struct {
	// GraphBaseURL points at the provider media API; overridable for tests.
	GraphBaseURL string `toml:"graph_base_url"`
	// TimeoutSeconds bounds each outbound provider call.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// DefaultAPIVersion is used when a tenant has none configured.
	DefaultAPIVersion string `toml:"default_api_version"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:          DefaultHTTPAddr,
			PublicBaseURL: DefaultPublicBaseURL,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Storage: StorageConfig{
			DataRoot:    DefaultDataRoot,
			MediaURLTTL: DefaultMediaTTL,
		},
		WhatsApp: WhatsAppConfig{
			GraphBaseURL:      DefaultGraphBaseURL,
			TimeoutSeconds:    DefaultGraphTimeout,
			DefaultAPIVersion: DefaultAPIVersion,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
