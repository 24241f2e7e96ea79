// Package config loads the service configuration from an optional YAML file
// and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DevJWTSecret signs tokens when no secret is configured outside production.
const DevJWTSecret = "arecko-dev-secret"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Mail       MailConfig       `yaml:"mail"`
	Media      MediaConfig      `yaml:"media"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
	Events     EventsConfig     `yaml:"events"`
	Limits     LimitsConfig     `yaml:"limits"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	PublicURL        string   `yaml:"public_url"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
	TrustedProxies   []string `yaml:"trusted_proxies"` // IPs or CIDRs allowed to set X-Forwarded-For
	ShutdownSeconds  int      `yaml:"shutdown_seconds"`
}

// DatabaseConfig selects Postgres when URL is set, else the in-memory store.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

// RedisConfig backs the API quota when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// MailConfig uses SMTP when Host is set, else logs messages.
type MailConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

// MediaConfig stores uploads in MinIO when MinioEndpoint is set, else under
// Root on local disk.
type MediaConfig struct {
	Root           string `yaml:"root"`
	BaseURL        string `yaml:"base_url"`
	CloudName      string `yaml:"cloud_name"`
	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioRegion    string `yaml:"minio_region"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`
	CompressVideos bool   `yaml:"compress_videos"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	MaxUploadMB    int    `yaml:"max_upload_mb"`
}

// NewsletterConfig enables AI drafts when GeminiAPIKey is set.
type NewsletterConfig struct {
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// EventsConfig fans events out to Pub/Sub when both fields are set.
type EventsConfig struct {
	PubSubProject string `yaml:"pubsub_project"`
	PubSubTopic   string `yaml:"pubsub_topic"`
}

type LimitsConfig struct {
	APIDailyRequests  int `yaml:"api_daily_requests"`
	PublicCallsPerMin int `yaml:"public_calls_per_minute"`
}

// LoadConfig reads path when non-empty, then applies defaults and
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// TokenTTL is the lifetime of issued auth tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// Validate rejects configurations that are unsafe to serve.
func (c *Config) Validate() error {
	if c.IsProduction() && c.Auth.JWTSecret == DevJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Server.PublicURL != "" && !strings.HasPrefix(c.Server.PublicURL, "http") {
		return errors.New("server.public_url must be an http(s) URL")
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("server.trusted_proxies: invalid entry %q", p)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	setString(&c.Server.Port, "8080")
	setString(&c.Server.Env, "development")
	setString(&c.Server.PublicURL, "https://www.arecko.com")
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}
	setInt(&c.Server.ShutdownSeconds, 30)

	setString(&c.Auth.JWTSecret, DevJWTSecret)
	setInt(&c.Auth.TokenTTLHours, 24*14)

	setInt(&c.Mail.Port, 587)
	setString(&c.Mail.From, "Arecko <no-reply@arecko.com>")
	setInt(&c.Mail.Workers, 4)
	setInt(&c.Mail.QueueSize, 1000)

	setString(&c.Media.Root, "media")
	setString(&c.Media.MinioBucket, "arecko-media")
	setInt(&c.Media.MaxUploadMB, 100)

	setString(&c.Newsletter.Model, "gemini-2.0-flash")
	setInt(&c.Newsletter.TimeoutSeconds, 30)

	setInt(&c.Limits.APIDailyRequests, 500)
	setInt(&c.Limits.PublicCallsPerMin, 30)
}

func (c *Config) applyEnv() {
	envString(&c.Server.Port, "PORT")
	envString(&c.Server.Env, "APP_ENV")
	envString(&c.Server.PublicURL, "PUBLIC_URL")
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		c.Server.CORSAllowOrigins = splitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = splitList(v)
	}

	envString(&c.Database.URL, "DATABASE_URL")
	envBool(&c.Database.Migrate, "DB_MIGRATE")

	envString(&c.Redis.Addr, "REDIS_ADDR")
	envString(&c.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Redis.DB, "REDIS_DB")

	envString(&c.Auth.JWTSecret, "JWT_SECRET")
	envInt(&c.Auth.TokenTTLHours, "TOKEN_TTL_HOURS")

	envString(&c.Mail.Host, "SMTP_HOST")
	envInt(&c.Mail.Port, "SMTP_PORT")
	envString(&c.Mail.Username, "SMTP_USERNAME")
	envString(&c.Mail.Password, "SMTP_PASSWORD")
	envString(&c.Mail.From, "SMTP_FROM")

	envString(&c.Media.Root, "MEDIA_ROOT")
	envString(&c.Media.BaseURL, "MEDIA_BASE_URL")
	envString(&c.Media.CloudName, "MEDIA_CLOUD_NAME")
	envString(&c.Media.MinioEndpoint, "MINIO_ENDPOINT")
	envString(&c.Media.MinioAccessKey, "MINIO_ACCESS_KEY")
	envString(&c.Media.MinioSecretKey, "MINIO_SECRET_KEY")
	envString(&c.Media.MinioBucket, "MINIO_BUCKET")
	envBool(&c.Media.MinioUseSSL, "MINIO_USE_SSL")
	envBool(&c.Media.CompressVideos, "COMPRESS_VIDEOS")

	envString(&c.Newsletter.GeminiAPIKey, "GEMINI_API_KEY")
	envString(&c.Newsletter.Model, "GEMINI_MODEL")

	envString(&c.Events.PubSubProject, "PUBSUB_PROJECT")
	envString(&c.Events.PubSubTopic, "PUBSUB_TOPIC")

	envInt(&c.Limits.APIDailyRequests, "API_DAILY_LIMIT")
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = n
	}
}

func envBool(dst *bool, key string) {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = b
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
