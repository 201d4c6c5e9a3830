package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config/config.yaml"
	PathEnv     = "AUTHPORTAL_CONFIG"
)

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
}

type DatabaseConfig struct {
	Driver   string        `yaml:"driver"` // postgres | mongo
	DSN      string        `yaml:"url"`
	MongoURI string        `yaml:"mongo_uri"`
	MongoDB  string        `yaml:"mongo_db"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ReplicaConfig struct {
	Driver      string        `yaml:"driver"` // http | redis
	URL         string        `yaml:"url"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	Timeout     time.Duration `yaml:"timeout"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	DryRun       bool   `yaml:"dry_run"`
}

type SecurityConfig struct {
	BcryptCost    int           `yaml:"bcrypt_cost"`
	OTPTTL        time.Duration `yaml:"otp_ttl"`
	ResetTTL      time.Duration `yaml:"reset_ttl"`
	JWTSecret     string        `yaml:"jwt_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	NotifyOnLogin bool          `yaml:"notify_on_login"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Replica  ReplicaConfig  `yaml:"replica"`
	Email    EmailConfig    `yaml:"email"`
	Security SecurityConfig `yaml:"security"`
}

// LoadConfig reads the file named by AUTHPORTAL_CONFIG (or config/config.yaml)
// and panics on any error, like the rest of startup.
func LoadConfig() *Config {
	// .env опционален
	_ = godotenv.Load()

	cfg, err := Load(getEnv(PathEnv, DefaultPath))
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

// Load decodes path, applies env overrides and defaults, then validates.
// A missing file is not an error: env and defaults still apply.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)
	c.Database.MongoURI = getEnv("MONGO_URI", c.Database.MongoURI)
	c.Replica.URL = getEnv("REPLICA_URL", c.Replica.URL)
	c.Replica.RedisAddr = getEnv("REDIS_ADDR", c.Replica.RedisAddr)
	c.Email.SMTPHost = getEnv("SMTP_HOST", c.Email.SMTPHost)
	c.Email.SMTPPort = getEnvInt("SMTP_PORT", c.Email.SMTPPort)
	c.Email.SMTPUser = getEnv("SMTP_USER", c.Email.SMTPUser)
	c.Email.SMTPPassword = getEnv("SMTP_PASSWORD", c.Email.SMTPPassword)
	c.Email.FromEmail = getEnv("SMTP_FROM", c.Email.FromEmail)
	c.Security.JWTSecret = getEnv("JWT_SECRET", c.Security.JWTSecret)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MongoDB == "" {
		c.Database.MongoDB = "authportal"
	}
	if c.Database.Timeout == 0 {
		c.Database.Timeout = 10 * time.Second
	}
	if c.Replica.Driver == "" {
		c.Replica.Driver = "http"
	}
	if c.Replica.URL == "" {
		c.Replica.URL = "http://localhost:3001"
	}
	if c.Replica.RedisPrefix == "" {
		c.Replica.RedisPrefix = "replica:users"
	}
	if c.Replica.Timeout == 0 {
		c.Replica.Timeout = 5 * time.Second
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Security.BcryptCost == 0 {
		c.Security.BcryptCost = 10
	}
	if c.Security.OTPTTL == 0 {
		c.Security.OTPTTL = 5 * time.Minute
	}
	if c.Security.ResetTTL == 0 {
		c.Security.ResetTTL = 10 * time.Minute
	}
	if c.Security.AccessTTL == 0 {
		c.Security.AccessTTL = 24 * time.Hour
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "mongo":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	switch c.Replica.Driver {
	case "http", "redis":
	default:
		errs = append(errs, fmt.Errorf("replica.driver: unknown driver %q", c.Replica.Driver))
	}
	for name, d := range map[string]time.Duration{
		"database.timeout":    c.Database.Timeout,
		"replica.timeout":     c.Replica.Timeout,
		"security.otp_ttl":    c.Security.OTPTTL,
		"security.reset_ttl":  c.Security.ResetTTL,
		"security.access_ttl": c.Security.AccessTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", name, d))
		}
	}
	if strings.TrimSpace(c.Security.JWTSecret) == "" {
		errs = append(errs, errors.New("security.jwt_secret: required (or JWT_SECRET)"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
