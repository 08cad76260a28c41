// Package config loads the portal configuration from a YAML file, a .env file and
// PORTAL_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/vault_portal/internal/logging"
)

// DefaultPath is used when neither an explicit path nor PORTAL_CONFIG is given.
var DefaultPath = filepath.Join("config", "portal.yaml")

// Config is the complete portal configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  logging.Config `yaml:"logging"`
	Chain    ChainConfig    `yaml:"chain"`
	Roles    RolesConfig    `yaml:"roles"`
	Vaults   VaultsConfig   `yaml:"vaults"`
	Names    NamesConfig    `yaml:"names"`
	Mailing  MailingConfig  `yaml:"mailing"`
	Email    EmailConfig    `yaml:"email"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" env:"PORTAL_HOST"`
	Port           int           `yaml:"port" env:"PORTAL_PORT"`
	CORSOrigins    []string      `yaml:"cors_origins" env:"PORTAL_CORS_ORIGINS"`
	RateLimit      int           `yaml:"rate_limit" env:"PORTAL_RATE_LIMIT"`
	RateBurst      int           `yaml:"rate_burst" env:"PORTAL_RATE_BURST"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"PORTAL_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"PORTAL_WRITE_TIMEOUT"`
	ShutdownPeriod time.Duration `yaml:"shutdown_period" env:"PORTAL_SHUTDOWN_PERIOD"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url" env:"PORTAL_RPC_URL"`
	ChainID        int64         `yaml:"chain_id" env:"PORTAL_CHAIN_ID"`
	Timeout        time.Duration `yaml:"timeout" env:"PORTAL_RPC_TIMEOUT"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"PORTAL_POLL_INTERVAL"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout" env:"PORTAL_RECEIPT_TIMEOUT"`
	Contracts      Contracts     `yaml:"contracts"`
}

type Contracts struct {
	Factory     string   `yaml:"factory" env:"PORTAL_FACTORY_ADDRESS"`
	Registry    string   `yaml:"registry" env:"PORTAL_REGISTRY_ADDRESS"`
	ENSRegistry string   `yaml:"ens_registry" env:"PORTAL_ENS_REGISTRY_ADDRESS"`
	KnownVaults []string `yaml:"known_vaults" env:"PORTAL_KNOWN_VAULTS"`
}

type RolesConfig struct {
	Admin          []string `yaml:"admin" env:"PORTAL_ROLES_ADMIN"`
	Insurance      []string `yaml:"insurance" env:"PORTAL_ROLES_INSURANCE"`
	Syndicate      []string `yaml:"syndicate" env:"PORTAL_ROLES_SYNDICATE"`
	StrictDisjoint bool     `yaml:"strict_disjoint" env:"PORTAL_ROLES_STRICT_DISJOINT"`
}

type VaultsConfig struct {
	RefreshSchedule string        `yaml:"refresh_schedule" env:"PORTAL_VAULTS_REFRESH_SCHEDULE"`
	RefreshTimeout  time.Duration `yaml:"refresh_timeout" env:"PORTAL_VAULTS_REFRESH_TIMEOUT"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"PORTAL_VAULTS_CACHE_TTL"`
	Concurrency     int           `yaml:"concurrency" env:"PORTAL_VAULTS_CONCURRENCY"`
	// FallbackSharePrice is an 18-decimal fixed-point integer.
	FallbackSharePrice string `yaml:"fallback_share_price" env:"PORTAL_VAULTS_FALLBACK_SHARE_PRICE"`
}

// FallbackPrice parses FallbackSharePrice.
func (v VaultsConfig) FallbackPrice() (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(v.FallbackSharePrice), 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("vaults.fallback_share_price must be a positive integer, got %q", v.FallbackSharePrice)
	}
	return n, nil
}

type NamesConfig struct {
	Enabled   bool          `yaml:"enabled" env:"PORTAL_NAMES_ENABLED"`
	CacheSize int           `yaml:"cache_size" env:"PORTAL_NAMES_CACHE_SIZE"`
	CacheTTL  time.Duration `yaml:"cache_ttl" env:"PORTAL_NAMES_CACHE_TTL"`
	Timeout   time.Duration `yaml:"timeout" env:"PORTAL_NAMES_TIMEOUT"`
}

type MailingConfig struct {
	BaseURL string        `yaml:"base_url" env:"PORTAL_MAILING_URL"`
	ListID  string        `yaml:"list_id" env:"PORTAL_MAILING_LIST_ID"`
	APIKey  string        `yaml:"api_key" env:"PORTAL_MAILING_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"PORTAL_MAILING_TIMEOUT"`
}

// Enabled reports whether newsletter subscription is configured.
func (m MailingConfig) Enabled() bool {
	return m.BaseURL != "" && m.ListID != ""
}

const (
	EmailProviderHTTP = "http"
	EmailProviderSMTP = "smtp"
)

type EmailConfig struct {
	Provider     string        `yaml:"provider" env:"PORTAL_EMAIL_PROVIDER"`
	BaseURL      string        `yaml:"base_url" env:"PORTAL_EMAIL_URL"`
	Path         string        `yaml:"path" env:"PORTAL_EMAIL_PATH"`
	APIKey       string        `yaml:"api_key" env:"PORTAL_EMAIL_API_KEY"`
	Timeout      time.Duration `yaml:"timeout" env:"PORTAL_EMAIL_TIMEOUT"`
	SMTPHost     string        `yaml:"smtp_host" env:"PORTAL_SMTP_HOST"`
	SMTPPort     int           `yaml:"smtp_port" env:"PORTAL_SMTP_PORT"`
	SMTPUser     string        `yaml:"smtp_user" env:"PORTAL_SMTP_USER"`
	SMTPPassword string        `yaml:"smtp_password" env:"PORTAL_SMTP_PASSWORD"`
	From         string        `yaml:"from" env:"PORTAL_EMAIL_FROM"`
	Subject      string        `yaml:"subject" env:"PORTAL_EMAIL_SUBJECT"`
	TemplatePath string        `yaml:"template_path" env:"PORTAL_EMAIL_TEMPLATE"`
}

// Enabled reports whether welcome emails are configured.
func (e EmailConfig) Enabled() bool {
	if e.From == "" {
		return false
	}
	switch e.Provider {
	case EmailProviderSMTP:
		return e.SMTPHost != ""
	default:
		return e.BaseURL != ""
	}
}

type AuthConfig struct {
	Secret   string        `yaml:"secret" env:"PORTAL_AUTH_SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"PORTAL_AUTH_TOKEN_TTL"`
	NonceTTL time.Duration `yaml:"nonce_ttl" env:"PORTAL_AUTH_NONCE_TTL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"PORTAL_REDIS_ADDR"`
	Password string `yaml:"password" env:"PORTAL_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"PORTAL_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"PORTAL_REDIS_PREFIX"`
}

type DatabaseConfig struct {
	DSN           string `yaml:"dsn" env:"PORTAL_DATABASE_DSN"`
	RunMigrations bool   `yaml:"run_migrations" env:"PORTAL_DATABASE_MIGRATE"`
}

// Default returns the configuration used for anything a file or the environment leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RateLimit:      20,
			RateBurst:      40,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			ShutdownPeriod: 15 * time.Second,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Chain: ChainConfig{
			ChainID:        1,
			Timeout:        30 * time.Second,
			PollInterval:   2 * time.Second,
			ReceiptTimeout: 2 * time.Minute,
		},
		Vaults: VaultsConfig{
			RefreshSchedule:    "@every 30s",
			RefreshTimeout:     20 * time.Second,
			CacheTTL:           2 * time.Minute,
			Concurrency:        8,
			FallbackSharePrice: "1000000000000000000",
		},
		Names: NamesConfig{
			CacheSize: 1024,
			CacheTTL:  10 * time.Minute,
			Timeout:   750 * time.Millisecond,
		},
		Mailing: MailingConfig{Timeout: 10 * time.Second},
		Email: EmailConfig{
			Provider: EmailProviderHTTP,
			Path:     "/emails",
			Timeout:  10 * time.Second,
			SMTPPort: 587,
			Subject:  "Welcome to the vault portal",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			NonceTTL: 5 * time.Minute,
		},
		Redis: RedisConfig{Prefix: "vault_portal:"},
	}
}

// Load reads configuration. An empty path falls back to PORTAL_CONFIG and then
// DefaultPath; a missing default file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := true
	if path == "" {
		path = os.Getenv("PORTAL_CONFIG")
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays PORTAL_* environment variables onto cfg. List variables are
// separated by semicolons.
func ApplyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}
