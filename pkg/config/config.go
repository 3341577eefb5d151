package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	defaultTenantID               = "default"
	defaultLang                   = "ru"
	defaultCurrency               = "KZT"
	defaultCollaboratorTimeoutSec = 15
	defaultSessionTTLMinutes      = 30
	defaultSearchLimit            = 5
	defaultOpenAIModel            = "gpt-4.1-mini"
	defaultTranscriptionModel     = "whisper-1"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Tenants   []TenantConfig  `json:"tenants"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	AI        AIConfig        `json:"ai"`
	Catalog   CatalogConfig   `json:"catalog"`
	Documents DocumentsConfig `json:"documents"`
	Dialog    DialogConfig    `json:"dialog"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// TenantConfig describes one onboarded business: branding, pricing rules and static texts.
type TenantConfig struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Lang             string  `json:"lang"`
	Currency         string  `json:"currency"`
	VATRate          float64 `json:"vat_rate"`
	PricesIncludeVAT bool    `json:"prices_include_vat"`
	Phone            string  `json:"phone"`
	Address          string  `json:"address"`
	Delivery         string  `json:"delivery"`
	Promo            string  `json:"promo"`
	AIInstructions   string  `json:"ai_instructions"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	Tenant    string   `json:"tenant"`
	Lang      string   `json:"lang"`
	AllowFrom []string `json:"allow_from" env:"TELEGRAM_ALLOW_FROM" envSeparator:","`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenAI OpenAIProviderConfig `json:"openai"`
}

// OpenAIProviderConfig configures the OpenAI client used for replies and transcription.
type OpenAIProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	APIKeyEnv             string `json:"api_key_env"`
	Model                 string `json:"model"`
	TranscriptionModel    string `json:"transcription_model"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// AIConfig toggles the generative fallback for unrecognized messages and voice transcription.
type AIConfig struct {
	Enabled       bool `json:"enabled"`
	Transcription bool `json:"transcription"`
}

// CatalogConfig points at the product catalog file.
type CatalogConfig struct {
	Path string `json:"path" env:"SALESBOT_CATALOG"`
}

// DocumentsConfig controls where generated quotes and invoices are written and served from.
type DocumentsConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
}

// DialogConfig tunes orchestrator timeouts and session lifetime.
type DialogConfig struct {
	DefaultTenant              string `json:"default_tenant" env:"SALESBOT_TENANT"`
	DefaultLang                string `json:"default_lang" env:"SALESBOT_DEFAULT_LANG"`
	CollaboratorTimeoutSeconds int    `json:"collaborator_timeout_seconds"`
	SessionTTLMinutes          int    `json:"session_ttl_minutes"`
	SearchLimit                int    `json:"search_limit"`
}

// GatewayConfig configures HTTP status server bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

// Tenant returns the tenant profile for id, falling back to a synthesized default profile.
func (c *Config) Tenant(id string) TenantConfig {
	id = strings.TrimSpace(id)
	if id == "" {
		id = c.Dialog.DefaultTenant
	}

	for _, tenant := range c.Tenants {
		if tenant.ID == id {
			return tenant
		}
	}

	return TenantConfig{ID: id, Lang: c.Dialog.DefaultLang, Currency: defaultCurrency}
}

// applyEnvOverrides injects env-driven settings on top of file config.
//
// Only fields with an env tag are touched, and only when the variable is set.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if err := env.Parse(&cfg.Channels.Telegram); err != nil {
		return fmt.Errorf("parse telegram env overrides: %w", err)
	}
	if err := env.Parse(&cfg.Catalog); err != nil {
		return fmt.Errorf("parse catalog env overrides: %w", err)
	}
	if err := env.Parse(&cfg.Dialog); err != nil {
		return fmt.Errorf("parse dialog env overrides: %w", err)
	}

	cfg.Channels.Telegram.Token = strings.TrimSpace(cfg.Channels.Telegram.Token)
	cfg.Channels.Telegram.AllowFrom = compact(cfg.Channels.Telegram.AllowFrom)

	return nil
}

// applyDefaults fills unset tunables so downstream packages never see zero timeouts.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Dialog.DefaultTenant) == "" {
		cfg.Dialog.DefaultTenant = defaultTenantID
		if len(cfg.Tenants) > 0 && cfg.Tenants[0].ID != "" {
			cfg.Dialog.DefaultTenant = cfg.Tenants[0].ID
		}
	}
	if strings.TrimSpace(cfg.Dialog.DefaultLang) == "" {
		cfg.Dialog.DefaultLang = defaultLang
	}
	if cfg.Dialog.CollaboratorTimeoutSeconds <= 0 {
		cfg.Dialog.CollaboratorTimeoutSeconds = defaultCollaboratorTimeoutSec
	}
	if cfg.Dialog.SessionTTLMinutes <= 0 {
		cfg.Dialog.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if cfg.Dialog.SearchLimit <= 0 {
		cfg.Dialog.SearchLimit = defaultSearchLimit
	}
	if strings.TrimSpace(cfg.Providers.OpenAI.Model) == "" {
		cfg.Providers.OpenAI.Model = defaultOpenAIModel
	}
	if strings.TrimSpace(cfg.Providers.OpenAI.TranscriptionModel) == "" {
		cfg.Providers.OpenAI.TranscriptionModel = defaultTranscriptionModel
	}
	if strings.TrimSpace(cfg.Channels.Telegram.Tenant) == "" {
		cfg.Channels.Telegram.Tenant = cfg.Dialog.DefaultTenant
	}

	for i := range cfg.Tenants {
		if strings.TrimSpace(cfg.Tenants[i].Currency) == "" {
			cfg.Tenants[i].Currency = defaultCurrency
		}
		if strings.TrimSpace(cfg.Tenants[i].Lang) == "" {
			cfg.Tenants[i].Lang = cfg.Dialog.DefaultLang
		}
	}
}

// compact trims values and drops empties.
func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is SALESBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("SALESBOT_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("SALESBOT_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
