package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tourdesk/internal/money"
)

const FileName = "tourdesk.yml"

// Config models tourdesk.yml.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		APIBasePath    string   `yaml:"api_base_path"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	API struct {
		BaseURL                string `yaml:"base_url"`
		TimeoutSeconds         int    `yaml:"timeout_seconds"`
		Actor                  string `yaml:"actor"`
		ServiceTokenSecret     string `yaml:"service_token_secret"`
		ServiceTokenTTLSeconds int    `yaml:"service_token_ttl_seconds"`
	} `yaml:"api"`
	Portal struct {
		Title         string `yaml:"title"`
		Currency      string `yaml:"currency"`
		CSRFKey       string `yaml:"csrf_key"`
		SecureCookies bool   `yaml:"secure_cookies"`
		PageSize      int    `yaml:"page_size"`
	} `yaml:"portal"`
	Invoice struct {
		DefaultTaxPercent  float64            `yaml:"default_tax_percent"`
		CategoryTaxPercent map[string]float64 `yaml:"category_tax_percent"`
	} `yaml:"invoice"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tourdesk config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if !strings.HasPrefix(c.Server.APIBasePath, "/") {
		return fmt.Errorf("config.server.api_base_path must start with /")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.api.base_url must be an http(s) url")
	}
	if c.API.TimeoutSeconds < 0 || c.API.ServiceTokenTTLSeconds < 0 {
		return fmt.Errorf("config.api timeouts must not be negative")
	}
	if len(c.Portal.Currency) != 3 {
		return fmt.Errorf("config.portal.currency must be a 3-letter code")
	}
	if c.Portal.CSRFKey != "" && len(c.Portal.CSRFKey) != 32 {
		return fmt.Errorf("config.portal.csrf_key must be 32 bytes")
	}
	if c.Portal.PageSize < 0 {
		return fmt.Errorf("config.portal.page_size must not be negative")
	}
	if !validPercent(c.Invoice.DefaultTaxPercent) {
		return fmt.Errorf("config.invoice.default_tax_percent must be between 0 and 100")
	}
	for category, pct := range c.Invoice.CategoryTaxPercent {
		if category == "" {
			return fmt.Errorf("config.invoice.category_tax_percent has empty category")
		}
		if !validPercent(pct) {
			return fmt.Errorf("tax for category %s must be between 0 and 100", category)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

func validPercent(p float64) bool { return p >= 0 && p <= 100 }

// TaxRate returns the invoice tax lookup described by the config.
func (c *Config) TaxRate() money.TaxRateFunc {
	byCategory := make(map[string]money.Percent, len(c.Invoice.CategoryTaxPercent))
	for k, v := range c.Invoice.CategoryTaxPercent {
		byCategory[k] = money.PercentFromFloat(v)
	}
	def := money.PercentFromFloat(c.Invoice.DefaultTaxPercent)
	if def == 0 && len(byCategory) == 0 {
		return nil
	}
	return money.CategoryTax(def, byCategory)
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) ServiceTokenTTL() time.Duration {
	return time.Duration(c.API.ServiceTokenTTLSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML pointing at apiBaseURL.
func GenerateDefault(apiBaseURL string) string {
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	return fmt.Sprintf(defaultTemplate, apiBaseURL)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const DefaultAPIBaseURL = "http://127.0.0.1:9000/v1"

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault("")), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults and
// validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  api_base_path: /api/v0
  allowed_origins: []

api:
  base_url: %s
  timeout_seconds: 10
  actor: tourdesk-portal
  service_token_secret: ""
  service_token_ttl_seconds: 300

portal:
  title: Tourdesk
  currency: USD
  csrf_key: ""
  secure_cookies: false
  page_size: 25

invoice:
  default_tax_percent: 0
  category_tax_percent: {}

log:
  level: info
  format: json

events:
  amqp_url: ""
  exchange: tourdesk.events

webhooks: []
`
