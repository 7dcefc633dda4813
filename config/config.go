// Package config provides configuration management for the medical analysis tool server.
//
// Configuration is assembled in layers, lowest precedence first:
//
//  1. built-in defaults (buildDefaultConfig)
//  2. an optional YAML file (config.yaml, config/config.yaml or $CONFIG_FILE)
//     with ${VAR} and ${VAR:-default} placeholders expanded from the environment
//  3. an optional .env file (never overrides variables already set)
//  4. well-known environment variables (applyEnvOverrides)
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultBodySizeLimit is the default maximum request body size (10MB).
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LogConfig        `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Cache      CacheConfig      `yaml:"cache"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Billing    BillingConfig    `yaml:"billing"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string `yaml:"port"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, text, json
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// CacheConfig selects the analysis result cache backend.
type CacheConfig struct {
	// Type is one of "local", "redis" or "none".
	Type  string        `yaml:"type"`
	TTL   time.Duration `yaml:"ttl"`
	Redis RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the cache.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// ProvidersConfig holds the LLM providers used for narrative summaries.
type ProvidersConfig struct {
	// Order lists provider types in fallback order. Providers without an API key are skipped.
	Order     []string       `yaml:"order"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

// ProviderConfig holds the settings for a single LLM provider.
type ProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Get returns the provider configuration for the given provider type.
func (p ProvidersConfig) Get(providerType string) (ProviderConfig, bool) {
	switch providerType {
	case "anthropic":
		return p.Anthropic, true
	case "openai":
		return p.OpenAI, true
	default:
		return ProviderConfig{}, false
	}
}

// StripeConfig holds payment processor settings.
type StripeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// BillingConfig holds the pricing tables. Money values are decimal strings.
type BillingConfig struct {
	Currency        string                 `yaml:"currency"`
	Tiers           []TierConfig           `yaml:"tiers"`
	VolumeDiscounts []VolumeDiscountConfig `yaml:"volume_discounts"`
	CustomerTiers   []CustomerTierConfig   `yaml:"customer_tiers"`
}

// TierConfig describes one analysis tier.
type TierConfig struct {
	Name        string   `yaml:"name"`
	Price       string   `yaml:"price"`
	Description string   `yaml:"description"`
	Features    []string `yaml:"features"`
}

// VolumeDiscountConfig is one bracket of the volume discount schedule.
type VolumeDiscountConfig struct {
	MinDocuments int    `yaml:"min_documents"`
	Rate         string `yaml:"rate"`
}

// CustomerTierConfig is a per-customer discount level.
type CustomerTierConfig struct {
	Name string `yaml:"name"`
	Rate string `yaml:"rate"`
}

// ExtractionConfig holds the keyword vocabularies used by the extractor.
type ExtractionConfig struct {
	Medications []string `yaml:"medications"`
	Conditions  []string `yaml:"conditions"`
}

// GuardrailsConfig holds the checks applied to text sent to LLM providers.
type GuardrailsConfig struct {
	Anonymization AnonymizationConfig `yaml:"anonymization"`
}

// AnonymizationConfig configures PII replacement in prompts.
type AnonymizationConfig struct {
	Enabled bool `yaml:"enabled"`
	// Strategy is one of "token", "hash" or "mask".
	Strategy string `yaml:"strategy"`
	// RestoreResponses puts the original values back into provider responses.
	RestoreResponses bool           `yaml:"restore_responses"`
	Detectors        DetectorConfig `yaml:"detectors"`
}

// DetectorConfig toggles individual PII detectors.
type DetectorConfig struct {
	Email         bool `yaml:"email"`
	Phone         bool `yaml:"phone"`
	SSN           bool `yaml:"ssn"`
	CreditCard    bool `yaml:"credit_card"`
	IPAddress     bool `yaml:"ip_address"`
	MedicalRecord bool `yaml:"medical_record"`
}

// buildDefaultConfig returns the configuration used when nothing else is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: DefaultBodySizeLimit,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Cache: CacheConfig{
			Type: "local",
			TTL:  15 * time.Minute,
			Redis: RedisConfig{
				Prefix: "medagent:analysis:",
			},
		},
		Providers: ProvidersConfig{
			Order: []string{"anthropic", "openai"},
			Anthropic: ProviderConfig{
				Model:     "claude-3-5-haiku-latest",
				MaxTokens: 1024,
			},
			OpenAI: ProviderConfig{
				Model:     "gpt-4o-mini",
				MaxTokens: 1024,
			},
		},
		Billing: BillingConfig{
			Currency: "usd",
			Tiers: []TierConfig{
				{
					Name:        "basic",
					Price:       "0.10",
					Description: "Basic SOAP analysis - vital signs, medications, basic conditions",
					Features: []string{
						"Vital signs extraction",
						"Medication identification",
						"Basic condition recognition",
						"SOAP note parsing",
					},
				},
				{
					Name:        "comprehensive",
					Price:       "0.50",
					Description: "Full medical record analysis - detailed insights, recommendations",
					Features: []string{
						"All basic features",
						"Detailed clinical insights",
						"Risk factor analysis",
						"Treatment recommendations",
						"Follow-up scheduling suggestions",
					},
				},
				{
					Name:        "batch",
					Price:       "0.05",
					Description: "Bulk processing per document - optimized for multiple files",
					Features: []string{
						"Bulk document processing",
						"Volume discounts",
						"Batch reporting",
						"API integration support",
					},
				},
			},
			VolumeDiscounts: []VolumeDiscountConfig{
				{MinDocuments: 50, Rate: "0.25"},
				{MinDocuments: 20, Rate: "0.15"},
				{MinDocuments: 10, Rate: "0.05"},
			},
			CustomerTiers: []CustomerTierConfig{
				{Name: "standard", Rate: "0"},
				{Name: "premium", Rate: "0.05"},
				{Name: "enterprise", Rate: "0.15"},
			},
		},
		Guardrails: GuardrailsConfig{
			Anonymization: AnonymizationConfig{
				Enabled:          true,
				Strategy:         "token",
				RestoreResponses: true,
				Detectors: DetectorConfig{
					Email:         true,
					Phone:         true,
					SSN:           true,
					CreditCard:    true,
					IPAddress:     true,
					MedicalRecord: true,
				},
			},
		},
		Extraction: ExtractionConfig{
			Medications: []string{
				"lisinopril", "metformin", "aspirin", "ibuprofen", "synthroid",
				"levothyroxine", "atorvastatin", "amlodipine", "metoprolol", "insulin",
				"albuterol", "warfarin", "omeprazole", "losartan", "prednisone",
			},
			Conditions: []string{
				"diabetes", "hypertension", "asthma", "copd", "hypothyroidism",
				"chest pain", "shortness of breath", "hyperlipidemia", "atrial fibrillation",
				"heart failure", "pneumonia", "depression", "anxiety", "obesity",
			},
		},
	}
}

// Default returns the built-in configuration without consulting files or the environment.
func Default() *Config {
	return buildDefaultConfig()
}

// Load reads configuration from the default locations and the environment.
func Load() (*Config, error) {
	return LoadFile(configFilePath())
}

// LoadFile loads configuration using the given YAML file. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	// .env is optional; godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configFilePath returns $CONFIG_FILE, or the first existing default location.
func configFilePath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	for _, p := range []string{"config.yaml", "config/config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// Unresolved placeholders without a default are left untouched.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholderPattern.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		if sub[2] != "" {
			return sub[3]
		}
		return m
	})
}

// applyEnvOverrides applies well-known environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Metrics.Endpoint, "METRICS_ENDPOINT")
	setString(&cfg.Cache.Type, "CACHE_TYPE")
	setString(&cfg.Cache.Redis.URL, "REDIS_URL")
	setString(&cfg.Cache.Redis.Prefix, "REDIS_KEY_PREFIX")
	setString(&cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Providers.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	setString(&cfg.Providers.Anthropic.Model, "ANTHROPIC_MODEL")
	setString(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Providers.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.Stripe.APIKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Stripe.APIKey, "STRIPE_API_KEY")
	setString(&cfg.Stripe.BaseURL, "STRIPE_BASE_URL")

	if v := os.Getenv("PROVIDER_ORDER"); v != "" {
		cfg.Providers.Order = splitList(v)
	}

	setString(&cfg.Guardrails.Anonymization.Strategy, "ANONYMIZATION_STRATEGY")

	if err := setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&cfg.Guardrails.Anonymization.Enabled, "ANONYMIZE_PII"); err != nil {
		return err
	}
	if err := setInt64(&cfg.Server.BodySizeLimit, "BODY_SIZE_LIMIT"); err != nil {
		return err
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL %q: %w", v, err)
		}
		cfg.Cache.TTL = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

// parseDuration accepts plain integers (seconds) or Go duration strings.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for values the services cannot work with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Type {
	case "local", "none", "":
	case "redis":
		if c.Cache.Redis.URL == "" {
			errs = append(errs, errors.New("cache.redis.url is required when cache.type is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.type %q", c.Cache.Type))
	}

	switch c.Guardrails.Anonymization.Strategy {
	case "", "token", "hash", "mask":
	default:
		errs = append(errs, fmt.Errorf("unknown guardrails.anonymization.strategy %q", c.Guardrails.Anonymization.Strategy))
	}

	if len(c.Billing.Tiers) == 0 {
		errs = append(errs, errors.New("billing.tiers must not be empty"))
	}
	seen := make(map[string]struct{}, len(c.Billing.Tiers))
	for _, t := range c.Billing.Tiers {
		if t.Name == "" {
			errs = append(errs, errors.New("billing tier name is required"))
			continue
		}
		if _, dup := seen[t.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate billing tier %q", t.Name))
		}
		seen[t.Name] = struct{}{}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			errs = append(errs, fmt.Errorf("billing tier %q: invalid price %q", t.Name, t.Price))
			continue
		}
		if price.IsNegative() {
			errs = append(errs, fmt.Errorf("billing tier %q: price must not be negative", t.Name))
		}
	}

	thresholds := make(map[int]struct{}, len(c.Billing.VolumeDiscounts))
	for _, v := range c.Billing.VolumeDiscounts {
		if v.MinDocuments < 1 {
			errs = append(errs, fmt.Errorf("volume discount min_documents must be >= 1, got %d", v.MinDocuments))
		}
		if _, dup := thresholds[v.MinDocuments]; dup {
			errs = append(errs, fmt.Errorf("duplicate volume discount threshold %d", v.MinDocuments))
		}
		thresholds[v.MinDocuments] = struct{}{}
		if err := validateRate(v.Rate); err != nil {
			errs = append(errs, fmt.Errorf("volume discount at %d documents: %w", v.MinDocuments, err))
		}
	}

	for _, ct := range c.Billing.CustomerTiers {
		if ct.Name == "" {
			errs = append(errs, errors.New("customer tier name is required"))
			continue
		}
		if err := validateRate(ct.Rate); err != nil {
			errs = append(errs, fmt.Errorf("customer tier %q: %w", ct.Name, err))
		}
	}

	return errors.Join(errs...)
}

// validateRate requires a decimal in [0, 1).
func validateRate(s string) error {
	r, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid rate %q", s)
	}
	if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("rate %s must be in [0, 1)", r)
	}
	return nil
}
