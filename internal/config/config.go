// Package config handles loading and validation of service configuration.
// Supports a config file (JSON or YAML), env vars for development, and
// Secret Manager for production.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/consent"
	"uptain-sync/internal/scriptsync"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	ShopID     string // Secret name holding the shop's settings

	// Live keeps one long-running storefront session in the service,
	// optionally bound to a storefront customer session.
	Live        bool
	LiveSession string

	Tracker TrackerConfig
	Shop    ShopConfig
}

// TrackerConfig mirrors the storefront's tracker settings.
// Flag fields accept booleans or the strings "true"/"1".
type TrackerConfig struct {
	ID                     string `json:"uptainId" yaml:"uptainId"`
	Enabled                Flag   `json:"uptainEnabled" yaml:"uptainEnabled"`
	CookieGroup            string `json:"uptainCookieGroup" yaml:"uptainCookieGroup"`
	RegisterCookieAsOptOut Flag   `json:"uptainRegisterCookieAsOptOut" yaml:"uptainRegisterCookieAsOptOut"`
	BlockCookiesInitially  Flag   `json:"uptainBlockCookiesInitially" yaml:"uptainBlockCookiesInitially"`
	TransmitNewsletterData Flag   `json:"uptainTransmitNewsletterData" yaml:"uptainTransmitNewsletterData"`
	TransmitCustomerData   Flag   `json:"uptainTransmitCustomerData" yaml:"uptainTransmitCustomerData"`
	TransmitRevenue        Flag   `json:"uptainTransmitRevenue" yaml:"uptainTransmitRevenue"`
	Debug                  Flag   `json:"uptainDebug" yaml:"uptainDebug"`

	ScriptURL     string `json:"scriptUrl,omitempty" yaml:"scriptUrl,omitempty"`
	PluginVersion string `json:"pluginVersion,omitempty" yaml:"pluginVersion,omitempty"`

	// Optional expr-lang rules replacing the built-in personal-data checks.
	NewsletterRule string `json:"newsletterRule,omitempty" yaml:"newsletterRule,omitempty"`
	OrderRule      string `json:"orderRule,omitempty" yaml:"orderRule,omitempty"`
}

// ShopConfig locates the storefront REST API.
// In production, this is loaded from Secret Manager together with the tracker settings.
type ShopConfig struct {
	URL           string `json:"url" yaml:"url"`
	Domain        string `json:"domain,omitempty" yaml:"domain,omitempty"` // Public origin, derived from URL if not set
	DefaultLocale string `json:"default_locale,omitempty" yaml:"default_locale,omitempty"`
	APIKey        string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// secretPayload is the JSON layout of the production secret.
type secretPayload struct {
	Tracker TrackerConfig `json:"tracker"`
	Shop    ShopConfig    `json:"shop"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// A .env file in the working directory is loaded first when present.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load() // loads .env if present, never overrides the environment

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return LoadFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		ShopID:      os.Getenv("SHOP_ID"),
		Live:        bool(ParseFlag(os.Getenv("LIVE_SESSION"))),
		LiveSession: os.Getenv("SHOP_SESSION"),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.ShopID == "" {
			return nil, fmt.Errorf("SHOP_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading shop config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads all configuration from a JSON or YAML file.
// The format follows the extension: .yaml/.yml is YAML, anything else JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string        `json:"port" yaml:"port"`
		Environment string        `json:"environment" yaml:"environment"`
		LogLevel    string        `json:"log_level" yaml:"log_level"`
		ShopID      string        `json:"shop_id" yaml:"shop_id"`
		Live        Flag          `json:"live" yaml:"live"`
		LiveSession string        `json:"live_session" yaml:"live_session"`
		Tracker     TrackerConfig `json:"tracker" yaml:"tracker"`
		Shop        ShopConfig    `json:"shop" yaml:"shop"`
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fileConfig)
	default:
		err = json.Unmarshal(data, &fileConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		ShopID:      fileConfig.ShopID,
		Live:        bool(fileConfig.Live),
		LiveSession: fileConfig.LiveSession,
		Tracker:     fileConfig.Tracker,
		Shop:        fileConfig.Shop,
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches tracker and shop settings from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{shop_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.ShopID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	var payload secretPayload
	if err := json.Unmarshal(result.Payload.Data, &payload); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.Tracker, c.Shop = payload.Tracker, payload.Shop
	return nil
}

// loadFromEnv reads settings from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Tracker = TrackerConfig{
		ID:                     os.Getenv("UPTAIN_ID"),
		Enabled:                ParseFlag(os.Getenv("UPTAIN_ENABLED")),
		CookieGroup:            os.Getenv("UPTAIN_COOKIE_GROUP"),
		RegisterCookieAsOptOut: ParseFlag(os.Getenv("UPTAIN_REGISTER_COOKIE_AS_OPT_OUT")),
		BlockCookiesInitially:  ParseFlag(os.Getenv("UPTAIN_BLOCK_COOKIES_INITIALLY")),
		TransmitNewsletterData: ParseFlag(os.Getenv("UPTAIN_TRANSMIT_NEWSLETTER_DATA")),
		TransmitCustomerData:   ParseFlag(os.Getenv("UPTAIN_TRANSMIT_CUSTOMER_DATA")),
		TransmitRevenue:        ParseFlag(os.Getenv("UPTAIN_TRANSMIT_REVENUE")),
		Debug:                  ParseFlag(os.Getenv("UPTAIN_DEBUG")),
		ScriptURL:              os.Getenv("UPTAIN_SCRIPT_URL"),
		PluginVersion:          os.Getenv("UPTAIN_PLUGIN_VERSION"),
		NewsletterRule:         os.Getenv("UPTAIN_NEWSLETTER_RULE"),
		OrderRule:              os.Getenv("UPTAIN_ORDER_RULE"),
	}
	c.Shop = ShopConfig{
		URL:           os.Getenv("SHOP_URL"),
		Domain:        os.Getenv("SHOP_DOMAIN"),
		DefaultLocale: os.Getenv("SHOP_DEFAULT_LOCALE"),
		APIKey:        os.Getenv("SHOP_API_KEY"),
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Tracker.CookieGroup == "" {
		c.Tracker.CookieGroup = consent.DefaultGroup
	}
	if c.Tracker.ScriptURL == "" {
		c.Tracker.ScriptURL = scriptsync.DefaultBaseURL
	}
	if c.Tracker.PluginVersion == "" {
		c.Tracker.PluginVersion = aggregate.DefaultPluginVersion
	}
	if c.Shop.Domain == "" && c.Shop.URL != "" {
		c.Shop.Domain = extractOrigin(c.Shop.URL)
	}
	if c.Shop.DefaultLocale == "" {
		c.Shop.DefaultLocale = "de"
	}
}

// validate checks that configured values are well-formed. A missing tracker
// id is not an error: the tracker then stays inactive.
func (c *Config) validate() error {
	if c.Shop.URL != "" {
		u, err := url.Parse(c.Shop.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid shop url %q", c.Shop.URL)
		}
	}
	if _, err := url.Parse(c.Tracker.ScriptURL); err != nil {
		return fmt.Errorf("invalid scriptUrl: %w", err)
	}
	if !ValidPluginVersion(c.Tracker.PluginVersion) {
		return fmt.Errorf("invalid pluginVersion %q: want <name>_<semver>", c.Tracker.PluginVersion)
	}
	if _, err := aggregate.NewExprPredicates(c.Tracker.NewsletterRule, c.Tracker.OrderRule); err != nil {
		return fmt.Errorf("invalid personal-data rule: %w", err)
	}
	return nil
}

// ValidPluginVersion checks the "<name>_<semver>" format of plugin versions,
// e.g. "plentyshop-pwa_1.0.0".
func ValidPluginVersion(v string) bool {
	i := strings.LastIndex(v, "_")
	if i <= 0 || i == len(v)-1 {
		return false
	}
	return semver.IsValid(normalizeVersion(v[i+1:]))
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// Configured reports whether the tracker is enabled with a usable id.
func (c *Config) Configured() bool {
	return bool(c.Tracker.Enabled) && aggregate.ValidTrackerID(c.Tracker.ID)
}

// AggregateSettings converts the tracker settings for the snapshot builder.
func (c *Config) AggregateSettings() aggregate.Settings {
	return aggregate.Settings{
		TrackerID:          strings.TrimSpace(c.Tracker.ID),
		Domain:             c.Shop.Domain,
		DefaultLocale:      c.Shop.DefaultLocale,
		PluginVersion:      c.Tracker.PluginVersion,
		TransmitNewsletter: bool(c.Tracker.TransmitNewsletterData),
		TransmitCustomer:   bool(c.Tracker.TransmitCustomerData),
		TransmitRevenue:    bool(c.Tracker.TransmitRevenue),
		Debug:              bool(c.Tracker.Debug),
	}
}

// ScriptSettings converts the tracker settings for the script controller.
func (c *Config) ScriptSettings() scriptsync.Settings {
	return scriptsync.Settings{
		Enabled:   bool(c.Tracker.Enabled),
		TrackerID: strings.TrimSpace(c.Tracker.ID),
		BaseURL:   c.Tracker.ScriptURL,
	}
}

// ConsentPolicy converts the tracker settings for the consent gate.
func (c *Config) ConsentPolicy() consent.Policy {
	return consent.Policy{
		Group:          c.Tracker.CookieGroup,
		OptOut:         bool(c.Tracker.RegisterCookieAsOptOut),
		BlockInitially: bool(c.Tracker.BlockCookiesInitially),
	}
}

// Predicates builds the personal-data predicates from the configured rules.
func (c *Config) Predicates() (aggregate.Predicates, error) {
	if c.Tracker.NewsletterRule == "" && c.Tracker.OrderRule == "" {
		return aggregate.FieldPredicates{}, nil
	}
	return aggregate.NewExprPredicates(c.Tracker.NewsletterRule, c.Tracker.OrderRule)
}

// extractOrigin returns scheme://host of a URL string.
func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(rawURL, "/")
	}
	return u.Scheme + "://" + u.Host
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
