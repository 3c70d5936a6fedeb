package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/consent"
	"uptain-sync/internal/scriptsync"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "ENVIRONMENT", "PORT", "LOG_LEVEL", "GCP_PROJECT", "SHOP_ID",
		"UPTAIN_ID", "UPTAIN_ENABLED", "UPTAIN_COOKIE_GROUP", "UPTAIN_REGISTER_COOKIE_AS_OPT_OUT",
		"UPTAIN_BLOCK_COOKIES_INITIALLY", "UPTAIN_TRANSMIT_NEWSLETTER_DATA",
		"UPTAIN_TRANSMIT_CUSTOMER_DATA", "UPTAIN_TRANSMIT_REVENUE", "UPTAIN_DEBUG",
		"UPTAIN_SCRIPT_URL", "UPTAIN_PLUGIN_VERSION", "UPTAIN_NEWSLETTER_RULE", "UPTAIN_ORDER_RULE",
		"SHOP_URL", "SHOP_DOMAIN", "SHOP_DEFAULT_LOCALE", "SHOP_API_KEY",
		"LIVE_SESSION", "SHOP_SESSION",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UPTAIN_ID", "ABCDEF0123456789")
	t.Setenv("UPTAIN_ENABLED", "1")
	t.Setenv("UPTAIN_TRANSMIT_REVENUE", "true")
	t.Setenv("UPTAIN_TRANSMIT_CUSTOMER_DATA", "yes")
	t.Setenv("SHOP_URL", "https://shop.example.com/rest/")
	t.Setenv("LIVE_SESSION", "true")
	t.Setenv("SHOP_SESSION", "sess-1")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Live || cfg.LiveSession != "sess-1" {
		t.Errorf("Live = %v, LiveSession = %q; want true, sess-1", cfg.Live, cfg.LiveSession)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if !cfg.Tracker.Enabled {
		t.Error("Tracker.Enabled = false, want true for \"1\"")
	}
	if !cfg.Tracker.TransmitRevenue {
		t.Error("Tracker.TransmitRevenue = false, want true")
	}
	if cfg.Tracker.TransmitCustomerData {
		t.Error("Tracker.TransmitCustomerData = true, want false for \"yes\"")
	}

	// Defaults
	if cfg.Tracker.CookieGroup != consent.DefaultGroup {
		t.Errorf("CookieGroup = %s, want %s", cfg.Tracker.CookieGroup, consent.DefaultGroup)
	}
	if cfg.Tracker.ScriptURL != scriptsync.DefaultBaseURL {
		t.Errorf("ScriptURL = %s, want %s", cfg.Tracker.ScriptURL, scriptsync.DefaultBaseURL)
	}
	if cfg.Tracker.PluginVersion != aggregate.DefaultPluginVersion {
		t.Errorf("PluginVersion = %s, want %s", cfg.Tracker.PluginVersion, aggregate.DefaultPluginVersion)
	}
	if cfg.Shop.Domain != "https://shop.example.com" {
		t.Errorf("Shop.Domain = %s, want https://shop.example.com", cfg.Shop.Domain)
	}
	if !cfg.Configured() {
		t.Error("Configured() = false, want true")
	}
}

func TestLoadProductionRequiresProject(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "GCP_PROJECT") {
		t.Fatalf("Load() error = %v, want GCP_PROJECT error", err)
	}

	t.Setenv("GCP_PROJECT", "my-project")
	_, err = Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "SHOP_ID") {
		t.Fatalf("Load() error = %v, want SHOP_ID error", err)
	}
}

func TestLoadFromConfigFileJSON(t *testing.T) {
	clearEnv(t)

	content := map[string]any{
		"port":      "8081",
		"log_level": "warn",
		"tracker": map[string]any{
			"uptainId":                     "ABCDEF0123456789",
			"uptainEnabled":                "true",
			"uptainRegisterCookieAsOptOut": true,
			"uptainTransmitNewsletterData": 1,
			"uptainCookieGroup":            "CookieBar.custom.label",
		},
		"shop": map[string]any{
			"url":            "https://shop.example.com",
			"default_locale": "en",
		},
	}
	data, _ := json.Marshal(content)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8081" {
		t.Errorf("Port = %s, want 8081", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}

	policy := cfg.ConsentPolicy()
	if policy.Group != "CookieBar.custom.label" || !policy.OptOut || policy.BlockInitially {
		t.Errorf("ConsentPolicy() = %+v", policy)
	}

	settings := cfg.AggregateSettings()
	if !settings.TransmitNewsletter || settings.TransmitCustomer {
		t.Errorf("AggregateSettings() transmit flags = %+v", settings)
	}
	if settings.DefaultLocale != "en" {
		t.Errorf("DefaultLocale = %s, want en", settings.DefaultLocale)
	}

	script := cfg.ScriptSettings()
	if got, want := script.ScriptSrc(), scriptsync.DefaultBaseURL+"?x=ABCDEF0123456789"; got != want {
		t.Errorf("ScriptSrc() = %s, want %s", got, want)
	}
}

func TestLoadFileYAML(t *testing.T) {
	yamlConfig := `
port: "7070"
tracker:
  uptainId: " ABCDEF0123456789 "
  uptainEnabled: "1"
  uptainBlockCookiesInitially: true
  uptainTransmitRevenue: "false"
  orderRule: "orders > 0"
shop:
  url: https://shop.example.com
  domain: https://www.shop.example.com
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("Port = %s, want 7070", cfg.Port)
	}
	if !cfg.Tracker.Enabled || !cfg.Tracker.BlockCookiesInitially || cfg.Tracker.TransmitRevenue {
		t.Errorf("Tracker flags = %+v", cfg.Tracker)
	}
	if got := cfg.AggregateSettings().TrackerID; got != "ABCDEF0123456789" {
		t.Errorf("TrackerID = %q, want trimmed id", got)
	}
	if cfg.Shop.Domain != "https://www.shop.example.com" {
		t.Errorf("Shop.Domain = %s, want explicit domain kept", cfg.Shop.Domain)
	}

	preds, err := cfg.Predicates()
	if err != nil {
		t.Fatalf("Predicates() error: %v", err)
	}
	if _, ok := preds.(*aggregate.ExprPredicates); !ok {
		t.Errorf("Predicates() = %T, want *aggregate.ExprPredicates", preds)
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad json", `{`, "parsing config file"},
		{"bad shop url", `{"shop":{"url":"not a url"}}`, "invalid shop url"},
		{"bad plugin version", `{"tracker":{"pluginVersion":"plentyshop-pwa"}}`, "invalid pluginVersion"},
		{"bad rule", `{"tracker":{"newsletterRule":"newsletter &&"}}`, "invalid personal-data rule"},
		{"bad flag", `{"tracker":{"uptainEnabled":[1]}}`, "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestUnconfiguredTracker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"tracker":{"uptainId":"` + aggregate.PlaceholderTrackerID + `","uptainEnabled":"true"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Configured() {
		t.Error("Configured() = true for placeholder id")
	}
}

func TestValidPluginVersion(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"plentyshop-pwa_1.0.0", true},
		{"plentyshop-pwa_v2.1.3", true},
		{"my_plugin_1.2.0-beta.1", true},
		{"plentyshop-pwa", false},
		{"plentyshop-pwa_", false},
		{"_1.0.0", false},
		{"plentyshop-pwa_1.0.x", false},
	}
	for _, tt := range tests {
		if got := ValidPluginVersion(tt.in); got != tt.want {
			t.Errorf("ValidPluginVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	tests := map[string]Flag{
		"true":  true,
		"1":     true,
		" 1 ":   true,
		"false": false,
		"0":     false,
		"":      false,
		"TRUE":  false,
		"yes":   false,
	}
	for in, want := range tests {
		if got := ParseFlag(in); got != want {
			t.Errorf("ParseFlag(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"tracker":{"uptainEnabled":"0"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	if err := Watch(ctx, path, nil, func(c *Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"tracker":{"uptainEnabled":"1","uptainId":"ABCDEF0123456789"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if !cfg.Tracker.Enabled {
			t.Errorf("reloaded Tracker.Enabled = false, want true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not report the change")
	}
}
