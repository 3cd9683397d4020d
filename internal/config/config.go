// Package config loads gateway settings: built-in defaults, then an optional
// YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wagateway/internal/integrations/uazapi"
)

type Config struct {
	Addr          string `yaml:"addr"`
	PublicBaseURL string `yaml:"public_base_url"`
	LogFormat     string `yaml:"log_format"`
	LogLevel      string `yaml:"log_level"`
	// Provider selects the vendor adapter: uazapi or zapi.
	Provider           string `yaml:"provider"`
	ManualInstanceMode bool   `yaml:"manual_instance_mode"`

	Auth      Auth      `yaml:"auth"`
	Uazapi    Uazapi    `yaml:"uazapi"`
	Zapi      Zapi      `yaml:"zapi"`
	Vendor    Vendor    `yaml:"vendor"`
	Storage   Storage   `yaml:"storage"`
	Redis     Redis     `yaml:"redis"`
	Callbacks Callbacks `yaml:"callbacks"`
}

// Auth configures operator token verification: dev, hmac or jwks.
type Auth struct {
	Mode        string `yaml:"mode"`
	HMACSecret  string `yaml:"hmac_secret"`
	JWKSURL     string `yaml:"jwks_url"`
	TenantClaim string `yaml:"tenant_claim"`
	RoleClaim   string `yaml:"role_claim"`
}

type Uazapi struct {
	BaseURL               string        `yaml:"base_url"`
	Token                 string        `yaml:"token"`
	AdminToken            string        `yaml:"admin_token"`
	DisableGlobalFallback bool          `yaml:"disable_global_fallback"`
	WebhookSecret         string        `yaml:"webhook_secret"`
	Routes                uazapi.Routes `yaml:"routes"`
}

type Zapi struct {
	BaseURL     string `yaml:"base_url"`
	InstanceID  string `yaml:"instance_id"`
	Token       string `yaml:"token"`
	ClientToken string `yaml:"client_token"`
}

// Vendor bounds outbound vendor traffic.
type Vendor struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
	Deadline          time.Duration `yaml:"deadline"`
}

// Storage selects the record backend: Postgres when DatabaseURL is set,
// else SQLite when SQLitePath is set, else memory.
type Storage struct {
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
}

type Redis struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// Callbacks configures outbound tenant callback delivery.
type Callbacks struct {
	Secret      string `yaml:"secret"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:      ":8080",
		LogFormat: "json",
		LogLevel:  "info",
		Provider:  uazapi.Name,
		Auth:      Auth{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		Vendor: Vendor{
			RequestsPerSecond: 10,
			Burst:             20,
			HTTPTimeout:       15 * time.Second,
			AttemptTimeout:    8 * time.Second,
			Deadline:          60 * time.Second,
		},
		Redis:     Redis{Prefix: "wagateway:events:"},
		Callbacks: Callbacks{MaxAttempts: 8},
	}
}

// Load applies path (if not empty) and the environment over Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	flag := func(dst *bool, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	keys := func(dst *[]string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = splitList(v)
		}
	}

	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Addr = ":" + port
	}
	str(&c.Addr, "ADDR")
	str(&c.PublicBaseURL, "PUBLIC_BASE_URL")
	str(&c.LogFormat, "LOG_FORMAT")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.Provider, "PROVIDER")
	flag(&c.ManualInstanceMode, "MANUAL_INSTANCE_MODE")

	str(&c.Auth.Mode, "AUTH_MODE")
	str(&c.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	str(&c.Auth.JWKSURL, "AUTH_JWKS_URL")
	str(&c.Auth.TenantClaim, "AUTH_TENANT_CLAIM")
	str(&c.Auth.RoleClaim, "AUTH_ROLE_CLAIM")

	u := &c.Uazapi
	str(&u.BaseURL, "PROV_BASE_URL")
	str(&u.Token, "PROV_TOKEN")
	str(&u.AdminToken, "PROV_ADMIN_TOKEN")
	flag(&u.DisableGlobalFallback, "UAZAPI_DISABLE_GLOBAL_FALLBACK")
	str(&u.WebhookSecret, "UAZAPI_WEBHOOK_SECRET")
	// The ADMIN_ variants win, as the routes they name are administrative.
	r := &u.Routes
	str(&r.Create.Path, "UAZAPI_ADMIN_CREATE_PATH", "UAZAPI_CREATE_PATH")
	str(&r.Create.Method, "UAZAPI_ADMIN_CREATE_METHOD", "UAZAPI_CREATE_METHOD")
	keys(&r.Create.Keys, "UAZAPI_ADMIN_CREATE_KEYS")
	str(&r.Disconnect.Path, "UAZAPI_ADMIN_DISCONNECT_PATH", "UAZAPI_DISCONNECT_PATH")
	str(&r.Disconnect.Method, "UAZAPI_ADMIN_DISCONNECT_METHOD", "UAZAPI_DISCONNECT_METHOD")
	keys(&r.Disconnect.Keys, "UAZAPI_ADMIN_DISCONNECT_KEYS")
	if strings.TrimSpace(getenv("UAZAPI_ADMIN_DISCONNECT_PATH")) != "" {
		r.Disconnect.Admin = true
	}
	str(&r.QR.Path, "UAZAPI_ADMIN_QR_PATH", "UAZAPI_QR_PATH")
	str(&r.QR.Method, "UAZAPI_ADMIN_QR_METHOD", "UAZAPI_QR_METHOD")
	keys(&r.QR.Keys, "UAZAPI_ADMIN_QR_KEYS")
	flag(&r.QRForce, "UAZAPI_QR_FORCE")
	flag(&r.QRForce, "UAZAPI_ADMIN_QR_FORCE")

	str(&c.Zapi.BaseURL, "ZAPI_BASE_URL")
	str(&c.Zapi.InstanceID, "ZAPI_INSTANCE_ID")
	str(&c.Zapi.Token, "ZAPI_TOKEN")
	str(&c.Zapi.ClientToken, "ZAPI_CLIENT_TOKEN")

	if v := strings.TrimSpace(getenv("VENDOR_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("VENDOR_RPS: %w", err))
		} else {
			c.Vendor.RequestsPerSecond = f
		}
	}
	if v := strings.TrimSpace(getenv("VENDOR_BURST")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("VENDOR_BURST: %w", err))
		} else {
			c.Vendor.Burst = n
		}
	}
	dur(&c.Vendor.HTTPTimeout, "VENDOR_HTTP_TIMEOUT")
	dur(&c.Vendor.AttemptTimeout, "VENDOR_ATTEMPT_TIMEOUT")
	dur(&c.Vendor.Deadline, "VENDOR_DEADLINE")

	str(&c.Storage.DatabaseURL, "DATABASE_URL")
	str(&c.Storage.SQLitePath, "SQLITE_PATH")
	str(&c.Redis.URL, "REDIS_URL")
	str(&c.Redis.Prefix, "REDIS_PREFIX")
	str(&c.Callbacks.Secret, "CALLBACK_SECRET")
	if v := strings.TrimSpace(getenv("CALLBACK_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CALLBACK_MAX_ATTEMPTS: %w", err))
		} else {
			c.Callbacks.MaxAttempts = n
		}
	}
	return errors.Join(errs...)
}

// Validate checks settings that would otherwise fail at first use.
func (c Config) Validate() error {
	switch c.Provider {
	case uazapi.Name:
		if c.Uazapi.BaseURL == "" {
			return errors.New("config: PROV_BASE_URL is required for provider uazapi")
		}
	case "zapi":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	switch c.Auth.Mode {
	case "dev", "hmac", "jwks":
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.Auth.Mode)
	}
	if c.Auth.Mode == "hmac" && c.Auth.HMACSecret == "" {
		return errors.New("config: AUTH_HMAC_SECRET is required for auth mode hmac")
	}
	if c.Vendor.RequestsPerSecond < 0 || c.Vendor.Burst < 0 {
		return errors.New("config: vendor rate limits must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
