// Package config loads gateway configuration from flags, FILES_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FILES"

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Filesystem exposure
	AllowedPaths []string

	// Trusted browser origin and base of pairing links. Empty disables CORS.
	ExternalURL string

	// Operator auth
	OperatorSecret       string
	OperatorPasswordHash string

	// Audit log (optional)
	DatabaseURL string

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Credential lifecycle
	PairingTTL        time.Duration
	PairingCapacity   int
	SessionTTL        time.Duration
	SessionCapacity   int
	ExchangePerMinute int
	SweepInterval     time.Duration
}

// RegisterFlags defines the server flags on flags and binds them into v
// together with the environment.
func RegisterFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("config", "", "path to a YAML config file")
	flags.String("listen", ":8787", "listen address")
	flags.String("metrics-listen", ":9090", "metrics listen address (empty disables)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.StringSlice("allowed-paths", nil, "directories exposed to clients (default: home directory)")
	flags.String("external-url", "", "public URL of the client; trusted CORS origin and pairing link base")
	flags.String("operator-secret", "", "HS256 secret for operator tokens")
	flags.String("operator-password-hash", "", "bcrypt hash enabling operator password login")
	flags.String("database-url", "", "PostgreSQL URL for the audit log (empty disables)")
	flags.String("tls-cert", "", "TLS certificate file")
	flags.String("tls-key", "", "TLS key file")
	flags.Duration("pairing-ttl", 5*time.Minute, "pairing code lifetime")
	flags.Int("pairing-capacity", 100, "maximum outstanding pairing codes")
	flags.Duration("session-ttl", 24*time.Hour, "session credential lifetime")
	flags.Int("session-capacity", 200, "maximum live session credentials")
	flags.Int("exchange-per-minute", 10, "pairing exchanges allowed per client IP per minute (0 disables)")
	flags.Duration("sweep-interval", time.Minute, "interval of the background expiry sweep")

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// ReadFile loads the config file named by the "config" key, if any.
func ReadFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := ExpandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ListenAddr:           v.GetString("listen"),
		MetricsAddr:          v.GetString("metrics-listen"),
		LogLevel:             v.GetString("log-level"),
		LogFormat:            v.GetString("log-format"),
		ExternalURL:          strings.TrimRight(strings.TrimSpace(v.GetString("external-url")), "/"),
		OperatorSecret:       v.GetString("operator-secret"),
		OperatorPasswordHash: strings.TrimSpace(v.GetString("operator-password-hash")),
		DatabaseURL:          v.GetString("database-url"),
		TLSCertFile:          v.GetString("tls-cert"),
		TLSKeyFile:           v.GetString("tls-key"),
		PairingTTL:           v.GetDuration("pairing-ttl"),
		PairingCapacity:      v.GetInt("pairing-capacity"),
		SessionTTL:           v.GetDuration("session-ttl"),
		SessionCapacity:      v.GetInt("session-capacity"),
		ExchangePerMinute:    v.GetInt("exchange-per-minute"),
		SweepInterval:        v.GetDuration("sweep-interval"),
	}

	paths, err := ParseAllowedPaths(v.Get("allowed-paths"))
	if err != nil {
		return nil, err
	}
	cfg.AllowedPaths = paths

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.OperatorSecret == "" {
		return errors.New("operator secret is required (FILES_OPERATOR_SECRET)")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	if c.ExternalURL != "" {
		u, err := url.Parse(c.ExternalURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("external-url %q must be an absolute http(s) URL", c.ExternalURL)
		}
	}
	if c.PairingTTL <= 0 || c.SessionTTL <= 0 {
		return errors.New("pairing-ttl and session-ttl must be positive")
	}
	if c.PairingCapacity <= 0 || c.SessionCapacity <= 0 {
		return errors.New("pairing-capacity and session-capacity must be positive")
	}
	if c.ExchangePerMinute < 0 {
		return errors.New("exchange-per-minute must not be negative")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep-interval must be positive")
	}
	return nil
}

// Origin returns the scheme://host of ExternalURL, the only origin allowed
// to call the API from a browser.
func (c *Config) Origin() string {
	if c.ExternalURL == "" {
		return ""
	}
	u, err := url.Parse(c.ExternalURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// ParseAllowedPaths accepts a list from a flag or YAML, or a single string
// from the environment separated by commas or the OS list separator. Each
// entry is expanded and must be absolute.
func ParseAllowedPaths(raw any) ([]string, error) {
	var items []string
	switch val := raw.(type) {
	case nil:
	case string:
		items = splitList(val)
	case []string:
		for _, s := range val {
			items = append(items, splitList(s)...)
		}
	case []any:
		for _, s := range val {
			items = append(items, splitList(fmt.Sprint(s))...)
		}
	default:
		return nil, fmt.Errorf("allowed-paths: unsupported value %T", raw)
	}

	var out []string
	for _, item := range items {
		p, err := ExpandPath(item)
		if err != nil {
			return nil, fmt.Errorf("allowed path %q: %w", item, err)
		}
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("allowed path %q must be absolute", item)
		}
		out = append(out, p)
	}
	return out, nil
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == filepath.ListSeparator
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ExpandPath expands a leading ~ and $VARS. Relative results are left
// relative so callers can reject them.
func ExpandPath(p string) (string, error) {
	p = os.ExpandEnv(strings.TrimSpace(p))
	if p == "" {
		return "", errors.New("empty path")
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Clean(p), nil
}
