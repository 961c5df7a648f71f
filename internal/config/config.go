package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/drwatch/internal/auth"
	"github.com/loykin/drwatch/internal/codec"
	"github.com/loykin/drwatch/internal/logger"
	"github.com/loykin/drwatch/internal/probe"
	drtls "github.com/loykin/drwatch/internal/tls"
)

// EnvPrefix is the prefix of environment overrides, e.g. DRWATCH_MONITOR_THRESHOLD.
const EnvPrefix = "DRWATCH"

// Confirmation sources.
const (
	SourceConsole = "console"
	SourceHTTP    = "http"
)

// Config represents the top-level TOML structure.
type Config struct {
	EnvFiles []string      `toml:"env_files" mapstructure:"env_files"`
	Monitor  MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	Confirm  ConfirmConfig `toml:"confirm" mapstructure:"confirm"`
	Stores   StoresConfig  `toml:"stores" mapstructure:"stores"`
	Log      LogConfig     `toml:"log" mapstructure:"log"`
	History  HistoryConfig `toml:"history" mapstructure:"history"`
	Metrics  MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Server   ServerConfig  `toml:"server" mapstructure:"server"`
}

type MonitorConfig struct {
	Threshold    float64       `toml:"threshold" mapstructure:"threshold"`
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	Probe        string        `toml:"probe" mapstructure:"probe"`
}

type ConfirmConfig struct {
	RetryInterval time.Duration `toml:"retry_interval" mapstructure:"retry_interval"`
	Affirmative   []string      `toml:"affirmative" mapstructure:"affirmative"`
	Source        string        `toml:"source" mapstructure:"source"`
	MaxAttempts   int           `toml:"max_attempts" mapstructure:"max_attempts"`
}

// StoresConfig names the primary and backup stores. Values are store DSNs
// (bare path, file://, memory://, sqlite://, postgres://, bolt://).
type StoresConfig struct {
	Primary string `toml:"primary" mapstructure:"primary"`
	Backup  string `toml:"backup" mapstructure:"backup"`
	Codec   string `toml:"codec" mapstructure:"codec"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Ledger     string `toml:"ledger" mapstructure:"ledger"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HistoryConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

type ServerConfig struct {
	Listen string     `toml:"listen" mapstructure:"listen"`
	TLS    TLSConfig  `toml:"tls" mapstructure:"tls"`
	Auth   AuthConfig `toml:"auth" mapstructure:"auth"`
}

// AuthConfig guards the HTTP confirmation endpoint. Operator names are
// case-insensitive; values are bcrypt hashes.
type AuthConfig struct {
	Enabled   bool              `toml:"enabled" mapstructure:"enabled"`
	Operators map[string]string `toml:"operators" mapstructure:"operators"`
	JWTSecret string            `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `toml:"token_ttl" mapstructure:"token_ttl"`
}

type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	Hosts        []string `toml:"hosts" mapstructure:"hosts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env_files", []string{})
	v.SetDefault("monitor.threshold", 10.0)
	v.SetDefault("monitor.poll_interval", "3s")
	v.SetDefault("monitor.probe", "memory")
	v.SetDefault("confirm.retry_interval", "2s")
	v.SetDefault("confirm.affirmative", []string{"yes"})
	v.SetDefault("confirm.source", SourceConsole)
	v.SetDefault("confirm.max_attempts", 0)
	v.SetDefault("stores.primary", "primary_server.txt")
	v.SetDefault("stores.backup", "backup_server.txt")
	v.SetDefault("stores.codec", codec.Default)
	v.SetDefault("log.level", string(logger.LevelInfo))
	v.SetDefault("log.format", string(logger.FormatText))
	v.SetDefault("log.color", true)
	v.SetDefault("log.ledger", logger.DefaultLedgerPath)
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("server.listen", "")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.min_version", "1.3")
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.token_ttl", "15m")
}

// Default returns the configuration used when no file and no overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load reads the TOML file at path (optional), then env files it lists, then
// DRWATCH_* environment variables. Later sources win. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, p := range v.GetStringSlice("env_files") {
		if path != "" && !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, val := range pairs {
			key, ok := keyFromEnv(k)
			if !ok {
				continue
			}
			if _, set := os.LookupEnv(k); set {
				continue // process env wins
			}
			v.Set(key, val)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// keyFromEnv maps DRWATCH_MONITOR_POLL_INTERVAL to monitor.poll_interval.
func keyFromEnv(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix+"_")
	if !ok || rest == "" {
		return "", false
	}
	rest = strings.ToLower(rest)
	section, field, ok := strings.Cut(rest, "_")
	if !ok {
		return rest, true
	}
	return section + "." + field, true
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Monitor.Threshold < 0 || c.Monitor.Threshold > 100 {
		errs = append(errs, fmt.Errorf("monitor.threshold %v out of range [0,100]", c.Monitor.Threshold))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval))
	}
	if _, err := probe.Parse(c.Monitor.Probe); err != nil {
		errs = append(errs, fmt.Errorf("monitor.probe: %w", err))
	}
	if c.Confirm.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("confirm.retry_interval must be positive, got %s", c.Confirm.RetryInterval))
	}
	if c.Confirm.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("confirm.max_attempts must not be negative"))
	}
	switch c.Confirm.Source {
	case SourceConsole:
	case SourceHTTP:
		if c.Server.Listen == "" {
			errs = append(errs, errors.New("confirm.source http requires server.listen"))
		}
	default:
		errs = append(errs, fmt.Errorf("confirm.source must be %q or %q, got %q", SourceConsole, SourceHTTP, c.Confirm.Source))
	}
	if strings.TrimSpace(c.Stores.Primary) == "" {
		errs = append(errs, errors.New("stores.primary is required"))
	}
	if strings.TrimSpace(c.Stores.Backup) == "" {
		errs = append(errs, errors.New("stores.backup is required"))
	}
	if c.Stores.Primary != "" && c.Stores.Primary == c.Stores.Backup {
		errs = append(errs, errors.New("stores.primary and stores.backup must differ"))
	}
	if _, err := codec.ByName(c.Stores.Codec); err != nil {
		errs = append(errs, fmt.Errorf("stores.codec: %w", err))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch logger.Format(strings.ToLower(c.Log.Format)) {
	case logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if err := c.TLS().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server.tls: %w", err))
	}
	if _, err := auth.New(c.Auth()); err != nil {
		errs = append(errs, fmt.Errorf("server.auth: %w", err))
	}
	return errors.Join(errs...)
}

// TLS converts the server.tls section to tls.Options.
func (c *Config) TLS() drtls.Options {
	t := c.Server.TLS
	return drtls.Options{
		Enabled:      t.Enabled,
		CertFile:     t.CertFile,
		KeyFile:      t.KeyFile,
		Dir:          t.Dir,
		AutoGenerate: t.AutoGenerate,
		MinVersion:   t.MinVersion,
		Hosts:        t.Hosts,
	}
}

// Auth converts the server.auth section to auth.Config.
func (c *Config) Auth() auth.Config {
	a := c.Server.Auth
	return auth.Config{
		Enabled:   a.Enabled,
		Operators: a.Operators,
		JWTSecret: a.JWTSecret,
		TokenTTL:  a.TokenTTL,
	}
}

// Logger converts the log section to a logger.Config.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(strings.ToLower(c.Log.Level)),
			Format:     logger.Format(strings.ToLower(c.Log.Format)),
			Color:      c.Log.Color,
			TimeStamps: true,
		},
		File: logger.FileConfig{
			Path:       c.Log.Ledger,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}
