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

	"github.com/jask/dexnav/internal/navigator"
	"github.com/jask/dexnav/internal/sequencer"
)

// Config holds application configuration.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Range      RangeConfig      `mapstructure:"range"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
}

// APIConfig holds resource server settings.
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TokenEnv string        `mapstructure:"token_env"`
	Token    string        `mapstructure:"token"`
}

// RangeConfig bounds the browsable ids.
type RangeConfig struct {
	MinID     int `mapstructure:"min_id"`
	MaxID     int `mapstructure:"max_id"`
	InvalidID int `mapstructure:"invalid_id"`
}

// NavigationConfig selects the command gating policy ("suppress" or "caller").
type NavigationConfig struct {
	Gate string `mapstructure:"gate"`
}

// JournalConfig holds sqlite journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// ServerConfig enables the observer HTTP server when Addr is set.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Path returns the config file location: $DEXNAV_CONFIG or
// ~/.config/dexnav/config.toml.
func Path() string {
	if p := os.Getenv("DEXNAV_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "dexnav", "config.toml")
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	home := os.Getenv("HOME")
	return Config{
		API: APIConfig{
			BaseURL:  "https://pokeapi.co/api/v2/pokemon",
			Timeout:  10 * time.Second,
			TokenEnv: "DEXNAV_API_TOKEN",
		},
		Range: RangeConfig{
			MinID:     sequencer.DefaultRange.Min,
			MaxID:     sequencer.DefaultRange.Max,
			InvalidID: 9990,
		},
		Navigation: NavigationConfig{Gate: navigator.GateSuppress.String()},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".local", "share", "dexnav", "journal.db"),
		},
		Log: LogConfig{
			Path:  filepath.Join(home, ".local", "state", "dexnav", "dexnav.log"),
			Level: "info",
		},
	}
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"base-url":  "api.base_url",
	"timeout":   "api.timeout",
	"gate":      "navigation.gate",
	"journal":   "journal.enabled",
	"log-level": "log.level",
	"addr":      "server.addr",
}

// RegisterFlags adds the overridable settings to fs. Values passed on the
// command line win over env and file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (default $DEXNAV_CONFIG or ~/.config/dexnav/config.toml)")
	fs.String("base-url", d.API.BaseURL, "resource collection base URL")
	fs.Duration("timeout", d.API.Timeout, "per-fetch timeout")
	fs.String("gate", d.Navigation.Gate, `command gating: "suppress" or "caller"`)
	fs.Bool("journal", d.Journal.Enabled, "record fetches in the sqlite journal")
	fs.String("log-level", d.Log.Level, "debug, info, warn or error")
	fs.String("addr", d.Server.Addr, "observer HTTP listen address (empty disables)")
}

// Load reads configuration from file and env. Env var overrides use prefix DEXNAV_.
func Load() (Config, error) { return LoadWithFlags(nil) }

// LoadWithFlags is Load with flags registered by RegisterFlags layered on top.
func LoadWithFlags(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.token_env", d.API.TokenEnv)
	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("range.min_id", d.Range.MinID)
	v.SetDefault("range.max_id", d.Range.MaxID)
	v.SetDefault("range.invalid_id", d.Range.InvalidID)
	v.SetDefault("navigation.gate", d.Navigation.Gate)
	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("server.addr", d.Server.Addr)

	path := Path()
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetConfigType("toml")
	v.SetConfigFile(path)

	v.SetEnvPrefix("DEXNAV")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the navigator cannot run with.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if err := c.SequenceRange().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("range: %w", err))
	}
	if _, err := navigator.ParseGate(c.Navigation.Gate); err != nil {
		errs = append(errs, fmt.Errorf("navigation.gate: %w", err))
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		errs = append(errs, errors.New("journal.path required when journal is enabled"))
	}
	return errors.Join(errs...)
}

// SequenceRange returns the configured id range.
func (c Config) SequenceRange() sequencer.Range {
	return sequencer.Range{Min: c.Range.MinID, Max: c.Range.MaxID}
}

// Gate returns the parsed gating policy, falling back to suppress.
func (c Config) Gate() navigator.Gate {
	g, err := navigator.ParseGate(c.Navigation.Gate)
	if err != nil {
		return navigator.GateSuppress
	}
	return g
}

// Save writes the provided config to Path(), creating the config directory if needed.
// The API token is written in plain text; prefer the env var or the token store.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.token_env", cfg.API.TokenEnv)
	v.Set("api.token", cfg.API.Token)
	v.Set("range.min_id", cfg.Range.MinID)
	v.Set("range.max_id", cfg.Range.MaxID)
	v.Set("range.invalid_id", cfg.Range.InvalidID)
	v.Set("navigation.gate", cfg.Navigation.Gate)
	v.Set("journal.enabled", cfg.Journal.Enabled)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("server.addr", cfg.Server.Addr)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
