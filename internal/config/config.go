package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/pders01/pubsearch/internal/validation"
)

// PrimaryAction selects which quick action is listed first for a result.
type PrimaryAction string

const (
	CopyInstallCommand PrimaryAction = "copy-install-command"
	OpenInBrowser      PrimaryAction = "open-in-browser"
)

// ParsePrimaryAction validates a configured primary action.
func ParsePrimaryAction(s string) (PrimaryAction, error) {
	switch PrimaryAction(s) {
	case CopyInstallCommand, OpenInBrowser:
		return PrimaryAction(s), nil
	default:
		return "", fmt.Errorf("unknown primary action %q (valid: %s, %s)", s, CopyInstallCommand, OpenInBrowser)
	}
}

type Config struct {
	Registry RegistryConfig `mapstructure:"registry" toml:"registry"`
	Actions  ActionsConfig  `mapstructure:"actions" toml:"actions"`
	Search   SearchConfig   `mapstructure:"search" toml:"search"`
	UI       UIConfig       `mapstructure:"ui" toml:"ui"`
	Browser  BrowserConfig  `mapstructure:"browser" toml:"browser"`
	Keys     KeyConfig      `mapstructure:"keys" toml:"keys"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

type RegistryConfig struct {
	BaseURL string `mapstructure:"base_url" toml:"base_url"`
	// HTTPTimeout of zero leaves requests bounded only by cancellation.
	HTTPTimeout    time.Duration `mapstructure:"http_timeout" toml:"http_timeout"`
	UserAgent      string        `mapstructure:"user_agent" toml:"user_agent"`
	PackageManager string        `mapstructure:"package_manager" toml:"package_manager"`
}

type ActionsConfig struct {
	Primary PrimaryAction `mapstructure:"primary" toml:"primary"`
}

type SearchConfig struct {
	Debounce       time.Duration `mapstructure:"debounce" toml:"debounce"`
	MaxQueryLength int           `mapstructure:"max_query_length" toml:"max_query_length"`
}

type UIConfig struct {
	Colors UIColors `mapstructure:"colors" toml:"colors"`
}

type UIColors struct {
	Primary   string `mapstructure:"primary" toml:"primary"`
	Secondary string `mapstructure:"secondary" toml:"secondary"`
	Accent    string `mapstructure:"accent" toml:"accent"`
	Text      string `mapstructure:"text" toml:"text"`
	Muted     string `mapstructure:"muted" toml:"muted"`
	Error     string `mapstructure:"error" toml:"error"`
	Success   string `mapstructure:"success" toml:"success"`
}

type BrowserConfig struct {
	Opener string `mapstructure:"opener" toml:"opener"`
}

type KeyConfig struct {
	Modifier string `mapstructure:"modifier" toml:"modifier"`
}

type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
	File  string `mapstructure:"file" toml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			BaseURL:        "https://pub.dev",
			HTTPTimeout:    0,
			UserAgent:      "pubsearch/1.0 (https://github.com/pders01/pubsearch)",
			PackageManager: "flutter pub",
		},
		Actions: ActionsConfig{
			Primary: CopyInstallCommand,
		},
		Search: SearchConfig{
			Debounce:       150 * time.Millisecond,
			MaxQueryLength: validation.DefaultMaxQueryLength,
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:   "#0175C2",
				Secondary: "#13B9FD",
				Accent:    "#95E1D3",
				Text:      "#EAEAEA",
				Muted:     "#94A3B8",
				Error:     "#F87171",
				Success:   "#4ADE80",
			},
		},
		Browser: BrowserConfig{
			Opener: getDefaultOpener(),
		},
		Keys: KeyConfig{
			Modifier: "ctrl",
		},
		Log: LogConfig{
			Level: "off",
			File:  "",
		},
	}
}

func getDefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "linux":
		return "xdg-open"
	case "windows":
		return "start"
	default:
		return "open"
	}
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pubsearch", "config.toml")
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PUBSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	config.Log.File = expandPath(config.Log.File)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every leaf key so a partial section in the config
// file does not hide the defaults of its siblings.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("registry.base_url", cfg.Registry.BaseURL)
	v.SetDefault("registry.http_timeout", cfg.Registry.HTTPTimeout)
	v.SetDefault("registry.user_agent", cfg.Registry.UserAgent)
	v.SetDefault("registry.package_manager", cfg.Registry.PackageManager)
	v.SetDefault("actions.primary", string(cfg.Actions.Primary))
	v.SetDefault("search.debounce", cfg.Search.Debounce)
	v.SetDefault("search.max_query_length", cfg.Search.MaxQueryLength)
	v.SetDefault("ui.colors.primary", cfg.UI.Colors.Primary)
	v.SetDefault("ui.colors.secondary", cfg.UI.Colors.Secondary)
	v.SetDefault("ui.colors.accent", cfg.UI.Colors.Accent)
	v.SetDefault("ui.colors.text", cfg.UI.Colors.Text)
	v.SetDefault("ui.colors.muted", cfg.UI.Colors.Muted)
	v.SetDefault("ui.colors.error", cfg.UI.Colors.Error)
	v.SetDefault("ui.colors.success", cfg.UI.Colors.Success)
	v.SetDefault("browser.opener", cfg.Browser.Opener)
	v.SetDefault("keys.modifier", cfg.Keys.Modifier)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

// Validate checks values that cannot be corrected silently and normalizes
// the registry base URL.
func (c *Config) Validate() error {
	if _, err := ParsePrimaryAction(string(c.Actions.Primary)); err != nil {
		return fmt.Errorf("actions.primary: %w", err)
	}

	baseURL, err := validation.NewRegistryURLValidator().ValidateAndNormalize(c.Registry.BaseURL)
	if err != nil {
		return fmt.Errorf("registry.base_url: %w", err)
	}
	c.Registry.BaseURL = baseURL

	if c.Registry.PackageManager == "" {
		return fmt.Errorf("registry.package_manager cannot be empty")
	}
	if c.Registry.HTTPTimeout < 0 {
		return fmt.Errorf("registry.http_timeout cannot be negative")
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce cannot be negative")
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// fileConfig mirrors Config for TOML output with durations as strings.
type fileConfig struct {
	Registry fileRegistry  `toml:"registry"`
	Actions  ActionsConfig `toml:"actions"`
	Search   fileSearch    `toml:"search"`
	UI       UIConfig      `toml:"ui"`
	Browser  BrowserConfig `toml:"browser"`
	Keys     KeyConfig     `toml:"keys"`
	Log      LogConfig     `toml:"log"`
}

type fileRegistry struct {
	BaseURL        string `toml:"base_url"`
	HTTPTimeout    string `toml:"http_timeout"`
	UserAgent      string `toml:"user_agent"`
	PackageManager string `toml:"package_manager"`
}

type fileSearch struct {
	Debounce       string `toml:"debounce"`
	MaxQueryLength int    `toml:"max_query_length"`
}

func Save(config *Config, path string) error {
	out := fileConfig{
		Registry: fileRegistry{
			BaseURL:        config.Registry.BaseURL,
			HTTPTimeout:    config.Registry.HTTPTimeout.String(),
			UserAgent:      config.Registry.UserAgent,
			PackageManager: config.Registry.PackageManager,
		},
		Actions: config.Actions,
		Search: fileSearch{
			Debounce:       config.Search.Debounce.String(),
			MaxQueryLength: config.Search.MaxQueryLength,
		},
		UI:      config.UI,
		Browser: config.Browser,
		Keys:    config.Keys,
		Log:     config.Log,
	}

	data, err := toml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
