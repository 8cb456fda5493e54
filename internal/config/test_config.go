package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Registry.UserAgent = "pubsearch-test/1.0"
	cfg.Registry.HTTPTimeout = 5 * time.Second
	cfg.Search.Debounce = 0
	cfg.Browser.Opener = "true"
	return cfg
}
