package config

import "time"

// Config holds runtime settings for the filekeeper CLI.
type Config struct {
	ServerURL      string
	Token          string
	OutputDir      string
	Bucket         string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Token = ""
	c.OutputDir = "downloads"
	c.Bucket = ""
	c.RequestTimeout = 5 * time.Minute
}

// Flags handled by parseFlags.
var Flags = []string{"-a", "-t", "-o", "-b", "-w"}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
