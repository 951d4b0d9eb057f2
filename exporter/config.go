package exporter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen   string        `yaml:"listen"`
	Browser  BrowserConfig `yaml:"browser"`
	FFmpeg   FFmpegConfig  `yaml:"ffmpeg"`
	Jobs     JobsConfig    `yaml:"jobs"`
	Hints    HintsConfig   `yaml:"hints"`
	Defaults Settings      `yaml:"defaults"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	// Remote is a DevTools websocket URL. Empty launches a local
	// headless browser.
	Remote string `yaml:"remote"`
}

// FFmpegConfig controls encoder binary resolution.
type FFmpegConfig struct {
	// FetchURL, when set, permits one remote fetch of a static build if
	// ffmpeg is not on PATH.
	FetchURL string `yaml:"fetch_url"`
}

// JobsConfig controls the export job ledger.
type JobsConfig struct {
	DBPath string `yaml:"db_path"`
}

// HintsConfig points at the optional remote metadata service.
type HintsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("exporter: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("exporter: parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.Jobs.DBPath == "" {
		c.Jobs.DBPath = "vectormotion.db"
	}
	// Duration deliberately stays 0 here: a zero capture window means
	// each export takes it from markup analysis.
	if c.Defaults.FPS == 0 {
		c.Defaults.FPS = 30
	}
	if c.Defaults.Scale == 0 {
		c.Defaults.Scale = 1
	}
	if c.Defaults.Quality == nil {
		c.Defaults.Quality = QualityOf(0.8)
	}
	if c.Defaults.Format == "" {
		c.Defaults.Format = FormatGIF
	}
}
