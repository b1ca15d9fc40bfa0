package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/parlor/internal/logits"
)

// Config represents the user configuration file (~/.config/parlor/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Project     string `yaml:"project"`
	Backend     string `yaml:"backend"`
	MetricsFile string `yaml:"metrics_file"`

	// Sampling defaults, applied over the project's [sampling] table.
	Strategy    *string  `yaml:"strategy"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	TopK        *int     `yaml:"top_k"`
	Seed        *int64   `yaml:"seed"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "parlor", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return loadConfigFile(configPath())
}

func loadConfigFile(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyConfig copies config values into the flag variables whose flags were
// not set on the command line.
func applyConfig(c *cli.Command, cfg Config) {
	if cfg.Project != "" && !c.IsSet("project") {
		projectPath = cfg.Project
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.MetricsFile != "" && !c.IsSet("metrics-file") {
		metricsFile = cfg.MetricsFile
	}
	if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
		streamMode = cfg.StreamMode
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// samplingOverrides fills sampling values the project left unset from the
// user config, then applies explicitly set flags on top.
func samplingOverrides(c *cli.Command, cfg Config, p logits.Params) logits.Params {
	if cfg.Strategy != nil && p.Name == "" {
		p.Name = *cfg.Strategy
	}
	if cfg.Temperature != nil && p.Temperature == nil {
		p.Temperature = ptrTo(float32(*cfg.Temperature))
	}
	if cfg.TopP != nil && p.TopP == nil {
		p.TopP = ptrTo(float32(*cfg.TopP))
	}
	if cfg.TopK != nil && p.TopK == nil {
		p.TopK = ptrTo(*cfg.TopK)
	}
	if cfg.Seed != nil && p.Seed == 0 {
		p.Seed = *cfg.Seed
	}

	if c.IsSet("strategy") {
		p.Name = c.String("strategy")
	}
	if c.IsSet("temperature") {
		p.Temperature = ptrTo(float32(c.Float("temperature")))
	}
	if c.IsSet("top-p") {
		p.TopP = ptrTo(float32(c.Float("top-p")))
	}
	if c.IsSet("top-k") {
		p.TopK = ptrTo(c.Int("top-k"))
	}
	if c.IsSet("min-keep") {
		p.MinKeep = c.Int("min-keep")
	}
	if c.IsSet("tau") {
		p.Tau = float32(c.Float("tau"))
	}
	if c.IsSet("eta") {
		p.Eta = float32(c.Float("eta"))
	}
	if c.IsSet("seed") {
		p.Seed = int64(c.Int("seed"))
	}
	return p
}

func ptrTo[T any](v T) *T { return &v }
