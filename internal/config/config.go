package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionConfig represents a pre-configured record store in the config file.
type ConnectionConfig struct {
	Name     string `yaml:"name"`
	Scheme   string `yaml:"scheme"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	OrgID    string `yaml:"org_id"`
	APIKey   string `yaml:"api_key"`
	Insecure bool   `yaml:"insecure"`
}

// Config holds all configuration (CLI flags + config file).
type Config struct {
	Listen      string             `yaml:"listen"`
	LogLevel    string             `yaml:"log_level"`
	CacheTTL    time.Duration      `yaml:"cache_ttl"`
	Demo        bool               `yaml:"-"`
	Connections []ConnectionConfig `yaml:"connections"`

	// internal: path to config file (from CLI flag)
	configFile string
}

// Parse reads CLI flags, then overlays config file values.
// CLI flags take precedence over config file values.
func Parse() *Config {
	c := &Config{}
	flag.StringVar(&c.configFile, "config", "", "Path to config file (YAML)")
	flag.StringVar(&c.Listen, "listen", "", "HTTP listen address")
	flag.StringVar(&c.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.DurationVar(&c.CacheTTL, "cache-ttl", 0, "Field metadata cache TTL")
	flag.BoolVar(&c.Demo, "demo", false, "Demo mode (seed an in-memory record store)")
	flag.Parse()

	// Load config file if specified
	if c.configFile != "" {
		if err := c.loadFile(c.configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
			os.Exit(1)
		}
	}

	// Apply defaults for anything still unset
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}

	return c
}

// loadFile reads a YAML config file. Values from the file are only applied
// if the corresponding CLI flag was not explicitly set.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Only apply file values if CLI flag wasn't set
	if c.Listen == "" && file.Listen != "" {
		c.Listen = file.Listen
	}
	if c.LogLevel == "" && file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	if c.CacheTTL <= 0 && file.CacheTTL > 0 {
		c.CacheTTL = file.CacheTTL
	}

	// Connections always come from config file
	c.Connections = file.Connections

	return nil
}
