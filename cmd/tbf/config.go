package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the tbf configuration file ($XDG_CONFIG_HOME/tbf/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	PageSize          *int   `yaml:"page_size"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`
	VerifyConcurrency *int   `yaml:"verify_concurrency"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tbf", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config unless required is set.
func LoadConfig(path string, required bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if c.PageSize != nil && *c.PageSize <= 0 {
		return Config{}, fmt.Errorf("config %s: page_size must be > 0, got %d", path, *c.PageSize)
	}
	if c.VerifyConcurrency != nil && *c.VerifyConcurrency <= 0 {
		return Config{}, fmt.Errorf("config %s: verify_concurrency must be > 0, got %d", path, *c.VerifyConcurrency)
	}
	return c, nil
}

// applyLoggingConfig applies config file defaults to the logging flags
// when the corresponding flag was not explicitly set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyPageSize resolves the page size for commands that write files.
// An explicit flag wins over fallback (when > 0), which wins over the config file.
func applyPageSize(c *cli.Command, cfg Config, pageSize *int, fallback int) {
	if c.IsSet("page-size") {
		return
	}
	if fallback > 0 {
		*pageSize = fallback
		return
	}
	if cfg.PageSize != nil {
		*pageSize = *cfg.PageSize
	}
}

func applyVerifyConfig(c *cli.Command, cfg Config, concurrency *int) {
	if cfg.VerifyConcurrency != nil && !c.IsSet("concurrency") {
		*concurrency = *cfg.VerifyConcurrency
	}
}
