package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the API credentials.
const (
	EnvAPIID   = "TELEGRAM_API_ID"
	EnvAPIHash = "TELEGRAM_API_HASH"
)

// Config represents the global ~/.tgbridge/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	APIID          int      `toml:"api_id"`
	APIHash        string   `toml:"api_hash"`
	HTTPAddr       string   `toml:"http_addr"`
	SendTimeout    Duration `toml:"send_timeout"`
	DialogLimit    int      `toml:"dialog_limit"`
	HistoryLimit   int      `toml:"history_limit"`
	LogLevel       string   `toml:"log_level"`
}

// Duration is a time.Duration written as a string such as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		HTTPAddr:     "127.0.0.1:8081",
		SendTimeout:  Duration{10 * time.Second},
		DialogLimit:  100,
		HistoryLimit: 1000,
		LogLevel:     "info",
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, but a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ApplyEnv overrides the API credentials from the process environment,
// falling back to the given .env files. Missing files are skipped; later
// files win over earlier ones.
func (c *Config) ApplyEnv(dotenvPaths ...string) error {
	fileVars := make(map[string]string)
	for _, p := range dotenvPaths {
		vars, err := godotenv.Read(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		maps.Copy(fileVars, vars)
	}
	lookup := func(key string) (string, bool) {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}

	if v, ok := lookup(EnvAPIID); ok && v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAPIID, err)
		}
		c.APIID = id
	}
	if v, ok := lookup(EnvAPIHash); ok && v != "" {
		c.APIHash = v
	}
	return nil
}

// Validate checks that the daemon can start with c.
func (c *Config) Validate() error {
	if c.APIID == 0 || c.APIHash == "" {
		return fmt.Errorf("api_id and api_hash are required (set them in config.toml or %s/%s)", EnvAPIID, EnvAPIHash)
	}
	if c.DialogLimit <= 0 || c.HistoryLimit <= 0 {
		return errors.New("dialog_limit and history_limit must be positive")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
