package addressbook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataDirOption is the command-line option naming the data directory.
const DataDirOption = "dataDir"

// ErrNoDataDir indicates no data directory was configured anywhere.
var ErrNoDataDir = errors.New("no data directory was provided")

type Config struct {
	DataDir  string `yaml:"data_dir"`
	Addr     string `yaml:"addr"`
	Format   string `yaml:"format"`
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the built-in settings. DataDir has no default.
func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		Format:   FormatLines,
		LogLevel: "info",
	}
}

// DefaultConfigPath returns ~/.config/addressbook/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".addressbook.yaml"
	}
	return filepath.Join(home, ".config", "addressbook", "config.yaml")
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file yields defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// Comment-only files decode to EOF.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from ADDRESSBOOK_* environment variables.
func (c *Config) ApplyEnv() {
	c.DataDir = getString("ADDRESSBOOK_DATA_DIR", c.DataDir)
	c.Addr = getString("ADDRESSBOOK_ADDR", c.Addr)
	c.Format = getString("ADDRESSBOOK_FORMAT", c.Format)
	c.LogLevel = getString("ADDRESSBOOK_LOG_LEVEL", c.LogLevel)
}

func getString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// ResolveDataDir returns the first non-empty value of the dataDir option,
// falling back to defaultDir. It fails with ErrNoDataDir when neither is set.
func ResolveDataDir(opts map[string][]string, defaultDir string) (string, error) {
	for _, v := range opts[DataDirOption] {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	if d := strings.TrimSpace(defaultDir); d != "" {
		return d, nil
	}
	return "", ErrNoDataDir
}
