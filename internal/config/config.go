package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type ConfigLoad func() (AppConfig, error)

func AppConfigLoader() ConfigLoad {
	return LoadAppConfig
}

// FileLoader loads the config from an explicit path.
func FileLoader(path string) ConfigLoad {
	return func() (AppConfig, error) {
		return LoadAppConfigFrom(path)
	}
}

const (
	DefaultDatabasePath = "twittersphere.db"
	DefaultWorkers      = 4
	DefaultBatchSize    = "1MiB"
	DefaultStagingSize  = "2GiB"
	DefaultOnError      = "abort"
)

// PrepareConfig carries the settings of the prepare command.
type PrepareConfig struct {
	Workers     int    `yaml:"workers"`
	BatchSize   string `yaml:"batch_size"`
	StagingSize string `yaml:"staging_size"`
	OnError     string `yaml:"on_error"`
}

// AppConfig is the whole configuration file.
type AppConfig struct {
	DatabasePath string        `yaml:"database_path"`
	LogFile      string        `yaml:"log_file"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	Prepare      PrepareConfig `yaml:"prepare"`
}

// Default returns the configuration used when no file exists.
func Default() AppConfig {
	return AppConfig{
		DatabasePath: DefaultDatabasePath,
		Prepare: PrepareConfig{
			Workers:     DefaultWorkers,
			BatchSize:   DefaultBatchSize,
			StagingSize: DefaultStagingSize,
			OnError:     DefaultOnError,
		},
	}
}

// DefaultConfigPath is ~/.config/twittersphere/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "twittersphere", "config.yaml"), nil
}

// LoadAppConfig reads the config from its default location.
func LoadAppConfig() (AppConfig, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadAppConfigFrom(path)
}

// LoadAppConfigFrom reads the config at path over the defaults. A missing file
// is not an error; a malformed one is.
func LoadAppConfigFrom(path string) (AppConfig, error) {
	ac := Default()
	b, err := os.ReadFile(ExpandPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return ac, nil
	}
	if err != nil {
		return ac, err
	}
	if err := yaml.Unmarshal(b, &ac); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}

	// Keys present but empty fall back to the defaults.
	def := Default()
	if strings.TrimSpace(ac.DatabasePath) == "" {
		ac.DatabasePath = def.DatabasePath
	}
	if ac.Prepare.Workers <= 0 {
		ac.Prepare.Workers = def.Prepare.Workers
	}
	if strings.TrimSpace(ac.Prepare.BatchSize) == "" {
		ac.Prepare.BatchSize = def.Prepare.BatchSize
	}
	if strings.TrimSpace(ac.Prepare.StagingSize) == "" {
		ac.Prepare.StagingSize = def.Prepare.StagingSize
	}
	if strings.TrimSpace(ac.Prepare.OnError) == "" {
		ac.Prepare.OnError = def.Prepare.OnError
	}
	ac.DatabasePath = ExpandPath(ac.DatabasePath)
	ac.LogFile = ExpandPath(ac.LogFile)
	return ac, nil
}

// BatchBytes parses BatchSize.
func (p PrepareConfig) BatchBytes() (int64, error) {
	return ParseSize(p.BatchSize)
}

// StagingBytes parses StagingSize.
func (p PrepareConfig) StagingBytes() (int64, error) {
	return ParseSize(p.StagingSize)
}

// ParseSize accepts sizes such as "1MiB", "512 KB" or "2147483648".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid size %q: must be positive", s)
	}
	return int64(n), nil
}

// ExpandPath expands leading ~ and environment variables in a filesystem path.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	// Expand environment variables like $HOME
	p = os.ExpandEnv(p)
	// Expand leading ~
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}
