package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"go.uber.org/zap/zapcore"
)

// ProcessConfig is the YAML-loaded configuration shared by every
// cmd/ server and client binary: the logging level plus the
// directory-store path under which the binary advertises (servers) or
// looks up (clients) its remote object's shmid. Modeled on the
// teacher's coordinator.Config / coordinator.LoadConfig pair.
type ProcessConfig struct {
	// Logging holds the logging.Config (duplicated here rather than
	// imported, to keep config free of a dependency on logging).
	Logging struct {
		Level zapcore.Level `yaml:"level"`
	} `yaml:"logging"`

	// AdvertisePath is the config-directory path (relative to Root)
	// a server binary publishes its remote object's shmid under.
	AdvertisePath string `yaml:"advertise_path"`

	// Owner is the owner string a server stamps on its remote object.
	Owner string `yaml:"owner"`
}

// DefaultProcessConfig returns the zero-value defaults every cmd/
// binary starts from before a YAML file is applied on top.
func DefaultProcessConfig() *ProcessConfig {
	cfg := &ProcessConfig{}
	cfg.Logging.Level = zapcore.InfoLevel
	return cfg
}

// LoadProcessConfig reads and parses the YAML file at path, starting
// from DefaultProcessConfig so an omitted field keeps its default.
func LoadProcessConfig(path string) (*ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultProcessConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
