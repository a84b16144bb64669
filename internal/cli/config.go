package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML config file. Every field is optional.
//
// Example:
//
//	db: ./data/soups.db
//	blobs:
//	  dir: ./data/blobs
//	  backend: bolt
//	  threshold: 4096
type Config struct {
	DB         string     `yaml:"db,omitempty"`
	Passphrase string     `yaml:"passphrase,omitempty"`
	Driver     string     `yaml:"driver,omitempty"`
	Blobs      BlobConfig `yaml:"blobs,omitempty"`
}

// BlobConfig is the blobs section of Config.
type BlobConfig struct {
	Dir       string `yaml:"dir,omitempty"`
	Backend   string `yaml:"backend,omitempty"`
	Threshold *int   `yaml:"threshold,omitempty"`
}

// LoadConfig reads a config file. Unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// Apply copies config values into opts for every flag for which changed
// reports false.
func (c *Config) Apply(opts *RootOptions, changed func(flag string) bool) {
	set := func(name string, dst *string, v string) {
		if v != "" && !changed(name) {
			*dst = v
		}
	}
	set("db", &opts.Database, c.DB)
	set("passphrase", &opts.Passphrase, c.Passphrase)
	set("driver", &opts.Driver, c.Driver)
	set("blobs", &opts.BlobDir, c.Blobs.Dir)
	set("blob-backend", &opts.BlobBackend, c.Blobs.Backend)
	if c.Blobs.Threshold != nil && !changed("external-threshold") {
		opts.ExternalThreshold = *c.Blobs.Threshold
	}
}
