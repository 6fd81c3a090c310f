// Package config reads the configuration of an aggregation run.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	atspm "github.com/chengulatj/ATSPM-Aggregation"
)

// Config describes a run: where the data lives and which aggregations to
// compute, in order.
type Config struct {
	// Driver is the database/sql driver name, "duckdb" or "sqlite3".
	Driver string `toml:"driver" yaml:"driver"`

	// DSN is the data source name given to the driver. Empty opens an
	// in-memory database.
	DSN string `toml:"dsn" yaml:"dsn"`

	// Dialect defaults to the dialect of Driver.
	Dialect string `toml:"dialect" yaml:"dialect"`

	// Templates is a directory of <name>.sql templates. Empty uses the
	// templates shipped with the engine.
	Templates string `toml:"templates" yaml:"templates"`

	// VolumeWindow overrides the window used to reconstruct full_ped
	// volumes.
	VolumeWindow int `toml:"volume_window" yaml:"volume_window"`

	// Transactional runs every plan in a transaction.
	Transactional bool `toml:"transactional" yaml:"transactional"`

	Log LogConfig `toml:"log" yaml:"log"`

	Aggregations []Aggregation `toml:"aggregations" yaml:"aggregations"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Aggregation is one aggregation to compute.
type Aggregation struct {
	Name string `toml:"name" yaml:"name"`
	// ToSQL prints the statements instead of running them.
	ToSQL  bool           `toml:"to_sql" yaml:"to_sql"`
	Params map[string]any `toml:"params" yaml:"params"`
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// read as YAML, anything else as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			if key := firstUnknown(undecoded); key != "" {
				return nil, fmt.Errorf("failed to parse config %s: unknown key %q", path, key)
			}
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// firstUnknown returns the first undecoded key outside of the free-form
// aggregation parameters.
func firstUnknown(keys []toml.Key) string {
	for _, k := range keys {
		if len(k) >= 2 && k[0] == "aggregations" && k[1] == "params" {
			continue
		}
		return k.String()
	}
	return ""
}

func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = "duckdb"
	}
	if c.Dialect == "" {
		if c.Driver == "sqlite3" {
			c.Dialect = "sqlite"
		} else {
			c.Dialect = "duckdb"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Aggregations {
		if c.Aggregations[i].Params == nil {
			c.Aggregations[i].Params = map[string]any{}
		}
	}
}

// Validate checks driver, dialect and aggregation names.
func (c *Config) Validate() error {
	switch c.Driver {
	case "duckdb", "sqlite3":
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if _, err := atspm.ParseDialect(c.Dialect); err != nil {
		return err
	}
	if c.VolumeWindow < 0 {
		return fmt.Errorf("volume_window must not be negative, got %d", c.VolumeWindow)
	}
	for i, agg := range c.Aggregations {
		if _, err := atspm.ParseName(agg.Name); err != nil {
			return fmt.Errorf("aggregation %d: %w", i, err)
		}
	}
	return nil
}

// EngineOptions returns the engine options the configuration asks for.
func (c *Config) EngineOptions() ([]atspm.Option, error) {
	d, err := atspm.ParseDialect(c.Dialect)
	if err != nil {
		return nil, err
	}
	opts := []atspm.Option{atspm.WithDialect(d)}
	if c.VolumeWindow > 0 {
		opts = append(opts, atspm.WithVolumeWindow(c.VolumeWindow))
	}
	if c.Transactional {
		opts = append(opts, atspm.WithTransactionalPlans())
	}
	return opts, nil
}

// Renderer returns the template renderer the configuration asks for.
func (c *Config) Renderer() *atspm.Renderer {
	if c.Templates == "" {
		return atspm.DefaultRenderer()
	}
	return atspm.NewDirRenderer(c.Templates)
}
