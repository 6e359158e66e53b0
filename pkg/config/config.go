package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
	"github.com/go-go-golems/dbuddy/pkg/query"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DirName  = "dbuddy"
	Filename = "config.yaml"

	DefaultRefresh = 100 * time.Millisecond
)

type Config struct {
	MaxMessages     int           `yaml:"max_messages"`
	GroupBy         []string      `yaml:"group_by,omitempty"`
	Filter          string        `yaml:"filter,omitempty"`
	Mode            string        `yaml:"mode,omitempty"`
	Refresh         time.Duration `yaml:"refresh,omitempty"`
	ChannelCapacity int           `yaml:"channel_capacity,omitempty"`
	LogLevel        string        `yaml:"log_level,omitempty"`
	LogFile         string        `yaml:"log_file,omitempty"`
	MetricsAddr     string        `yaml:"metrics_addr,omitempty"`
}

func Default() *Config {
	return &Config{
		MaxMessages:     history.DefaultMaxMessages,
		GroupBy:         []string{query.GroupNone.String()},
		Mode:            history.ModeBoth.String(),
		Refresh:         DefaultRefresh,
		ChannelCapacity: ingest.DefaultChannelCapacity,
		LogLevel:        "info",
	}
}

// DefaultPath is $XDG_CONFIG_HOME/dbuddy/config.yaml or its platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate config dir")
	}
	return filepath.Join(dir, DirName, Filename), nil
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// LoadOrDefault is Load, but a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	if c == nil {
		return errors.New("nil config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir config dir")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}

func (c *Config) Validate() error {
	if c.MaxMessages < 1 {
		return errors.Errorf("max_messages must be positive, got %d", c.MaxMessages)
	}
	if c.Refresh < 0 {
		return errors.Errorf("refresh must not be negative, got %s", c.Refresh)
	}
	if c.ChannelCapacity < 0 {
		return errors.Errorf("channel_capacity must not be negative, got %d", c.ChannelCapacity)
	}
	if c.Mode != "" {
		if _, err := history.ParseMode(c.Mode); err != nil {
			return err
		}
	}
	if _, err := query.ParseGroupKeys(strings.Join(c.GroupBy, ",")); err != nil {
		return err
	}
	return nil
}

// Query converts c into engine settings.
func (c *Config) Query() (query.Config, error) {
	mode := history.ModeBoth
	if c.Mode != "" {
		m, err := history.ParseMode(c.Mode)
		if err != nil {
			return query.Config{}, err
		}
		mode = m
	}
	keys, err := query.ParseGroupKeys(strings.Join(c.GroupBy, ","))
	if err != nil {
		return query.Config{}, err
	}
	return query.Config{
		MaxMessages: c.MaxMessages,
		GroupBy:     keys,
		Filter:      c.Filter,
		Mode:        mode,
	}, nil
}

// RefreshInterval is Refresh with the default applied.
func (c *Config) RefreshInterval() time.Duration {
	if c.Refresh <= 0 {
		return DefaultRefresh
	}
	return c.Refresh
}
