package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"patchmon/internal/errors"
)

// Config represents the complete patchmon configuration
type Config struct {
	Version  int    `yaml:"version" mapstructure:"version"`
	StateDir string `yaml:"stateDir" mapstructure:"stateDir"`

	Upstream   UpstreamConfig              `yaml:"upstream" mapstructure:"upstream"`
	Distros    []DistroConfig              `yaml:"distros" mapstructure:"distros"`
	Window     WindowConfig                `yaml:"window" mapstructure:"window"`
	Confidence map[string]ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Symbols    SymbolsConfig               `yaml:"symbols" mapstructure:"symbols"`
	Logging    LoggingConfig               `yaml:"logging" mapstructure:"logging"`
}

// UpstreamConfig describes the upstream history being tracked
type UpstreamConfig struct {
	Repo      string   `yaml:"repo" mapstructure:"repo"`
	Reference string   `yaml:"reference" mapstructure:"reference"`
	// Sections are MAINTAINERS file section headings whose F: entries
	// form the tracked path set
	Sections []string `yaml:"sections" mapstructure:"sections"`
}

// DistroConfig describes one downstream distribution repo
type DistroConfig struct {
	Name          string `yaml:"name" mapstructure:"name"`
	Repo          string `yaml:"repo" mapstructure:"repo"`
	KernelVersion string `yaml:"kernelVersion" mapstructure:"kernelVersion"`
}

// WindowConfig holds the lookback window for history discovery
type WindowConfig struct {
	// Since is an approxidate expression passed verbatim to git
	// (e.g. "90 days ago" or "2025-06-01")
	Since string `yaml:"since" mapstructure:"since"`
}

// ConfidenceConfig is a named weight vector plus acceptance threshold
// for one downstream family. One field per signal so that adding or
// reordering signals can never silently misalign a vector.
type ConfidenceConfig struct {
	Author      float64 `yaml:"author" mapstructure:"author"`
	Content     float64 `yaml:"content" mapstructure:"content"`
	Description float64 `yaml:"description" mapstructure:"description"`
	Filenames   float64 `yaml:"filenames" mapstructure:"filenames"`
	Time        float64 `yaml:"time" mapstructure:"time"`
	Threshold   float64 `yaml:"threshold" mapstructure:"threshold"`
}

// Sum returns the total of the weight components
func (c ConfidenceConfig) Sum() float64 {
	return c.Author + c.Content + c.Description + c.Filenames + c.Time
}

// SymbolsConfig configures the symbol drift tracker
type SymbolsConfig struct {
	// Baseline is the commit the symbol replay starts from
	Baseline string `yaml:"baseline" mapstructure:"baseline"`
	// Extractor selects the extraction capability: "ctags" or "treesitter"
	Extractor string `yaml:"extractor" mapstructure:"extractor"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Level  string `yaml:"level" mapstructure:"level"`
}

// DefaultFamily is the confidence family used when a distro has no
// family-specific weights
const DefaultFamily = "default"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		StateDir: ".patchmon",
		Upstream: UpstreamConfig{
			Repo:      "https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git",
			Reference: "origin/master",
			Sections:  []string{"Hyper-V CORE AND DRIVERS", "Hyper-V/Azure CORE AND DRIVERS"},
		},
		Distros: []DistroConfig{},
		Window: WindowConfig{
			Since: "90 days ago",
		},
		Confidence: map[string]ConfidenceConfig{
			DefaultFamily: {
				Author:      0.2,
				Content:     0.49,
				Description: 0.1,
				Filenames:   0.2,
				Time:        0.01,
				Threshold:   0.75,
			},
			// Rebased trees rewrite commit messages, so for them only
			// patch content itself can be trusted
			"content-only": {
				Content:   1.0,
				Threshold: 0.75,
			},
		},
		Symbols: SymbolsConfig{
			Extractor: "ctags",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load loads configuration from patchmon.yaml in the given directory,
// falling back to defaults if no file exists
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("patchmon")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("PATCHMON")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, errors.New(errors.ConfigInvalid, "failed to read config file", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New(errors.ConfigInvalid, "failed to parse config file", err)
	}

	return cfg, nil
}

// Save writes the configuration to patchmon.yaml in the given directory
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "patchmon.yaml"), data, 0644)
}

// Validate checks that the configuration can drive a run.
// Any failure here aborts before a single mutation happens.
func (c *Config) Validate() error {
	if c.Upstream.Repo == "" {
		return errors.New(errors.ConfigInvalid, "upstream.repo is required", nil)
	}
	if c.Upstream.Reference == "" {
		return errors.New(errors.ConfigInvalid, "upstream.reference is required", nil)
	}
	if c.Window.Since == "" {
		return errors.New(errors.ConfigInvalid, "window.since is required", nil)
	}
	if _, err := ResolveSince(c.Window.Since); err != nil {
		return errors.New(errors.ConfigInvalid,
			fmt.Sprintf("window.since %q is not a recognized date expression", c.Window.Since), err)
	}

	if _, ok := c.Confidence[DefaultFamily]; !ok {
		return errors.New(errors.ConfigInvalid, "confidence weights for the default family are required", nil)
	}
	for family, weights := range c.Confidence {
		if sum := weights.Sum(); math.Abs(sum-1.0) > 1e-9 {
			return errors.New(errors.ConfigInvalid,
				fmt.Sprintf("confidence weights for family %q sum to %g, want 1.0", family, sum), nil)
		}
		if weights.Threshold <= 0 || weights.Threshold > 1 {
			return errors.New(errors.ConfigInvalid,
				fmt.Sprintf("confidence threshold for family %q must be in (0,1]", family), nil)
		}
	}

	for _, distro := range c.Distros {
		if distro.Name == "" || distro.Repo == "" {
			return errors.New(errors.ConfigInvalid, "every distro needs a name and a repo URL", nil)
		}
	}

	return nil
}

// WeightsFor returns the confidence weights for a distro, using name
// prefix to select the family and falling back to the default family
func (c *Config) WeightsFor(distroName string) ConfidenceConfig {
	for family, weights := range c.Confidence {
		if family == DefaultFamily {
			continue
		}
		if matchesFamily(distroName, family) {
			return weights
		}
	}
	return c.Confidence[DefaultFamily]
}

func matchesFamily(distroName, family string) bool {
	if len(distroName) < len(family) {
		return false
	}
	return distroName[:len(family)] == family
}
