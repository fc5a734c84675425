// Package config loads the engine configuration from YAML or JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Transports a core can be reached over.
const (
	TransportLoopback = "loopback"
	TransportHTTP     = "http"
)

// Config is the engine configuration.
type Config struct {
	LogLevel    string        `mapstructure:"log_level" yaml:"log_level"`
	Fanout      bool          `mapstructure:"fanout" yaml:"fanout"`
	QueueDepth  int           `mapstructure:"queue_depth" yaml:"queue_depth"`
	Capacity    int           `mapstructure:"capacity" yaml:"capacity"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	Version     uint32        `mapstructure:"version" yaml:"version"`
	Cores       []CoreConfig  `mapstructure:"cores" yaml:"cores"`
	Redis       RedisConfig   `mapstructure:"redis" yaml:"redis"`
	HTTP        HTTPConfig    `mapstructure:"http" yaml:"http"`
	// Manifests is the directory graph manifests are loaded from.
	Manifests string `mapstructure:"manifests" yaml:"manifests"`
	// RunsDir keeps run records as JSON files when Redis is not configured.
	// Empty keeps them in memory.
	RunsDir string `mapstructure:"runs_dir" yaml:"runs_dir"`
}

// CoreConfig describes one core the engine drives.
type CoreConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Core      string `mapstructure:"core" yaml:"core"`
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Priority  int    `mapstructure:"priority" yaml:"priority"`
	MaxLoad   uint32 `mapstructure:"max_load" yaml:"max_load"`
	Transport string `mapstructure:"transport" yaml:"transport"`
	URL       string `mapstructure:"url" yaml:"url"`
	// Kernels restricts the kernels the core is asked to run. Empty means all.
	Kernels []string `mapstructure:"kernels" yaml:"kernels"`
	// Latency is added to every call of a simulated core.
	Latency time.Duration `mapstructure:"latency" yaml:"latency"`
}

// RedisConfig enables the shared run store and cross-process core locks
// when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// HTTPConfig configures the admin and RPC server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a configuration with the DSP and SIMCOP simulated over
// loopback and the CPU as fallback.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		Fanout:      true,
		QueueDepth:  10,
		Capacity:    32,
		CallTimeout: 5 * time.Second,
		Version:     domain.ManagerVersion,
		Cores: []CoreConfig{
			{Name: "dsp", Core: "dsp", Enabled: true, Priority: 2, Transport: TransportLoopback},
			{Name: "simcop", Core: "simcop", Enabled: true, Priority: 1, Transport: TransportLoopback},
			{Name: "cpu", Core: "cpu", Enabled: true},
		},
		Redis: RedisConfig{
			Prefix:  "hetcore:",
			TTL:     24 * time.Hour,
			LockTTL: 30 * time.Second,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	raw := make(map[string]any)
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return Decode(raw)
}

// Decode applies raw, as parsed from a config document, over the defaults.
func Decode(raw map[string]any) (*Config, error) {
	cfg := Default()
	if cores, ok := raw["cores"].([]any); ok {
		// A cores list replaces the default table instead of merging into it.
		cfg.Cores = nil
		for _, c := range cores {
			if m, ok := c.(map[string]any); ok {
				if _, set := m["enabled"]; !set {
					m["enabled"] = true
				}
			}
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem with c.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.QueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("queue_depth must be positive, got %d", c.QueueDepth))
	}
	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be positive, got %d", c.Capacity))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("call_timeout must not be negative"))
	}

	seen := make(map[domain.Core]bool)
	enabled := 0
	for i, cc := range c.Cores {
		core, err := domain.ParseCore(cc.Core)
		if err != nil {
			errs = append(errs, fmt.Errorf("cores[%d]: %w", i, err))
			continue
		}
		if seen[core] {
			errs = append(errs, fmt.Errorf("cores[%d]: duplicate core %s", i, core))
		}
		seen[core] = true
		if cc.Enabled {
			enabled++
		}
		if core == domain.CoreCPU {
			continue
		}
		switch cc.Transport {
		case "", TransportLoopback:
		case TransportHTTP:
			if cc.URL == "" {
				errs = append(errs, fmt.Errorf("cores[%d]: http transport needs a url", i))
			}
		default:
			errs = append(errs, fmt.Errorf("cores[%d]: unknown transport %q", i, cc.Transport))
		}
		for _, k := range cc.Kernels {
			if _, err := domain.ParseKernel(k); err != nil {
				errs = append(errs, fmt.Errorf("cores[%d]: %w", i, err))
			}
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("no core is enabled"))
	}
	return errors.Join(errs...)
}

// Core returns the entry for core, if configured.
func (c *Config) Core(core domain.Core) (CoreConfig, bool) {
	for _, cc := range c.Cores {
		if parsed, err := domain.ParseCore(cc.Core); err == nil && parsed == core {
			return cc, true
		}
	}
	return CoreConfig{}, false
}
