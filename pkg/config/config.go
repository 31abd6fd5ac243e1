// Package config loads the fleetadm YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/cuemby/fleetadm/pkg/errs"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its config file
const DefaultPath = "/etc/fleetadm/config.yaml"

// Config is the on-disk fleetadm configuration
type Config struct {
	Datacenter      string        `yaml:"datacenter"`
	DNSDomain       string        `yaml:"dns_domain"`
	UpdateChannel   string        `yaml:"update_channel"`
	DataDir         string        `yaml:"data_dir"`
	LockPath        string        `yaml:"lock_path"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	// RequestRate caps control-plane requests per second; 0 is unlimited
	RequestRate float64 `yaml:"request_rate"`
	// DNSResolver ("host:port") is queried by check-health for every
	// service domain when set
	DNSResolver string     `yaml:"dns_resolver"`
	Exclude     []string   `yaml:"exclude"`
	Log         LogConfig  `yaml:"log"`
	Endpoints   Endpoints  `yaml:"endpoints"`
	Wait        WaitConfig `yaml:"wait"`
}

// LogConfig controls logger output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Endpoints are the base URLs of the remote control-plane services
type Endpoints struct {
	SAPI   string `yaml:"sapi"`
	CNAPI  string `yaml:"cnapi"`
	VMAPI  string `yaml:"vmapi"`
	IMGAPI string `yaml:"imgapi"`
	PAPI   string `yaml:"papi"`
	NAPI   string `yaml:"napi"`
	// Updates is the image source of the update channel
	Updates string `yaml:"updates"`
}

// WaitConfig bounds the polling done by the bootstrap state machines
type WaitConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Attempts     int           `yaml:"attempts"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	RestartPause time.Duration `yaml:"restart_pause"`
}

// Default returns a Config with every field set to its default
func Default() *Config {
	return &Config{
		Datacenter:     "coal",
		DNSDomain:      "joyent.us",
		UpdateChannel:  "release",
		DataDir:        "/var/fleetadm",
		LockPath:       "/var/run/fleetadm.lock",
		RequestTimeout: 30 * time.Second,
		RequestRate:    20,
		Log: LogConfig{
			Level: "info",
		},
		Endpoints: Endpoints{
			SAPI:    "http://sapi.coal.joyent.us",
			CNAPI:   "http://cnapi.coal.joyent.us",
			VMAPI:   "http://vmapi.coal.joyent.us",
			IMGAPI:  "http://imgapi.coal.joyent.us",
			PAPI:    "http://papi.coal.joyent.us",
			NAPI:    "http://napi.coal.joyent.us",
			Updates: "https://updates.tritondatacenter.com",
		},
		Wait: WaitConfig{
			Interval:     5 * time.Second,
			Attempts:     60,
			SettleDelay:  30 * time.Second,
			RestartPause: 5 * time.Second,
		},
	}
}

// Load reads path on top of the defaults. A missing file at DefaultPath
// yields the defaults; a missing file anywhere else is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &errs.ValidationError{Field: path, Msg: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config is usable
func (c *Config) Validate() error {
	if c.Datacenter == "" {
		return &errs.ValidationError{Field: "datacenter", Msg: "must not be empty"}
	}
	if c.DataDir == "" {
		return &errs.ValidationError{Field: "data_dir", Msg: "must not be empty"}
	}
	if c.LockPath == "" {
		return &errs.ValidationError{Field: "lock_path", Msg: "must not be empty"}
	}
	if c.RequestRate < 0 {
		return &errs.ValidationError{Field: "request_rate", Msg: "must not be negative"}
	}
	if c.Wait.Attempts < 1 {
		return &errs.ValidationError{Field: "wait.attempts", Msg: "must be at least 1"}
	}
	if c.Wait.Interval <= 0 {
		return &errs.ValidationError{Field: "wait.interval", Msg: "must be positive"}
	}

	endpoints := map[string]string{
		"endpoints.sapi":    c.Endpoints.SAPI,
		"endpoints.cnapi":   c.Endpoints.CNAPI,
		"endpoints.vmapi":   c.Endpoints.VMAPI,
		"endpoints.imgapi":  c.Endpoints.IMGAPI,
		"endpoints.papi":    c.Endpoints.PAPI,
		"endpoints.napi":    c.Endpoints.NAPI,
		"endpoints.updates": c.Endpoints.Updates,
	}
	for field, raw := range endpoints {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &errs.ValidationError{Field: field, Msg: fmt.Sprintf("not a valid URL: %q", raw)}
		}
	}
	return nil
}
