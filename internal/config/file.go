// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML decoding. Durations are strings in Go
// duration syntax; pointers distinguish "absent" from zero values.
type fileConfig struct {
	ListenAddr *string `yaml:"listen_addr"`
	DataDir    *string `yaml:"data_dir"`
	LogLevel   *string `yaml:"log_level"`

	AcquireTimeout   *string `yaml:"acquire_timeout"`
	RemovalPolicy    *string `yaml:"removal_policy"`
	IdleSessionTTL   *string `yaml:"idle_session_ttl"`
	SweepInterval    *string `yaml:"sweep_interval"`
	AutoAdvance      *bool   `yaml:"auto_advance"`
	IdempotencyTTL   *string `yaml:"idempotency_ttl"`
	SubscriberBuffer *int    `yaml:"subscriber_buffer"`

	CatalogFile *string `yaml:"catalog_file"`
	RedisAddr   *string `yaml:"redis_addr"`
	CatalogTTL  *string `yaml:"catalog_ttl"`

	RequestRateLimit *int     `yaml:"request_rate_limit"`
	EnqueuePerMinute *float64 `yaml:"enqueue_per_minute"`
	EnqueueBurst     *int     `yaml:"enqueue_burst"`
}

// Load builds the effective configuration. Precedence, lowest to highest:
// built-in defaults, the YAML file (when path is set and the file exists),
// environment variables.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := f.apply(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// apply copies file values into cfg for every field whose environment
// variable is unset, so env always wins over the file.
func (f *fileConfig) apply(cfg *Config) error {
	setStr := func(env string, dst *string, v *string) {
		if v != nil && !envSet(env) {
			*dst = *v
		}
	}
	setInt := func(env string, dst *int, v *int) {
		if v != nil && !envSet(env) {
			*dst = *v
		}
	}
	setDur := func(env string, dst *time.Duration, v *string) error {
		if v == nil || envSet(env) {
			return nil
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", *v, err)
		}
		*dst = d
		return nil
	}

	setStr("JAMD_LISTEN", &cfg.ListenAddr, f.ListenAddr)
	setStr("JAMD_DATA_DIR", &cfg.DataDir, f.DataDir)
	setStr("JAMD_LOG_LEVEL", &cfg.LogLevel, f.LogLevel)
	setStr("JAMD_CATALOG_FILE", &cfg.CatalogFile, f.CatalogFile)
	setStr("JAMD_REDIS_ADDR", &cfg.RedisAddr, f.RedisAddr)

	if f.RemovalPolicy != nil && !envSet("JAMD_REMOVAL_POLICY") {
		cfg.RemovalPolicy = RemovalPolicy(*f.RemovalPolicy)
	}
	if f.AutoAdvance != nil && !envSet("JAMD_AUTO_ADVANCE") {
		cfg.AutoAdvance = *f.AutoAdvance
	}
	if f.EnqueuePerMinute != nil && !envSet("JAMD_ENQUEUE_PER_MINUTE") {
		cfg.EnqueuePerMinute = *f.EnqueuePerMinute
	}

	setInt("JAMD_SUBSCRIBER_BUFFER", &cfg.SubscriberBuffer, f.SubscriberBuffer)
	setInt("JAMD_REQUEST_RATE_LIMIT", &cfg.RequestRateLimit, f.RequestRateLimit)
	setInt("JAMD_ENQUEUE_BURST", &cfg.EnqueueBurst, f.EnqueueBurst)

	for _, d := range []struct {
		env string
		dst *time.Duration
		v   *string
	}{
		{"JAMD_ACQUIRE_TIMEOUT", &cfg.AcquireTimeout, f.AcquireTimeout},
		{"JAMD_IDLE_SESSION_TTL", &cfg.IdleSessionTTL, f.IdleSessionTTL},
		{"JAMD_SWEEP_INTERVAL", &cfg.SweepInterval, f.SweepInterval},
		{"JAMD_IDEMPOTENCY_TTL", &cfg.IdempotencyTTL, f.IdempotencyTTL},
		{"JAMD_CATALOG_TTL", &cfg.CatalogTTL, f.CatalogTTL},
	} {
		if err := setDur(d.env, d.dst, d.v); err != nil {
			return err
		}
	}
	return nil
}

func envSet(name string) bool {
	v, ok := os.LookupEnv(name)
	return ok && v != ""
}
