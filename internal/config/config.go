// SPDX-License-Identifier: MIT

// Package config holds the daemon configuration, sourced from an optional
// YAML file overlaid by environment variables.
package config

import (
	"fmt"
	"time"
)

// RemovalPolicy controls who may remove a queued entry.
type RemovalPolicy string

const (
	// RemovalAny lets every participant remove any entry.
	RemovalAny RemovalPolicy = "any"
	// RemovalContributor restricts removal to the entry's contributor.
	RemovalContributor RemovalPolicy = "contributor"
	// RemovalOwner restricts removal to the session creator.
	RemovalOwner RemovalPolicy = "owner"
)

// Config is the full daemon configuration.
type Config struct {
	ListenAddr string
	DataDir    string
	LogLevel   string

	// Engine
	AcquireTimeout   time.Duration
	RemovalPolicy    RemovalPolicy
	IdleSessionTTL   time.Duration
	SweepInterval    time.Duration
	AutoAdvance      bool
	IdempotencyTTL   time.Duration
	SubscriberBuffer int

	// Catalog
	CatalogFile string
	RedisAddr   string
	CatalogTTL  time.Duration

	// API
	RequestRateLimit int     // requests/min per client IP
	EnqueuePerMinute float64 // enqueues/min per participant
	EnqueueBurst     int
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() Config {
	return Config{
		ListenAddr: ParseString("JAMD_LISTEN", ":8080"),
		DataDir:    ParseString("JAMD_DATA_DIR", "./data"),
		LogLevel:   ParseString("JAMD_LOG_LEVEL", "info"),

		AcquireTimeout:   ParseDuration("JAMD_ACQUIRE_TIMEOUT", 5*time.Second),
		RemovalPolicy:    RemovalPolicy(ParseString("JAMD_REMOVAL_POLICY", string(RemovalContributor))),
		IdleSessionTTL:   ParseDuration("JAMD_IDLE_SESSION_TTL", 30*time.Minute),
		SweepInterval:    ParseDuration("JAMD_SWEEP_INTERVAL", time.Minute),
		AutoAdvance:      ParseBool("JAMD_AUTO_ADVANCE", true),
		IdempotencyTTL:   ParseDuration("JAMD_IDEMPOTENCY_TTL", 10*time.Minute),
		SubscriberBuffer: ParseInt("JAMD_SUBSCRIBER_BUFFER", 16),

		CatalogFile: ParseString("JAMD_CATALOG_FILE", ""),
		RedisAddr:   ParseString("JAMD_REDIS_ADDR", ""),
		CatalogTTL:  ParseDuration("JAMD_CATALOG_TTL", 15*time.Minute),

		RequestRateLimit: ParseInt("JAMD_REQUEST_RATE_LIMIT", 300),
		EnqueuePerMinute: float64(ParseInt("JAMD_ENQUEUE_PER_MINUTE", 20)),
		EnqueueBurst:     ParseInt("JAMD_ENQUEUE_BURST", 5),
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch c.RemovalPolicy {
	case RemovalAny, RemovalContributor, RemovalOwner:
	default:
		return fmt.Errorf("config: unknown removal policy %q", c.RemovalPolicy)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("config: acquire_timeout must be > 0, got %v", c.AcquireTimeout)
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("config: subscriber_buffer must be > 0, got %d", c.SubscriberBuffer)
	}
	if c.IdleSessionTTL <= 0 {
		return fmt.Errorf("config: idle_session_ttl must be > 0, got %v", c.IdleSessionTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep_interval must be > 0, got %v", c.SweepInterval)
	}
	return nil
}
