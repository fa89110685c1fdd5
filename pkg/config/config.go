// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package config provides configuration management for the mail server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/spoolbox/spoolbox/pkg/queue"
)

// Config holds the server configuration.
type Config struct {
	Hostname     string         `toml:"hostname"`
	Domain       string         `toml:"domain"`
	SpoolDir     string         `toml:"spool_dir"`
	AccountsFile string         `toml:"accounts_file"`
	LogLevel     string         `toml:"log_level"`
	SMTPAddr     string         `toml:"smtp_addr"`
	POP3Addr     string         `toml:"pop3_addr"`
	Timeouts     TimeoutsConfig `toml:"timeouts"`
	Queue        QueueConfig    `toml:"queue"`
	Metrics      MetricsConfig  `toml:"metrics"`
}

// TimeoutsConfig defines timeout durations as duration strings.
type TimeoutsConfig struct {
	Idle string `toml:"idle"`
}

// QueueConfig bounds the delivery queue and its worker pool.
type QueueConfig struct {
	Capacity int    `toml:"capacity"`
	Policy   string `toml:"policy"`
	Workers  int    `toml:"workers"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname:     "localhost",
		Domain:       "localhost",
		SpoolDir:     "./spool",
		AccountsFile: "./accounts.toml",
		LogLevel:     "info",
		SMTPAddr:     ":2525",
		POP3Addr:     ":1100",
		Timeouts: TimeoutsConfig{
			Idle: "5m",
		},
		Queue: QueueConfig{
			Capacity: 128,
			Policy:   "block",
			Workers:  2,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9110",
			Path:    "/metrics",
		},
	}
}

// Load parses a TOML configuration file and returns the Config merged
// over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}
	if c.Domain == "" {
		return errors.New("domain is required")
	}
	if c.SpoolDir == "" {
		return errors.New("spool_dir is required")
	}
	if c.SMTPAddr == "" {
		return errors.New("smtp_addr is required")
	}
	if c.POP3Addr == "" {
		return errors.New("pop3_addr is required")
	}

	if c.Queue.Capacity <= 0 {
		return errors.New("queue capacity must be positive")
	}
	if c.Queue.Workers <= 0 {
		return errors.New("queue workers must be positive")
	}
	if _, err := c.QueuePolicy(); err != nil {
		return err
	}

	if c.Timeouts.Idle != "" {
		if _, err := time.ParseDuration(c.Timeouts.Idle); err != nil {
			return fmt.Errorf("invalid idle timeout: %w", err)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	return nil
}

// IdleTimeout returns the idle timeout as a time.Duration. Returns
// 5 minutes if not configured or invalid.
func (c *TimeoutsConfig) IdleTimeout() time.Duration {
	if c.Idle == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.Idle)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// QueuePolicy maps the configured policy name onto the queue's
// overflow behavior.
func (c *Config) QueuePolicy() (queue.Policy, error) {
	switch c.Queue.Policy {
	case "", "block":
		return queue.PolicyBlock, nil
	case "reject":
		return queue.PolicyReject, nil
	case "drop_oldest":
		return queue.PolicyDropOldest, nil
	default:
		return "", fmt.Errorf("invalid queue policy %q (valid: block, reject, drop_oldest)", c.Queue.Policy)
	}
}
