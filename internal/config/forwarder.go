// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ForwarderConfig is the full configuration of the wm-forwarder process.
type ForwarderConfig struct {
	Broker     BrokerInfo       `yaml:"broker"`
	Index      IndexInfo        `yaml:"index"`
	Throughput ThroughputConfig `yaml:"throughput"`
	Runtime    RuntimeInfo      `yaml:"runtime"`
	Logging    LoggingInfo      `yaml:"logging"`
}

// IndexInfo is the Elasticsearch connection and target index.
type IndexInfo struct {
	Host     string `yaml:"host"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"` // default: events.windows-monitor-ecs
}

// ThroughputConfig bounds how many unacked deliveries the forwarder holds
// and how many documents accumulate before a bulk flush.
type ThroughputConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
	FlushLimit    int `yaml:"flush_limit"`
}

// LoadForwarderConfig reads and validates the forwarder's YAML configuration.
func LoadForwarderConfig(path string) (*ForwarderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading forwarder config: %w", err)
	}

	var cfg ForwarderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing forwarder config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating forwarder config: %w", err)
	}

	return &cfg, nil
}

func (c *ForwarderConfig) validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker.host is required")
	}
	if c.Index.Host == "" {
		return fmt.Errorf("index.host is required")
	}
	if c.Index.Name == "" {
		c.Index.Name = "events.windows-monitor-ecs"
	}
	if c.Throughput.PrefetchCount <= 0 {
		c.Throughput.PrefetchCount = 256
	}
	if c.Throughput.FlushLimit <= 0 {
		c.Throughput.FlushLimit = 512
	}

	c.Logging.setDefaults()

	return nil
}
