// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentConfig is the full configuration of the wm-agent process.
type AgentConfig struct {
	Agent      AgentInfo    `yaml:"agent"`
	Server     ServerAddr   `yaml:"server"`
	TLS        TLSClient    `yaml:"tls"`
	System     SystemInfo   `yaml:"system"`
	Backup     BackupConfig `yaml:"backup"`
	EventPost  EventPost    `yaml:"event_post"`
	DNSResolve map[string]string `yaml:"dns_resolver"`
	Runtime    RuntimeInfo  `yaml:"runtime"`
	Logging    LoggingInfo  `yaml:"logging"`
}

// AgentInfo identifies the agent and the Windows service/credential hooks
// a production build would use to read the client certificate passphrase.
type AgentInfo struct {
	Name                string `yaml:"name"`
	ServiceName         string `yaml:"service_name"`
	PasswordRegistryKey string `yaml:"password_registry_key"`
}

// ServerAddr is the gateway's address, e.g. "gateway.example.com:8443".
type ServerAddr struct {
	Address string `yaml:"address"`
}

// TLSClient contains the mTLS material used by the agent's HTTP client.
type TLSClient struct {
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// SystemInfo configures how often the cached host snapshot is refreshed
// and the zstd level used to compress outgoing batches.
type SystemInfo struct {
	RefreshIntervalSeconds float64 `yaml:"refresh_interval_seconds"`
	ZstdCompressionLevel   int     `yaml:"zstd_compression_level"`
}

// BackupConfig controls the on-disk spool used while the connector is
// disconnected from the gateway.
type BackupConfig struct {
	Directory       string `yaml:"directory"`
	UploadBandwidth string `yaml:"upload_bandwidth_limit"` // e.g. "10mb", 0/"" = unlimited
	UploadBandwidthRaw int64 `yaml:"-"`
}

// EventPost controls the Connector's concurrency and flush thresholds.
type EventPost struct {
	ConcurrencyLimit int `yaml:"concurrency_limit"`
	FlushLimit       int `yaml:"flush_limit"`
	QueueLimit       int `yaml:"queue_limit"`
}

// RuntimeInfo controls GOMAXPROCS/GOMEMLIMIT tuning at process start.
type RuntimeInfo struct {
	Threads int `yaml:"threads"` // 0 = automatic (automaxprocs)
}

// LoadAgentConfig reads and validates the agent's YAML configuration file.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent config: %w", err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating agent config: %w", err)
	}

	return &cfg, nil
}

func (c *AgentConfig) validate() error {
	if c.Agent.Name == "" {
		return fmt.Errorf("agent.name is required")
	}
	if c.Agent.ServiceName == "" {
		c.Agent.ServiceName = "WindowsMonitorAgent"
	}
	if c.Agent.PasswordRegistryKey == "" {
		c.Agent.PasswordRegistryKey = `SOFTWARE\WindowsMonitor\CertificatePassword`
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.TLS.CACert == "" {
		return fmt.Errorf("tls.ca_cert is required")
	}
	if c.TLS.ClientCert == "" {
		return fmt.Errorf("tls.client_cert is required")
	}
	if c.TLS.ClientKey == "" {
		return fmt.Errorf("tls.client_key is required")
	}

	if c.System.RefreshIntervalSeconds <= 0 {
		c.System.RefreshIntervalSeconds = 30
	}
	if c.System.ZstdCompressionLevel == 0 {
		c.System.ZstdCompressionLevel = 3
	}

	if c.Backup.Directory == "" {
		return fmt.Errorf("backup.directory is required")
	}
	if c.Backup.UploadBandwidth == "" || c.Backup.UploadBandwidth == "0" {
		c.Backup.UploadBandwidthRaw = 0
	} else {
		parsed, err := ParseByteSize(c.Backup.UploadBandwidth)
		if err != nil {
			return fmt.Errorf("backup.upload_bandwidth_limit: %w", err)
		}
		c.Backup.UploadBandwidthRaw = parsed
	}

	if c.EventPost.ConcurrencyLimit <= 0 {
		c.EventPost.ConcurrencyLimit = 8
	}
	if c.EventPost.FlushLimit <= 0 {
		c.EventPost.FlushLimit = 512
	}
	if c.EventPost.QueueLimit <= 0 {
		c.EventPost.QueueLimit = 4096
	}

	c.Logging.setDefaults()

	return nil
}
