// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/windowsmonitor/wm-telemetry/internal/config"
	"github.com/windowsmonitor/wm-telemetry/internal/pki"
	"github.com/windowsmonitor/wm-telemetry/internal/schema"
)

const backupUploadInterval = 30 * time.Second

// funcModule adapts a blocking, context-aware run loop into a Module,
// so the health monitor, connector, and backup-upload sweep can all be
// driven by the same RunModules supervisor loop as a real EventSource.
type funcModule struct {
	BaseModule
	run    func(ctx context.Context)
	cancel context.CancelFunc
	log    *slog.Logger
}

func newFuncModule(name string, log *slog.Logger, run func(ctx context.Context)) *funcModule {
	return &funcModule{BaseModule: NewBaseModule(name), run: run, log: log}
}

func (m *funcModule) Listen(ctx context.Context) error { return nil }

func (m *funcModule) Handle(ctx context.Context) error {
	child, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	defer cancel()
	m.run(child)
	return nil
}

func (m *funcModule) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.BaseModule.Stop(m.log)
}

// RunSupervisor wires the agent's modules together — system-info refresh,
// health probing, the connector's send/backup loop, the backup-upload
// sweep, and the event source — and drives them until ctx is canceled.
func RunSupervisor(ctx context.Context, cfg *config.AgentConfig, source EventSource, log *slog.Logger) error {
	monitor, err := schema.NewMonitor(ctx, time.Duration(cfg.System.RefreshIntervalSeconds*float64(time.Second)))
	if err != nil {
		return fmt.Errorf("taking initial system snapshot: %w", err)
	}

	backup, err := OpenBackupStore(cfg.Backup.Directory, log)
	if err != nil {
		return fmt.Errorf("opening backup store: %w", err)
	}
	defer backup.Close()

	tlsCfg, err := pki.NewClientTLSConfig(cfg.TLS.CACert, cfg.TLS.ClientCert, cfg.TLS.ClientKey)
	if err != nil {
		return fmt.Errorf("building client TLS config: %w", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsCfg,
			DialContext:     newResolverDialer(cfg.DNSResolve).DialContext,
		},
	}

	traceURL := "https://" + cfg.Server.Address + "/trace"
	backupURL := "https://" + cfg.Server.Address + "/backup"
	healthURL := "https://" + cfg.Server.Address + "/health-check"

	health := NewHealthMonitor(cfg.EventPost.ConcurrencyLimit, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		res, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusNoContent {
			return fmt.Errorf("health check returned status %s", res.Status)
		}
		return nil
	}, log)

	connector := NewConnector(ConnectorConfig{
		QueueLimit:  cfg.EventPost.QueueLimit,
		PoolSize:    cfg.EventPost.ConcurrencyLimit,
		FlushLimit:  cfg.EventPost.FlushLimit,
		TraceURL:    traceURL,
		ZstdLevel:   cfg.System.ZstdCompressionLevel,
	}, httpClient, health, backup, monitor, log)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-source.Events():
				if !ok {
					return
				}
				connector.Submit(evt)
			}
		}
	}()

	modules := []Module{
		source,
		newFuncModule("system-monitor", log, monitor.Run),
		newFuncModule("health-monitor", log, health.Run),
		newFuncModule("connector", log, connector.Run),
		newFuncModule("backup-upload", log, func(ctx context.Context) {
			ticker := time.NewTicker(backupUploadInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := backup.Upload(ctx, httpClient, backupURL, cfg.Backup.UploadBandwidthRaw); err != nil {
						log.Warn("backup upload sweep failed", "error", err)
					}
				}
			}
		}),
	}

	RunModules(ctx, log, modules...)
	return nil
}
