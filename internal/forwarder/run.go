// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/windowsmonitor/wm-telemetry/internal/broker"
	"github.com/windowsmonitor/wm-telemetry/internal/config"
	"github.com/windowsmonitor/wm-telemetry/internal/searchindex"
)

const idleFlushInterval = time.Second

const consumerTag = "data-service-consumer"

// Run connects to the broker and search index, consumes the "events"
// queue, and drives a Forwarder until ctx is canceled.
func Run(ctx context.Context, cfg *config.ForwarderConfig, logger *slog.Logger) error {
	ch := broker.New(cfg.Broker.Host)
	defer ch.Close()

	index := searchindex.New(cfg.Index.Host, cfg.Index.Username, cfg.Index.Password, cfg.Index.Name)

	deliveries, err := ch.Consume(ctx, cfg.Throughput.PrefetchCount, consumerTag)
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	f := New(index, cfg.Throughput.FlushLimit, logger)

	ticker := time.NewTicker(idleFlushInterval)
	defer ticker.Stop()

	logger.Info("forwarder started", "prefetch", cfg.Throughput.PrefetchCount, "flush_limit", cfg.Throughput.FlushLimit)

	for {
		select {
		case <-ctx.Done():
			f.Flush(context.Background())
			return nil

		case d, ok := <-deliveries:
			if !ok {
				f.Flush(context.Background())
				return fmt.Errorf("broker delivery channel closed")
			}
			f.Process(ctx, d)

		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}
