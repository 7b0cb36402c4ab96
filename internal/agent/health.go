// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	initialProbeInterval = 5 * time.Second
	maxProbeInterval      = 60 * time.Second
	probeBackoffFactor    = 1.5
)

// HealthMonitor tracks a saturating failure counter and flips a
// "disconnected" gate once it reaches the configured limit. While
// disconnected, a background probe loop polls /health-check with
// exponential backoff until a probe succeeds, at which point the counter
// resets and the Connector resumes sending over the network.
type HealthMonitor struct {
	mu     sync.RWMutex
	errors int
	limit  int

	probe func(ctx context.Context) error
	log   *slog.Logger
}

// NewHealthMonitor builds a monitor that treats limit consecutive
// failures as disconnected and calls probe to test recovery.
func NewHealthMonitor(limit int, probe func(ctx context.Context) error, log *slog.Logger) *HealthMonitor {
	return &HealthMonitor{limit: limit, probe: probe, log: log}
}

// RecordFailure increments the failure counter, saturating at limit.
func (h *HealthMonitor) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errors < h.limit {
		h.errors++
	}
}

// RecordSuccess resets the failure counter to zero.
func (h *HealthMonitor) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = 0
}

// Disconnected reports whether the failure counter has reached limit.
func (h *HealthMonitor) Disconnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.errors >= h.limit
}

// Run drives the background probe loop until ctx is canceled.
func (h *HealthMonitor) Run(ctx context.Context) {
	interval := initialProbeInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !h.Disconnected() {
				timer.Reset(interval)
				continue
			}
			if err := h.probe(ctx); err != nil {
				h.log.Debug("health probe failed", "error", err, "next_interval", interval)
				interval = time.Duration(float64(interval) * probeBackoffFactor)
				if interval > maxProbeInterval {
					interval = maxProbeInterval
				}
			} else {
				h.RecordSuccess()
				h.log.Info("health probe succeeded, connection restored")
				interval = initialProbeInterval
			}
			timer.Reset(interval)
		}
	}
}
