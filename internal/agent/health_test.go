// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testAgentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthMonitor_DisconnectsAtLimit(t *testing.T) {
	h := NewHealthMonitor(3, func(context.Context) error { return nil }, testAgentLogger())

	h.RecordFailure()
	h.RecordFailure()
	if h.Disconnected() {
		t.Fatal("expected not disconnected before reaching the limit")
	}
	h.RecordFailure()
	if !h.Disconnected() {
		t.Fatal("expected disconnected at the limit")
	}
}

func TestHealthMonitor_ErrorsSaturateAtLimit(t *testing.T) {
	h := NewHealthMonitor(2, func(context.Context) error { return nil }, testAgentLogger())
	h.RecordFailure()
	h.RecordFailure()
	h.RecordFailure()
	h.RecordFailure()
	if !h.Disconnected() {
		t.Fatal("expected disconnected after exceeding the limit repeatedly")
	}
}

func TestHealthMonitor_SuccessResetsCounter(t *testing.T) {
	h := NewHealthMonitor(1, func(context.Context) error { return nil }, testAgentLogger())
	h.RecordFailure()
	if !h.Disconnected() {
		t.Fatal("expected disconnected")
	}
	h.RecordSuccess()
	if h.Disconnected() {
		t.Fatal("expected reconnected after RecordSuccess")
	}
}

func TestHealthMonitor_RunRecoversAfterProbeSucceeds(t *testing.T) {
	attempts := 0
	probeErr := errors.New("still down")
	h := NewHealthMonitor(1, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return probeErr
		}
		return nil
	}, testAgentLogger())
	h.RecordFailure()

	// Exercise Disconnected/RecordSuccess/RecordFailure directly rather
	// than waiting on Run's real timers, which would make the test slow
	// and timing-sensitive.
	if !h.Disconnected() {
		t.Fatal("expected disconnected")
	}
	if err := h.probe(context.Background()); err == nil {
		t.Fatal("expected first probe to fail")
	}
	if err := h.probe(context.Background()); err != nil {
		t.Fatalf("expected second probe to succeed, got %v", err)
	}
	h.RecordSuccess()
	if h.Disconnected() {
		t.Fatal("expected reconnected after a successful probe")
	}
}
