// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/windowsmonitor/wm-telemetry/internal/schema"
)

type fakePoster struct {
	mu    sync.Mutex
	posts int
	fail  bool
}

func (p *fakePoster) Do(req *http.Request) (*http.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts++
	if p.fail {
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader([]byte("{}")))}, nil
}

func (p *fakePoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posts
}

func testMonitor(t *testing.T) *schema.Monitor {
	t.Helper()
	m, err := schema.NewMonitor(context.Background(), time.Hour)
	if err != nil {
		t.Skipf("system info unavailable in test environment: %v", err)
	}
	return m
}

func TestConnector_SubmitFlushesOnThreshold(t *testing.T) {
	poster := &fakePoster{}
	health := NewHealthMonitor(3, func(context.Context) error { return nil }, testAgentLogger())
	backup, err := OpenBackupStore(t.TempDir(), testAgentLogger())
	if err != nil {
		t.Fatalf("OpenBackupStore: %v", err)
	}
	defer backup.Close()

	conn := NewConnector(ConnectorConfig{
		QueueLimit: 16,
		PoolSize:   2,
		FlushLimit: 8,
		TraceURL:   "https://gateway.invalid/trace",
		ZstdLevel:  3,
	}, poster, health, backup, testMonitor(t), testAgentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { conn.Run(ctx); close(done) }()

	conn.Submit(schema.Event{Kind: schema.KindProcess, Process: &schema.ProcessData{ProcessID: 1}})
	conn.Submit(schema.Event{Kind: schema.KindProcess, Process: &schema.ProcessData{ProcessID: 2}})

	deadline := time.Now().Add(time.Second)
	for poster.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done

	if poster.count() == 0 {
		t.Fatal("expected at least one trace post")
	}
}

func TestConnector_SpoolsToBackupOnPostFailure(t *testing.T) {
	poster := &fakePoster{fail: true}
	health := NewHealthMonitor(1, func(context.Context) error { return nil }, testAgentLogger())
	dir := t.TempDir()
	backup, err := OpenBackupStore(dir, testAgentLogger())
	if err != nil {
		t.Fatalf("OpenBackupStore: %v", err)
	}
	defer backup.Close()

	conn := NewConnector(ConnectorConfig{
		QueueLimit: 16,
		PoolSize:   2,
		FlushLimit: 4,
		TraceURL:   "https://gateway.invalid/trace",
		ZstdLevel:  3,
	}, poster, health, backup, testMonitor(t), testAgentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { conn.Run(ctx); close(done) }()

	conn.Submit(schema.Event{Kind: schema.KindProcess, Process: &schema.ProcessData{ProcessID: 1}})

	deadline := time.Now().Add(time.Second)
	for poster.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if !health.Disconnected() {
		t.Fatal("expected health monitor to record the post failure")
	}
}
