// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestBaseModule_StopIsIdempotent(t *testing.T) {
	b := NewBaseModule("test")
	b.Stop(testAgentLogger())
	b.Stop(testAgentLogger())

	select {
	case <-b.Done():
	default:
		t.Fatal("expected Done channel to be closed after Stop")
	}
}

func TestRunModules_StopsAllModulesOnCancel(t *testing.T) {
	var ran atomic.Int32
	m := newFuncModule("counter", testAgentLogger(), func(ctx context.Context) {
		ran.Add(1)
		<-ctx.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunModules(ctx, testAgentLogger(), m)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunModules did not return after cancellation")
	}
	if ran.Load() != 1 {
		t.Fatalf("expected module to run exactly once, got %d", ran.Load())
	}
}
