// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

import (
	"encoding/json"
	"testing"
)

func TestNewSystemInfo_CachesSerializedBytes(t *testing.T) {
	s := newSystemInfo(
		OSInfo{Full: "Windows 11", Kernel: "10.0.22631", Name: "Windows", Platform: "windows", Version: "11"},
		MemoryInfo{MemoryLoad: 42, TotalPhysical: 1 << 30},
		CPUInfo{Usage: 3.5},
		"HOST-01",
	)

	buf := s.SerializeToBytes()
	if len(buf) == 0 {
		t.Fatal("expected non-empty serialized snapshot")
	}

	var decoded SystemInfo
	if err := json.Unmarshal(buf, &decoded); err != nil {
		t.Fatalf("unmarshaling cached bytes: %v", err)
	}
	if decoded.Hostname != "HOST-01" {
		t.Errorf("expected hostname HOST-01, got %q", decoded.Hostname)
	}
	if decoded.Memory.MemoryLoad != 42 {
		t.Errorf("expected memory load 42, got %d", decoded.Memory.MemoryLoad)
	}

	// Mutating the live struct after construction must not change the
	// cached bytes — every record sharing this snapshot sees the same
	// serialization taken at construction time.
	s.Hostname = "CHANGED"
	if string(s.SerializeToBytes()) != string(buf) {
		t.Error("expected cached serialization to stay stable after mutating the struct")
	}
}

func TestMonitor_CurrentReturnsInitialSnapshot(t *testing.T) {
	snap := newSystemInfo(OSInfo{Platform: "windows"}, MemoryInfo{}, CPUInfo{}, "HOST-02")
	m := &Monitor{}
	m.current.Store(snap)

	if got := m.Current(); got.Hostname != "HOST-02" {
		t.Errorf("expected hostname HOST-02, got %q", got.Hostname)
	}
}
