// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

import (
	"testing"
	"time"
)

func TestWindowsTimestamp_Epoch(t *testing.T) {
	got := WindowsTimestamp(0)
	want := time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWindowsTimestamp_OneSecond(t *testing.T) {
	got := WindowsTimestamp(10_000_000)
	want := time.Date(1601, time.January, 1, 0, 0, 1, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWindowsTimestamp_SubSecond(t *testing.T) {
	got := WindowsTimestamp(1_234_567)
	if got.Nanosecond() != 123_456_700 {
		t.Errorf("expected nanosecond 123456700, got %d", got.Nanosecond())
	}
}

func TestWindowsTimestampRounded_DropsSubSecond(t *testing.T) {
	got := WindowsTimestampRounded(1_234_567)
	if got.Nanosecond() != 0 {
		t.Errorf("expected nanosecond 0, got %d", got.Nanosecond())
	}
}

func TestWindowsTimestamp_KnownDate(t *testing.T) {
	// 2025-01-01T00:00:00Z in Windows ticks.
	target := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	ticks := target.Sub(windowsEpoch).Nanoseconds() / 100

	got := WindowsTimestamp(ticks)
	if !got.Equal(target) {
		t.Errorf("expected %v, got %v", target, got)
	}
}
