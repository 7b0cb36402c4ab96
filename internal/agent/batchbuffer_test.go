// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import "testing"

func TestBatchBuffer_FreshStateHasLengthOne(t *testing.T) {
	b := newBatchBuffer(64)
	if b.Len() != 1 {
		t.Fatalf("expected fresh buffer length 1, got %d", b.Len())
	}
	if !b.Empty() {
		t.Fatal("expected fresh buffer to be empty")
	}
}

func TestBatchBuffer_AppendAndFinish(t *testing.T) {
	b := newBatchBuffer(64)
	b.Append([]byte(`{"a":1}`))
	b.Append([]byte(`{"a":2}`))

	got := string(b.Finish())
	want := `[{"a":1},{"a":2}]`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBatchBuffer_ResetReturnsToFreshState(t *testing.T) {
	b := newBatchBuffer(64)
	b.Append([]byte(`{"a":1}`))
	b.Finish()

	b.Reset()
	if b.Len() != 1 || !b.Empty() {
		t.Fatalf("expected fresh state after reset, len=%d empty=%v", b.Len(), b.Empty())
	}
}
