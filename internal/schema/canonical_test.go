// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

import (
	"net"
	"testing"
)

func TestToCanonical_ProcessStart(t *testing.T) {
	rec := CapturedRecord{
		Event: Event{
			Header: Header{Opcode: 1, RawTimestamp: 133_000_000_000_0},
			Kind:   KindProcess,
			Process: &ProcessData{
				ProcessID:     1234,
				ParentID:      1,
				ImageFileName: "notepad.exe",
				CommandLine:   `notepad.exe "C:\file.txt"`,
			},
		},
	}

	doc := rec.ToCanonical(net.ParseIP("10.0.0.5"))
	if doc.Event.Action != "process-start" {
		t.Errorf("expected action process-start, got %q", doc.Event.Action)
	}
	if doc.Event.Category[0] != "process" || doc.Event.Type[0] != "start" {
		t.Errorf("expected category/type process/start, got %v/%v", doc.Event.Category, doc.Event.Type)
	}
	if doc.Process == nil || doc.Process.PID != 1234 {
		t.Fatalf("expected process.pid 1234, got %+v", doc.Process)
	}
	if len(doc.Process.Args) != 2 {
		t.Errorf("expected 2 args, got %v", doc.Process.Args)
	}
	if doc.Host.IP[0] != "10.0.0.5" {
		t.Errorf("expected host.ip 10.0.0.5, got %v", doc.Host.IP)
	}
	if doc.Event.Labels["application"] != ecsApplicationLabel {
		t.Errorf("expected application label, got %v", doc.Event.Labels)
	}
}

func TestToCanonical_FileCreate(t *testing.T) {
	rec := CapturedRecord{
		Event: Event{
			Header: Header{Opcode: 32},
			Kind:   KindFileCreate,
			File:   &FileData{FileName: `C:\Windows\Temp\a.tmp`, Attributes: 0x20},
		},
	}
	doc := rec.ToCanonical(nil)
	if doc.Event.Action != "file-create" || doc.Event.Type[0] != "creation" {
		t.Errorf("unexpected action/type: %q/%v", doc.Event.Action, doc.Event.Type)
	}
	if doc.File.Path != `C:\Windows\Temp\a.tmp` {
		t.Errorf("unexpected file path: %q", doc.File.Path)
	}
	if len(doc.File.Attributes) != 1 || doc.File.Attributes[0] != "archive" {
		t.Errorf("expected archive attribute, got %v", doc.File.Attributes)
	}
}

func TestToCanonical_NetworkConnect(t *testing.T) {
	rec := CapturedRecord{
		Event: Event{
			Header:  Header{Opcode: 12},
			Kind:    KindTCP,
			Network: &NetworkData{SAddr: "10.0.0.1", SPort: 5000, DAddr: "10.0.0.2", DPort: 443},
		},
	}
	doc := rec.ToCanonical(nil)
	if doc.Event.Action != "tcp-connect" {
		t.Errorf("expected tcp-connect, got %q", doc.Event.Action)
	}
	if doc.Source.Port != 5000 || doc.Destination.Port != 443 {
		t.Errorf("unexpected source/destination: %+v / %+v", doc.Source, doc.Destination)
	}
}

func TestToCanonical_UnknownOpcodeFallsBackToUnknownAction(t *testing.T) {
	rec := CapturedRecord{
		Event: Event{
			Header:   Header{Opcode: 250},
			Kind:     KindRegistry,
			Registry: &RegistryData{KeyName: `HKLM\Software\Test`},
		},
	}
	doc := rec.ToCanonical(nil)
	if doc.Event.Action != "registry-unknown" {
		t.Errorf("expected registry-unknown, got %q", doc.Event.Action)
	}
}
