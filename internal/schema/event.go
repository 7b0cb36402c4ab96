// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package schema defines the captured-event record, the cached host
// snapshot attached to it, and the projection from both into the
// canonical (ECS-shaped) document the forwarder indexes.
package schema

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the variant carried by an Event.
type Kind string

const (
	KindFileCreate Kind = "file-create"
	KindFileOp     Kind = "file-op"
	KindImage      Kind = "image"
	KindProcess    Kind = "process"
	KindRegistry   Kind = "registry"
	KindTCP        Kind = "tcp"
	KindUDP        Kind = "udp"
)

// Header carries the fields common to every ETW-originated event,
// regardless of provider or opcode.
type Header struct {
	ProviderID    string `json:"provider_id"`
	RawTimestamp  int64  `json:"raw_timestamp"`
	ProcessID     uint32 `json:"process_id"`
	ThreadID      uint32 `json:"thread_id"`
	EventID       uint16 `json:"event_id"`
	Opcode        uint8  `json:"opcode"`
}

// FileData is the payload of KindFileCreate and KindFileOp events.
type FileData struct {
	FileObject uint64 `json:"file_object"`
	FileName   string `json:"file_name"`
	Attributes uint32 `json:"attributes,omitempty"`
}

// ImageData is the payload of KindImage events (module load/unload).
type ImageData struct {
	ImageBase     uint64 `json:"image_base"`
	ImageSize     uint64 `json:"image_size"`
	ImageChecksum uint32 `json:"image_checksum"`
	FileName      string `json:"file_name"`
}

// ProcessData is the payload of KindProcess events.
type ProcessData struct {
	UniqueProcessKey  uint64 `json:"unique_process_key"`
	ProcessID         uint32 `json:"process_id"`
	ParentID          uint32 `json:"parent_id"`
	SessionID         uint32 `json:"session_id"`
	ExitStatus        int32  `json:"exit_status"`
	DirectoryTableBase uint64 `json:"directory_table_base"`
	ImageFileName     string `json:"image_file_name"`
	CommandLine       string `json:"command_line"`
}

// RegistryData is the payload of KindRegistry events.
type RegistryData struct {
	InitialTime int64  `json:"initial_time"`
	Status      uint32 `json:"status"`
	Index       uint32 `json:"index"`
	KeyHandle   uint64 `json:"key_handle"`
	KeyName     string `json:"key_name"`
}

// NetworkData is the payload of KindTCP and KindUDP events.
type NetworkData struct {
	PID   uint32 `json:"pid"`
	Size  uint32 `json:"size"`
	DAddr string `json:"daddr"`
	SAddr string `json:"saddr"`
	DPort uint16 `json:"dport"`
	SPort uint16 `json:"sport"`
}

// Event is the tagged union of every event kind the agent captures. Only
// the field matching Kind is populated; the rest are nil.
type Event struct {
	Header
	Kind Kind `json:"kind"`

	File     *FileData     `json:"file,omitempty"`
	Image    *ImageData    `json:"image,omitempty"`
	Process  *ProcessData  `json:"process,omitempty"`
	Registry *RegistryData `json:"registry,omitempty"`
	Network  *NetworkData  `json:"network,omitempty"`
}

// CapturedRecord pairs a raw Event with the system snapshot and wall-clock
// capture time the agent attached when it was batched.
type CapturedRecord struct {
	GUID     string     `json:"guid"`
	Event    Event      `json:"event"`
	System   *SystemInfo `json:"system"`
	Captured int64      `json:"captured"` // unix nanoseconds, agent-local clock
}

// Validate reports whether the record carries the payload its Kind
// requires. Used by the forwarder to reject malformed envelopes without
// panicking on a nil dereference deep inside the canonical projection.
func (e Event) Validate() error {
	switch e.Kind {
	case KindFileCreate, KindFileOp:
		if e.File == nil {
			return fmt.Errorf("event kind %q missing file payload", e.Kind)
		}
	case KindImage:
		if e.Image == nil {
			return fmt.Errorf("event kind %q missing image payload", e.Kind)
		}
	case KindProcess:
		if e.Process == nil {
			return fmt.Errorf("event kind %q missing process payload", e.Kind)
		}
	case KindRegistry:
		if e.Registry == nil {
			return fmt.Errorf("event kind %q missing registry payload", e.Kind)
		}
	case KindTCP, KindUDP:
		if e.Network == nil {
			return fmt.Errorf("event kind %q missing network payload", e.Kind)
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// ParseCapturedRecord unmarshals a single line of the wire body into a
// CapturedRecord and validates it structurally.
func ParseCapturedRecord(line []byte) (CapturedRecord, error) {
	var rec CapturedRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return CapturedRecord{}, fmt.Errorf("unmarshal captured record: %w", err)
	}
	if err := rec.Event.Validate(); err != nil {
		return CapturedRecord{}, err
	}
	return rec, nil
}
