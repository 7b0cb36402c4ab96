// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

import "net"

// ECS is the Elastic Common Schema document produced by projecting a
// CapturedRecord plus its peer IP. Only the fields populated for the
// record's Kind are non-zero.
type ECS struct {
	Timestamp string `json:"@timestamp"`

	Event    ECSEvent    `json:"event"`
	Host     ECSHost     `json:"host"`
	Process  *ECSProcess `json:"process,omitempty"`
	File     *ECSFile    `json:"file,omitempty"`
	DLL      *ECSFile    `json:"dll,omitempty"`
	Registry *ECSRegistry `json:"registry,omitempty"`
	Source   *ECSEndpoint `json:"source,omitempty"`
	Destination *ECSEndpoint `json:"destination,omitempty"`
}

// ECSEvent holds the category/type/action fields common to every document.
type ECSEvent struct {
	Action   string   `json:"action"`
	Category []string `json:"category"`
	Type     []string `json:"type"`
	Module   string   `json:"module"`
	Labels   map[string]string `json:"labels,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ECSHost describes the reporting endpoint.
type ECSHost struct {
	Hostname string   `json:"hostname"`
	Arch     string   `json:"architecture"`
	IP       []string `json:"ip,omitempty"`
	OS       ECSHostOS `json:"os"`
}

// ECSHostOS is the host.os.* block.
type ECSHostOS struct {
	Family   string `json:"family"`
	Full     string `json:"full"`
	Kernel   string `json:"kernel"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
	Version  string `json:"version"`
}

// ECSProcess is the process.* block.
type ECSProcess struct {
	PID       uint32   `json:"pid"`
	ParentPID uint32   `json:"parent_pid,omitempty"`
	Name      string   `json:"name,omitempty"`
	Args      []string `json:"args,omitempty"`
	ArgsCount int      `json:"args_count,omitempty"`
	ExitCode  int32    `json:"exit_code,omitempty"`
}

// ECSFile is the file.*/dll.* block.
type ECSFile struct {
	Path       string   `json:"path,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
}

// ECSRegistry is the registry.* block.
type ECSRegistry struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// ECSEndpoint is the source.*/destination.* block.
type ECSEndpoint struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

const ecsApplicationLabel = "wm-telemetry"

// ToCanonical projects a CapturedRecord plus the peer IP address it
// arrived with into the canonical ECS document. peer may be nil when the
// ingestion path didn't attach one.
func (r CapturedRecord) ToCanonical(peer net.IP) ECS {
	doc := ECS{
		Timestamp: WindowsTimestamp(r.Event.RawTimestamp).UTC().Format("2006-01-02T15:04:05.000Z"),
		Event: ECSEvent{
			Module: "wm-telemetry",
			Labels: map[string]string{"application": ecsApplicationLabel},
			Tags:   []string{string(r.Event.Kind)},
		},
	}

	if r.System != nil {
		doc.Host = ECSHost{
			Hostname: r.System.Hostname,
			Arch:     r.System.Architecture,
			OS: ECSHostOS{
				Family:   r.System.OS.Platform,
				Full:     r.System.OS.Full,
				Kernel:   r.System.OS.Kernel,
				Name:     r.System.OS.Name,
				Platform: r.System.OS.Platform,
				Type:     "windows",
				Version:  r.System.OS.Version,
			},
		}
	}
	if peer != nil {
		doc.Host.IP = []string{peer.String()}
	}

	switch r.Event.Kind {
	case KindFileCreate, KindFileOp:
		projectFile(&doc, r.Event)
	case KindImage:
		projectImage(&doc, r.Event)
	case KindProcess:
		projectProcess(&doc, r.Event)
	case KindRegistry:
		projectRegistry(&doc, r.Event)
	case KindTCP, KindUDP:
		projectNetwork(&doc, r.Event)
	}

	return doc
}

func projectFile(doc *ECS, e Event) {
	action, typ := "file-unknown", "info"
	switch e.Opcode {
	case 0:
		action, typ = "file-name", "info"
	case 32:
		action, typ = "file-create", "creation"
	case 35:
		action, typ = "file-delete", "deletion"
	}
	doc.Event.Action = action
	doc.Event.Category = []string{"file"}
	doc.Event.Type = []string{typ}
	doc.File = &ECSFile{
		Path:       e.File.FileName,
		Attributes: FileAttributeNames(e.File.Attributes),
	}
}

func projectImage(doc *ECS, e Event) {
	action, typ := "image-unknown", "info"
	switch e.Opcode {
	case 2:
		action, typ = "image-unload", "end"
	case 10:
		action, typ = "image-load", "start"
	}
	doc.Event.Action = action
	doc.Event.Category = []string{"library"}
	doc.Event.Type = []string{typ}
	doc.DLL = &ECSFile{Path: e.Image.FileName}
}

func projectProcess(doc *ECS, e Event) {
	action, typ := "process-unknown", "info"
	switch e.Opcode {
	case 1:
		action, typ = "process-start", "start"
	case 2:
		action, typ = "process-end", "end"
	}
	doc.Event.Action = action
	doc.Event.Category = []string{"process"}
	doc.Event.Type = []string{typ}

	args := SplitCommandLine(e.Process.CommandLine)
	doc.Process = &ECSProcess{
		PID:       e.Process.ProcessID,
		ParentPID: e.Process.ParentID,
		Name:      e.Process.ImageFileName,
		Args:      args,
		ArgsCount: len(args),
		ExitCode:  e.Process.ExitStatus,
	}
}

func projectRegistry(doc *ECS, e Event) {
	action, typ := "registry-unknown", "info"
	switch e.Opcode {
	case 10, 22:
		action, typ = "registry-create-key", "creation"
	case 12, 23:
		action, typ = "registry-delete-key", "deletion"
	case 14:
		action, typ = "registry-set-value", "change"
	case 15:
		action, typ = "registry-delete-value", "deletion"
	case 20:
		action, typ = "registry-set-info", "change"
	case 21:
		action, typ = "registry-flush-key", "change"
	}
	doc.Event.Action = action
	doc.Event.Category = []string{"registry"}
	doc.Event.Type = []string{typ}
	doc.Registry = &ECSRegistry{Key: e.Registry.KeyName}
}

func projectNetwork(doc *ECS, e Event) {
	action := "tcp-udp-unknown"
	switch e.Opcode {
	case 10:
		action = "udp-send"
	case 11:
		action = "udp-receive"
	case 12:
		action = "tcp-connect"
	case 13:
		action = "tcp-disconnect"
	case 15:
		action = "tcp-accept"
	}
	doc.Event.Action = action
	doc.Event.Category = []string{"network"}
	doc.Event.Type = []string{"connection"}
	doc.Source = &ECSEndpoint{IP: e.Network.SAddr, Port: e.Network.SPort}
	doc.Destination = &ECSEndpoint{IP: e.Network.DAddr, Port: e.Network.DPort}
}
