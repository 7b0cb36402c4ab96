// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"log/slog"

	"github.com/windowsmonitor/wm-telemetry/internal/schema"
)

// EventSource is the collaborator boundary for ETW subscription. A real
// Windows build implements this over an ETW session and provider set;
// this package only wires the boundary so Connector.Submit has a caller.
type EventSource interface {
	Module
	Events() <-chan schema.Event
}

// PasswordLoader is the collaborator boundary for reading the client
// certificate passphrase from the Windows Credential Manager. A real
// Windows build implements this against AgentInfo.PasswordRegistryKey;
// this package's NoopPasswordLoader always returns an empty passphrase,
// matching an unencrypted client key on non-Windows test environments.
type PasswordLoader interface {
	LoadPassword(ctx context.Context, registryKey string) (string, error)
}

// NoopPasswordLoader is the PasswordLoader used outside of a Windows
// build.
type NoopPasswordLoader struct{}

func (NoopPasswordLoader) LoadPassword(ctx context.Context, registryKey string) (string, error) {
	return "", nil
}

// stubEventSource is an EventSource that never emits events. It exists so
// the supervisor has something to drive on platforms without a real ETW
// subscription, rather than leaving the Connector's input channel fed by
// nothing at all.
type stubEventSource struct {
	BaseModule
	events chan schema.Event
	log    *slog.Logger
}

// NewStubEventSource builds an EventSource with no backing ETW session.
func NewStubEventSource(log *slog.Logger) EventSource {
	return &stubEventSource{
		BaseModule: NewBaseModule("eventsource-stub"),
		events:     make(chan schema.Event),
		log:        log,
	}
}

func (s *stubEventSource) Listen(ctx context.Context) error { return nil }

func (s *stubEventSource) Handle(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.Done():
	}
	return nil
}

func (s *stubEventSource) Stop() { s.BaseModule.Stop(s.log) }

func (s *stubEventSource) Events() <-chan schema.Event { return s.events }
