// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Module is one independently-runnable unit of the agent (the health
// monitor, the connector, the system-info refresher, an event source).
// Listen performs any setup that can fail before Handle is entered;
// Handle blocks until ctx is canceled or Stop is called. BeforeHook and
// AfterHook are optional and may be left nil.
type Module interface {
	Name() string
	Listen(ctx context.Context) error
	Handle(ctx context.Context) error
	Stop()
}

// BaseModule supplies the one-shot stopped latch every Module
// implementation in this package embeds, matching the original's
// Module::stop being safe to call more than once.
type BaseModule struct {
	name    string
	once    sync.Once
	stopped atomic.Bool
	done    chan struct{}
}

// NewBaseModule builds a BaseModule with the given diagnostic name.
func NewBaseModule(name string) BaseModule {
	return BaseModule{name: name, done: make(chan struct{})}
}

func (b *BaseModule) Name() string { return b.name }

// Stop closes the done channel exactly once. A second call is logged and
// ignored rather than treated as an error.
func (b *BaseModule) Stop(log *slog.Logger) {
	if !b.stopped.CompareAndSwap(false, true) {
		log.Warn("module stopped twice, ignoring", "module", b.name)
		return
	}
	b.once.Do(func() { close(b.done) })
}

// Done returns the channel that closes when Stop is first called.
func (b *BaseModule) Done() <-chan struct{} { return b.done }

// RunModules starts every module's Listen phase, then its Handle loop in
// its own goroutine, and waits for all of them to return. A module whose
// Handle returns an error is logged and does not abort the others,
// mirroring the teacher's task-collection supervisor loop.
func RunModules(ctx context.Context, log *slog.Logger, modules ...Module) {
	var wg sync.WaitGroup
	for _, m := range modules {
		if err := m.Listen(ctx); err != nil {
			log.Error("module failed to start", "module", m.Name(), "error", err)
			continue
		}
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			if err := m.Handle(ctx); err != nil {
				log.Error("module exited with error", "module", m.Name(), "error", err)
			}
		}(m)
	}

	<-ctx.Done()
	for _, m := range modules {
		m.Stop()
	}
	wg.Wait()
}
