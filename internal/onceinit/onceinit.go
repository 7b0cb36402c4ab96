// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package onceinit provides a lazily-initialized cell that, unlike
// sync.Once, does not remember and replay a failed initialization: a
// caller that observes a failure is free to try again on its next call.
// It is used to share one lazily-connected resource (a broker channel, an
// index client) across concurrent callers without reconnecting on every
// request.
package onceinit

import (
	"errors"
	"sync"
)

// errNotReady is returned to a waiter that was woken by a failed
// initialization attempt it did not itself run.
var errNotReady = errors.New("onceinit: initializer failed; retry")

// OnceInit holds a value of type T produced by at most one in-flight
// initializer at a time. Concurrent callers racing GetOrInit while one is
// initializing block until it finishes and share its outcome rather than
// each running their own initializer. If the initializer fails, the cell
// resets to empty so the very next call attempts again — it never
// auto-retries on its own and never caches a failure.
type OnceInit[T any] struct {
	mu    sync.Mutex
	ready chan struct{}
	value *T
}

// New returns an empty cell.
func New[T any]() *OnceInit[T] {
	return &OnceInit[T]{}
}

// NewWith returns a cell already initialized with value.
func NewWith[T any](value T) *OnceInit[T] {
	return &OnceInit[T]{value: &value}
}

// GetOrInit returns the cached value, or runs init to produce one if the
// cell is empty. init is called by exactly one caller per attempt; any
// other caller that arrives while it is running waits for it to finish
// and then shares its outcome instead of running init itself.
func (c *OnceInit[T]) GetOrInit(init func() (T, error)) (*T, error) {
	c.mu.Lock()
	if c.value != nil {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}

	if c.ready != nil {
		wait := c.ready
		c.mu.Unlock()
		<-wait
		c.mu.Lock()
		v := c.value
		c.mu.Unlock()
		if v != nil {
			return v, nil
		}
		return nil, errNotReady
	}

	wake := make(chan struct{})
	c.ready = wake
	c.mu.Unlock()

	result, err := init()

	c.mu.Lock()
	if err != nil {
		c.ready = nil
		c.mu.Unlock()
		close(wake)
		return nil, err
	}
	c.value = &result
	c.mu.Unlock()
	close(wake)
	return &result, nil
}

// Get returns the cached value without attempting initialization.
func (c *OnceInit[T]) Get() (*T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.value != nil
}
