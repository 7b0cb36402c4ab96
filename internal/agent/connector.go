// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/windowsmonitor/wm-telemetry/internal/pool"
	"github.com/windowsmonitor/wm-telemetry/internal/schema"
)

const idleFlushInterval = time.Second

// HTTPPoster is the subset of *http.Client the Connector needs, letting
// tests substitute a fake transport.
type HTTPPoster interface {
	Do(req *http.Request) (*http.Response, error)
}

// Connector owns the record channel, a pool of BatchBuffers rotated
// across flushes, the compression step, and the decision between
// POSTing to the gateway and spilling to the BackupStore.
type Connector struct {
	records chan schema.CapturedRecord

	pool       *pool.Pool[BatchBuffer]
	flushLimit int

	traceURL string
	client   HTTPPoster
	zlevel   zstd.EncoderLevel

	health  *HealthMonitor
	backup  *BackupStore
	monitor *schema.Monitor

	log *slog.Logger
}

// ConnectorConfig bundles the Connector's tunables.
type ConnectorConfig struct {
	QueueLimit   int
	PoolSize     int
	FlushLimit   int
	BufferBytes  int
	TraceURL     string
	ZstdLevel    int
}

// NewConnector builds a Connector. The pool is sized PoolSize so that
// a full buffer can be handed off for compression/send while the next
// one accumulates records.
func NewConnector(cfg ConnectorConfig, client HTTPPoster, health *HealthMonitor, backup *BackupStore, monitor *schema.Monitor, log *slog.Logger) *Connector {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	bufBytes := cfg.BufferBytes
	if bufBytes <= 0 {
		bufBytes = cfg.FlushLimit + cfg.FlushLimit/2
	}

	return &Connector{
		records:    make(chan schema.CapturedRecord, cfg.QueueLimit),
		pool:       pool.New(cfg.PoolSize, func(int) *BatchBuffer { return newBatchBuffer(bufBytes) }),
		flushLimit: cfg.FlushLimit,
		traceURL:   cfg.TraceURL,
		client:     client,
		zlevel:     zstdLevelFromConfig(cfg.ZstdLevel),
		health:     health,
		backup:     backup,
		monitor:    monitor,
		log:        log,
	}
}

// Submit enqueues one event, building its CapturedRecord envelope from
// the Monitor's current snapshot. If the internal queue is full, the
// record bypasses the channel entirely and is written straight to the
// BackupStore — this is the only path where a single record (rather
// than a whole batch) is spooled.
func (c *Connector) Submit(evt schema.Event) {
	rec := schema.CapturedRecord{
		GUID:     uuid.NewString(),
		Event:    evt,
		System:   c.monitor.Current(),
		Captured: time.Now().UnixNano(),
	}

	select {
	case c.records <- rec:
	default:
		line, err := json.Marshal(rec)
		if err != nil {
			c.log.Error("dropping record, cannot marshal for backup", "error", err)
			return
		}
		c.backup.WriteRecord(line)
	}
}

// Run drains the record channel into rotating BatchBuffers, flushing
// whichever buffer crosses flushLimit or has gone idle for a second. Each
// flush is handed to a detached goroutine so a new buffer can start
// accumulating records immediately instead of waiting for the previous
// batch's compress-and-POST round trip; the pool's size bounds how many
// buffers — and therefore how many flushes — can be in flight at once.
// Run waits for every outstanding flush to finish before returning, so
// shutdown drains the whole pool, not just the buffer it was last filling.
func (c *Connector) Run(ctx context.Context) {
	guard, err := c.pool.Acquire(ctx)
	if err != nil {
		return
	}

	ticker := time.NewTicker(idleFlushInterval)
	defer ticker.Stop()

	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	rotate := func() {
		buf := guard.Item()
		if buf.Empty() {
			return
		}
		payload := append([]byte(nil), buf.Finish()...)
		buf.Reset()
		draining := guard

		next, err := c.pool.Acquire(ctx)
		if err != nil {
			// Pool exhausted while shutting down: nothing left to rotate
			// into, so flush this last batch inline before returning.
			c.flush(ctx, payload)
			return
		}
		guard = next

		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			c.flush(ctx, payload)
			draining.Release()
		}()
	}

	for {
		select {
		case <-ctx.Done():
			rotate()
			return

		case rec, ok := <-c.records:
			if !ok {
				rotate()
				return
			}
			line, err := json.Marshal(rec)
			if err != nil {
				c.log.Error("dropping record, cannot marshal", "error", err)
				continue
			}
			buf := guard.Item()
			buf.Append(line)
			if buf.Len() >= c.flushLimit {
				rotate()
			}

		case <-ticker.C:
			rotate()
		}
	}
}

// flush compresses payload and either POSTs it to the gateway or, on
// disconnect or failure, writes it straight to the BackupStore. A
// failed send is never retried inline — the BackupStore's own upload
// sweep is responsible for eventually delivering it.
func (c *Connector) flush(ctx context.Context, payload []byte) {
	if c.health.Disconnected() {
		c.backup.WriteRaw(payload)
		return
	}

	compressed, err := c.compress(payload)
	if err != nil {
		c.log.Error("compressing batch, spooling uncompressed", "error", err)
		c.backup.WriteRaw(payload)
		return
	}

	if err := c.post(ctx, compressed); err != nil {
		c.log.Warn("trace post failed, spooling batch", "error", err)
		c.health.RecordFailure()
		c.backup.WriteRaw(payload)
		return
	}

	c.health.RecordSuccess()
}

// zstdLevelFromConfig maps the config file's plain zstd level number
// (1-22, matching the reference zstd CLI) onto klauspost/compress's
// coarser four-tier EncoderLevel.
func zstdLevelFromConfig(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (c *Connector) compress(payload []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.zlevel))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

func (c *Connector) post(ctx context.Context, compressed []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.traceURL, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("building trace request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to gateway: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %s", res.Status)
	}

	var ack schema.TraceResponse
	if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
		return fmt.Errorf("decoding trace response: %w", err)
	}
	return nil
}
