// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package forwarder consumes captured-event records from the broker,
// projects them into canonical ECS documents, and bulk-indexes them into
// the search index.
package forwarder

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/windowsmonitor/wm-telemetry/internal/schema"
)

// Indexer is the subset of searchindex.Client the Forwarder depends on.
type Indexer interface {
	Bulk(ctx context.Context, body []byte) error
}

// Forwarder accumulates bulk-index NDJSON across consecutive deliveries
// and flushes once the buffer reaches the configured threshold, mirroring
// the original's per-process accumulation rather than per-delivery
// round trips to the search index.
type Forwarder struct {
	index      Indexer
	flushLimit int
	log        *slog.Logger

	body     []byte
	lastTag  amqp.Delivery
	hasTag   bool
}

// New builds a Forwarder that flushes to index once the buffer holds at
// least flushLimit bytes.
func New(index Indexer, flushLimit int, log *slog.Logger) *Forwarder {
	return &Forwarder{
		index:      index,
		flushLimit: flushLimit,
		log:        log,
		body:       make([]byte, 0, flushLimit+flushLimit/2),
	}
}

// Process handles one delivery: a poison (invalid or incomplete) record is
// acked and skipped immediately; a valid record is appended to the
// pending bulk buffer, acked (multiple=true, covering every delivery
// buffered since the last flush) once the buffer crosses flushLimit, or
// left unacked otherwise so a later flush's multiple-ack covers it too.
func (f *Forwarder) Process(ctx context.Context, d amqp.Delivery) {
	body, peer, err := schema.SplitPeerTrailer(d.Body)
	if err != nil {
		f.log.Warn("malformed peer trailer, skipping record", "error", err)
		ackMultiple(d, f.log)
		return
	}

	rec, err := schema.ParseCapturedRecord(body)
	if err != nil {
		f.log.Warn("invalid event record, skipping", "error", err)
		ackMultiple(d, f.log)
		return
	}

	doc := rec.ToCanonical(peer)

	f.body = append(f.body, `{"create":{}}`+"\n"...)
	encoded, err := marshalLine(doc)
	if err != nil {
		f.log.Warn("failed to encode ECS document, skipping", "error", err)
		ackMultiple(d, f.log)
		return
	}
	f.body = append(f.body, encoded...)

	f.lastTag = d
	f.hasTag = true

	if len(f.body) < f.flushLimit {
		return
	}
	f.flush(ctx)
}

// Flush forces out whatever is currently buffered, regardless of size.
// Called on an idle tick so a slow trickle of deliveries doesn't sit
// unacked indefinitely waiting for flushLimit to be crossed.
func (f *Forwarder) Flush(ctx context.Context) {
	f.flush(ctx)
}

func (f *Forwarder) flush(ctx context.Context) {
	if !f.hasTag {
		return
	}
	payload := f.body
	f.body = make([]byte, 0, cap(payload))

	tag := f.lastTag
	f.hasTag = false

	if err := f.index.Bulk(ctx, payload); err != nil {
		f.log.Error("bulk index request failed", "error", err)
		nackMultiple(tag, f.log)
		return
	}
	ackMultiple(tag, f.log)
}

func marshalLine(doc schema.ECS) ([]byte, error) {
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

func ackMultiple(d amqp.Delivery, log *slog.Logger) {
	if err := d.Ack(true); err != nil {
		log.Error("failed to ack delivery", "error", err)
	}
}

func nackMultiple(d amqp.Delivery, log *slog.Logger) {
	if err := d.Nack(true, true); err != nil {
		log.Error("failed to nack delivery", "error", err)
	}
}
