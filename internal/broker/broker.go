// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package broker wraps the RabbitMQ connection carrying captured event
// records between the gateway and the forwarder. The queue is durable,
// non-exclusive, and non-auto-delete so events survive a broker restart
// and can be consumed by exactly one forwarder process at a time.
package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/windowsmonitor/wm-telemetry/internal/onceinit"
)

const queueName = "events"

// Channel lazily connects to the broker on first use and declares the
// events queue. Concurrent callers share the one connection rather than
// each dialing the broker.
type Channel struct {
	url  string
	cell *onceinit.OnceInit[*amqp.Channel]
	conn *amqp.Connection
}

// New returns a Channel that connects to url on first GetOrConnect call.
func New(url string) *Channel {
	return &Channel{url: url, cell: onceinit.New[*amqp.Channel]()}
}

// GetOrConnect returns the shared AMQP channel, dialing the broker and
// declaring the events queue the first time it's called.
func (c *Channel) GetOrConnect() (*amqp.Channel, error) {
	ch, err := c.cell.GetOrInit(func() (*amqp.Channel, error) {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("dialing broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("opening channel: %w", err)
		}
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declaring %s queue: %w", queueName, err)
		}
		c.conn = conn
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	return *ch, nil
}

// Publish sends body to the events queue, fire-and-forget (no publisher
// confirms) — matching the gateway's at-most-once trace ingestion policy.
func (c *Channel) Publish(ctx context.Context, body []byte) error {
	ch, err := c.GetOrConnect()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        body,
	})
}

// Consume sets the channel's prefetch count and starts consuming from the
// events queue under consumerTag.
func (c *Channel) Consume(ctx context.Context, prefetch int, consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := c.GetOrConnect()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("setting QoS: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("starting consumer: %w", err)
	}
	return deliveries, nil
}

// Close releases the underlying connection, if one was established.
func (c *Channel) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
