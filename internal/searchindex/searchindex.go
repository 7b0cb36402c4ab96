// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package searchindex wraps the Elasticsearch bulk-index API the
// forwarder uses to publish canonical ECS documents.
package searchindex

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/windowsmonitor/wm-telemetry/internal/onceinit"
)

// Client lazily connects to Elasticsearch on first use.
type Client struct {
	host     string
	username string
	password string
	index    string

	cell *onceinit.OnceInit[*elasticsearch.Client]
}

// New returns a Client targeting index, connecting on first Bulk call.
func New(host, username, password, index string) *Client {
	return &Client{
		host:     host,
		username: username,
		password: password,
		index:    index,
		cell:     onceinit.New[*elasticsearch.Client](),
	}
}

func (c *Client) getOrConnect() (*elasticsearch.Client, error) {
	client, err := c.cell.GetOrInit(func() (*elasticsearch.Client, error) {
		es, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{c.host},
			Username:  c.username,
			Password:  c.password,
		})
		if err != nil {
			return nil, fmt.Errorf("constructing elasticsearch client: %w", err)
		}
		return es, nil
	})
	if err != nil {
		return nil, err
	}
	return *client, nil
}

// Bulk submits an NDJSON bulk request body (alternating action-and-meta
// lines and document lines) against the configured index and returns an
// error if the HTTP call itself fails or the response reports an error
// status. Per-document failures inside a 200 response are not inspected —
// the forwarder treats the whole batch as either delivered or not.
func (c *Client) Bulk(ctx context.Context, body []byte) error {
	es, err := c.getOrConnect()
	if err != nil {
		return err
	}

	req := esapi.BulkRequest{
		Index: c.index,
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, es)
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		payload, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk request returned %s: %s", res.Status(), payload)
	}
	return nil
}
