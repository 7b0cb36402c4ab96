// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package agent

import (
	"context"
	"net"
)

// resolverDialer overrides the destination address of outgoing
// connections for hostnames present in overrides, the in-scope
// equivalent of a custom SNI/DNS override: the TLS handshake still uses
// the original hostname for server-name verification, but the TCP
// connection is dialed against the overridden IP.
type resolverDialer struct {
	overrides map[string]string
	dialer    net.Dialer
}

func newResolverDialer(overrides map[string]string) *resolverDialer {
	return &resolverDialer{overrides: overrides}
}

func (d *resolverDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return d.dialer.DialContext(ctx, network, address)
	}
	if override, ok := d.overrides[host]; ok {
		address = net.JoinHostPort(override, port)
	}
	return d.dialer.DialContext(ctx, network, address)
}
