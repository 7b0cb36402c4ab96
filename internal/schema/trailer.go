// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

import (
	"encoding/binary"
	"fmt"
	"net"
)

// TrailerSize is the number of bytes AppendPeerTrailer adds to a line:
// a 16-byte big-endian IP (v4 addresses occupy the low 4 bytes) followed
// by a 1-byte address-family flag.
const TrailerSize = 17

const (
	familyIPv6 byte = 0x00
	familyIPv4 byte = 0x01
)

// AppendPeerTrailer appends the 17-byte peer-address trailer to line,
// the gateway's way of passing the connecting client's IP down to the
// forwarder without changing the JSON envelope itself.
func AppendPeerTrailer(line []byte, peer net.IP) []byte {
	var addr [16]byte
	family := familyIPv6

	if v4 := peer.To4(); v4 != nil {
		family = familyIPv4
		binary.BigEndian.PutUint32(addr[12:], binary.BigEndian.Uint32(v4))
	} else if v6 := peer.To16(); v6 != nil {
		copy(addr[:], v6)
	}

	line = append(line, addr[:]...)
	line = append(line, family)
	return line
}

// SplitPeerTrailer removes and decodes the trailing 17 bytes appended by
// AppendPeerTrailer, returning the remaining envelope body and the peer IP.
func SplitPeerTrailer(line []byte) (body []byte, peer net.IP, err error) {
	if len(line) < TrailerSize {
		return nil, nil, fmt.Errorf("schema: line too short for peer trailer (%d bytes)", len(line))
	}

	split := len(line) - TrailerSize
	body = line[:split]
	addr := line[split : split+16]
	family := line[split+16]

	switch family {
	case familyIPv4:
		peer = net.IPv4(addr[12], addr[13], addr[14], addr[15])
	case familyIPv6:
		peer = net.IP(append([]byte(nil), addr...))
	default:
		return nil, nil, fmt.Errorf("schema: invalid address family byte 0x%02x", family)
	}

	return body, peer, nil
}
