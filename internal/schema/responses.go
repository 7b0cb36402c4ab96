// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

// TraceResponse is the gateway's success body for a /trace submission.
// The wire contract only requires the body to parse as this type; the
// zero value ({}), Emit/ReceiveEPS omitted, is a valid response.
type TraceResponse struct {
	EmitEPS    int `json:"emit_eps,omitempty"`
	ReceiveEPS int `json:"receive_eps,omitempty"`
}
