// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/klauspost/compress/zstd"

	"github.com/windowsmonitor/wm-telemetry/internal/schema"
)

// Publisher is the subset of broker.Channel the handler depends on.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Handler implements the /trace, /backup, and /health-check routes.
type Handler struct {
	broker Publisher
	health func() error
	log    *slog.Logger
}

// NewHandler builds a Handler that publishes decoded frames via broker and
// reports health via healthProbe (typically the broker's GetOrConnect,
// wrapped to discard the channel and keep only the error).
func NewHandler(broker Publisher, healthProbe func() error, log *slog.Logger) *Handler {
	return &Handler{broker: broker, health: healthProbe, log: log}
}

func peerIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

// decodeFrames wraps body in a zstd decoder chained with a trailing "\n"
// (to flush the last partial line) and yields one frame per call to fn,
// skipping empty frames.
func decodeFrames(body io.Reader, fn func(frame []byte) error) error {
	zr, err := zstd.NewReader(body)
	if err != nil {
		return err
	}
	defer zr.Close()

	chained := io.MultiReader(zr, &newlineReader{})
	reader := bufio.NewReader(chained)

	for {
		line, err := reader.ReadBytes('\n')
		trimmed := line
		if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if len(trimmed) > 0 {
			if fnErr := fn(trimmed); fnErr != nil {
				return fnErr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// readFrames decodes every frame in body up front, returning them as a
// slice. Unlike decodeFrames, this fully drains body before returning, so
// callers can hand the result to a goroutine that outlives the request —
// net/http's server closes the request body as soon as the handler
// returns, so a detached decode reading r.Body directly would race it.
func readFrames(body io.Reader) ([][]byte, error) {
	var frames [][]byte
	err := decodeFrames(body, func(frame []byte) error {
		frames = append(frames, append([]byte(nil), frame...))
		return nil
	})
	return frames, err
}

// newlineReader yields a single trailing '\n' then EOF, used to flush the
// last partial frame out of the zstd stream without requiring the sender
// to terminate every batch with its own newline.
type newlineReader struct{ read bool }

func (r *newlineReader) Read(p []byte) (int, error) {
	if r.read || len(p) == 0 {
		return 0, io.EOF
	}
	r.read = true
	p[0] = '\n'
	return 1, nil
}

// ServeTrace handles POST /trace: it decodes the whole body before
// responding, then publishes each frame (with its peer trailer appended)
// asynchronously, responding 200 without waiting for publication to
// complete. A client that receives 200 only knows its bytes were decoded,
// not that they reached the broker — it is expected to spool locally on
// its own publish failures, so the gateway need not block on them here.
// The decode itself must happen before the handler returns: net/http
// closes the request body as soon as ServeTrace returns, which would
// race a decode still reading from it in the detached goroutine.
func (h *Handler) ServeTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	peer := peerIP(r)

	frames, err := readFrames(r.Body)
	if err != nil {
		h.log.Error("trace decode failed", "peer", peer, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	go func() {
		for _, frame := range frames {
			withTrailer := schema.AppendPeerTrailer(frame, peer)
			if err := h.broker.Publish(context.Background(), withTrailer); err != nil {
				h.log.Error("trace publish failed", "peer", peer, "error", err)
			}
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(schema.TraceResponse{})
}

// ServeBackup handles POST /backup: unlike /trace it publishes every frame
// synchronously before responding, since the agent has no secondary spool
// for a backup upload that the gateway silently drops.
func (h *Handler) ServeBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	peer := peerIP(r)

	err := decodeFrames(r.Body, func(frame []byte) error {
		withTrailer := schema.AppendPeerTrailer(append([]byte(nil), frame...), peer)
		return h.broker.Publish(r.Context(), withTrailer)
	})
	if err != nil {
		h.log.Error("backup publish failed", "peer", peer, "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ServeHealthCheck handles GET /health-check: 204 if the broker connection
// is usable, 503 otherwise.
func (h *Handler) ServeHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.health(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
