// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package gateway implements the mTLS ingestion endpoint that decodes
// batched agent records and publishes them onto the broker.
package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/windowsmonitor/wm-telemetry/internal/broker"
	"github.com/windowsmonitor/wm-telemetry/internal/config"
	"github.com/windowsmonitor/wm-telemetry/internal/pki"
)

// Run configures the mTLS listener and serves /trace, /backup, and
// /health-check until ctx is canceled.
func Run(ctx context.Context, cfg *config.GatewayConfig, logger *slog.Logger) error {
	tlsCfg, err := pki.NewServerTLSConfig(cfg.TLS.CACert, cfg.TLS.ServerCert, cfg.TLS.ServerKey)
	if err != nil {
		return fmt.Errorf("configuring TLS: %w", err)
	}

	rawLn, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}
	ln := tls.NewListener(rawLn, tlsCfg)

	ch := broker.New(cfg.Broker.Host)
	defer ch.Close()

	handler := NewHandler(ch, func() error {
		_, err := ch.GetOrConnect()
		return err
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/trace", handler.ServeTrace)
	mux.HandleFunc("/backup", handler.ServeBackup)
	mux.HandleFunc("/health-check", handler.ServeHealthCheck)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	// Try establishing the broker connection ahead of the first request,
	// logging failure but not blocking startup on it — GetOrConnect will
	// be retried lazily by whichever request needs it next.
	go func() {
		if _, err := ch.GetOrConnect(); err != nil {
			logger.Warn("initial broker connection failed, will retry lazily", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("gateway shutdown error", "error", err)
		}
	}()

	logger.Info("gateway listening", "address", cfg.Server.Listen)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("gateway shutdown complete")
	return nil
}
