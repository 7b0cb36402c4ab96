// Package pki builds the mTLS configurations shared by the agent's HTTP
// client and the gateway's HTTPS listener.
package pki

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// NewClientTLSConfig builds a TLS 1.3 client configuration with a client
// certificate presented for mutual authentication.
func NewClientTLSConfig(caCertPath, clientCertPath, clientKeyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	caPool, err := loadCACertPool(caCertPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
	}, nil
}

// NewServerTLSConfig builds a TLS 1.3 server configuration that requires
// and verifies a client certificate on every connection.
//
// When caCertPath is empty, the server's own certificate is used as the
// trust anchor for verifying clients: every agent certificate must chain
// to the gateway's own leaf certificate, matching a single-gateway
// deployment where there is no separate CA. When caCertPath is set, that
// file is loaded as the client trust anchor instead.
func NewServerTLSConfig(caCertPath, serverCertPath, serverKeyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(serverCertPath, serverKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading server certificate: %w", err)
	}

	var clientCAs *x509.CertPool
	if caCertPath != "" {
		clientCAs, err = loadCACertPool(caCertPath)
		if err != nil {
			return nil, err
		}
	} else {
		clientCAs, err = certPoolFromOwnLeaf(serverCertPath)
		if err != nil {
			return nil, err
		}
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    clientCAs,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}, nil
}

func loadCACertPool(caCertPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate from %s", caCertPath)
	}

	return pool, nil
}

// certPoolFromOwnLeaf builds a pool trusting the last certificate in the
// PEM chain found at path — the same convention the ingestion gateway's
// peer used when no dedicated CA was distributed: the chain's final
// (outermost) certificate acts as its own trust anchor.
func certPoolFromOwnLeaf(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("failed to parse server certificate from %s", path)
	}

	return pool, nil
}
