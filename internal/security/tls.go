// Package security holds the transport hardening used by the listener: TLS
// configuration loading and per-client connection rate limiting.
package security

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
)

// LoadServerTLSConfig loads the server certificate and key and returns a
// TLS 1.3 configuration for the listener.
func LoadServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate and key: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
		},
	}, nil
}

// VerifyTLSFiles verifies that the certificate and key files exist before
// the listener starts.
func VerifyTLSFiles(certFile, keyFile string) error {
	for _, file := range []string{certFile, keyFile} {
		if file == "" {
			return errors.New("TLS file path must not be empty")
		}
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("TLS file not found: %s - %w", file, err)
		}
	}
	return nil
}
