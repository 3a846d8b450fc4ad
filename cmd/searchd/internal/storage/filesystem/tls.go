// Package filesystem loads and stores PEM certificate pairs on local disk.
package filesystem

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
)

// FileTLSProvider reads a certificate/key pair from two PEM files.
type FileTLSProvider struct {
	CertFile string
	KeyFile  string
}

func NewFileTLSProvider(certFile, keyFile string) *FileTLSProvider {
	return &FileTLSProvider{
		CertFile: certFile,
		KeyFile:  keyFile,
	}
}

// GetCertificate parses the pair on every call, so rotated files are picked
// up by the next TLS context that is built.
func (p *FileTLSProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair from %s, %s: %w", p.CertFile, p.KeyFile, err)
	}
	return &cert, nil
}

// Store writes the pair, creating parent directories. The key is written
// with owner-only permissions.
func (p *FileTLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, path := range []string{p.CertFile, p.KeyFile} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(p.CertFile, certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write cert file: %w", err)
	}
	if err := os.WriteFile(p.KeyFile, keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
