// Package memory keeps a certificate in process memory only.
package memory

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"sync"
)

// TLSProvider holds at most one certificate. It is used for PSK-only
// servers, which get an ephemeral self-signed certificate at startup.
type TLSProvider struct {
	mu   sync.RWMutex
	cert *tls.Certificate
}

func NewTLSProvider() *TLSProvider {
	return &TLSProvider{}
}

// GetCertificate returns os.ErrNotExist until Store has succeeded.
func (p *TLSProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cert == nil {
		return nil, fmt.Errorf("no certificate in memory: %w", os.ErrNotExist)
	}
	return p.cert, nil
}

func (p *TLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse x509 key pair: %w", err)
	}
	p.mu.Lock()
	p.cert = &cert
	p.mu.Unlock()
	return nil
}
