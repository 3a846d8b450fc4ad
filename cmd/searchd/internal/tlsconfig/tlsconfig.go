// Package tlsconfig builds hardened crypto/tls configurations for both ends
// of the search protocol.
package tlsconfig

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/storage/filesystem"
)

// Role selects server-side or client-side behaviour.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// MinPSKLength is the shortest PSK accepted without a warning.
const MinPSKLength = 8

// cipherSuites restricts TLS 1.2 to forward-secret AEAD suites. TLS 1.3
// suites are not configurable and are all strong.
var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// Options are the inputs of Build. All paths are optional.
type Options struct {
	CertFile string
	KeyFile  string
	CAFile   string
	// PSK is recorded and length-checked only; it never feeds key derivation.
	PSK  string
	Role Role
	// VerifyClient makes a server with a CA require client certificates.
	VerifyClient bool
	// Provider supplies the certificate when CertFile/KeyFile are empty.
	Provider core.TLSProvider
	// ServerName is sent as SNI by clients.
	ServerName string
	Logger     *slog.Logger
}

// Build validates opts and produces a *tls.Config pinned to TLS 1.2 or newer.
//
// A server needs a cert/key pair, a Provider, or a PSK. Clients may have
// none of them. Cert and key must come as a pair. Missing files yield
// core.ErrFileNotFound, every other problem core.ErrConfiguration.
func Build(ctx context.Context, opts Options) (*tls.Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hasPair := opts.CertFile != "" || opts.KeyFile != ""
	if opts.Role == RoleServer && !hasPair && opts.PSK == "" && opts.Provider == nil {
		return nil, fmt.Errorf("%w: must provide either certificate files or PSK", core.ErrConfiguration)
	}
	if (opts.CertFile == "") != (opts.KeyFile == "") {
		return nil, fmt.Errorf("%w: must provide both certfile and keyfile", core.ErrConfiguration)
	}

	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: cipherSuites,
	}
	logger.Debug("Created TLS context", "role", opts.Role.String())

	var provider core.TLSProvider
	switch {
	case hasPair:
		if err := requireFile(opts.CertFile, "certificate"); err != nil {
			return nil, err
		}
		if err := requireFile(opts.KeyFile, "private key"); err != nil {
			return nil, err
		}
		provider = filesystem.NewFileTLSProvider(opts.CertFile, opts.KeyFile)
	case opts.Provider != nil:
		provider = opts.Provider
	}

	if provider != nil {
		cert, err := provider.GetCertificate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate error: %w", core.ErrConfiguration, err)
		}
		cfg.Certificates = []tls.Certificate{*cert}
		logger.Info("TLS certificate chain loaded", "cert", opts.CertFile, "key", opts.KeyFile)
	}

	if opts.CAFile != "" {
		if err := requireFile(opts.CAFile, "CA certificate"); err != nil {
			return nil, err
		}
		pool, err := loadCAPool(opts.CAFile)
		if err != nil {
			return nil, err
		}
		if opts.Role == RoleServer {
			cfg.ClientCAs = pool
			cfg.ClientAuth = tls.VerifyClientCertIfGiven
			if opts.VerifyClient {
				cfg.ClientAuth = tls.RequireAndVerifyClientCert
			}
		} else {
			cfg.RootCAs = pool
			cfg.ServerName = opts.ServerName
		}
		logger.Info("Peer certificate verification enabled", "ca", opts.CAFile)
	} else if opts.Role == RoleClient {
		// Without a CA there is nothing to verify the server against.
		cfg.InsecureSkipVerify = true
		logger.Warn("Server certificate verification disabled")
	}

	if opts.PSK != "" {
		if len(opts.PSK) < MinPSKLength {
			logger.Warn("PSK is shorter than recommended minimum length", "min_length", MinPSKLength)
		}
		logger.Info("PSK authentication configured", "key_length", len(opts.PSK))
	}

	if opts.Role == RoleServer && len(cfg.Certificates) == 0 {
		logger.Warn("Server TLS context has no certificate; handshakes will fail until one is provided")
	}

	logger.Info("TLS context successfully configured", "role", opts.Role.String(), "min_version", VersionName(cfg.MinVersion))
	return cfg, nil
}

func requireFile(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: TLS %s file not found: %s", core.ErrFileNotFound, what, path)
		}
		return fmt.Errorf("%w: cannot access TLS %s file %s: %w", core.ErrConfiguration, what, path, err)
	}
	return nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA file %s: %w", core.ErrConfiguration, path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: CA file %s contains no PEM certificates", core.ErrConfiguration, path)
	}
	return pool, nil
}

// VersionName returns a readable TLS protocol version.
func VersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLSv1.0"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("Unknown (%x)", version)
	}
}
