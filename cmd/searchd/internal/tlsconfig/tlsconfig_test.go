package tlsconfig

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/logger"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/storage/memory"
)

type pair struct {
	cert, key string
}

func writePair(t *testing.T) pair {
	t.Helper()
	certPEM, keyPEM, err := GenerateSelfSigned()
	require.NoError(t, err)
	dir := t.TempDir()
	p := pair{cert: filepath.Join(dir, "server.crt"), key: filepath.Join(dir, "server.key")}
	require.NoError(t, os.WriteFile(p.cert, certPEM, 0o644))
	require.NoError(t, os.WriteFile(p.key, keyPEM, 0o600))
	return p
}

func TestBuildValidation(t *testing.T) {
	p := writePair(t)
	missing := filepath.Join(t.TempDir(), "missing.pem")

	tests := []struct {
		name string
		opts Options
		kind error
	}{
		{"nothing for server", Options{Role: RoleServer}, core.ErrConfiguration},
		{"cert without key", Options{CertFile: p.cert}, core.ErrConfiguration},
		{"key without cert", Options{KeyFile: p.key}, core.ErrConfiguration},
		{"key without cert with psk", Options{KeyFile: p.key, PSK: "longenoughpsk"}, core.ErrConfiguration},
		{"missing cert file", Options{CertFile: missing, KeyFile: p.key}, core.ErrFileNotFound},
		{"missing key file", Options{CertFile: p.cert, KeyFile: missing}, core.ErrFileNotFound},
		{"missing ca file", Options{CertFile: p.cert, KeyFile: p.key, CAFile: missing}, core.ErrFileNotFound},
		{"cert and key swapped", Options{CertFile: p.key, KeyFile: p.cert}, core.ErrConfiguration},
		{"ca not pem", Options{CertFile: p.cert, KeyFile: p.key, CAFile: p.key}, core.ErrConfiguration},
		{"empty provider", Options{Provider: memory.NewTLSProvider()}, core.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = logger.Discard()
			cfg, err := Build(context.Background(), tt.opts)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestBuildServerWithPair(t *testing.T) {
	p := writePair(t)
	cfg, err := Build(context.Background(), Options{CertFile: p.cert, KeyFile: p.key, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotEmpty(t, cfg.CipherSuites)
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)
	assert.Nil(t, cfg.ClientCAs)
}

func TestBuildServerWithCA(t *testing.T) {
	p := writePair(t)
	cfg, err := Build(context.Background(), Options{CertFile: p.cert, KeyFile: p.key, CAFile: p.cert, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.NotNil(t, cfg.ClientCAs)
	assert.Equal(t, tls.VerifyClientCertIfGiven, cfg.ClientAuth)

	cfg, err = Build(context.Background(), Options{CertFile: p.cert, KeyFile: p.key, CAFile: p.cert, VerifyClient: true, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
}

func TestBuildPSKOnly(t *testing.T) {
	cfg, err := Build(context.Background(), Options{PSK: "short", Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Empty(t, cfg.Certificates)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestBuildFromProvider(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSigned()
	require.NoError(t, err)
	provider := memory.NewTLSProvider()
	require.NoError(t, provider.Store(context.Background(), certPEM, keyPEM))

	cfg, err := Build(context.Background(), Options{Provider: provider, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
}

func TestBuildClient(t *testing.T) {
	cfg, err := Build(context.Background(), Options{Role: RoleClient, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	p := writePair(t)
	cfg, err = Build(context.Background(), Options{Role: RoleClient, CAFile: p.cert, ServerName: "localhost", Logger: logger.Discard()})
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, "localhost", cfg.ServerName)
}

func TestHandshakeWithVerification(t *testing.T) {
	p := writePair(t)
	serverCfg, err := Build(context.Background(), Options{CertFile: p.cert, KeyFile: p.key, Logger: logger.Discard()})
	require.NoError(t, err)
	clientCfg, err := Build(context.Background(), Options{Role: RoleClient, CAFile: p.cert, ServerName: "localhost", Logger: logger.Discard()})
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	errc := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errc <- err
			return
		}
		defer conn.Close()
		errc <- conn.(*tls.Conn).Handshake()
	}()

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", ln.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()
	assert.GreaterOrEqual(t, conn.ConnectionState().Version, uint16(tls.VersionTLS12))
	require.NoError(t, <-errc)
}

func TestExpiresWithin(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSigned()
	require.NoError(t, err)
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	expiring, notAfter, err := ExpiresWithin(&cert, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, expiring)
	assert.True(t, notAfter.After(time.Now()))

	expiring, _, err = ExpiresWithin(&cert, 2*365*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, expiring)

	_, _, err = ExpiresWithin(&tls.Certificate{}, time.Hour)
	assert.Error(t, err)
}

func TestVersionName(t *testing.T) {
	assert.Equal(t, "TLSv1.2", VersionName(tls.VersionTLS12))
	assert.Equal(t, "TLSv1.3", VersionName(tls.VersionTLS13))
	assert.Contains(t, VersionName(0x9999), "Unknown")
}
