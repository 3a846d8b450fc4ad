package filesystem_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/storage/filesystem"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/tlsconfig"
)

func TestFileTLSProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := filesystem.NewFileTLSProvider(filepath.Join(dir, "certs", "server.crt"), filepath.Join(dir, "certs", "server.key"))

	_, err := p.GetCertificate(ctx)
	require.Error(t, err)

	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned()
	require.NoError(t, err)
	require.NoError(t, p.Store(ctx, certPEM, keyPEM))

	info, err := os.Stat(p.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cert, err := p.GetCertificate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
}

func TestFileTLSProviderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := filesystem.NewFileTLSProvider("a.crt", "a.key")
	_, err := p.GetCertificate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
