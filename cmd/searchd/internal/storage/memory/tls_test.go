package memory

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/tlsconfig"
)

func TestTLSProvider(t *testing.T) {
	ctx := context.Background()
	p := NewTLSProvider()

	_, err := p.GetCertificate(ctx)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Error(t, p.Store(ctx, []byte("garbage"), []byte("garbage")))

	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned()
	require.NoError(t, err)
	require.NoError(t, p.Store(ctx, certPEM, keyPEM))

	cert, err := p.GetCertificate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
}
