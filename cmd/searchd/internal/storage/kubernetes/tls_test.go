package kubernetes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/tlsconfig"
)

func TestSecretTLSProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	provider := NewSecretTLSProvider(client, "search", "xsearch-tls")

	_, err := provider.GetCertificate(ctx)
	require.Error(t, err)

	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned()
	require.NoError(t, err)
	require.NoError(t, provider.Store(ctx, certPEM, keyPEM))

	secret, err := client.CoreV1().Secrets("search").Get(ctx, "xsearch-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.SecretTypeTLS, secret.Type)
	assert.Equal(t, certPEM, secret.Data[corev1.TLSCertKey])

	cert, err := provider.GetCertificate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
}

func TestSecretTLSProviderStoreUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	provider := NewSecretTLSProvider(client, "default", "xsearch-tls")

	firstCert, firstKey, err := tlsconfig.GenerateSelfSigned()
	require.NoError(t, err)
	require.NoError(t, provider.Store(ctx, firstCert, firstKey))

	secondCert, secondKey, err := tlsconfig.GenerateSelfSigned("search.internal")
	require.NoError(t, err)
	require.NoError(t, provider.Store(ctx, secondCert, secondKey))

	secret, err := client.CoreV1().Secrets("default").Get(ctx, "xsearch-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, secondCert, secret.Data[corev1.TLSCertKey])
}

func TestSecretTLSProviderMissingKeys(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "partial", Namespace: "default"},
		Data:       map[string][]byte{corev1.TLSCertKey: []byte("cert")},
	})
	provider := NewSecretTLSProvider(client, "default", "partial")

	_, err := provider.GetCertificate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), corev1.TLSPrivateKeyKey)
}
