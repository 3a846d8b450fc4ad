package factory

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/corpus"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/logger"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/tlsconfig"
)

func settings(mutate func(*config.Settings)) *config.Settings {
	s := &config.Settings{
		Host:       "127.0.0.1",
		Port:       0,
		CorpusPath: "corpus.txt",
		MatchMode:  config.MatchLine,
		TLSSource:  config.TLSSourceMemory,
		Namespace:  config.DefaultNamespace,
	}
	if mutate != nil {
		mutate(s)
	}
	return s
}

func TestBuildServerTLSDisabled(t *testing.T) {
	f := NewTLSFactory(settings(nil), logger.Discard())
	cfg, outcome := f.BuildServerTLS(context.Background())
	assert.Nil(t, cfg)
	assert.Equal(t, core.TLSDisabled, outcome.Status)
	assert.NoError(t, outcome.Err)
}

func TestBuildServerTLSDegradesWithoutCredentials(t *testing.T) {
	f := NewTLSFactory(settings(func(s *config.Settings) { s.TLSEnabled = true }), logger.Discard())
	cfg, outcome := f.BuildServerTLS(context.Background())
	assert.Nil(t, cfg)
	assert.Equal(t, core.TLSDegraded, outcome.Status)
	assert.ErrorIs(t, outcome.Err, core.ErrConfiguration)
	assert.Contains(t, outcome.String(), "degraded")
}

func TestBuildServerTLSDegradesOnMissingFiles(t *testing.T) {
	f := NewTLSFactory(settings(func(s *config.Settings) {
		s.TLSEnabled = true
		s.TLSSource = config.TLSSourceFile
		s.CertFile = filepath.Join(t.TempDir(), "missing.crt")
		s.KeyFile = filepath.Join(t.TempDir(), "missing.key")
	}), logger.Discard())
	_, outcome := f.BuildServerTLS(context.Background())
	assert.Equal(t, core.TLSDegraded, outcome.Status)
	assert.ErrorIs(t, outcome.Err, core.ErrFileNotFound)
}

func TestBuildServerTLSWithFiles(t *testing.T) {
	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned()
	require.NoError(t, err)
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	f := NewTLSFactory(settings(func(s *config.Settings) {
		s.TLSEnabled = true
		s.TLSSource = config.TLSSourceFile
		s.CertFile = certFile
		s.KeyFile = keyFile
	}), logger.Discard())
	cfg, outcome := f.BuildServerTLS(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, core.TLSEnabled, outcome.Status)
	assert.Len(t, cfg.Certificates, 1)
}

func TestBuildServerTLSClientVerification(t *testing.T) {
	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned()
	require.NoError(t, err)
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	tests := []struct {
		name         string
		verifyClient bool
		want         tls.ClientAuthType
	}{
		{"optional", false, tls.VerifyClientCertIfGiven},
		{"required", true, tls.RequireAndVerifyClientCert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewTLSFactory(settings(func(s *config.Settings) {
				s.TLSEnabled = true
				s.TLSSource = config.TLSSourceFile
				s.CertFile = certFile
				s.KeyFile = keyFile
				s.CAFile = certFile
				s.VerifyClient = tt.verifyClient
			}), logger.Discard())
			cfg, outcome := f.BuildServerTLS(context.Background())
			require.NotNil(t, cfg)
			assert.Equal(t, core.TLSEnabled, outcome.Status)
			assert.Equal(t, tt.want, cfg.ClientAuth)
		})
	}
}

func TestBuildServerTLSPSKOnlyGetsEphemeralCertificate(t *testing.T) {
	f := NewTLSFactory(settings(func(s *config.Settings) {
		s.TLSEnabled = true
		s.PSK = "mysecretkey"
	}), logger.Discard())
	cfg, outcome := f.BuildServerTLS(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, core.TLSEnabled, outcome.Status)
	assert.Len(t, cfg.Certificates, 1)
}

func TestBuildServerTLSFromKubernetesSecret(t *testing.T) {
	client := fake.NewSimpleClientset()
	f := NewTLSFactory(settings(func(s *config.Settings) {
		s.TLSEnabled = true
		s.TLSSource = config.TLSSourceKubernetes
		s.TLSSecretName = "xsearch-tls"
		s.Namespace = "search"
	}), logger.Discard())
	f.KubeClient = func() (k8s.Interface, error) { return client, nil }

	cfg, outcome := f.BuildServerTLS(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, core.TLSEnabled, outcome.Status)

	secret, err := client.CoreV1().Secrets("search").Get(context.Background(), "xsearch-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, secret.Data[corev1.TLSCertKey])

	// A second start reuses the stored certificate.
	_, outcome = f.BuildServerTLS(context.Background())
	assert.Equal(t, core.TLSEnabled, outcome.Status)
	again, err := client.CoreV1().Secrets("search").Get(context.Background(), "xsearch-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, secret.Data[corev1.TLSCertKey], again.Data[corev1.TLSCertKey])
}

func TestBuildServerTLSKubernetesUnavailable(t *testing.T) {
	f := NewTLSFactory(settings(func(s *config.Settings) {
		s.TLSEnabled = true
		s.TLSSource = config.TLSSourceKubernetes
		s.TLSSecretName = "xsearch-tls"
	}), logger.Discard())
	f.KubeClient = func() (k8s.Interface, error) { return nil, errors.New("no cluster") }

	cfg, outcome := f.BuildServerTLS(context.Background())
	assert.Nil(t, cfg)
	assert.Equal(t, core.TLSDegraded, outcome.Status)
	assert.ErrorIs(t, outcome.Err, core.ErrConfiguration)
}

func TestNewDispatcher(t *testing.T) {
	_, ok := NewDispatcher(settings(nil), logger.Discard()).(core.GoroutineDispatcher)
	assert.True(t, ok)

	pool, ok := NewDispatcher(settings(func(s *config.Settings) { s.MaxConnections = 4 }), logger.Discard()).(*core.PoolDispatcher)
	require.True(t, ok)
	assert.Equal(t, 4, pool.Size())
}

func TestNewSearcher(t *testing.T) {
	assert.Equal(t, corpus.ModeStatic, NewSearcher(settings(nil), logger.Discard()).Mode())
	dynamic := NewSearcher(settings(func(s *config.Settings) {
		s.RereadOnQuery = true
		s.MatchMode = config.MatchSubstring
	}), logger.Discard())
	assert.Equal(t, corpus.ModeDynamic, dynamic.Mode())
	assert.Equal(t, config.MatchSubstring, dynamic.MatchMode())
}
