package factory

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	k8s "k8s.io/client-go/kubernetes"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/storage/kubernetes"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/storage/memory"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/tlsconfig"
)

// RenewalThreshold is how close to expiry a managed certificate may get
// before it is regenerated.
const RenewalThreshold = 30 * 24 * time.Hour

// TLSFactory turns Settings into a server TLS configuration.
type TLSFactory struct {
	cfg    *config.Settings
	logger *slog.Logger
	// KubeClient overrides client construction for the kubernetes source.
	KubeClient func() (k8s.Interface, error)
}

// NewTLSFactory creates a new TLS factory
func NewTLSFactory(cfg *config.Settings, logger *slog.Logger) *TLSFactory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &TLSFactory{cfg: cfg, logger: logger}
	f.KubeClient = func() (k8s.Interface, error) {
		return NewKubeClient(cfg, logger)
	}
	return f
}

// BuildServerTLS returns the listener TLS config and how TLS setup went.
// Setup failures never abort startup: the config is nil, the outcome is
// TLSDegraded and carries the cause.
func (f *TLSFactory) BuildServerTLS(ctx context.Context) (*tls.Config, core.TLSOutcome) {
	if !f.cfg.TLSEnabled {
		f.logger.Warn("TLS is disabled - connections will not be encrypted")
		return nil, core.TLSOutcome{Status: core.TLSDisabled}
	}

	tlsConfig, err := f.build(ctx)
	if err != nil {
		f.logger.Warn("TLS setup failed, continuing without encryption", "error", err)
		return nil, core.TLSOutcome{Status: core.TLSDegraded, Err: err}
	}
	f.logger.Info("TLS enabled and configured", "source", f.cfg.TLSSource)
	return tlsConfig, core.TLSOutcome{Status: core.TLSEnabled}
}

func (f *TLSFactory) build(ctx context.Context) (*tls.Config, error) {
	provider, err := f.CreateProvider(ctx)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		if err := f.EnsureCertificate(ctx, provider); err != nil {
			return nil, err
		}
	}

	return tlsconfig.Build(ctx, tlsconfig.Options{
		CertFile:     f.cfg.CertFile,
		KeyFile:      f.cfg.KeyFile,
		CAFile:       f.cfg.CAFile,
		PSK:          f.cfg.PSK,
		Role:         tlsconfig.RoleServer,
		VerifyClient: f.cfg.VerifyClient,
		Provider:     provider,
		Logger:       f.logger,
	})
}

// CreateProvider returns the certificate provider for the configured
// source, or nil when certificates come straight from CertFile/KeyFile.
// The in-memory source is only used for PSK-only servers, which still need
// a certificate to complete a handshake.
func (f *TLSFactory) CreateProvider(ctx context.Context) (core.TLSProvider, error) {
	if f.cfg.CertFile != "" || f.cfg.KeyFile != "" {
		return nil, nil
	}
	switch f.cfg.TLSSource {
	case config.TLSSourceKubernetes:
		client, err := f.KubeClient()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
		f.logger.Info("Creating Kubernetes TLS Provider",
			"namespace", f.cfg.Namespace,
			"secret", f.cfg.TLSSecretName)
		return kubernetes.NewSecretTLSProvider(client, f.cfg.Namespace, f.cfg.TLSSecretName), nil
	case config.TLSSourceMemory:
		if f.cfg.PSK == "" {
			return nil, nil
		}
		f.logger.Info("Creating Memory TLS Provider for PSK-only server")
		return memory.NewTLSProvider(), nil
	default:
		return nil, nil
	}
}

// EnsureCertificate ensures a valid certificate exists
func (f *TLSFactory) EnsureCertificate(ctx context.Context, provider core.TLSProvider) error {
	cert, err := provider.GetCertificate(ctx)
	if err != nil {
		f.logger.Info("Certificate not found. Generating new self-signed certificate...")
		return f.generateAndStoreCertificate(ctx, provider)
	}

	expiring, notAfter, err := tlsconfig.ExpiresWithin(cert, RenewalThreshold)
	if err != nil {
		f.logger.Warn("Stored certificate is unreadable, regenerating", "error", err)
		return f.generateAndStoreCertificate(ctx, provider)
	}
	if expiring {
		f.logger.Info("Certificate expires soon, regenerating", "not_after", notAfter)
		return f.generateAndStoreCertificate(ctx, provider)
	}

	f.logger.Info("Certificate loaded and validated successfully", "not_after", notAfter)
	return nil
}

func (f *TLSFactory) generateAndStoreCertificate(ctx context.Context, provider core.TLSProvider) error {
	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned(f.cfg.Host)
	if err != nil {
		return fmt.Errorf("%w: failed to generate self-signed certificate: %w", core.ErrConfiguration, err)
	}

	// Another replica may have stored a certificate first.
	if err := provider.Store(ctx, certPEM, keyPEM); err != nil {
		f.logger.Warn("Failed to store certificate, attempting to load existing cert", "error", err)
		if _, loadErr := provider.GetCertificate(ctx); loadErr != nil {
			return fmt.Errorf("%w: failed to load certificate after store failure: %w", core.ErrConfiguration, loadErr)
		}
		f.logger.Info("Successfully loaded certificate created by another instance")
		return nil
	}

	f.logger.Info("Successfully generated and stored self-signed certificate")
	return nil
}
