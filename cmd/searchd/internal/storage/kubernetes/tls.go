// Package kubernetes reads and writes the server certificate as a
// kubernetes.io/tls Secret.
package kubernetes

import (
	"context"
	"crypto/tls"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// SecretTLSProvider stores the pair under tls.crt / tls.key of one Secret.
type SecretTLSProvider struct {
	client     kubernetes.Interface
	namespace  string
	secretName string
}

func NewSecretTLSProvider(client kubernetes.Interface, namespace, secretName string) *SecretTLSProvider {
	return &SecretTLSProvider{
		client:     client,
		namespace:  namespace,
		secretName: secretName,
	}
}

func (p *SecretTLSProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	secret, err := p.client.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", p.namespace, p.secretName, err)
	}

	certBytes, ok := secret.Data[corev1.TLSCertKey]
	if !ok {
		return nil, fmt.Errorf("secret %s/%s missing %s", p.namespace, p.secretName, corev1.TLSCertKey)
	}
	keyBytes, ok := secret.Data[corev1.TLSPrivateKeyKey]
	if !ok {
		return nil, fmt.Errorf("secret %s/%s missing %s", p.namespace, p.secretName, corev1.TLSPrivateKeyKey)
	}

	cert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse x509 key pair: %w", err)
	}
	return &cert, nil
}

// Store creates the Secret, or updates it when it already exists.
func (p *SecretTLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      p.secretName,
			Namespace: p.namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "xsearch"},
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			corev1.TLSCertKey:       certPEM,
			corev1.TLSPrivateKeyKey: keyPEM,
		},
	}

	secrets := p.client.CoreV1().Secrets(p.namespace)
	_, err := secrets.Create(ctx, secret, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create secret %s/%s: %w", p.namespace, p.secretName, err)
	}
	if _, err := secrets.Update(ctx, secret, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update secret %s/%s: %w", p.namespace, p.secretName, err)
	}
	return nil
}
