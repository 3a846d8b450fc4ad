package factory

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
)

// NewKubeClient builds a Kubernetes client from the configured kubeconfig,
// falling back to $HOME/.kube/config and finally to in-cluster credentials.
func NewKubeClient(s *config.Settings, logger *slog.Logger) (k8s.Interface, error) {
	kubeconfig := s.KubeConfig
	if kubeconfig == "" {
		if home := os.Getenv("HOME"); home != "" {
			candidate := filepath.Join(home, ".kube", "config")
			if _, err := os.Stat(candidate); err == nil {
				kubeconfig = candidate
			}
		}
	}

	overrides := &clientcmd.ConfigOverrides{}
	if s.KubeContext != "" {
		overrides.CurrentContext = s.KubeContext
		logger.Info("Using specific Kubernetes context", "context", s.KubeContext)
	}

	var restConfig *rest.Config
	var err error

	if kubeconfig != "" {
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			overrides,
		).ClientConfig()
		if err != nil {
			logger.Warn("Failed to load kubeconfig, will try in-cluster config", "kubeconfig", kubeconfig, "error", err)
		}
	}

	if restConfig == nil {
		logger.Info("Attempting in-cluster Kubernetes configuration")
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
		}
	}

	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return clientset, nil
}
