package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
)

// MatchMode selects how a query is compared against the corpus.
type MatchMode string

const (
	// MatchLine requires the query to equal a whole (trimmed) corpus line.
	MatchLine MatchMode = "line"
	// MatchSubstring accepts any occurrence of the query in the corpus text.
	MatchSubstring MatchMode = "substring"
)

// TLSSource represents where the server certificate comes from.
type TLSSource string

const (
	TLSSourceFile       TLSSource = "file"
	TLSSourceKubernetes TLSSource = "kubernetes"
	TLSSourceMemory     TLSSource = "memory"
)

const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 44445
	DefaultNamespace = "default"
)

// Settings holds all server configuration. It is never modified after Load
// returns.
type Settings struct {
	// Server
	Host           string
	Port           int
	MaxConnections int // 0 means unbounded
	HealthAddr     string
	Debug          bool

	// Corpus
	CorpusPath    string
	RereadOnQuery bool
	MatchMode     MatchMode

	// TLS Configuration
	TLSEnabled bool
	TLSSource  TLSSource
	CertFile   string
	KeyFile    string
	CAFile     string
	PSK        string
	// VerifyClient makes client certificates mandatory when CAFile is set.
	VerifyClient bool

	// Kubernetes certificate source
	TLSSecretName string
	Namespace     string
	KubeConfig    string
	KubeContext   string
}

// Address returns host:port suitable for net.Listen.
func (s *Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// String renders the settings with the PSK masked.
func (s *Settings) String() string {
	psk := "<none>"
	if s.PSK != "" {
		psk = "***"
	}
	return fmt.Sprintf(
		"Settings(host=%q, port=%d, corpus=%q, reread_on_query=%t, match_mode=%s, ssl_enabled=%t, tls_source=%s, certfile=%q, keyfile=%q, cafile=%q, verify_client=%t, psk=%s)",
		s.Host, s.Port, s.CorpusPath, s.RereadOnQuery, s.MatchMode, s.TLSEnabled, s.TLSSource, s.CertFile, s.KeyFile, s.CAFile, s.VerifyClient, psk,
	)
}

// Load reads a key=value configuration file. Unknown keys and lines without
// '=' are skipped with a warning; any validation failure aborts the load.
func Load(path string, logger *slog.Logger) (*Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: configuration file not found: %s", core.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: cannot stat configuration file %s: %w", core.ErrConfiguration, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: configuration path %s is a directory", core.ErrConfiguration, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open configuration file %s: %w", core.ErrConfiguration, path, err)
	}
	defer f.Close()

	s := &Settings{
		Host:      DefaultHost,
		Port:      DefaultPort,
		MatchMode: MatchLine,
		Namespace: DefaultNamespace,
	}
	tlsSourceSet := false

	scanner := bufio.NewScanner(f)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		raw := scanner.Bytes()
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%w: line %d of %s is not valid UTF-8", core.ErrConfiguration, lineNumber, path)
		}
		line := strings.TrimSpace(string(raw))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			logger.Warn("Invalid configuration line (missing '='), skipping", "line", lineNumber, "content", line)
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if err := s.apply(key, value, logger); err != nil {
			if errors.Is(err, errUnknownKey) {
				logger.Warn("Unknown configuration key, skipping", "line", lineNumber, "key", key)
				continue
			}
			logger.Error("Failed to load configuration", "path", path, "line", lineNumber, "error", err)
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if key == "tls_source" {
			tlsSourceSet = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, path, err)
	}

	if !tlsSourceSet {
		s.TLSSource = s.detectTLSSource()
	}

	if err := s.validate(); err != nil {
		logger.Error("Failed to load configuration", "path", path, "error", err)
		return nil, err
	}

	logger.Info("Configuration loaded successfully", "path", path)
	logger.Debug("Effective configuration", "settings", s.String())
	return s, nil
}

var errUnknownKey = errors.New("unknown key")

func (s *Settings) apply(key, value string, logger *slog.Logger) error {
	switch key {
	case "host":
		s.Host = value
	case "port":
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		s.Port = port
	case "linuxpath", "file_path":
		s.CorpusPath = value
	case "reread_on_query":
		s.RereadOnQuery = parseBool(value)
		logger.Debug("Corpus mode configured", "reread_on_query", s.RereadOnQuery)
	case "match_mode":
		mode := MatchMode(strings.ToLower(value))
		if mode != MatchLine && mode != MatchSubstring {
			return fmt.Errorf("%w: unsupported match_mode %q (supported: line, substring)", core.ErrValidation, value)
		}
		s.MatchMode = mode
	case "max_connections":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid max_connections %q, must be a non-negative integer", core.ErrValidation, value)
		}
		s.MaxConnections = n
	case "health_addr":
		s.HealthAddr = value
	case "debug":
		s.Debug = parseBool(value)
	case "ssl_enabled":
		s.TLSEnabled = parseBool(value)
	case "tls_source":
		source, err := parseTLSSource(value)
		if err != nil {
			return err
		}
		s.TLSSource = source
	case "certfile", "ssl_certfile":
		s.CertFile = value
	case "keyfile", "ssl_keyfile":
		s.KeyFile = value
	case "cafile", "ssl_cafile":
		s.CAFile = value
	case "ssl_verify_client":
		s.VerifyClient = parseBool(value)
	case "psk":
		s.PSK = value
		if value == "" {
			logger.Warn("Empty PSK value provided")
		}
	case "tls_secret_name":
		s.TLSSecretName = value
	case "tls_namespace":
		if value != "" {
			s.Namespace = value
		}
	case "kubeconfig":
		s.KubeConfig = value
	case "kube_context":
		s.KubeContext = value
	default:
		return errUnknownKey
	}
	return nil
}

// validate ensures configuration is coherent
func (s *Settings) validate() error {
	if s.CorpusPath == "" || s.CorpusPath == "." {
		return fmt.Errorf("%w: required configuration field 'linuxpath' (or 'file_path') is missing or invalid", core.ErrValidation)
	}
	if s.TLSSource == TLSSourceKubernetes && s.TLSEnabled && s.TLSSecretName == "" {
		return fmt.Errorf("%w: tls_secret_name must be set when using kubernetes tls_source", core.ErrValidation)
	}
	return nil
}

// detectTLSSource mirrors the explicit-then-auto-detect order: files first,
// then a Kubernetes secret, then an in-memory certificate.
func (s *Settings) detectTLSSource() TLSSource {
	if s.CertFile != "" || s.KeyFile != "" {
		return TLSSourceFile
	}
	if s.TLSSecretName != "" {
		return TLSSourceKubernetes
	}
	return TLSSourceMemory
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid port %q, must be a number between 1-65535", core.ErrValidation, value)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q, %d out of valid range (1-65535)", core.ErrValidation, value, port)
	}
	return port, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func parseTLSSource(value string) (TLSSource, error) {
	switch strings.ToLower(value) {
	case "file", "filesystem":
		return TLSSourceFile, nil
	case "kubernetes", "k8s", "secret":
		return TLSSourceKubernetes, nil
	case "memory", "in-memory":
		return TLSSourceMemory, nil
	}
	return "", fmt.Errorf("%w: unsupported tls_source %q (supported: file, kubernetes, memory)", core.ErrValidation, value)
}

// GetEnv returns the environment value for key or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
