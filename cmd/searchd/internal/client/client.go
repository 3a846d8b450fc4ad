// Package client is the peer side of the search protocol: it sends one
// query per line and reads back a single status line.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/tlsconfig"
)

var (
	// ErrConnection covers every network failure: timeouts, refusals,
	// handshake errors, resets and unexpected closes.
	ErrConnection   = errors.New("connection error")
	ErrEmptyQuery   = errors.New("search query cannot be empty or contain only whitespace")
	ErrNotConnected = errors.New("client not connected to server, call Connect first")
)

const (
	DefaultTimeout = 10 * time.Second
	// MaxResponse is the most read back for one query.
	MaxResponse = 1024
)

type Options struct {
	Host     string
	Port     int
	UseTLS   bool
	CertFile string
	KeyFile  string
	CAFile   string
	PSK      string
	// Timeout bounds the dial, the handshake and each query. Defaults to
	// DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

type Client struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	tlsActive bool
}

func New(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 44445
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opts: opts, logger: logger}
}

// Address returns host:port of the server.
func (c *Client) Address() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// Connect dials the server. With UseTLS, a TLS setup error (bad or missing
// local files) falls back to plaintext with a warning, while a failed
// handshake is an ErrConnection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	addr := c.Address()

	var tlsConfig *tls.Config
	if c.opts.UseTLS {
		cfg, err := tlsconfig.Build(ctx, tlsconfig.Options{
			CertFile:   c.opts.CertFile,
			KeyFile:    c.opts.KeyFile,
			CAFile:     c.opts.CAFile,
			PSK:        c.opts.PSK,
			Role:       tlsconfig.RoleClient,
			ServerName: c.opts.Host,
			Logger:     c.logger,
		})
		if err != nil {
			c.logger.Warn("TLS setup failed, falling back to plain socket", "error", err)
		} else {
			tlsConfig = cfg
		}
	}

	dialer := &net.Dialer{Timeout: c.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return c.dialError(addr, err)
	}

	if tlsConfig != nil {
		tlsConn := tls.Client(conn, tlsConfig)
		hsCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		err := tlsConn.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			conn.Close()
			c.logger.Error("TLS handshake failed", "addr", addr, "error", err)
			return fmt.Errorf("%w: TLS connection failed: %w", ErrConnection, err)
		}
		conn = tlsConn
	}

	c.conn = conn
	c.tlsActive = tlsConfig != nil
	c.logger.Info("Connected to server", "addr", addr, "tls", c.tlsActive)
	return nil
}

func (c *Client) dialError(addr string, err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: connection timeout: could not connect to %s within %s", ErrConnection, addr, c.opts.Timeout)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: connection refused: server at %s is not accepting connections", ErrConnection, addr)
	default:
		return fmt.Errorf("%w: failed to connect to %s: %w", ErrConnection, addr, err)
	}
}

// TLS reports whether the current connection is encrypted.
func (c *Client) TLS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsActive
}

// SendQuery sends the trimmed query and returns the server's status line,
// "STRING EXISTS" or "STRING NOT FOUND".
func (c *Client) SendQuery(query string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", ErrNotConnected
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrEmptyQuery
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return "", communicationError(err)
	}
	if _, err := io.WriteString(c.conn, strings.ToValidUTF8(q, "\uFFFD")+"\n"); err != nil {
		return "", communicationError(err)
	}

	buf := make([]byte, MaxResponse)
	n, err := c.conn.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: server closed connection unexpectedly", ErrConnection)
		}
		return "", communicationError(err)
	}

	response := strings.TrimSpace(strings.ToValidUTF8(string(buf[:n]), "\uFFFD"))
	c.logger.Debug("Query answered", "query", q, "response", response)
	return response, nil
}

func communicationError(err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: server response timeout: %w", ErrConnection, err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: server connection lost: %w", ErrConnection, err)
	default:
		return fmt.Errorf("%w: communication error with server: %w", ErrConnection, err)
	}
}

// Close releases the connection. It is idempotent and never fails.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("Error while closing connection", "error", err)
	}
	c.conn = nil
	c.tlsActive = false
	return nil
}
