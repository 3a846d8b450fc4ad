// Package protocol implements the per-connection request/response loop of
// the search service: one read is one query, one line is one answer.
package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/corpus"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/tlsconfig"
)

const (
	// MaxPayload is the largest request read in one go. Longer queries are
	// split across reads and answered piecewise.
	MaxPayload = 1024

	handshakeTimeout = 10 * time.Second
)

// SearchHandler answers presence queries on a connection until the peer
// goes away, an I/O error occurs, or the stop signal is raised.
type SearchHandler struct {
	Searcher corpus.Searcher
	// Stop is polled between requests. Optional.
	Stop  core.StopSignal
	Stats *core.Stats
	// PollInterval bounds each read so an idle session notices Stop. Zero
	// blocks until the peer sends or disconnects.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *SearchHandler) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := h.logger().With(
		"session", uuid.NewString(),
		"remote_addr", conn.RemoteAddr().String(),
	)

	if tlsConn, ok := conn.(*tls.Conn); ok {
		hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
		err := tlsConn.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			log.Warn("TLS handshake failed", "error", err)
			return
		}
		state := tlsConn.ConnectionState()
		log.Info("TLS handshake successful",
			"protocol", tlsconfig.VersionName(state.Version),
			"cipher_suite", tls.CipherSuiteName(state.CipherSuite))
	}

	log.Info("Client connection established")
	queries := 0
	defer func() {
		log.Info("Client connection closed", "queries", queries)
	}()

	buf := make([]byte, MaxPayload)
	for !h.stopped() {
		if h.PollInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.PollInterval))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			queries++
			if werr := h.answer(conn, buf[:n], log); werr != nil {
				log.Error("Failed to send response", "error", werr)
				return
			}
		}

		switch {
		case err == nil && n == 0:
			log.Debug("Client disconnected (no data)")
			return
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			log.Debug("Client disconnected")
			return
		case isTimeout(err):
			continue
		case errors.Is(err, net.ErrClosed):
			log.Debug("Connection closed locally")
			return
		default:
			log.Warn("Client disconnected abruptly", "error", err)
			return
		}
	}
	log.Debug("Stop signal observed, ending session")
}

func (h *SearchHandler) answer(conn net.Conn, payload []byte, log *slog.Logger) error {
	query := DecodeQuery(payload)

	result := corpus.NotFound
	if query == "" {
		log.Debug("Empty query received")
	} else {
		start := time.Now()
		result = h.search(query, log)
		elapsed := time.Since(start)
		log.Info("Query processed",
			"query", query,
			"result", result.String(),
			"duration", elapsed,
			"duration_ms", float64(elapsed.Microseconds())/1000)
		if h.Stats != nil {
			h.Stats.RecordQuery(result == corpus.Found)
		}
	}

	_, err := io.WriteString(conn, result.String()+"\n")
	return err
}

// search shields the session from a misbehaving Searcher.
func (h *SearchHandler) search(query string, log *slog.Logger) (result corpus.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Search processing failed", "query", query, "panic", r)
			result = corpus.NotFound
		}
	}()
	return h.Searcher.Search(query)
}

// DecodeQuery turns raw request bytes into a query: invalid UTF-8 becomes
// U+FFFD, NUL bytes are dropped and surrounding whitespace is trimmed.
func DecodeQuery(payload []byte) string {
	s := strings.ToValidUTF8(string(payload), "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

func (h *SearchHandler) stopped() bool {
	return h.Stop != nil && h.Stop.Stopped()
}

func (h *SearchHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
