package core

import (
	"context"
	"crypto/tls"
	"net"
)

// ConnectionHandler owns a single accepted connection for its whole lifetime,
// including closing it.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn net.Conn)
}

// Dispatcher decides how a connection handler is run once the accept loop
// hands it over. Implementations must not block longer than admission control
// requires.
type Dispatcher interface {
	Dispatch(fn func())
}

// TLSProvider defines how to retrieve the server certificate.
// It abstracts away the storage mechanism (K8s Secret, File, in-memory).
type TLSProvider interface {
	GetCertificate(ctx context.Context) (*tls.Certificate, error)
	Store(ctx context.Context, certPEM, keyPEM []byte) error
}

// StopSignal reports whether shutdown has begun. Handlers poll it between
// requests.
type StopSignal interface {
	Stopped() bool
}

// TLSStatus records how the listener's transport security turned out.
type TLSStatus string

const (
	TLSDisabled TLSStatus = "disabled"
	TLSEnabled  TLSStatus = "enabled"
	// TLSDegraded means TLS was requested but could not be set up, and the
	// server is running in plaintext instead.
	TLSDegraded TLSStatus = "degraded"
)

// TLSOutcome is the observable result of server TLS setup.
type TLSOutcome struct {
	Status TLSStatus
	Err    error
}

func (o TLSOutcome) String() string {
	if o.Err != nil {
		return string(o.Status) + ": " + o.Err.Error()
	}
	return string(o.Status)
}
