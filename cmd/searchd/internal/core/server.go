package core

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// State is a step of the server lifecycle. It only ever moves forward.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Server is the generic TCP server.
// It depends ONLY on interfaces, not concrete implementations.
type Server struct {
	// Address is the host:port to bind. Ignored when Listener is set.
	Address string
	// Listener may be supplied directly instead of binding Address.
	Listener net.Listener
	// TLSConfig wraps the listener when non-nil.
	TLSConfig         *tls.Config
	ConnectionHandler ConnectionHandler
	// Dispatcher defaults to one goroutine per connection.
	Dispatcher Dispatcher
	Stats      *Stats
	Logger     *slog.Logger

	mu      sync.Mutex
	state   atomic.Int32
	stopped atomic.Bool
	// done is closed once the server has reached StateStopped.
	done chan struct{}
}

// Listen binds the configured address and moves the server to Listening.
// On failure the server ends up Stopped and the error wraps ErrRuntime.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateCreated {
		return fmt.Errorf("%w: cannot listen from state %s", ErrRuntime, st)
	}

	if s.Listener == nil {
		lc := net.ListenConfig{Control: reuseAddr}
		ln, err := lc.Listen(ctx, "tcp", s.Address)
		if err != nil {
			s.state.Store(int32(StateStopped))
			s.stopped.Store(true)
			close(s.doneLocked())
			s.logger().Error("Failed to start listener", "addr", s.Address, "error", err)
			return fmt.Errorf("%w: failed to listen on %s: %w", ErrRuntime, s.Address, err)
		}
		s.Listener = ln
	}

	if s.TLSConfig != nil {
		s.Listener = tls.NewListener(s.Listener, s.TLSConfig)
	}

	s.state.Store(int32(StateListening))
	s.logger().Info("Server listening", "addr", s.Listener.Addr().String(), "tls", s.TLSConfig != nil)
	return nil
}

// Serve runs the accept loop until Shutdown is called or ctx is cancelled.
// Handlers are dispatched and never joined. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if s.State() == StateCreated {
		if err := s.Listen(ctx); err != nil {
			return err
		}
	}
	if s.State() != StateListening {
		if s.Stopped() {
			s.wait()
		}
		return fmt.Errorf("%w: cannot serve from state %s", ErrRuntime, s.State())
	}

	dispatcher := s.Dispatcher
	if dispatcher == nil {
		dispatcher = GoroutineDispatcher{}
	}
	stats := s.stats()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-done:
		}
	}()

	// A shutdown that won the race must not be undone.
	if !s.state.CompareAndSwap(int32(StateListening), int32(StateRunning)) {
		s.Shutdown()
		s.wait()
		return nil
	}
	s.logger().Info("Server is ready to accept connections")

	// Handlers outlive the accept loop, so they must not inherit its cancellation.
	handlerCtx := context.WithoutCancel(ctx)

	for !s.stopped.Load() {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.stopped.Load() {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger().Error("Socket error while accepting connections", "error", err)
			s.Shutdown()
			s.wait()
			return fmt.Errorf("%w: accept: %w", ErrRuntime, err)
		}

		s.logger().Debug("New connection accepted", "remote_addr", conn.RemoteAddr().String())
		stats.connectionOpened()
		dispatcher.Dispatch(func() {
			defer stats.connectionClosed()
			s.ConnectionHandler.HandleConnection(handlerCtx, conn)
		})
	}

	s.Shutdown()
	s.wait()
	return nil
}

// Shutdown sets the stop signal and closes the listener. It is safe to call
// more than once and from any goroutine; in-flight connections drain on
// their own. Only the first call does the work, later calls return at once
// without waiting for it.
func (s *Server) Shutdown() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.state.Store(int32(StateShuttingDown))
	s.logger().Info("Shutting down server...")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Listener != nil {
		if err := s.Listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger().Debug("Listener close during shutdown", "error", err)
		}
	}
	s.state.Store(int32(StateStopped))
	close(s.doneLocked())
	s.logger().Info("Server socket closed and resources released")
}

// wait blocks until a shutdown begun by any goroutine has completed.
func (s *Server) wait() {
	s.mu.Lock()
	done := s.doneLocked()
	s.mu.Unlock()
	<-done
}

// doneLocked returns the done channel, creating it if needed. s.mu must be held.
func (s *Server) doneLocked() chan struct{} {
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Stopped reports whether the stop signal has been set.
func (s *Server) Stopped() bool {
	return s.stopped.Load()
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Listener == nil {
		return nil
	}
	return s.Listener.Addr()
}

func (s *Server) stats() *Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stats == nil {
		s.Stats = &Stats{}
	}
	return s.Stats
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
