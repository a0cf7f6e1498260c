// Package server runs the TCP listener and one handler goroutine per
// connection. Each handler owns its transport: it reads one line, dispatches
// it, writes exactly one reply, and repeats until the peer goes away, the
// idle deadline fires, or a LOGOUT succeeds.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/bankd/internal/protocol"
	"github.com/example/bankd/internal/security"
	"github.com/example/bankd/internal/session"
	"github.com/example/bankd/pkg/audit"
)

// maxLineBytes bounds a single request line, CRLF included.
const maxLineBytes = 4096

// Options configures a Server. Dispatcher and Sessions are required; the
// rest may be zero.
type Options struct {
	Dispatcher  *protocol.Dispatcher
	Sessions    *session.Manager
	Logger      *slog.Logger
	Trail       *audit.Trail
	Limiter     *security.ConnLimiter
	IdleTimeout time.Duration
}

// Server accepts connections and runs the protocol state machine on each.
type Server struct {
	dispatcher  *protocol.Dispatcher
	sessions    *session.Manager
	logger      *slog.Logger
	trail       *audit.Trail
	limiter     *security.ConnLimiter
	idleTimeout time.Duration

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a Server from opts.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher:  opts.Dispatcher,
		sessions:    opts.Sessions,
		logger:      logger,
		trail:       opts.Trail,
		limiter:     opts.Limiter,
		idleTimeout: opts.IdleTimeout,
		conns:       make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln until Shutdown is called. It always
// returns a non-nil error; after Shutdown the error is net.ErrClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return net.ErrClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.limiter.Allow(remoteHost(conn), time.Now()) {
			s.logger.Warn("connection rate limited", "remote", conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Shutdown closes the listener, then waits for active handlers up to the
// context deadline before force-closing their connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// handle runs the per-connection loop. A panic in one handler is contained
// here and never reaches the listener or other connections.
func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	logger := s.logger.With("conn", connID, "remote", conn.RemoteAddr().String())
	state := &protocol.Conn{ID: connID}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "panic", r)
		}
		// Connection loss counts as logout, whatever the reason.
		if accountID, ok := s.sessions.Unbind(connID); ok {
			logger.Info("session closed", "account", accountID)
		}
		conn.Close()
		s.forget(conn)
	}()

	logger.Info("connection accepted")
	// The buffer size caps the request line; a peer streaming bytes
	// without a newline gets dropped instead of growing handler memory.
	reader := bufio.NewReaderSize(conn, maxLineBytes)

	for {
		if s.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		line, err := reader.ReadSlice('\n')
		if err != nil {
			switch {
			case errors.Is(err, bufio.ErrBufferFull):
				logger.Info("request line too long, dropping connection")
			case errors.Is(err, io.EOF):
				logger.Info("connection closed by peer")
			default:
				logger.Info("connection read failed", "error", err)
			}
			return
		}

		reply := s.dispatcher.Dispatch(context.Background(), state, strings.TrimRight(string(line), "\r\n"))

		if _, err := io.WriteString(conn, reply.Line); err != nil {
			logger.Info("connection write failed", "error", err)
			return
		}

		logger.Debug("command handled", "command", string(reply.Command.Name), "code", int(reply.Code))

		if s.trail != nil && reply.Command.Mutating() {
			s.trail.Append(string(reply.Command.Name), fmt.Sprintf("conn=%s code=%d", connID, reply.Code))
		}

		if reply.Close {
			logger.Info("session logged out")
			return
		}
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) forget(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func remoteHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
