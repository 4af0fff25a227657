package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/qorvexhq/qorvex/internal/executor"
	"github.com/qorvexhq/qorvex/internal/logger"
	"github.com/qorvexhq/qorvex/internal/session"
)

// Server is the local IPC hub: a Unix domain stream-socket accept loop
// dispatching newline-JSON requests, one independent read loop per
// connection. Execute/Subscribe/GetState/GetLog are handled directly
// against Session/Executor unless a Handler is attached, in which case
// every request (including those four) is delegated to it.
type Server struct {
	SocketPath string
	Session    *session.Session
	Executor   *executor.Executor
	Handler    RequestHandler // optional; nil uses handleDefault

	// OnShutdown runs once, synchronously, before the socket file is
	// removed and the listener is closed — the hook through which a
	// Shutdown request (or a termination signal) tells the owning
	// process to stop its watcher and drop session/lifecycle state.
	OnShutdown func()

	ln net.Listener

	connsMu sync.Mutex
	conns   map[*Conn]struct{}

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewServer constructs a Server. Call ListenAndServe to start accepting
// connections.
func NewServer(socketPath string, sess *session.Session, exec *executor.Executor) *Server {
	return &Server{
		SocketPath: socketPath,
		Session:    sess,
		Executor:   exec,
		conns:      make(map[*Conn]struct{}),
		done:       make(chan struct{}),
	}
}

// ListenAndServe removes any stale socket at SocketPath, binds, and
// accepts connections until ctx is cancelled, a Shutdown request arrives,
// or the listener errors. It always removes the socket file before
// returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	os.Remove(s.SocketPath)

	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", s.SocketPath, err)
	}
	s.ln = ln

	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-s.done:
		}
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if errors.Is(err, net.ErrClosed) {
				// Only shutdown closes the listener; wait for it to finish
				// removing the socket file.
				<-s.done
				return nil
			}
			os.Remove(s.SocketPath)
			return fmt.Errorf("ipc: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, newConn(conn))
		}()
	}
}

// handleConnection runs one connection's read loop: decode a request,
// dispatch it, repeat, until the client disconnects or decodes a Shutdown.
func (s *Server) handleConnection(ctx context.Context, c *Conn) {
	s.trackConn(c)
	defer s.untrackConn(c)
	defer c.Close()

	for {
		line, err := c.ReadLine()
		if err != nil {
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			_ = c.WriteResponse(ErrorResponse{Message: err.Error()})
			continue
		}

		if _, ok := req.(Shutdown); ok {
			_ = c.WriteResponse(ShutdownAck{})
			s.shutdown()
			return
		}

		s.dispatch(ctx, c, req)
	}
}

func (s *Server) dispatch(ctx context.Context, c *Conn, req Request) {
	if req == nil {
		return
	}
	if s.Handler != nil {
		s.Handler.Handle(ctx, c, req)
		return
	}
	s.handleDefault(ctx, c, req)
}

// shutdown runs OnShutdown, closes the listener and every open connection,
// and removes the socket file exactly once — invoked by an
// accept-loop-level Shutdown request, a termination signal, or ctx
// cancellation, all symmetrically. Closing every connection is what lets a
// read-blocked connection (one with no Subscribe in flight to notice
// s.done) unblock and exit its loop promptly instead of lingering until
// its remote peer happens to disconnect.
func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		if s.OnShutdown != nil {
			s.OnShutdown()
		}
		if s.ln != nil {
			_ = s.ln.Close()
		}

		s.connsMu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.connsMu.Unlock()

		if err := os.Remove(s.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("ipc: remove socket on shutdown", "err", err)
		}
		close(s.done)
	})
}

func (s *Server) trackConn(c *Conn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c *Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}
