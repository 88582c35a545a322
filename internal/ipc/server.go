package ipc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qb20nh/duckhunt/internal/logging"
)

// Handler processes IPC requests.
type Handler interface {
	// HandleMessage processes a request and returns a response.
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

const maxConnections = 16

// Server accepts control connections on the daemon socket. Implements
// suture.Service.
type Server struct {
	socketPath string
	handler    Handler
	log        *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextPingID atomic.Uint32
}

// NewServer creates a server listening at socketPath once started.
func NewServer(socketPath string, handler Handler, log *logging.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		log:        log.WithComponent("ipc"),
		conns:      make(map[net.Conn]struct{}),
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string { return "ipc-server" }

// Serve listens until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Start begins listening for connections.
func (s *Server) Start() error {
	listener, err := newListener(s.socketPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.listener = listener
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()
	s.running.Store(true)

	s.log.Info("control socket listening", "path", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Stop shuts the listener and all connections down.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("connection handlers did not drain in time")
	}

	CleanupSocket(s.socketPath)
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warn("accept failed", "error", err)
				continue
			}
		}

		if err := checkPeer(conn); err != nil {
			s.log.Warn("rejected control connection", "error", err)
			conn.Close()
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= maxConnections {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs one request/response loop per client.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	var writeMu sync.Mutex
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		msg, err := ReadMessage(conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				ping := NewMessage(MsgPing, s.nextPingID.Add(1), nil)
				if err := s.send(conn, &writeMu, ping); err != nil {
					return
				}
				continue
			}
			s.log.Debug("read failed, closing connection", "error", err)
			return
		}

		response := s.processMessage(msg)
		if response != nil {
			if err := s.send(conn, &writeMu, response); err != nil {
				return
			}
		}
	}
}

func (s *Server) processMessage(msg *Message) *Message {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil)
	case MsgPong:
		// Keep-alive reply, nothing to send back.
		return nil
	default:
		response, err := s.handler.HandleMessage(s.ctx, msg)
		if err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		return response
	}
}

func (s *Server) send(conn net.Conn, writeMu *sync.Mutex, msg *Message) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(conn)
}
