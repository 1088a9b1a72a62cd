// Package transport implements the simulator's TCP session endpoints: a
// Server that accepts many framed-protocol connections and a Client that
// holds one persistent connection. Both sides use pkg/protocol for
// framing and surface traffic through registered callbacks.
//
// Lifecycle guarantees: Start/Stop and Connect/Disconnect are idempotent;
// after Stop or Disconnect returns, no further callback fires for that
// endpoint. Byte order on a single connection is preserved by a
// per-session write lock; there is no ordering guarantee across
// connections.
package transport

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"

	"fleetsim/pkg/protocol"
)

// MessageHandler receives one decoded frame body from a session. It runs
// on the session's read goroutine and must not block for long.
type MessageHandler func(clientID string, payload []byte)

// ConnectionHandler is notified when a session connects or disconnects.
type ConnectionHandler func(clientID string, connected bool)

// Server accepts fleet connections on one listening port and keeps a
// session table keyed by generated client id.
type Server struct {
	addr   string
	logger *slog.Logger

	// running gates callbacks: a read scheduled before Stop checks it
	// before invoking the handler.
	running atomic.Bool

	mu        sync.Mutex
	listener  net.Listener
	sessions  map[string]*session
	onMessage MessageHandler
	onConn    ConnectionHandler

	acceptDone sync.WaitGroup
}

// session is one accepted connection. Writes are serialized by writeMu
// so concurrent senders never interleave a header with another sender's
// body.
type session struct {
	id   string
	conn net.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewServer creates a server that will listen on addr (for example
// ":7700"). Call Start to begin accepting.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// SetMessageHandler registers the frame callback. Set before Start.
func (s *Server) SetMessageHandler(h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = h
}

// SetConnectionHandler registers the connect/disconnect callback. Set
// before Start.
func (s *Server) SetConnectionHandler(h ConnectionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConn = h
}

// Start binds the listening socket and begins accepting connections. A
// second call while running is a no-op.
func (s *Server) Start() error {
	if s.running.Swap(true) {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	s.acceptDone.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener and every open session and joins the accept
// goroutine. A second call is a no-op. Session read goroutines observe
// the closed connections and exit on their own; the running flag keeps
// them from firing callbacks after Stop returns.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range open {
		sess.close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.acceptDone.Wait()
	s.logger.Info("server stopped")
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SendMessage writes one frame to the identified session. Unknown ids
// are a silent no-op; delivery is best-effort.
func (s *Server) SendMessage(clientID string, body []byte) {
	s.mu.Lock()
	sess := s.sessions[clientID]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.write(body); err != nil {
		s.dropSession(sess)
	}
}

// BroadcastMessage writes one frame to every session connected at the
// moment of the call. Sessions that connect afterward are not included.
func (s *Server) BroadcastMessage(body []byte) {
	s.mu.Lock()
	snapshot := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snapshot = append(snapshot, sess)
	}
	s.mu.Unlock()

	for _, sess := range snapshot {
		if err := sess.write(body); err != nil {
			s.dropSession(sess)
		}
	}
}

// DisconnectClient closes the identified session and removes it from the
// table. Unknown ids are a no-op.
func (s *Server) DisconnectClient(clientID string) {
	s.mu.Lock()
	sess := s.sessions[clientID]
	delete(s.sessions, clientID)
	s.mu.Unlock()
	if sess != nil {
		sess.close()
	}
}

// ConnectedClients returns the ids of all open sessions.
func (s *Server) ConnectedClients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of open sessions.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// IsClientConnected reports whether a session with clientID is open.
func (s *Server) IsClientConnected(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[clientID]
	return ok
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.acceptDone.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if !s.running.Load() {
			_ = conn.Close()
			return
		}
		sess := &session{id: newClientID(), conn: conn}
		s.mu.Lock()
		s.sessions[sess.id] = sess
		onConn := s.onConn
		s.mu.Unlock()

		s.logger.Info("client connected", "client", sess.id, "remote", conn.RemoteAddr().String())
		if onConn != nil {
			onConn(sess.id, true)
		}
		go s.readLoop(sess)
	}
}

// newClientID generates a session identifier. Collisions between
// concurrently connecting clients are not checked.
func newClientID() string {
	return fmt.Sprintf("client_%04d", 1000+rand.IntN(9000))
}

// readLoop reads frames from one session until an I/O error or framing
// violation, then closes the session and removes its own entry.
func (s *Server) readLoop(sess *session) {
	for {
		body, err := protocol.ReadFrame(sess.conn)
		if err != nil {
			s.dropSession(sess)
			return
		}
		if !s.running.Load() {
			return
		}
		s.mu.Lock()
		handler := s.onMessage
		s.mu.Unlock()
		if handler != nil {
			handler(sess.id, body)
		}
	}
}

// dropSession closes a session and removes it from the table, firing the
// connection callback once.
func (s *Server) dropSession(sess *session) {
	s.mu.Lock()
	_, present := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	onConn := s.onConn
	s.mu.Unlock()

	first := sess.close()
	if !present || !first {
		return
	}
	if s.running.Load() {
		s.logger.Info("client disconnected", "client", sess.id)
		if onConn != nil {
			onConn(sess.id, false)
		}
	}
}

// write frames body onto the session's connection under the write lock.
func (sess *session) write(body []byte) error {
	if sess.closed.Load() {
		return net.ErrClosed
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return protocol.WriteFrame(sess.conn, body)
}

// close shuts the connection down once; it reports whether this call was
// the one that closed it.
func (sess *session) close() bool {
	if sess.closed.Swap(true) {
		return false
	}
	_ = sess.conn.Close()
	return true
}
