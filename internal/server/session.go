package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/lox/tournamentd/internal/protocol"
)

const (
	// Time allowed to write a line to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from a websocket peer
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Outbound lines queued per session before it is dropped
	sendQueueSize = 256
)

// transport moves whole lines over one client connection.
type transport interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte) error
	Close() error
	Kind() string
	RemoteAddr() string
}

// pinger is implemented by transports that need keepalives.
type pinger interface {
	Ping() error
}

// Session is one connected client. The loop goroutine owns authenticated;
// the read and write pumps only move bytes.
type Session struct {
	id        string
	transport transport
	clock     quartz.Clock
	logger    *log.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	authenticated bool
}

func newSession(t transport, clock quartz.Clock, logger *log.Logger) *Session {
	id := ulid.Make().String()
	return &Session{
		id:        id,
		transport: t,
		clock:     clock,
		logger:    logger.WithPrefix("session").With("id", id, "transport", t.Kind()),
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// ID is the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Close drops the session. Safe to call from any goroutine, more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.transport.Close()
	})
	return err
}

// Send queues a line. A session whose queue is full is dropped rather than
// allowed to stall the loop.
func (s *Session) Send(line []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- line:
		return true
	default:
		s.logger.Warn("Session send queue full, dropping session")
		_ = s.Close()
		return false
	}
}

// closeAfterFlush closes the session once everything queued so far is written.
func (s *Session) closeAfterFlush() {
	select {
	case s.send <- nil:
	default:
		_ = s.Close()
	}
}

// readPump forwards each line to the loop in the order received.
func (s *Session) readPump(ctx context.Context, requests chan<- request) {
	for {
		line, err := s.transport.ReadLine()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !errors.Is(err, io.EOF) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("Read failed", "error", err)
				}
			}
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		select {
		case requests <- request{session: s, line: line}:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// writePump drains the send queue until the session closes.
func (s *Session) writePump() {
	var ping <-chan time.Time
	if _, ok := s.transport.(pinger); ok {
		ticker := s.clock.NewTicker(pingPeriod, "session", "ping")
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case line := <-s.send:
			if line == nil {
				_ = s.Close()
				return
			}
			if err := s.transport.WriteLine(line); err != nil {
				s.logger.Debug("Write failed, dropping session", "error", err)
				_ = s.Close()
				return
			}

		case <-ping:
			if err := s.transport.(pinger).Ping(); err != nil {
				_ = s.Close()
				return
			}

		case <-s.done:
			return
		}
	}
}

// streamTransport frames lines over a unix or tcp connection.
type streamTransport struct {
	conn    net.Conn
	scanner *bufio.Scanner
	kind    string
}

func newStreamTransport(conn net.Conn) *streamTransport {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), protocol.MaxLineLength)
	return &streamTransport{conn: conn, scanner: scanner, kind: conn.LocalAddr().Network()}
}

func (t *streamTransport) ReadLine() ([]byte, error) {
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return bytes.Clone(t.scanner.Bytes()), nil
}

func (t *streamTransport) WriteLine(line []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := t.conn.Write(line)
	return err
}

func (t *streamTransport) Close() error { return t.conn.Close() }
func (t *streamTransport) Kind() string { return t.kind }
func (t *streamTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// wsTransport carries one line per websocket text frame.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	conn.SetReadLimit(protocol.MaxLineLength)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadLine() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	return data, nil
}

func (t *wsTransport) WriteLine(line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, bytes.TrimRight(line, "\n"))
}

func (t *wsTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.mu.Unlock()
	return t.conn.Close()
}

func (t *wsTransport) Kind() string { return "ws" }
func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
