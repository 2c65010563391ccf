// Package client talks to a tournamentd daemon: it correlates replies with
// requests by echo token and keeps the latest broadcast state.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/tournamentd/internal/protocol"
)

// ErrConnectionClosed is returned to calls still waiting for a reply when the
// connection goes away.
var ErrConnectionClosed = errors.New("connection closed")

// Service describes where a daemon can be reached. Path (a unix socket) wins
// over URL (a websocket endpoint), which wins over Host and Port.
type Service struct {
	Name string
	Host string
	Port int
	Path string
	URL  string
}

func (s Service) String() string {
	switch {
	case s.Path != "":
		return "unix:" + s.Path
	case s.URL != "":
		return s.URL
	default:
		return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	}
}

// BroadcastHandler is called from the read loop with each state broadcast.
type BroadcastHandler func(delta map[string]json.RawMessage)

// Options configures a Client.
type Options struct {
	Logger *log.Logger
	// AuthCode is attached to every command when set.
	AuthCode    *int
	OnBroadcast BroadcastHandler
}

// Client is one connection to a daemon. Send is safe for concurrent use.
type Client struct {
	conn        lineConn
	logger      *log.Logger
	authCode    *int
	onBroadcast BroadcastHandler

	writeMu sync.Mutex

	mu       sync.Mutex
	nextEcho int
	pending  map[int]chan protocol.Reply
	state    map[string]json.RawMessage
	err      error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to svc and starts reading replies.
func Dial(ctx context.Context, svc Service, opts Options) (*Client, error) {
	if svc.Path == "" && svc.URL != "" {
		u, err := url.Parse(svc.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid service URL: %w", err)
		}
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = "/ws"
		}
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", svc, err)
		}
		return newClient(&wsConn{conn: ws}, opts), nil
	}

	network, addr := "tcp", svc.String()
	if svc.Path != "" {
		network, addr = "unix", svc.Path
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", svc, err)
	}
	return New(conn, opts), nil
}

// New wraps an established stream connection.
func New(conn net.Conn, opts Options) *Client {
	return newClient(newStreamConn(conn), opts)
}

func newClient(conn lineConn, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	c := &Client{
		conn:        conn,
		logger:      opts.Logger.WithPrefix("client"),
		authCode:    opts.AuthCode,
		onBroadcast: opts.OnBroadcast,
		pending:     make(map[int]chan protocol.Reply),
		state:       make(map[string]json.RawMessage),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send issues a command and waits for its reply. A reply carrying an error is
// returned as a *tournament.Error alongside the raw reply.
func (c *Client) Send(ctx context.Context, command string, args any) (json.RawMessage, error) {
	ch := make(chan protocol.Reply, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.nextEcho++
	echo := c.nextEcho
	c.pending[echo] = ch
	c.mu.Unlock()

	line, err := protocol.FormatCommand(command, args, &echo, c.authCode)
	if err != nil {
		c.forget(echo)
		return nil, err
	}

	c.writeMu.Lock()
	deadline, _ := ctx.Deadline()
	err = c.conn.WriteLine(line, deadline)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(echo)
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}
	c.logger.Debug("Sent command", "command", command, "echo", echo)

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, c.closedErr()
		}
		if reply.Err != nil {
			return reply.Body, reply.Err
		}
		return reply.Body, nil
	case <-ctx.Done():
		c.forget(echo)
		return nil, ctx.Err()
	}
}

// State returns the state accumulated from broadcasts so far.
func (c *Client) State() map[string]json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.state)
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close drops the connection. Calls still waiting get ErrConnectionClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Client) forget(echo int) {
	c.mu.Lock()
	delete(c.pending, echo)
	c.mu.Unlock()
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	var readErr error
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			readErr = err
			break
		}
		c.dispatch(line)
	}

	c.mu.Lock()
	c.err = ErrConnectionClosed
	if readErr != nil && !isClosed(readErr) {
		c.err = fmt.Errorf("%w: %v", ErrConnectionClosed, readErr)
	}
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
	c.mu.Unlock()

	_ = c.Close()
	close(c.done)
	c.logger.Debug("Disconnected", "error", readErr)
}

func (c *Client) dispatch(line []byte) {
	reply, err := protocol.ParseReply(line)
	if err != nil {
		c.logger.Warn("Ignoring unreadable reply", "error", err)
		return
	}

	if reply.IsBroadcast() {
		var delta map[string]json.RawMessage
		if err := json.Unmarshal(reply.Body, &delta); err != nil {
			return
		}
		c.mu.Lock()
		maps.Copy(c.state, delta)
		c.mu.Unlock()
		if c.onBroadcast != nil {
			c.onBroadcast(delta)
		}
		return
	}

	var echo int
	if err := json.Unmarshal(reply.Echo, &echo); err != nil {
		c.logger.Debug("Reply with foreign echo", "echo", string(reply.Echo))
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[echo]
	delete(c.pending, echo)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Reply for abandoned command", "echo", echo)
		return
	}
	ch <- reply
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// lineConn moves whole lines to and from the daemon.
type lineConn interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte, deadline time.Time) error
	Close() error
}

type streamConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

func newStreamConn(conn net.Conn) *streamConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), protocol.MaxLineLength)
	return &streamConn{conn: conn, scanner: scanner}
}

func (s *streamConn) ReadLine() ([]byte, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, net.ErrClosed
	}
	return bytes.Clone(s.scanner.Bytes()), nil
}

func (s *streamConn) WriteLine(line []byte, deadline time.Time) error {
	_ = s.conn.SetWriteDeadline(deadline)
	_, err := s.conn.Write(line)
	return err
}

func (s *streamConn) Close() error { return s.conn.Close() }

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadLine() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteLine(line []byte, deadline time.Time) error {
	_ = w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.TextMessage, bytes.TrimRight(line, "\n"))
}

func (w *wsConn) Close() error { return w.conn.Close() }
