package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tournamentd/internal/protocol"
	"github.com/lox/tournamentd/internal/randutil"
	"github.com/lox/tournamentd/internal/server"
	"github.com/lox/tournamentd/internal/tournament"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// fakeDaemon is the far end of a pipe, driven line by line by the test.
type fakeDaemon struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func newPipe(t *testing.T, opts Options) (*Client, *fakeDaemon) {
	t.Helper()
	local, remote := net.Pipe()
	opts.Logger = testLogger()
	c := New(local, opts)
	t.Cleanup(func() {
		_ = c.Close()
		_ = remote.Close()
	})
	return c, &fakeDaemon{t: t, conn: remote, reader: bufio.NewReader(remote)}
}

func (d *fakeDaemon) read() protocol.Request {
	d.t.Helper()
	_ = d.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := d.reader.ReadBytes('\n')
	require.NoError(d.t, err)
	req, err := protocol.ParseLine(line)
	require.NoError(d.t, err)
	return req
}

func (d *fakeDaemon) write(line string) {
	d.t.Helper()
	_ = d.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := d.conn.Write([]byte(line + "\n"))
	require.NoError(d.t, err)
}

type result struct {
	body json.RawMessage
	err  error
}

func sendAsync(c *Client, command string, args any) <-chan result {
	ch := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		body, err := c.Send(ctx, command, args)
		ch <- result{body, err}
	}()
	return ch
}

func TestSendCorrelatesReplies(t *testing.T) {
	t.Parallel()
	code := 42
	c, d := newPipe(t, Options{AuthCode: &code})

	first := sendAsync(c, protocol.CmdSeatPlayer, map[string]any{"player_id": "p1"})
	req1 := d.read()
	second := sendAsync(c, protocol.CmdGetState, nil)
	req2 := d.read()

	assert.Equal(t, protocol.CmdSeatPlayer, req1.Command)
	require.NotNil(t, req1.Authenticate)
	assert.Equal(t, 42, *req1.Authenticate)
	assert.NotEqual(t, string(req1.Echo), string(req2.Echo))

	// answer out of order
	d.write(`{"echo":` + string(req2.Echo) + `,"current_blind_level":3}`)
	d.write(`{"echo":` + string(req1.Echo) + `,"player_seated":{"player_id":"p1"}}`)

	r2 := <-second
	require.NoError(t, r2.err)
	assert.Contains(t, string(r2.body), `"current_blind_level":3`)

	r1 := <-first
	require.NoError(t, r1.err)
	assert.Contains(t, string(r1.body), "player_seated")
}

func TestErrorReplies(t *testing.T) {
	t.Parallel()
	c, d := newPipe(t, Options{})

	res := sendAsync(c, protocol.CmdGetConfig, nil)
	req := d.read()
	d.write(`{"echo":` + string(req.Echo) + `,"error":"unauthorized","error_kind":"protocol_error","error_code":"unauthorized"}`)

	r := <-res
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, tournament.ErrUnauthorized)
	assert.ErrorIs(t, r.err, tournament.ErrProtocol)
	assert.Contains(t, string(r.body), "unauthorized")
}

func TestBroadcastsAccumulateState(t *testing.T) {
	t.Parallel()
	deltas := make(chan map[string]json.RawMessage, 4)
	c, d := newPipe(t, Options{OnBroadcast: func(delta map[string]json.RawMessage) { deltas <- delta }})

	d.write(`{"current_time":"2026-01-01T00:00:00Z","current_blind_level":1,"running":true}`)
	d.write(`{"current_time":"2026-01-01T00:01:00Z","current_blind_level":2}`)

	first := <-deltas
	assert.JSONEq(t, `1`, string(first["current_blind_level"]))
	second := <-deltas
	assert.NotContains(t, second, "running")

	state := c.State()
	assert.JSONEq(t, `2`, string(state["current_blind_level"]))
	assert.JSONEq(t, `true`, string(state["running"]))
}

func TestPendingCallsFailOnDisconnect(t *testing.T) {
	t.Parallel()
	c, d := newPipe(t, Options{})

	res := sendAsync(c, protocol.CmdStartGame, nil)
	d.read()
	require.NoError(t, d.conn.Close())

	r := <-res
	assert.ErrorIs(t, r.err, ErrConnectionClosed)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice the disconnect")
	}

	_, err := c.Send(context.Background(), protocol.CmdVersion, nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestSendHonoursContext(t *testing.T) {
	t.Parallel()
	c, d := newPipe(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, protocol.CmdVersion, nil)
		res <- err
	}()
	req := d.read()
	cancel()
	assert.ErrorIs(t, <-res, context.Canceled)

	// a late reply for the abandoned call is ignored
	d.write(`{"echo":` + string(req.Echo) + `}`)
	follow := sendAsync(c, protocol.CmdVersion, nil)
	req = d.read()
	d.write(`{"echo":` + string(req.Echo) + `,"server_name":"tournamentd"}`)
	r := <-follow
	require.NoError(t, r.err)
	assert.Contains(t, string(r.body), "tournamentd")
}

func TestDialDaemon(t *testing.T) {
	mClock := quartz.NewMock(t)
	tour := tournament.New(tournament.Options{Clock: mClock, Rand: randutil.New(1), Logger: testLogger()})
	tour.Authorize(1234, "director")
	srv := server.New(server.Options{Tournament: tour, Clock: mClock, Logger: testLogger(), Version: "test"})

	ln, port, err := server.ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, server.Listeners{Stream: []net.Listener{ln}, HTTP: httpLn}) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	code := 1234
	services := map[string]Service{
		"tcp":       {Name: "local", Host: "127.0.0.1", Port: port},
		"websocket": {Name: "local", URL: "http://" + httpLn.Addr().String()},
	}
	for name, svc := range services {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			c, err := Dial(ctx, svc, Options{Logger: testLogger(), AuthCode: &code})
			require.NoError(t, err)
			defer c.Close()

			body, err := c.Send(ctx, protocol.CmdVersion, nil)
			require.NoError(t, err)
			assert.Contains(t, string(body), `"server_name":"tournamentd"`)

			body, err = c.Send(ctx, protocol.CmdConfigure, map[string]any{"name": "Sunday " + name})
			require.NoError(t, err)
			assert.Contains(t, string(body), "Sunday "+name)

			_, err = c.Send(ctx, protocol.CmdPauseGame, nil)
			assert.ErrorIs(t, err, tournament.ErrNotStarted)
		})
	}
}

func TestServiceString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "unix:/tmp/tournamentd.25600.sock", Service{Path: "/tmp/tournamentd.25600.sock", Port: 25600}.String())
	assert.Equal(t, "10.0.0.2:25600", Service{Host: "10.0.0.2", Port: 25600}.String())
	assert.Equal(t, "ws://host:25680/ws", Service{URL: "ws://host:25680/ws"}.String())
}
