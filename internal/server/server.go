package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/tournamentd/internal/protocol"
	"github.com/lox/tournamentd/internal/snapshot"
	"github.com/lox/tournamentd/internal/tournament"
)

// Options configures a Server.
type Options struct {
	Tournament *tournament.Tournament
	Clock      quartz.Clock
	Logger     *log.Logger
	// Snapshot receives the tournament after every change; nil disables it.
	Snapshot *snapshot.Store
	// Tick bounds how long the clock goes without being updated.
	Tick    time.Duration
	Version string
}

// Listeners are the sockets a Server accepts clients on.
type Listeners struct {
	// Stream listeners (unix, tcp) carry newline-delimited lines.
	Stream []net.Listener
	// HTTP serves /ws and /health when set.
	HTTP net.Listener
}

type request struct {
	session *Session
	line    []byte
}

// Server owns the tournament. One loop goroutine applies every command and
// clock tick; session goroutines only frame lines to and from it.
type Server struct {
	tournament *tournament.Tournament
	clock      quartz.Clock
	logger     *log.Logger
	store      *snapshot.Store
	tick       time.Duration
	version    string
	upgrader   websocket.Upgrader
	handlers   map[string]handler

	requests   chan request
	register   chan *Session
	unregister chan *Session

	// runCtx outlives websocket handlers, whose request context ends once
	// the connection is hijacked
	runCtx context.Context

	// loop-owned
	sessions      map[*Session]bool
	lastBroadcast map[string]json.RawMessage
}

// New creates a server around an existing tournament.
func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Tick <= 0 {
		opts.Tick = 100 * time.Millisecond
	}
	if opts.Snapshot == nil {
		opts.Snapshot = snapshot.New("", opts.Logger)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		tournament: opts.Tournament,
		clock:      opts.Clock,
		logger:     opts.Logger.WithPrefix("server"),
		store:      opts.Snapshot,
		tick:       opts.Tick,
		version:    opts.Version,
		upgrader: websocket.Upgrader{
			// clients are displays on the local network, not browsers on the web
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		requests:      make(chan request),
		register:      make(chan *Session),
		unregister:    make(chan *Session),
		sessions:      make(map[*Session]bool),
		lastBroadcast: make(map[string]json.RawMessage),
	}
	s.handlers = s.commandTable()
	return s
}

// Run serves until ctx is cancelled or a listener fails. Listeners are
// closed on return.
func (s *Server) Run(ctx context.Context, ls Listeners) error {
	g, ctx := errgroup.WithContext(ctx)
	s.runCtx = ctx

	g.Go(func() error { return s.loop(ctx) })

	for _, ln := range ls.Stream {
		g.Go(func() error { return s.accept(ctx, ln) })
		g.Go(func() error {
			<-ctx.Done()
			return ln.Close()
		})
	}

	if ls.HTTP != nil {
		hs := &http.Server{
			Handler:           s.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		g.Go(func() error {
			s.logger.Info("Serving websocket clients", "addr", ls.HTTP.Addr())
			if err := hs.Serve(ls.HTTP); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Router serves the websocket endpoint and a health check.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}
	s.startSession(s.runCtx, newWSTransport(conn))
}

func (s *Server) accept(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Accepting clients", "network", ln.Addr().Network(), "addr", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		s.startSession(ctx, newStreamTransport(conn))
	}
}

// startSession registers a session with the loop before any of its lines
// can arrive, then starts its pumps.
func (s *Server) startSession(ctx context.Context, t transport) {
	sess := newSession(t, s.clock, s.logger)
	select {
	case s.register <- sess:
	case <-ctx.Done():
		_ = t.Close()
		return
	}

	go sess.writePump()
	go func() {
		sess.readPump(ctx, s.requests)
		_ = sess.Close()
		select {
		case s.unregister <- sess:
		case <-ctx.Done():
		}
	}()
}

func (s *Server) loop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.tick, "server", "tick")
	defer ticker.Stop()

	defer func() {
		for sess := range s.sessions {
			_ = sess.Close()
		}
	}()

	for {
		select {
		case sess := <-s.register:
			s.sessions[sess] = true
			sess.logger.Info("Client connected", "remote", sess.transport.RemoteAddr(), "total", len(s.sessions))

		case sess := <-s.unregister:
			if s.sessions[sess] {
				delete(s.sessions, sess)
				sess.logger.Info("Client disconnected", "total", len(s.sessions))
			}

		case req := <-s.requests:
			if !s.sessions[req.session] {
				continue
			}
			s.handle(req.session, req.line)

		case <-ticker.C:
			if s.tournament.UpdateClock() {
				s.broadcast()
				s.save()
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// broadcast sends every state and configuration key whose value changed
// since the last broadcast, plus current_time, to every session.
func (s *Server) broadcast() {
	fields, err := s.broadcastFields()
	if err != nil {
		s.logger.Error("Failed to encode state", "error", err)
		return
	}

	delta := make(map[string]json.RawMessage)
	for k, v := range fields {
		if prev, ok := s.lastBroadcast[k]; k != "current_time" && (!ok || !bytes.Equal(prev, v)) {
			delta[k] = v
		}
	}
	s.lastBroadcast = fields
	if len(delta) == 0 {
		return
	}
	delta["current_time"] = fields["current_time"]

	line, err := protocol.EncodeResult(nil, delta)
	if err != nil {
		s.logger.Error("Failed to encode broadcast", "error", err)
		return
	}
	for sess := range s.sessions {
		sess.Send(line)
	}
	s.logger.Debug("Broadcast state", "keys", len(delta), "recipients", len(s.sessions))
}

func (s *Server) broadcastFields() (map[string]json.RawMessage, error) {
	fields, err := jsonFields(s.tournament.Config())
	if err != nil {
		return nil, err
	}
	// codes are only for authenticated eyes
	delete(fields, "authorized_clients")

	state, err := jsonFields(s.tournament.State())
	if err != nil {
		return nil, err
	}
	for k, v := range state {
		fields[k] = v
	}
	return fields, nil
}

func (s *Server) save() {
	if err := s.store.Save(s.tournament.Snapshot()); err != nil {
		s.logger.Warn("Failed to write snapshot", "error", err)
	}
}

func jsonFields(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
