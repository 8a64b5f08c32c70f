// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/xmpproxy/pkg/breaker"
	perrors "github.com/absmach/xmpproxy/pkg/errors"
	"github.com/absmach/xmpproxy/pkg/filter"
	"github.com/absmach/xmpproxy/pkg/handler"
	"github.com/absmach/xmpproxy/pkg/metrics"
	"github.com/absmach/xmpproxy/pkg/parser"
	"github.com/absmach/xmpproxy/pkg/ratelimit"
	"github.com/absmach/xmpproxy/pkg/session"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	protocol       = "xmpp"
	eventQueueSize = 1024
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the TCP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TargetAddress is the XMPP server to relay sessions to (host:port)
	TargetAddress string

	// BackendDomain is the domain announced in the backend stream header and
	// used for client JIDs. Defaults to the host part of TargetAddress.
	BackendDomain string

	// TLSConfig is optional TLS configuration for the client listener
	TLSConfig *tls.Config

	// DialTimeout bounds the backend dial.
	DialTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for sessions to end during
	// graceful shutdown. Remaining sessions are then closed.
	ShutdownTimeout time.Duration

	// BufferSize is the initial capacity of each session buffer.
	BufferSize int

	// Metrics receives session and stanza instrumentation. Optional.
	Metrics *metrics.Metrics

	// Breaker guards backend dials. Optional.
	Breaker *breaker.Breaker

	// Limiter limits new sessions per client IP. Optional.
	Limiter *ratelimit.Limiter

	// Logger for server events
	Logger *slog.Logger
}

type eventKind uint8

const (
	evAccept eventKind = iota
	evReadable
	evWritable
	evDialed
	evShutdown
)

type event struct {
	kind  eventKind
	conn  *conn
	nc    net.Conn
	entry *entry
	err   error
}

// entry is the dispatcher's bookkeeping for one session.
type entry struct {
	sess      *session.Session
	hctx      *handler.Context
	client    *conn
	backend   *conn
	start     time.Time
	connected bool
	closed    bool
}

// registrarFunc adapts a function to session.Registrar.
type registrarFunc func(session.Channel, session.Interest)

func (f registrarFunc) SetInterest(ch session.Channel, in session.Interest) {
	f(ch, in)
}

// Server accepts XMPP clients and relays each one to the backend through a
// session. A single dispatch goroutine owns every session; per-connection
// pumps only move bytes and report readiness.
type Server struct {
	config  Config
	decoder parser.Decoder
	filters filter.Filter
	handler handler.Handler
	dialer  net.Dialer
	wg      sync.WaitGroup

	events chan event
	stop   chan struct{}

	// Owned by the dispatch goroutine.
	queue []event
	conns map[*conn]*entry
}

// New creates a new TCP server that decodes with d, runs stanzas through f
// and reports session events to h.
func New(cfg Config, d parser.Decoder, f filter.Filter, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = session.DefaultBufferSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("", prometheus.NewRegistry())
	}
	if cfg.BackendDomain == "" {
		if host, _, err := net.SplitHostPort(cfg.TargetAddress); err == nil {
			cfg.BackendDomain = host
		}
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}
	if f == nil {
		f = filter.NewChain()
	}

	return &Server{
		config:  cfg,
		decoder: d,
		filters: f,
		handler: h,
		dialer:  net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Listen starts the TCP server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts clients on listener until the context is cancelled, then
// waits up to ShutdownTimeout for sessions to end before closing the rest.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", listener.Addr().String()))
	}
	s.config.Logger.Info("XMPP proxy started",
		slog.String("address", listener.Addr().String()),
		slog.String("target", s.config.TargetAddress),
		slog.String("domain", s.config.BackendDomain))

	s.events = make(chan event, eventQueueSize)
	s.stop = make(chan struct{})
	s.conns = make(map[*conn]*entry)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		s.dispatch()
	}()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.acceptLoop(ctx, listener)
	}()

	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, closing listener")
	if err := listener.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-acceptDone

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.config.Logger.Info("all sessions closed gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, closing remaining sessions")
		s.post(event{kind: evShutdown})
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		err = ErrShutdownTimeout
	}

	close(s.stop)
	<-dispatchDone
	return err
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
			continue
		}

		if !s.admit(nc) {
			continue
		}
		s.wg.Add(1)
		if !s.post(event{kind: evAccept, nc: nc}) {
			s.wg.Done()
			nc.Close()
			return
		}
	}
}

// admit applies the per-address limiter to a fresh connection.
func (s *Server) admit(nc net.Conn) bool {
	if s.config.Limiter == nil {
		return true
	}
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		host = nc.RemoteAddr().String()
	}
	if s.config.Limiter.Allow(host) {
		return true
	}
	s.config.Logger.Warn("connection rate limited", slog.String("remote", host))
	s.config.Metrics.SessionsTotal.WithLabelValues(metrics.StatusRejected).Inc()
	nc.Close()
	return false
}

// post hands an event to the dispatcher. It fails once the server stopped.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stop:
		return false
	}
}

// enqueue schedules an event from inside the dispatcher.
func (s *Server) enqueue(ev event) {
	s.queue = append(s.queue, ev)
}

func (s *Server) dispatch() {
	for {
		for len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.handle(ev)
		}
		s.queue = nil

		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-s.stop:
			for _, e := range s.conns {
				s.closeSession(e, metrics.StatusClosed)
			}
			return
		}
	}
}

func (s *Server) handle(ev event) {
	switch ev.kind {
	case evAccept:
		s.accept(ev.nc)
	case evReadable:
		s.readable(ev.conn)
	case evWritable:
		s.writable(ev.conn)
	case evDialed:
		s.dialed(ev.entry, ev.nc, ev.err)
	case evShutdown:
		for _, e := range s.conns {
			s.closeSession(e, metrics.StatusClosed)
		}
	}
}

func (s *Server) accept(nc net.Conn) {
	c := newConn(nc, s.post)
	id := uuid.New().String()
	e := &entry{
		client: c,
		start:  time.Now(),
		hctx: &handler.Context{
			SessionID:  id,
			RemoteAddr: nc.RemoteAddr().String(),
			Backend:    s.config.TargetAddress,
			Protocol:   protocol,
		},
	}
	e.sess = session.New(c, session.Config{
		SessionID:  id,
		Decoder:    s.decoder,
		Filters:    s.filters,
		Registrar:  registrarFunc(s.setInterest),
		Metrics:    s.config.Metrics,
		Logger:     s.config.Logger,
		BufferSize: s.config.BufferSize,
	})
	s.conns[c] = e
	s.config.Metrics.SessionOpened()
	c.start()

	s.config.Logger.Debug("client connected",
		slog.String("session", id),
		slog.String("client", e.hctx.RemoteAddr))
}

func (s *Server) readable(c *conn) {
	e, ok := s.conns[c]
	if !ok {
		return
	}

	before := e.sess.State()
	if err := e.sess.HandleReadable(c); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			err = fmt.Errorf("%w: %w", perrors.ErrConnectionClosed, err)
		}
		err = perrors.New("read", protocol, e.hctx.SessionID, e.hctx.RemoteAddr, err)
		s.config.Logger.Debug("connection read ended", slog.String("error", err.Error()))
		s.closeSession(e, metrics.StatusClosed)
		return
	}
	s.advance(e, before)

	if !e.closed && c.readable() {
		s.enqueue(event{kind: evReadable, conn: c})
	}
}

func (s *Server) writable(c *conn) {
	c.writeQueued = false
	e, ok := s.conns[c]
	if !ok || c.interest&session.InterestWrite == 0 {
		return
	}
	if _, err := e.sess.HandleWritable(c); err != nil {
		s.config.Logger.Debug("connection write error",
			slog.String("session", e.hctx.SessionID),
			slog.String("error", err.Error()))
		s.closeSession(e, metrics.StatusClosed)
	}
}

// setInterest records the interest of a channel. Raising write interest
// schedules a writable event while the outbox has room.
func (s *Server) setInterest(ch session.Channel, in session.Interest) {
	c, ok := ch.(*conn)
	if !ok {
		return
	}
	c.interest = in
	if in&session.InterestWrite != 0 && !c.writeQueued && c.hasRoom() {
		c.writeQueued = true
		s.enqueue(event{kind: evWritable, conn: c})
	}
}

// advance reacts to the state change caused by the last read.
func (s *Server) advance(e *entry, before session.State) {
	after := e.sess.State()
	switch {
	case after == before:
	case after == session.Ready:
		s.connectBackend(e)
	case after == session.Connected:
		e.connected = true
		e.hctx.JID = e.sess.ClientJID()
		if err := s.handler.OnConnect(context.Background(), e.hctx); err != nil {
			s.config.Logger.Error("connect handler error",
				slog.String("session", e.hctx.SessionID),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Server) connectBackend(e *entry) {
	e.hctx.Username = e.sess.Username()
	e.hctx.Password = e.sess.Password()

	if err := s.handler.AuthConnect(context.Background(), e.hctx); err != nil {
		err = perrors.New("auth_connect", protocol, e.hctx.SessionID, e.hctx.RemoteAddr,
			fmt.Errorf("%w: %w", perrors.ErrUnauthorized, err))
		s.config.Logger.Warn("session rejected", slog.String("error", err.Error()))
		s.closeSession(e, metrics.StatusRejected)
		return
	}

	if e.backend != nil {
		s.openStream(e)
		return
	}
	go s.dial(e)
}

func (s *Server) dial(e *entry) {
	var nc net.Conn
	err := s.config.Metrics.ObserveDial(func() error {
		connect := func() error {
			var err error
			nc, err = s.dialer.Dial("tcp", s.config.TargetAddress)
			return err
		}
		if s.config.Breaker != nil {
			return s.config.Breaker.Call(connect)
		}
		return connect()
	})
	if !s.post(event{kind: evDialed, entry: e, nc: nc, err: err}) && nc != nil {
		nc.Close()
	}
}

func (s *Server) dialed(e *entry, nc net.Conn, err error) {
	if e.closed {
		if nc != nil {
			nc.Close()
		}
		return
	}
	if err != nil {
		err = perrors.New("dial", protocol, e.hctx.SessionID, e.hctx.RemoteAddr,
			fmt.Errorf("%w: %w", perrors.ErrBackendUnavailable, err))
		s.config.Logger.Error("failed to connect to backend", slog.String("error", err.Error()))
		s.closeSession(e, metrics.StatusFailed)
		return
	}

	bc := newConn(nc, s.post)
	e.backend = bc
	e.sess.AttachBackend(bc)
	s.conns[bc] = e
	bc.start()

	e.sess.SetServerName(s.config.BackendDomain)
	e.hctx.JID = e.sess.ClientJID()
	s.openStream(e)
}

func (s *Server) openStream(e *entry) {
	if err := e.sess.WriteInitialStream(); err != nil {
		s.config.Logger.Error("failed to open backend stream",
			slog.String("session", e.hctx.SessionID),
			slog.String("error", err.Error()))
		s.closeSession(e, metrics.StatusFailed)
	}
}

func (s *Server) closeSession(e *entry, status string) {
	if e.closed {
		return
	}
	e.closed = true
	e.sess.Close()
	delete(s.conns, e.client)
	if e.backend != nil {
		delete(s.conns, e.backend)
	}

	if e.connected && status == metrics.StatusClosed {
		status = metrics.StatusConnected
	}
	if err := e.sess.Err(); err != nil && !e.connected {
		s.config.Logger.Info("session closed during negotiation", slog.String("error", err.Error()))
	}
	if err := s.handler.OnDisconnect(context.Background(), e.hctx); err != nil {
		s.config.Logger.Error("disconnect handler error",
			slog.String("session", e.hctx.SessionID),
			slog.String("error", err.Error()))
	}
	s.config.Metrics.SessionClosed(status, e.start)
	s.wg.Done()

	s.config.Logger.Debug("session closed",
		slog.String("session", e.hctx.SessionID),
		slog.String("status", status))
}
