// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/absmach/xmpproxy/pkg/filter"
	"github.com/absmach/xmpproxy/pkg/metrics"
	"github.com/absmach/xmpproxy/pkg/parser"
	"github.com/absmach/xmpproxy/pkg/parser/xmpp"
	"github.com/prometheus/client_golang/prometheus"
	"mellium.im/xmpp/jid"
)

const protocol = "xmpp"

var (
	// ErrUnknownChannel is returned for a channel that belongs to no leg of
	// the session.
	ErrUnknownChannel = errors.New("channel does not belong to session")

	// ErrNotReady is returned when the backend stream is requested before
	// the client authenticated or before a backend is attached.
	ErrNotReady = errors.New("session not ready to connect")
)

// Channel is one non-blocking connection as exposed by the reactor. Read
// and Write never wait: Read returns 0 when nothing is pending and Write may
// accept fewer bytes than offered.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Interest is the set of readiness events a channel is registered for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Registrar receives interest changes for the channels of a session.
type Registrar interface {
	SetInterest(ch Channel, in Interest)
}

// Config holds session dependencies.
type Config struct {
	SessionID  string
	Decoder    parser.Decoder
	Filters    filter.Filter
	Registrar  Registrar
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	BufferSize int
}

type leg struct {
	name     string
	ch       Channel
	buf      *Buffers
	dir      parser.Direction
	interest Interest
}

// Session pairs a client channel with at most one backend channel and
// relays stanzas between them once both sides are negotiated.
type Session struct {
	mu sync.Mutex

	id        string
	client    *leg
	backend   *leg
	state     State
	decoder   parser.Decoder
	filters   filter.Filter
	registrar Registrar
	metrics   *metrics.Metrics
	logger    *slog.Logger
	bufSize   int

	username   string
	password   []byte
	serverName string
	jid        string
	auth       []byte
	err        error
}

// New creates a session for a freshly accepted client channel.
func New(client Channel, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("", prometheus.NewRegistry())
	}
	if cfg.Decoder == nil {
		cfg.Decoder = &xmpp.Decoder{}
	}
	if cfg.Filters == nil {
		cfg.Filters = filter.NewChain()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	return &Session{
		id: cfg.SessionID,
		client: &leg{
			name:     "client",
			ch:       client,
			buf:      NewBuffers(cfg.BufferSize),
			dir:      parser.Upstream,
			interest: InterestRead,
		},
		state:     NoState,
		decoder:   cfg.Decoder,
		filters:   cfg.Filters,
		registrar: cfg.Registrar,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With(slog.String("session", cfg.SessionID)),
		bufSize:   cfg.BufferSize,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Client returns the client channel.
func (s *Session) Client() Channel {
	return s.client.ch
}

// Backend returns the backend channel, or nil before one is attached.
func (s *Session) Backend() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	return s.backend.ch
}

// AttachBackend pairs the session with its backend channel. A session has at
// most one backend; attaching again replaces nothing and returns false.
func (s *Session) AttachBackend(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		return false
	}
	s.backend = &leg{
		name:     "backend",
		ch:       ch,
		buf:      NewBuffers(s.bufSize),
		dir:      parser.Downstream,
		interest: InterestRead,
	}
	return true
}

// State returns the negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the authentication identity observed in SASL PLAIN.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Password returns the password observed in SASL PLAIN.
func (s *Session) Password() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password
}

// ClientJID returns the client address, empty until SetServerName.
func (s *Session) ClientJID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jid
}

// Err returns the last negotiation error, or nil. It wraps
// errors.ErrProtocolViolation.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ReadyToConnect reports whether the client finished authenticating and the
// backend stream can be opened.
func (s *Session) ReadyToConnect() bool {
	return s.State() == Ready
}

// Connected reports whether stanzas flow between the legs.
func (s *Session) Connected() bool {
	return s.State() == Connected
}

// SetServerName records the backend domain and sets the client JID to
// username@domain exactly as received.
func (s *Session) SetServerName(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.serverName = domain
	// Kept verbatim: silencing matches senders case-sensitively, so the
	// stamped address must be the one the client authenticated with.
	s.jid = s.username + "@" + domain
	if _, err := jid.New(s.username, domain, ""); err != nil {
		s.logger.Warn("client address is not a valid JID",
			slog.String("jid", s.jid),
			slog.Any("error", err))
	}
	s.logger.Info("client bound to server",
		slog.String("username", s.username),
		slog.String("server", domain),
		slog.String("jid", s.jid))
}

// WriteInitialStream queues the stream header for the backend and moves the
// session to ConnectingToServer.
func (s *Session) WriteInitialStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready || s.backend == nil || s.serverName == "" {
		return ErrNotReady
	}
	header, err := backendHeader(s.serverName)
	if err != nil {
		return err
	}
	s.queue(s.backend, header)
	s.setState(ConnectingToServer)
	return nil
}

// HandleReadable performs one read on ch and processes what arrived. On end
// of stream or a read error both legs are closed and the error returned.
func (s *Session) HandleReadable(ch Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.leg(ch)
	if l == nil {
		return ErrUnknownChannel
	}
	if l.buf.ReadFull() {
		l.buf.GrowRead()
		s.metrics.BufferGrowth.WithLabelValues("read").Inc()
	}

	n, err := l.buf.ReadFrom(ch)
	if n > 0 {
		s.process(l)
	}
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Warn("read failed", slog.String("direction", l.dir.String()), slog.Any("error", err))
		}
		s.closeLocked()
		return err
	}
	return nil
}

// HandleWritable attempts one write of the pending bytes for ch and updates
// its interest: read and write while bytes remain, read only once drained.
func (s *Session) HandleWritable(ch Channel) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.leg(ch)
	if l == nil {
		return 0, ErrUnknownChannel
	}

	var (
		n   int
		err error
	)
	if pending := l.buf.Write(); len(pending) > 0 {
		n, err = ch.Write(pending)
		l.buf.Consume(n)
		s.metrics.BytesRelayed.WithLabelValues(l.name).Add(float64(n))
	}
	if err != nil {
		s.closeLocked()
		return n, err
	}

	if len(l.buf.Write()) > 0 {
		s.setInterest(l, InterestRead|InterestWrite)
	} else {
		s.setInterest(l, InterestRead)
	}
	return n, nil
}

// Interest returns the interest currently registered for ch.
func (s *Session) Interest(ch Channel) Interest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.leg(ch); l != nil {
		return l.interest
	}
	return 0
}

// Buffers returns the buffers of ch, or nil for an unknown channel.
func (s *Session) Buffers(ch Channel) *Buffers {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.leg(ch); l != nil {
		return l.buf
	}
	return nil
}

// Close closes both legs.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	err := s.client.ch.Close()
	if s.backend != nil {
		if berr := s.backend.ch.Close(); err == nil {
			err = berr
		}
	}
	return err
}

func (s *Session) leg(ch Channel) *leg {
	switch {
	case ch == nil:
		return nil
	case s.client.ch == ch:
		return s.client
	case s.backend != nil && s.backend.ch == ch:
		return s.backend
	default:
		return nil
	}
}

func (s *Session) opposite(l *leg) *leg {
	if l == s.client {
		return s.backend
	}
	return s.client
}

// process dispatches freshly read bytes either to the negotiation or to the
// forwarding pipeline. Input from the leg that does not drive the current
// negotiation step stays buffered until the session is connected.
func (s *Session) process(l *leg) {
	switch {
	case s.state == Connected:
		s.forward(l)
	case l == s.client && s.state.clientNegotiates(),
		l == s.backend && s.state.backendNegotiates():
		s.negotiate(l)
		if s.state == Connected {
			s.drainHeld()
		}
	default:
		s.logger.Debug("holding input until connected",
			slog.String("direction", l.dir.String()),
			slog.String("state", s.state.String()),
			slog.Int("bytes", len(l.buf.Read())))
	}
}

// drainHeld forwards input that arrived on either leg while negotiation was
// still in progress.
func (s *Session) drainHeld() {
	for _, l := range []*leg{s.client, s.backend} {
		if l != nil && len(l.buf.Read()) > 0 {
			s.forward(l)
		}
	}
}

// queue appends p to the write buffer of l and raises write interest.
func (s *Session) queue(l *leg, p []byte) {
	if l == nil {
		return
	}
	if l.buf.AppendWrite(p) {
		s.metrics.BufferGrowth.WithLabelValues("write").Inc()
	}
	s.setInterest(l, InterestRead|InterestWrite)
}

func (s *Session) setInterest(l *leg, in Interest) {
	l.interest = in
	if s.registrar != nil {
		s.registrar.SetInterest(l.ch, in)
	}
}

func (s *Session) setState(next State) {
	if next == s.state {
		return
	}
	s.logger.Debug("state changed",
		slog.String("from", s.state.String()),
		slog.String("to", next.String()))
	s.state = next
	s.metrics.NegotiationSteps.WithLabelValues(next.String()).Inc()
}
