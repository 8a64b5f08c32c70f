// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/absmach/xmpproxy/pkg/parser"
	"github.com/absmach/xmpproxy/pkg/stanza"
)

// forward decodes everything buffered for l and relays each stanza. The read
// buffer is kept when the input ends inside an element and cleared otherwise.
func (s *Session) forward(l *leg) {
	stanzas, err := s.decoder.Decode(l.buf.Read())
	switch {
	case errors.Is(err, parser.ErrIncomplete):
		s.metrics.IncompleteDecodes.WithLabelValues(l.dir.String()).Inc()
		if l.buf.ReadFull() {
			l.buf.GrowRead()
			s.metrics.BufferGrowth.WithLabelValues("read").Inc()
		}
		return
	case err != nil:
		s.logger.Error("dropping undecodable input",
			slog.String("direction", l.dir.String()),
			slog.Int("bytes", len(l.buf.Read())),
			slog.Any("error", err))
		s.metrics.StanzasDropped.WithLabelValues("parser_config").Inc()
		l.buf.ClearRead()
		return
	}

	for _, st := range stanzas {
		s.route(l, st)
	}
	l.buf.ClearRead()
}

// route runs one stanza through the filters and queues it on the right leg.
func (s *Session) route(src *leg, st *stanza.Stanza) {
	s.metrics.Stanzas.WithLabelValues(st.Kind.String(), src.dir.String()).Inc()

	if h := st.Header(); h != nil && h.From == "" && src == s.client {
		h.From = s.jid
	}

	s.filters.Apply(st)

	m, isMessage := st.Message()
	if isMessage && st.Rejected && s.concernsClient(m) {
		if src == s.client {
			s.send(s.client, st)
			return
		}
		s.logger.Info("dropping rejected message sent to client",
			slog.String("jid", s.jid),
			slog.String("from", m.From))
		s.metrics.StanzasDropped.WithLabelValues("rejected").Inc()
		return
	}

	if isMessage && !m.HasBody {
		s.metrics.StanzasDropped.WithLabelValues("no_body").Inc()
		return
	}
	s.send(s.opposite(src), st)
}

func (s *Session) concernsClient(m *stanza.Message) bool {
	if s.jid == "" {
		return false
	}
	return strings.Contains(m.From, s.jid) || strings.Contains(m.To, s.jid)
}

func (s *Session) send(dst *leg, st *stanza.Stanza) {
	if dst == nil {
		s.metrics.StanzasDropped.WithLabelValues("no_backend").Inc()
		return
	}
	wire, err := st.Wire()
	if err != nil {
		s.logger.Error("failed to serialize stanza",
			slog.String("kind", st.Kind.String()),
			slog.Any("error", err))
		s.metrics.StanzasDropped.WithLabelValues("serialize").Inc()
		return
	}
	s.queue(dst, wire)
}
