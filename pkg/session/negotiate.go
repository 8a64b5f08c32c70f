// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"strings"

	perrors "github.com/absmach/xmpproxy/pkg/errors"
)

const (
	prefixDecl     = "<?xml"
	prefixStream   = "<stream"
	prefixAuth     = "<auth"
	prefixFeatures = "<stream:features"
	markFailure    = "failure"
)

// negotiate runs one step of the negotiation on the bytes read from l. The
// read buffer is cleared afterwards, except while an auth element is still
// arriving.
func (s *Session) negotiate(l *leg) {
	text := string(l.buf.Read())
	read := strings.TrimLeft(text, " \t\r\n")
	if read == "" {
		l.buf.ClearRead()
		return
	}

	switch s.state {
	case NoState:
		if !strings.HasPrefix(read, prefixDecl) {
			s.unmatched(l, "invalid initial message from client")
			break
		}
		if strings.Contains(read, prefixStream) {
			s.greet()
			break
		}
		s.setState(WaitingForStream)

	case WaitingForStream:
		if !strings.HasPrefix(read, prefixStream) {
			s.unmatched(l, "invalid stream message from client")
			break
		}
		s.greet()

	case Negotiating:
		if !strings.HasPrefix(read, prefixAuth) {
			s.unmatched(l, "invalid authorization message from client")
			break
		}
		if !authComplete(read) {
			return
		}
		s.authenticate(read)

	case ConnectingToServer:
		switch {
		case strings.Contains(read, prefixStream):
			s.replayAuth()
		case strings.HasPrefix(read, prefixDecl):
			s.setState(WaitingForServerFeatures)
		default:
			s.unmatched(l, "invalid initial message from server")
		}

	case WaitingForServerFeatures:
		switch {
		case strings.HasPrefix(read, prefixFeatures):
			s.replayAuth()
		case strings.Contains(read, markFailure):
			s.logger.Warn("server refused negotiation", slog.String("username", s.username))
			s.metrics.NegotiationFailures.WithLabelValues(s.state.String(), "server_failure").Inc()
			s.queue(s.client, []byte(read))
			s.setState(NoState)
		default:
			s.unmatched(l, "invalid features message from server")
		}
	}

	l.buf.ClearRead()
}

func (s *Session) greet() {
	s.queue(s.client, greeting)
	s.queue(s.client, features)
	s.setState(Negotiating)
}

func (s *Session) authenticate(auth string) {
	s.metrics.AuthAttempts.Inc()

	payload, err := authPayload(auth)
	if err == nil {
		s.username, s.password, err = decodePlain(payload)
	}
	if err != nil {
		s.violation(s.client, fmt.Errorf("%w: invalid authorization message from client: %w", perrors.ErrProtocolViolation, err))
		s.metrics.AuthFailures.WithLabelValues("malformed_plain").Inc()
		s.metrics.NegotiationFailures.WithLabelValues(s.state.String(), "malformed_auth").Inc()
		return
	}

	s.auth = []byte(auth)
	s.logger.Info("client authenticated", slog.String("username", s.username))
	s.setState(Ready)
}

func (s *Session) replayAuth() {
	s.queue(s.backend, s.auth)
	s.logger.Info("client finished connecting to server", slog.String("jid", s.jid))
	s.setState(Connected)
}

func (s *Session) unmatched(l *leg, msg string) {
	s.violation(l, fmt.Errorf("%w: %s", perrors.ErrProtocolViolation, msg))
	s.metrics.NegotiationFailures.WithLabelValues(s.state.String(), "unmatched").Inc()
}

// violation records a negotiation error. The state is held.
func (s *Session) violation(l *leg, err error) {
	s.err = perrors.New("negotiate", protocol, s.id, "", err)
	s.logger.Warn("negotiation input rejected",
		slog.String("direction", l.dir.String()),
		slog.String("state", s.state.String()),
		slog.String("error", err.Error()))
}
