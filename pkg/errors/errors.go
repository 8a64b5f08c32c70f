// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for xmpproxy.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types
var (
	// ErrUnauthorized indicates the handler refused the authenticated identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput indicates an admin request with an unusable value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates a peer did not answer in time.
	ErrTimeout = errors.New("timeout")

	// ErrConnectionClosed indicates a peer ended its stream.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrProtocolViolation indicates negotiation input that fits no step.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrBackendUnavailable indicates the backend server could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrUnknownCommand indicates an admin request named no known command.
	ErrUnknownCommand = errors.New("unknown command")
)

// ProxyError wraps an error with the session it happened in.
type ProxyError struct {
	Op         string // Operation that failed
	Protocol   string // "xmpp" or "admin"
	SessionID  string // Session identifier, empty for admin requests
	RemoteAddr string // Peer address, may be empty
	Err        error  // Underlying error
}

// Error formats as "protocol op [session] remote: err", leaving out empty
// parts.
func (e *ProxyError) Error() string {
	var b strings.Builder
	b.WriteString(e.Protocol)
	b.WriteString(" ")
	b.WriteString(e.Op)
	if e.SessionID != "" {
		fmt.Fprintf(&b, " [%s]", e.SessionID)
	}
	if e.RemoteAddr != "" {
		b.WriteString(" ")
		b.WriteString(e.RemoteAddr)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// New creates a new ProxyError. A nil err yields nil.
func New(op, protocol, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &ProxyError{
		Op:         op,
		Protocol:   protocol,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap prefixes err with message, keeping it matchable with errors.Is.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
