// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import "context"

// Context contains session metadata and the credentials observed during SASL
// negotiation. It is passed to Handler methods to provide auth context.
type Context struct {
	// SessionID is a unique identifier for this session
	SessionID string

	// Username is the authentication identity from the SASL PLAIN exchange
	Username string

	// Password from the SASL PLAIN exchange (raw bytes, not hashed)
	Password []byte

	// JID is the client address, known once the backend domain is set
	JID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Backend is the address of the XMPP server the session is relayed to
	Backend string

	// Protocol is always "xmpp" for sessions of this proxy
	Protocol string
}

// Handler defines authorization and notification callbacks for session
// events. The proxy calls these methods at fixed points of the negotiation.
//
// AuthConnect is called BEFORE the backend connection is opened. Returning an
// error closes the client connection.
//
// Notification methods (OnConnect, OnDisconnect) are called AFTER the fact for
// audit logging, metrics, or post-processing. Errors from these methods are
// logged but don't change the session.
type Handler interface {
	// AuthConnect authorizes a client once its SASL PLAIN credentials are
	// known. Return an error to reject the session.
	AuthConnect(ctx context.Context, hctx *Context) error

	// OnConnect is called once the backend accepted the replayed
	// authentication and stanzas start flowing.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnDisconnect is called when a session is torn down, whatever the cause.
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that allows all operations.
// Useful for testing or when no authorization is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
