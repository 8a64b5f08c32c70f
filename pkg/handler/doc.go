// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the interface that links the proxy's sessions to
// application logic.
//
// # Data Flow
//
//	Client → Session (observes SASL PLAIN) → Handler.AuthConnect → dial Backend
//	Backend accepts replayed auth → Handler.OnConnect → stanzas flow
//	Either side closes → Handler.OnDisconnect
//
// # Handler Methods
//
// AuthConnect runs once the client's PLAIN credentials are known and before
// the backend is dialed. An error rejects the session. OnConnect and
// OnDisconnect are notifications; their errors are only logged.
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: Unique identifier for this session
//   - Username, Password: Credentials observed in the PLAIN exchange
//   - JID: Client address composed from the username and the backend domain
//   - RemoteAddr: Client's network address
//   - Backend: Address of the XMPP server
//
// # Example
//
//	type MyHandler struct {
//		handler.NoopHandler
//		allowed map[string]bool
//	}
//
//	func (h *MyHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
//		if !h.allowed[hctx.Username] {
//			return errors.ErrUnauthorized
//		}
//		return nil
//	}
package handler
