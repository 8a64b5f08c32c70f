// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the connection reactor of xmpproxy.
//
// # Architecture
//
//	┌─────────┐         ┌──────────────────────┐         ┌─────────┐
//	│ Client  │ ←─TCP─→ │ reader/writer pumps  │ ←─TCP─→ │ Backend │
//	└─────────┘         └──────────┬───────────┘         └─────────┘
//	                               │ events
//	                         ┌─────▼──────┐
//	                         │ dispatcher │ owns every Session
//	                         └─────┬──────┘
//	                               │
//	                 ┌─────────────┼─────────────┐
//	                 ▼             ▼             ▼
//	             Session        Handler       Filters
//
// Every accepted socket gets two pump goroutines. The reader pump performs
// the blocking read, parks the bytes and posts a readable event, then waits
// until the session took them. The writer pump flushes a bounded outbox and
// posts a writable event after each flush. The dispatcher is the only
// goroutine that calls into sessions.
//
// Events are level-triggered: a readable event is queued again while parked
// bytes or a read error remain, and raising write interest queues a writable
// event while the outbox has room.
//
// # Session Flow
//
//  1. Client connects; a session is created in NoState
//  2. The session answers the client stream and observes SASL PLAIN
//  3. On Ready, handler.AuthConnect runs and the backend is dialed
//  4. SetServerName and WriteInitialStream open the backend stream
//  5. On Connected, handler.OnConnect runs and stanzas flow both ways
//  6. End of stream on either side closes both and handler.OnDisconnect runs
//
// # Graceful Shutdown
//
// When the context is cancelled the listener is closed, the server waits up
// to ShutdownTimeout for sessions to end and then closes the remaining ones,
// returning ErrShutdownTimeout.
//
// # Example
//
//	cfg := tcp.Config{
//		Address:         ":5222",
//		TargetAddress:   "xmpp.example.org:5222",
//		BackendDomain:   "example.org",
//		ShutdownTimeout: 30 * time.Second,
//	}
//
//	server := tcp.New(cfg, &xmpp.Decoder{}, filters, handler)
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
