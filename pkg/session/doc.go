// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package session implements one proxied XMPP connection: a client channel,
// at most one backend channel, their buffers and the negotiation state.
//
// # Negotiation
//
// The proxy answers the client's stream header itself, advertising SASL
// PLAIN only, and observes the PLAIN initial response to learn the username.
// Once the session is Ready the reactor dials the backend, calls
// SetServerName and WriteInitialStream, and the cached auth element is
// replayed to the backend as soon as it opens its stream:
//
//	NoState ──<?xml + <stream──▶ Negotiating ──<auth──▶ Ready
//	   │                            ▲                    │ WriteInitialStream
//	   └──<?xml──▶ WaitingForStream ┘                    ▼
//	                               Connected ◀── ConnectingToServer
//	                                   ▲                 │ <?xml only
//	                                   └─<stream:features── WaitingForServerFeatures
//
// A failure from the backend while waiting for features is relayed to the
// client and resets the session to NoState.
//
// # Forwarding
//
// Once Connected every read is decoded into stanzas. Client stanzas without
// a sender are stamped with the client JID, every stanza runs through the
// filter chain, and the result is queued on the opposite channel. A rejected
// message sent by the client is bounced back to it instead of reaching the
// backend.
//
// # Driving a session
//
// Sessions never block. The reactor calls HandleReadable and HandleWritable
// when a channel is ready; the session reports the interest it wants through
// its Registrar.
package session
