// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package proxy provides the XMPP proxy coordinator that wires together the
// TCP reactor, the stream decoder, the policy filters and a handler.
//
// # Architecture
//
//	Application
//	     ↓
//	┌─────────────────┐
//	│   XMPPProxy     │  (Coordinator)
//	└─────────────────┘
//	     ↓
//	┌─────────────────┐
//	│   tcp.Server    │  (Reactor: one dispatch goroutine, socket pumps)
//	└─────────────────┘
//	     ↓
//	┌─────────────────┐
//	│   Session       │  (Negotiation, forwarding)
//	└─────────────────┘
//	     ↓
//	┌─────────────────┐
//	│ Decoder/Filters │  (xmpp.Decoder, Silence → Statistics → Transform)
//	└─────────────────┘
//	     ↓
//	┌─────────────────┐
//	│   Handler       │  (AuthConnect, OnConnect, OnDisconnect)
//	└─────────────────┘
//
// # Usage
//
//	store, _ := policy.Load("policy.yaml")
//
//	p, err := proxy.NewXMPP(proxy.XMPPConfig{
//		Host:       "0.0.0.0",
//		Port:       "5222",
//		TargetHost: "ejabberd",
//		TargetPort: "5222",
//		Domain:     "example.org",
//		Store:      store,
//	}, handler)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := p.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The store, Silence and Statistics accessors hand the live policy state to
// the admin channel so commands take effect on running sessions.
package proxy
