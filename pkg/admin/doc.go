// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package admin implements the administration channel of xmpproxy.
//
// Operators connect over TCP and send one JSON object per line:
//
//	{"type": "silenceuser", "value": "alice@example.org"}
//	{"type": "unsilenceuser", "value": "alice@example.org"}
//	{"type": "transformation", "value": "on"}
//	{"type": "stats"}
//
// Every line is answered with one JSON object:
//
//	{"status": "OK"}
//	{"status": "ERROR", "message": "..."}
//
// The stats command returns the statistics counters, the silenced users and
// the current settings in "data". Silencing takes effect on the next stanza
// of every open session.
package admin
