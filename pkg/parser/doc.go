// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines the contract between sessions and stream decoders.
//
// # Overview
//
// An XMPP stream is one XML document that is never closed while the
// connection lives. Sessions accumulate the raw bytes read from each leg and
// hand the whole accumulation to a Decoder on every readable event. The
// decoder either returns every complete stanza found, or reports
// ErrIncomplete so the session keeps the bytes and retries later.
//
// # Direction
//
// The Direction type indicates stanza flow:
//   - Upstream: Client → Backend
//   - Downstream: Backend → Client
//
// # Decoders
//
//   - parser/xmpp: XMPP client stream decoder
//
// # Error Contract
//
//	stanzas, err := dec.Decode(buf)
//	switch {
//	case errors.Is(err, parser.ErrIncomplete):
//		// keep buf, grow, wait for more bytes
//	case errors.Is(err, parser.ErrParserConfig):
//		// drop buf, keep the connection
//	case err == nil:
//		// filter and forward stanzas, clear buf
//	}
package parser
