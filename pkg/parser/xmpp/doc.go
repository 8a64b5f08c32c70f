// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package xmpp implements the XMPP stream decoder for xmpproxy.
//
// # Overview
//
// The decoder turns the bytes accumulated for one direction of a session
// into stanzas. It is handed the whole accumulation each time and keeps no
// state, so a stanza split across many reads is decoded once its closing tag
// has arrived.
//
// # Modes
//
// Stream headers (anything containing "<stream:") are returned as one
// stream-open stanza holding the text unchanged: the stream element is only
// closed when the connection ends, so it can never be tokenized.
//
// Everything else goes through the general path:
//
//  1. Message bodies are cut out in arrival order
//  2. The rest is wrapped in <xmpp-proxy>...</xmpp-proxy> and tokenized
//  3. Each top-level element becomes a stanza
//  4. Bodies are put back into the messages they came from
//
// Raw text for presences, message extensions and opaque elements (iq, SASL
// and stream management elements) is sliced from the original input, so it
// is relayed byte for byte.
//
// # Errors
//
//   - parser.ErrIncomplete: input ends inside an element. Any other
//     tokenizer error is reported the same way, so malformed input stalls the
//     direction instead of closing it.
//   - parser.ErrParserConfig: the input declares a charset other than UTF-8.
//
// # Example
//
//	dec := &xmpp.Decoder{}
//	stanzas, err := dec.Decode(buf)
//	if errors.Is(err, parser.ErrIncomplete) {
//		// wait for more bytes
//	}
package xmpp
