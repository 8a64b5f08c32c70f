// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"errors"

	"github.com/absmach/xmpproxy/pkg/stanza"
)

var (
	// ErrIncomplete is returned when the buffer ends inside an element. The
	// caller keeps the bytes, grows its buffer and decodes again once more
	// data has arrived.
	ErrIncomplete = errors.New("incomplete stream")

	// ErrParserConfig is returned when the tokenizer cannot be set up for the
	// input. The batch is unusable but the connection is not affected.
	ErrParserConfig = errors.New("parser configuration error")
)

// Direction indicates the direction of stanza flow.
type Direction int

const (
	// Upstream represents stanzas flowing from client to backend server.
	Upstream Direction = iota

	// Downstream represents stanzas flowing from backend server to client.
	Downstream
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Decoder turns the bytes accumulated for one direction into stanzas.
//
// Decode is handed the whole buffer every time new bytes arrive and keeps no
// state between calls. It returns only fully closed elements:
// - nil error with the complete list of stanzas found in data
// - ErrIncomplete when data ends inside an element
// - ErrParserConfig when data cannot be tokenized at all
type Decoder interface {
	Decode(data []byte) ([]*stanza.Stanza, error)
}
