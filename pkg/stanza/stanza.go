// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stanza

import (
	"bytes"
	"io"
)

// Kind identifies the variant carried by a Stanza.
type Kind int

const (
	// KindConfiguration covers stream-level elements that are not stanzas
	// proper: SASL success/failure, stream features, stream management.
	KindConfiguration Kind = iota
	KindMessage
	KindPresence
	KindIQ
	KindStreamOpen
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindPresence:
		return "presence"
	case KindIQ:
		return "iq"
	case KindStreamOpen:
		return "stream-open"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Element is the payload of a stanza. The only capability the proxy needs from
// it is to put it back on the wire.
type Element interface {
	WriteWire(w io.Writer) error
}

// Stanza is one decoded protocol unit. It lives for a single
// filter-and-forward cycle.
type Stanza struct {
	Kind    Kind
	Element Element

	// Rejected is set by filters that refuse the stanza.
	Rejected bool

	// Complete is set by the decoder once the element was fully closed in
	// the input.
	Complete bool
}

// New creates a complete stanza of the given kind.
func New(kind Kind, el Element) *Stanza {
	return &Stanza{Kind: kind, Element: el, Complete: true}
}

// Reject marks the stanza as refused by a filter.
func (s *Stanza) Reject() {
	s.Rejected = true
}

// IsMessage reports whether the stanza carries a message element.
func (s *Stanza) IsMessage() bool {
	_, ok := s.Message()
	return ok
}

// Message returns the message payload, if any.
func (s *Stanza) Message() (*Message, bool) {
	if s.Kind != KindMessage {
		return nil, false
	}
	m, ok := s.Element.(*Message)
	return m, ok
}

// Presence returns the presence payload, if any.
func (s *Stanza) Presence() (*Presence, bool) {
	if s.Kind != KindPresence {
		return nil, false
	}
	p, ok := s.Element.(*Presence)
	return p, ok
}

// Header returns the addressing header of messages and presences. Other
// kinds are opaque and return nil.
func (s *Stanza) Header() *Header {
	switch el := s.Element.(type) {
	case *Message:
		return &el.Header
	case *Presence:
		return &el.Header
	default:
		return nil
	}
}

// Wire serializes the stanza payload to wire text.
func (s *Stanza) Wire() ([]byte, error) {
	if s.Element == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := s.Element.WriteWire(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String returns the wire text, or a placeholder when it cannot be produced.
func (s *Stanza) String() string {
	b, err := s.Wire()
	if err != nil || b == nil {
		return "<" + s.Kind.String() + ">"
	}
	return string(b)
}
