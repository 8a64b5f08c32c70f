// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package xmpp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/absmach/xmpproxy/pkg/parser"
	"github.com/absmach/xmpproxy/pkg/stanza"
)

const (
	rootOpen     = "<xmpp-proxy>"
	rootClose    = "</xmpp-proxy>"
	streamMarker = "<stream:"
)

// Decoder implements the parser.Decoder interface for XMPP client streams.
type Decoder struct{}

var _ parser.Decoder = (*Decoder)(nil)

// Decode returns every complete top-level element found in data.
//
// Stream headers are never closed, so any buffer holding one is returned as a
// single stream-open stanza without tokenizing it. Everything else is wrapped
// in a synthetic root and tokenized; message bodies are taken out beforehand
// and put back afterwards so their text is relayed byte for byte.
func (d *Decoder) Decode(data []byte) ([]*stanza.Stanza, error) {
	text := string(data)
	if strings.Contains(text, streamMarker) {
		return []*stanza.Stanza{stanza.New(stanza.KindStreamOpen, &stanza.Raw{Text: text})}, nil
	}

	reduced, cuts := extractBodies(text)
	f := &fragment{orig: text, cuts: cuts}
	return f.decode(reduced)
}

// fragment ties the reduced text handed to the tokenizer to the original.
type fragment struct {
	orig string
	cuts []cut
}

// slice returns the original text spanning the reduced offsets [from, to).
func (f *fragment) slice(from, to int) string {
	return f.orig[origin(f.cuts, from, false):origin(f.cuts, to, true)]
}

// tag returns the original start tag spanning the reduced offsets [from, to).
// An empty element tag is returned in its open form.
func (f *fragment) tag(from, to int) string {
	t := f.orig[origin(f.cuts, from, false):origin(f.cuts, to, false)]
	if open, ok := strings.CutSuffix(t, "/>"); ok {
		t = strings.TrimRight(open, " \t\r\n") + ">"
	}
	return t
}

func (f *fragment) decode(reduced string) ([]*stanza.Stanza, error) {
	var cfgErr error
	dec := xml.NewDecoder(strings.NewReader(rootOpen + reduced + rootClose))
	dec.CharsetReader = func(label string, _ io.Reader) (io.Reader, error) {
		cfgErr = fmt.Errorf("%w: unsupported charset %q", parser.ErrParserConfig, label)
		return nil, cfgErr
	}

	var (
		out   []*stanza.Stanza
		cur   *element
		depth int
	)
	for {
		off := int(dec.InputOffset()) - len(rootOpen)
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if cfgErr != nil {
				return nil, cfgErr
			}
			// Truncation and malformed input look the same from here.
			return nil, parser.ErrIncomplete
		}
		end := int(dec.InputOffset()) - len(rootOpen)

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 2:
				cur = newElement(t.Copy(), off, end)
			case 3:
				cur.openChild(f, t, off, end)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				cur.closeChild(f, off, end)
			case 2:
				out = append(out, cur.stanza(f, off, end))
				cur = nil
			}
			depth--
		}
	}
	if depth != 0 {
		return nil, parser.ErrIncomplete
	}

	return out, nil
}

// element accumulates one top-level element while it is being tokenized.
// Offsets are in the reduced text.
type element struct {
	kind  stanza.Kind
	attrs []xml.Attr
	start int
	inner int

	child     int
	inBody    bool
	body      string
	bodyTag   string
	bodyAt    int
	hasBody   bool
	extension strings.Builder
}

func newElement(start xml.StartElement, off, end int) *element {
	kind := stanza.KindConfiguration
	switch start.Name.Local {
	case "message":
		kind = stanza.KindMessage
	case "presence":
		kind = stanza.KindPresence
	case "iq":
		kind = stanza.KindIQ
	}
	return &element{kind: kind, attrs: start.Attr, start: off, inner: end}
}

func (e *element) openChild(f *fragment, start xml.StartElement, off, end int) {
	if e.kind == stanza.KindMessage && start.Name.Local == "body" && !e.hasBody {
		e.inBody = true
		e.child = end
		e.bodyTag = f.tag(off, end)
		e.bodyAt = e.extension.Len()
		return
	}
	e.child = off
}

func (e *element) closeChild(f *fragment, off, end int) {
	if e.kind != stanza.KindMessage {
		return
	}
	if e.inBody {
		e.inBody = false
		e.hasBody = true
		if body, ok := bodyAt(f.cuts, e.child); ok {
			e.body = body
			return
		}
		e.body = f.slice(e.child, off)
		return
	}
	e.extension.WriteString(f.slice(e.child, end))
}

func (e *element) stanza(f *fragment, off, end int) *stanza.Stanza {
	switch e.kind {
	case stanza.KindMessage:
		return stanza.New(e.kind, &stanza.Message{
			Header:     stanza.NewHeader(e.attrs),
			Body:       e.body,
			HasBody:    e.hasBody,
			BodyTag:    e.bodyTag,
			Extensions: e.extension.String(),
			BodyAt:     e.bodyAt,
		})
	case stanza.KindPresence:
		return stanza.New(e.kind, &stanza.Presence{
			Header: stanza.NewHeader(e.attrs),
			Inner:  f.slice(e.inner, off),
		})
	default:
		return stanza.New(e.kind, &stanza.Raw{Text: f.slice(e.start, end)})
	}
}
