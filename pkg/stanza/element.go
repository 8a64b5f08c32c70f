// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stanza

import (
	"encoding/xml"
	"io"

	"mellium.im/xmlstream"
)

const (
	nsXMLNS = "xmlns"
	nsXML   = "http://www.w3.org/XML/1998/namespace"
)

var (
	_ Element = (*Message)(nil)
	_ Element = (*Presence)(nil)
	_ Element = (*Raw)(nil)
)

// Header holds the addressing attributes shared by messages and presences.
type Header struct {
	From string
	To   string
	ID   string
	Type string

	// Attrs keeps every other attribute of the start tag in original order.
	Attrs []xml.Attr
}

// NewHeader splits the attributes of a start element into a Header.
func NewHeader(attrs []xml.Attr) Header {
	var h Header
	for _, a := range attrs {
		if a.Name.Space == "" {
			switch a.Name.Local {
			case "from":
				h.From = a.Value
				continue
			case "to":
				h.To = a.Value
				continue
			case "id":
				h.ID = a.Value
				continue
			case "type":
				h.Type = a.Value
				continue
			}
		}
		h.Attrs = append(h.Attrs, a)
	}
	return h
}

// StartElement builds the start tag for an element named local.
func (h Header) StartElement(local string) xml.StartElement {
	attr := make([]xml.Attr, 0, len(h.Attrs)+4)
	if h.From != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: h.From})
	}
	if h.To != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: h.To})
	}
	if h.Type != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: h.Type})
	}
	if h.ID != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: h.ID})
	}
	for _, a := range h.Attrs {
		attr = append(attr, wireAttr(a))
	}
	return xml.StartElement{Name: xml.Name{Local: local}, Attr: attr}
}

// wireAttr undoes the namespace resolution encoding/xml applies to
// declarations so the encoder writes them back as plain attributes.
func wireAttr(a xml.Attr) xml.Attr {
	switch a.Name.Space {
	case "", nsXML:
		return a
	case nsXMLNS:
		return xml.Attr{Name: xml.Name{Local: nsXMLNS + ":" + a.Name.Local}, Value: a.Value}
	default:
		return a
	}
}

// Message is a message stanza. Body is the raw wire text found between
// <body> and </body>; it is never entity-decoded so it can be relayed
// verbatim.
type Message struct {
	Header

	Body string

	// HasBody is false when the decoder found no body to reinsert.
	HasBody bool

	// BodyTag is the body start tag as received, attributes included. An
	// empty tag is written as a bare <body>.
	BodyTag string

	// Extensions is the raw text of every child element other than the body.
	Extensions string

	// BodyAt is the offset in Extensions where the body was found.
	BodyAt int
}

// SetBody replaces the body with raw wire text.
func (m *Message) SetBody(raw string) {
	m.Body = raw
	m.HasBody = true
}

// WriteWire implements Element.
func (m *Message) WriteWire(w io.Writer) error {
	inner := m.Extensions
	if m.HasBody {
		tag := m.BodyTag
		if tag == "" {
			tag = "<body>"
		}
		at := min(max(m.BodyAt, 0), len(inner))
		inner = inner[:at] + tag + m.Body + "</body>" + inner[at:]
	}
	return writeElement(w, m.StartElement("message"), inner)
}

// Presence is a presence stanza; its children are kept as raw text.
type Presence struct {
	Header

	Inner string
}

// WriteWire implements Element.
func (p *Presence) WriteWire(w io.Writer) error {
	return writeElement(w, p.StartElement("presence"), p.Inner)
}

// Raw is an element the proxy does not interpret. It is relayed exactly as
// it was received.
type Raw struct {
	Text string
}

// WriteWire implements Element.
func (r *Raw) WriteWire(w io.Writer) error {
	_, err := io.WriteString(w, r.Text)
	return err
}

// writeElement encodes start, copies inner unchanged and closes the element.
func writeElement(w io.Writer, start xml.StartElement, inner string) error {
	enc := xml.NewEncoder(w)
	if _, err := xmlstream.Copy(enc, xmlstream.Token(start)); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	if _, err := io.WriteString(w, inner); err != nil {
		return err
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return err
	}
	return enc.Flush()
}
