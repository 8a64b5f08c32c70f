// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"strings"

	"mellium.im/sasl"
	"mellium.im/xmlstream"
)

const (
	nsClient  = "jabber:client"
	nsStreams = "http://etherx.jabber.org/streams"
	nsSASL    = "urn:ietf:params:xml:ns:xmpp-sasl"

	mechanismPlain = "PLAIN"
)

var (
	errMalformedAuth = errors.New("malformed auth element")
	errEmptyUsername = errors.New("empty authentication identity")

	// greeting opens the proxy's side of the client stream.
	greeting = mustEncode(true, xmlstream.Token(streamStart()))

	// features advertises SASL PLAIN as the only mechanism.
	features = mustEncode(false, xmlstream.Wrap(
		xmlstream.Wrap(
			xmlstream.Wrap(
				xmlstream.Token(xml.CharData(mechanismPlain)),
				xml.StartElement{Name: xml.Name{Local: "mechanism"}},
			),
			xml.StartElement{
				Name: xml.Name{Local: "mechanisms"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: nsSASL}},
			},
		),
		xml.StartElement{Name: xml.Name{Local: "stream:features"}},
	))
)

func streamStart(attrs ...xml.Attr) xml.StartElement {
	return xml.StartElement{
		Name: xml.Name{Local: "stream:stream"},
		Attr: append([]xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: nsClient},
			{Name: xml.Name{Local: "xmlns:stream"}, Value: nsStreams},
			{Name: xml.Name{Local: "version"}, Value: "1.0"},
		}, attrs...),
	}
}

// backendHeader opens the proxy's stream to the backend server for domain.
func backendHeader(domain string) ([]byte, error) {
	return encode(true, xmlstream.Token(streamStart(
		xml.Attr{Name: xml.Name{Local: "to"}, Value: domain},
		xml.Attr{Name: xml.Name{Local: "xml:lang"}, Value: "en"},
	)))
}

func encode(decl bool, r xml.TokenReader) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if decl {
		if err := enc.EncodeToken(xml.ProcInst{Target: "xml", Inst: []byte("version='1.0'")}); err != nil {
			return nil, err
		}
	}
	if _, err := xmlstream.Copy(enc, r); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mustEncode(decl bool, r xml.TokenReader) []byte {
	b, err := encode(decl, r)
	if err != nil {
		panic(err)
	}
	return b
}

// authPayload returns the Base64 text between the first '>' and the last
// '<' of an auth element.
func authPayload(auth string) (string, error) {
	open := strings.IndexByte(auth, '>')
	end := strings.LastIndexByte(auth, '<')
	if open < 0 || end <= open {
		return "", errMalformedAuth
	}
	return strings.TrimSpace(auth[open+1 : end]), nil
}

// authComplete reports whether the auth element has been fully received.
func authComplete(auth string) bool {
	auth = strings.TrimRight(auth, " \t\r\n")
	return strings.HasSuffix(auth, "</auth>") || strings.HasSuffix(auth, "/>")
}

// decodePlain extracts the authentication identity and password from a
// Base64 SASL PLAIN initial response. The server negotiator only observes
// the credentials; the backend performs the real authentication.
func decodePlain(encoded string) (string, []byte, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, err
	}

	var username, password []byte
	n := sasl.NewServer(sasl.Plain, func(n *sasl.Negotiator) bool {
		username, password, _ = n.Credentials()
		return true
	})
	if _, _, err := n.Step(payload); err != nil {
		return "", nil, err
	}
	if len(username) == 0 {
		return "", nil, errEmptyUsername
	}
	return string(username), password, nil
}
