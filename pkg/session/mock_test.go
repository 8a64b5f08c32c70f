// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/absmach/xmpproxy/pkg/filter"
)

const (
	clientStream = "<?xml version='1.0'?><stream:stream to='example.org' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0'>"
	serverStream = "<?xml version='1.0'?><stream:stream from='example.org' id='s1' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0'>"
	serverFeats  = "<stream:features><mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'><mechanism>PLAIN</mechanism></mechanisms></stream:features>"
)

func authElement(payload string) string {
	return "<auth xmlns='urn:ietf:params:xml:ns:xmpp-sasl' mechanism='PLAIN'>" +
		base64.StdEncoding.EncodeToString([]byte(payload)) + "</auth>"
}

// mockChannel is an in-memory Channel. Reads hand out queued chunks, writes
// are collected and can be limited per call.
type mockChannel struct {
	in     [][]byte
	err    error
	out    bytes.Buffer
	limit  int
	closed bool
}

func (c *mockChannel) push(s string) {
	c.in = append(c.in, []byte(s))
}

func (c *mockChannel) Read(p []byte) (int, error) {
	if len(c.in) == 0 {
		return 0, c.err
	}
	n := copy(p, c.in[0])
	if n < len(c.in[0]) {
		c.in[0] = c.in[0][n:]
	} else {
		c.in = c.in[1:]
	}
	return n, nil
}

func (c *mockChannel) Write(p []byte) (int, error) {
	if c.limit > 0 && len(p) > c.limit {
		p = p[:c.limit]
	}
	return c.out.Write(p)
}

func (c *mockChannel) Close() error {
	c.closed = true
	return nil
}

// take returns and resets everything written so far.
func (c *mockChannel) take() string {
	s := c.out.String()
	c.out.Reset()
	return s
}

type mockRegistrar struct {
	last  map[Channel]Interest
	calls int
}

func (r *mockRegistrar) SetInterest(ch Channel, in Interest) {
	if r.last == nil {
		r.last = make(map[Channel]Interest)
	}
	r.last[ch] = in
	r.calls++
}

type fixture struct {
	sess    *Session
	client  *mockChannel
	backend *mockChannel
	reg     *mockRegistrar
	silence *filter.Silence
}

func newFixture(t *testing.T, filters ...filter.Filter) *fixture {
	t.Helper()
	f := &fixture{
		client:  &mockChannel{},
		backend: &mockChannel{},
		reg:     &mockRegistrar{},
		silence: filter.NewSilence(nil),
	}
	if len(filters) == 0 {
		filters = []filter.Filter{f.silence}
	}
	f.sess = New(f.client, Config{
		SessionID: "test-session",
		Filters:   filter.NewChain(filters...),
		Registrar: f.reg,
	})
	return f
}

// read delivers everything queued on ch to the session.
func (f *fixture) read(t *testing.T, ch *mockChannel) {
	t.Helper()
	for len(ch.in) > 0 {
		if err := f.sess.HandleReadable(ch); err != nil {
			t.Fatalf("HandleReadable() error = %v", err)
		}
	}
}

// flush drains the session write buffer of ch and returns what was written.
func (f *fixture) flush(t *testing.T, ch *mockChannel) string {
	t.Helper()
	for i := 0; len(f.sess.Buffers(ch).Write()) > 0; i++ {
		if i > 1000 {
			t.Fatal("write buffer never drained")
		}
		if _, err := f.sess.HandleWritable(ch); err != nil {
			t.Fatalf("HandleWritable() error = %v", err)
		}
	}
	return ch.take()
}

// authenticate drives the client side to Ready as alice.
func (f *fixture) authenticate(t *testing.T) {
	t.Helper()
	f.client.push(clientStream)
	f.read(t, f.client)
	f.client.push(authElement("\x00alice\x00secret"))
	f.read(t, f.client)
	f.flush(t, f.client)
	if got := f.sess.State(); got != Ready {
		t.Fatalf("Expected state %s, got %s", Ready, got)
	}
}

// connect drives the session to Connected against example.org and discards
// all negotiation output.
func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.authenticate(t)
	f.sess.AttachBackend(f.backend)
	f.sess.SetServerName("example.org")
	if err := f.sess.WriteInitialStream(); err != nil {
		t.Fatalf("WriteInitialStream() error = %v", err)
	}
	f.backend.push(serverStream + serverFeats)
	f.read(t, f.backend)
	if got := f.sess.State(); got != Connected {
		t.Fatalf("Expected state %s, got %s", Connected, got)
	}
	f.flush(t, f.backend)
	f.flush(t, f.client)
}
