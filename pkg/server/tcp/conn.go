// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"net"
	"sync"

	"github.com/absmach/xmpproxy/pkg/session"
)

const (
	readChunk = 4096
	maxOutbox = 64 * 1024
)

var _ session.Channel = (*conn)(nil)

// conn turns a blocking net.Conn into a non-blocking session.Channel. A reader
// pump parks incoming bytes until the session has taken them all, and a
// writer pump flushes a bounded outbox. Neither pump touches session state;
// they only post events to the dispatcher.
type conn struct {
	nc   net.Conn
	post func(event) bool

	mu      sync.Mutex
	pending []byte
	rerr    error
	outbox  []byte
	werr    error

	resume chan struct{}
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	// Owned by the dispatch goroutine.
	interest    session.Interest
	writeQueued bool
}

func newConn(nc net.Conn, post func(event) bool) *conn {
	return &conn{
		nc:       nc,
		post:     post,
		resume:   make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		interest: session.InterestRead,
	}
}

func (c *conn) start() {
	go c.readLoop()
	go c.writeLoop()
}

// Read hands out parked bytes. Once they are gone it returns the error that
// ended the reader pump, if any.
func (c *conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return 0, c.rerr
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	if len(c.pending) == 0 {
		c.pending = nil
		signal(c.resume)
	}
	return n, nil
}

// Write accepts as much of p as fits in the outbox.
func (c *conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.werr != nil {
		return 0, c.werr
	}
	select {
	case <-c.done:
		return 0, net.ErrClosed
	default:
	}

	n := min(maxOutbox-len(c.outbox), len(p))
	if n <= 0 {
		return 0, nil
	}
	c.outbox = append(c.outbox, p[:n]...)
	signal(c.wake)
	return n, nil
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})
	return err
}

// readable reports whether a Read would return bytes or an error.
func (c *conn) readable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0 || c.rerr != nil
}

// hasRoom reports whether a Write would accept at least one byte.
func (c *conn) hasRoom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.werr == nil && len(c.outbox) < maxOutbox
}

func (c *conn) readLoop() {
	buf := make([]byte, readChunk)
	for {
		n, err := c.nc.Read(buf)
		if n == 0 && err == nil {
			continue
		}

		c.mu.Lock()
		c.pending = append(c.pending, buf[:n]...)
		if err != nil {
			c.rerr = err
		}
		c.mu.Unlock()

		if !c.post(event{kind: evReadable, conn: c}) || err != nil {
			return
		}
		select {
		case <-c.resume:
		case <-c.done:
			return
		}
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}

		for {
			c.mu.Lock()
			out := c.outbox
			c.mu.Unlock()
			if len(out) == 0 {
				break
			}

			n, err := c.nc.Write(out)

			c.mu.Lock()
			c.outbox = c.outbox[n:]
			if len(c.outbox) == 0 {
				c.outbox = nil
			}
			if err != nil {
				c.werr = err
			}
			c.mu.Unlock()

			if err != nil {
				// The reader pump sees the closed socket and ends the session.
				c.nc.Close()
				return
			}
			if !c.post(event{kind: evWritable, conn: c}) {
				return
			}
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
