// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

// DefaultBufferSize is the initial capacity of each buffer.
const DefaultBufferSize = 4096

// Buffers holds the read and write buffers of one channel. Capacity only
// grows, by doubling, and clearing keeps it.
type Buffers struct {
	read  []byte
	write []byte
}

// NewBuffers allocates both buffers with the given capacity.
func NewBuffers(size int) *Buffers {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffers{
		read:  make([]byte, 0, size),
		write: make([]byte, 0, size),
	}
}

// Read returns the bytes read and not yet consumed.
func (b *Buffers) Read() []byte {
	return b.read
}

// Write returns the bytes waiting to be written.
func (b *Buffers) Write() []byte {
	return b.write
}

// ReadCap returns the capacity of the read buffer.
func (b *Buffers) ReadCap() int {
	return cap(b.read)
}

// WriteCap returns the capacity of the write buffer.
func (b *Buffers) WriteCap() int {
	return cap(b.write)
}

// ReadFull reports whether the read buffer has no room left.
func (b *Buffers) ReadFull() bool {
	return len(b.read) == cap(b.read)
}

// ReadFrom performs one read from ch into the free space of the read buffer.
func (b *Buffers) ReadFrom(ch Channel) (int, error) {
	n, err := ch.Read(b.read[len(b.read):cap(b.read)])
	if n > 0 {
		b.read = b.read[:len(b.read)+n]
	}
	return n, err
}

// GrowRead doubles the capacity of the read buffer, keeping its bytes.
func (b *Buffers) GrowRead() {
	b.read = grow(b.read, 2*cap(b.read))
}

// ClearRead drops the read bytes.
func (b *Buffers) ClearRead() {
	b.read = b.read[:0]
}

// AppendWrite queues p for writing. It reports whether the write buffer had
// to grow.
func (b *Buffers) AppendWrite(p []byte) bool {
	need := len(b.write) + len(p)
	grown := false
	if need > cap(b.write) {
		c := cap(b.write)
		for c < need {
			c *= 2
		}
		b.write = grow(b.write, c)
		grown = true
	}
	b.write = append(b.write, p...)
	return grown
}

// Consume drops the first n bytes of the write buffer.
func (b *Buffers) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.write) {
		b.write = b.write[:0]
		return
	}
	rest := copy(b.write, b.write[n:])
	b.write = b.write[:rest]
}

func grow(buf []byte, size int) []byte {
	if size <= cap(buf) {
		return buf
	}
	out := make([]byte, len(buf), size)
	copy(out, buf)
	return out
}
