// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package breaker guards backend dials with a circuit breaker so a dead XMPP
// server fails new sessions fast instead of tying up a dial per client.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State is the circuit state.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half_open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// MaxFailures is the number of consecutive failures that open the circuit.
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before a trial call.
	ResetTimeout time.Duration

	// SuccessThreshold is the number of trial successes that close it again.
	SuccessThreshold int
}

// Breaker counts call outcomes and refuses calls while open.
type Breaker struct {
	mu        sync.Mutex
	config    Config
	state     State
	failures  int
	successes int
	changed   time.Time
	now       func() time.Time
	onChange  func(from, to State)
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	b := &Breaker{config: cfg, state: Closed, now: time.Now}
	b.changed = b.now()
	return b
}

// Call runs fn unless the circuit is open, and records its outcome.
func (b *Breaker) Call(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnStateChange registers fn to be called after every transition. fn runs
// with the breaker unlocked.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	if b.state != Open {
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(b.changed) < b.config.ResetTimeout {
		b.mu.Unlock()
		return ErrOpen
	}
	notify := b.transition(HalfOpen)
	b.mu.Unlock()
	notify()
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	notify := func() {}
	switch {
	case err != nil && b.state == HalfOpen:
		notify = b.transition(Open)
	case err != nil:
		b.failures++
		if b.failures >= b.config.MaxFailures {
			notify = b.transition(Open)
		}
	case b.state == HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			notify = b.transition(Closed)
		}
	default:
		b.failures = 0
	}
	b.mu.Unlock()
	notify()
}

// transition must be called with mu held. The returned func reports the
// change and must be called after unlocking.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	b.changed = b.now()
	b.failures = 0
	b.successes = 0

	fn := b.onChange
	if fn == nil || from == to {
		return func() {}
	}
	return func() { fn(from, to) }
}
