// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit limits how often a single client address may open new
// sessions, using one token bucket per address.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket refilled continuously at rate tokens per second.
type Bucket struct {
	capacity float64
	tokens   float64
	rate     float64
	last     time.Time
}

func newBucket(capacity, rate float64, now time.Time) *Bucket {
	return &Bucket{capacity: capacity, tokens: capacity, rate: rate, last: now}
}

func (b *Bucket) take(now time.Time) bool {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// full reports whether the bucket would be back at capacity at now.
func (b *Bucket) full(now time.Time) bool {
	return b.tokens+now.Sub(b.last).Seconds()*b.rate >= b.capacity
}

// Limiter tracks one bucket per key. Buckets that refilled completely are
// dropped by Sweep.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*Bucket
	capacity float64
	rate     float64
	maxKeys  int
	now      func() time.Time
}

// NewLimiter allows bursts of burst events per key, refilled at rate per
// second. At most maxKeys keys are tracked; new keys beyond that are refused.
func NewLimiter(burst int, rate float64, maxKeys int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &Limiter{
		buckets:  make(map[string]*Bucket),
		capacity: float64(burst),
		rate:     rate,
		maxKeys:  maxKeys,
		now:      time.Now,
	}
}

// Allow consumes one token for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.sweep(now)
			if len(l.buckets) >= l.maxKeys {
				return false
			}
		}
		b = newBucket(l.capacity, l.rate, now)
		l.buckets[key] = b
	}
	return b.take(now)
}

// Sweep drops the buckets of keys that have been idle long enough to refill.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(l.now())
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if b.full(now) {
			delete(l.buckets, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
