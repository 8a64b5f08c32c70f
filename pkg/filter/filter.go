// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import "github.com/absmach/xmpproxy/pkg/stanza"

// Filter inspects a stanza and may rewrite or reject it in place.
type Filter interface {
	Apply(s *stanza.Stanza)
}

// Func adapts a plain function to the Filter interface.
type Func func(s *stanza.Stanza)

// Apply implements Filter.
func (f Func) Apply(s *stanza.Stanza) {
	f(s)
}

// Chain runs filters in registration order. Every filter sees every stanza,
// including ones an earlier filter rejected.
type Chain struct {
	filters []Filter
}

// NewChain creates a chain of the given filters.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Apply implements Filter.
func (c *Chain) Apply(s *stanza.Stanza) {
	if c == nil {
		return
	}
	for _, f := range c.filters {
		f.Apply(s)
	}
}

// Len returns the number of registered filters.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.filters)
}
