// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"maps"
	"sync"

	"github.com/absmach/xmpproxy/pkg/metrics"
	"github.com/absmach/xmpproxy/pkg/stanza"
)

var _ Filter = (*Statistics)(nil)

// Stats is a point-in-time copy of the counters kept by Statistics.
type Stats struct {
	Total    uint64            `json:"total"`
	Rejected uint64            `json:"rejected"`
	ByKind   map[string]uint64 `json:"by_kind"`
	BySender map[string]uint64 `json:"by_sender"`
}

// Statistics counts stanzas by kind, messages by sender and rejected stanzas.
// It never modifies the stanza.
type Statistics struct {
	mu       sync.Mutex
	total    uint64
	rejected uint64
	byKind   map[string]uint64
	bySender map[string]uint64
	metrics  *metrics.Metrics
}

// NewStatistics creates a statistics filter. Counts are also exported
// through m when it is not nil.
func NewStatistics(m *metrics.Metrics) *Statistics {
	return &Statistics{
		byKind:   make(map[string]uint64),
		bySender: make(map[string]uint64),
		metrics:  m,
	}
}

// Apply implements Filter.
func (s *Statistics) Apply(st *stanza.Stanza) {
	kind := st.Kind.String()

	var sender string
	if m, ok := st.Message(); ok {
		sender = m.From
		// A silenced message has already been readdressed to its sender.
		if st.Rejected {
			sender = m.To
		}
	}

	s.mu.Lock()
	s.total++
	s.byKind[kind]++
	if sender != "" {
		s.bySender[sender]++
	}
	if st.Rejected {
		s.rejected++
	}
	s.mu.Unlock()

	if s.metrics == nil {
		return
	}
	if sender != "" {
		s.metrics.MessagesBySender.WithLabelValues(sender).Inc()
	}
	if st.Rejected {
		s.metrics.StanzasRejected.WithLabelValues(kind).Inc()
	}
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Total:    s.total,
		Rejected: s.rejected,
		ByKind:   maps.Clone(s.byKind),
		BySender: maps.Clone(s.bySender),
	}
}
