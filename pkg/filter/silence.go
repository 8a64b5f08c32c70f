// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"slices"
	"strings"
	"sync"

	"github.com/absmach/xmpproxy/pkg/policy"
	"github.com/absmach/xmpproxy/pkg/stanza"
)

const (
	// NoticeFrom is the sender of the notice that replaces a silenced message.
	NoticeFrom = "admin@xmpp-proxy"

	// NoticeBody is the text of that notice.
	NoticeBody = "You have been silenced!"
)

var _ Filter = (*Silence)(nil)

// Silence turns messages from silenced senders into a notice addressed back
// to the sender and rejects them.
type Silence struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewSilence creates a silencing filter seeded from the silenced-user list in
// store. A nil store yields an empty filter.
func NewSilence(store *policy.Store) *Silence {
	s := &Silence{users: make(map[string]struct{})}
	if store == nil {
		return s
	}
	for _, id := range store.List(policy.KeySilencedUsers) {
		s.users[id] = struct{}{}
	}
	return s
}

// Silence adds id to the silenced set.
func (s *Silence) Silence(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
}

// Unsilence removes id from the silenced set.
func (s *Silence) Unsilence(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// IsSilenced reports whether any silenced entry occurs in jid.
func (s *Silence) IsSilenced(jid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.users {
		if strings.Contains(jid, id) {
			return true
		}
	}
	return false
}

// Users returns the silenced entries in sorted order.
func (s *Silence) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.users))
	for id := range s.users {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}

// Apply implements Filter.
func (s *Silence) Apply(st *stanza.Stanza) {
	m, ok := st.Message()
	if !ok || !s.IsSilenced(m.From) {
		return
	}
	m.To = m.From
	m.From = NoticeFrom
	m.SetBody(NoticeBody)
	st.Reject()
}
