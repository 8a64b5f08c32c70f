// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"maps"
	"strings"
	"sync"
)

const (
	// KeySilencedUsers holds the silenced sender identities.
	KeySilencedUsers = "silenceuser"

	// KeyTransformation switches message body rewriting "on" or "off".
	KeyTransformation = "transformation"

	// Separator joins the values of multi-valued settings.
	Separator = ";"
)

// ErrNotFound is returned when a value to remove is not in the list.
var ErrNotFound = errors.New("value not found")

// Store holds named string settings shared by every session and by the admin
// channel. Multi-valued settings are stored joined with Separator.
type Store struct {
	mu       sync.RWMutex
	settings map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{settings: make(map[string]string)}
}

// Has reports whether key is set.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.settings[key]
	return ok
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
}

// List returns the non-empty tokens of a multi-valued setting.
func (s *Store) List(key string) []string {
	s.mu.RLock()
	v := s.settings[key]
	s.mu.RUnlock()
	return split(v)
}

// Snapshot returns a copy of every setting.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.settings)
}

// AppendUnique adds value to the list under key. It reports false and leaves
// the list untouched when value already occurs anywhere in the joined list,
// so a value that is a substring of an existing entry is never added.
func (s *Store) AppendUnique(key, value string) bool {
	if value == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.settings[key]
	if strings.Contains(old, value) {
		return false
	}
	if old == "" {
		s.settings[key] = value
		return true
	}
	s.settings[key] = old + Separator + value
	return true
}

// RemoveFromList drops every token equal to value from the silenced-user
// list. ErrNotFound is returned when value does not occur in the list at all.
func (s *Store) RemoveFromList(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.settings[KeySilencedUsers]
	if old == "" || value == "" || !strings.Contains(old, value) {
		return ErrNotFound
	}

	kept := make([]string, 0, strings.Count(old, Separator)+1)
	for _, tok := range strings.Split(old, Separator) {
		if tok != value {
			kept = append(kept, tok)
		}
	}
	s.settings[KeySilencedUsers] = strings.Join(kept, Separator)
	return nil
}

func split(v string) []string {
	var out []string
	for tok := range strings.SplitSeq(v, Separator) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
