// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStore_GetSet(t *testing.T) {
	s := NewStore()
	if s.Has(KeyTransformation) {
		t.Fatal("Expected empty store")
	}

	s.Set(KeyTransformation, "on")
	v, ok := s.Get(KeyTransformation)
	if !ok || v != "on" {
		t.Errorf("Expected on, got %q (%v)", v, ok)
	}
	if !s.Has(KeyTransformation) {
		t.Error("Expected key to be set")
	}
}

func TestStore_AppendUnique(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		value   string
		want    bool
		result  string
	}{
		{name: "empty list", initial: "", value: "alice", want: true, result: "alice"},
		{name: "new value", initial: "alice", value: "bob", want: true, result: "alice;bob"},
		{name: "duplicate", initial: "alice;bob", value: "bob", want: false, result: "alice;bob"},
		{name: "substring of entry", initial: "alice@example.org", value: "alice", want: false, result: "alice@example.org"},
		{name: "empty value", initial: "alice", value: "", want: false, result: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			if tt.initial != "" {
				s.Set(KeySilencedUsers, tt.initial)
			}
			if got := s.AppendUnique(KeySilencedUsers, tt.value); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if got, _ := s.Get(KeySilencedUsers); got != tt.result {
				t.Errorf("Expected list %q, got %q", tt.result, got)
			}
		})
	}
}

func TestStore_RemoveFromList(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		value   string
		err     error
		result  string
	}{
		{name: "only entry", initial: "alice", value: "alice", result: ""},
		{name: "middle entry", initial: "alice;bob;carol", value: "bob", result: "alice;carol"},
		{name: "absent", initial: "alice;bob", value: "dave", err: ErrNotFound, result: "alice;bob"},
		{name: "empty list", initial: "", value: "alice", err: ErrNotFound, result: ""},
		{name: "substring only", initial: "alice@example.org", value: "alice", result: "alice@example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Set(KeySilencedUsers, tt.initial)
			err := s.RemoveFromList(tt.value)
			if !errors.Is(err, tt.err) {
				t.Errorf("Expected error %v, got %v", tt.err, err)
			}
			if got, _ := s.Get(KeySilencedUsers); got != tt.result {
				t.Errorf("Expected list %q, got %q", tt.result, got)
			}
		})
	}
}

func TestStore_List(t *testing.T) {
	s := NewStore()
	s.Set(KeySilencedUsers, ";alice;;bob;")

	if diff := cmp.Diff([]string{"alice", "bob"}, s.List(KeySilencedUsers)); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if got := s.List("missing"); got != nil {
		t.Errorf("Expected nil list, got %v", got)
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	s.Set(KeyTransformation, "off")

	snap := s.Snapshot()
	snap[KeyTransformation] = "on"

	if v, _ := s.Get(KeyTransformation); v != "off" {
		t.Errorf("Expected snapshot to be a copy, store now holds %q", v)
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for _, user := range []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AppendUnique(KeySilencedUsers, user)
			s.List(KeySilencedUsers)
		}()
	}
	wg.Wait()

	if got := len(s.List(KeySilencedUsers)); got != 8 {
		t.Errorf("Expected 8 entries, got %d", got)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
settings:
  transformation: "on"
  silenceuser:
    - mallory@example.org
    - eve@example.org
`)
	s, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]string{
		KeyTransformation: "on",
		KeySilencedUsers:  "mallory@example.org;eve@example.org",
	}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not yaml", data: "settings: [unterminated"},
		{name: "nested map", data: "settings:\n  silenceuser:\n    name: alice\n"},
		{name: "list of maps", data: "settings:\n  silenceuser:\n    - name: alice\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("settings:\n  silenceuser: bob@example.org\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]string{"bob@example.org"}, s.List(KeySilencedUsers)); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
