// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"errors"
	"testing"
	"time"
)

var errDial = errors.New("dial failed")

func TestBreaker_Transitions(t *testing.T) {
	now := time.Unix(0, 0)
	b := New(Config{MaxFailures: 2, ResetTimeout: time.Minute, SuccessThreshold: 1})
	b.now = func() time.Time { return now }

	var changes []string
	b.OnStateChange(func(from, to State) {
		changes = append(changes, from.String()+"->"+to.String())
	})

	fail := func() error { return errDial }
	ok := func() error { return nil }

	if err := b.Call(fail); !errors.Is(err, errDial) {
		t.Fatalf("Expected dial error, got %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("Expected closed after one failure, got %s", b.State())
	}
	b.Call(fail)
	if b.State() != Open {
		t.Fatalf("Expected open after two failures, got %s", b.State())
	}

	called := false
	if err := b.Call(func() error { called = true; return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("Expected call to be refused while open")
	}

	now = now.Add(2 * time.Minute)
	if err := b.Call(ok); err != nil {
		t.Fatalf("Expected trial call to pass, got %v", err)
	}
	if b.State() != Closed {
		t.Errorf("Expected closed after trial success, got %s", b.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(changes) != len(want) {
		t.Fatalf("Expected %v, got %v", want, changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("Expected %s, got %s", want[i], changes[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	b := New(Config{MaxFailures: 1, ResetTimeout: time.Second})
	b.now = func() time.Time { return now }

	b.Call(func() error { return errDial })
	now = now.Add(2 * time.Second)
	b.Call(func() error { return errDial })

	if b.State() != Open {
		t.Fatalf("Expected open after failed trial, got %s", b.State())
	}
	if err := b.Call(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen right after reopening, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(Config{MaxFailures: 2})
	b.Call(func() error { return errDial })
	b.Call(func() error { return nil })
	b.Call(func() error { return errDial })

	if b.State() != Closed {
		t.Errorf("Expected closed, got %s", b.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{HalfOpen, "half_open"},
		{Open, "open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}
