// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestProxyError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "full context",
			err:  New("dial", "xmpp", "s1", "10.0.0.1:5000", ErrBackendUnavailable),
			want: "xmpp dial [s1] 10.0.0.1:5000: backend unavailable",
		},
		{
			name: "no session",
			err:  New("silenceuser", "admin", "", "127.0.0.1:4000", ErrInvalidInput),
			want: "admin silenceuser 127.0.0.1:4000: invalid input",
		},
		{
			name: "no session or address",
			err:  New(`command "reboot"`, "admin", "", "", ErrUnknownCommand),
			want: `admin command "reboot": unknown command`,
		},
		{
			name: "no address",
			err:  New("negotiate", "xmpp", "s2", "", ErrProtocolViolation),
			want: "xmpp negotiate [s2]: protocol violation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestProxyError_Is(t *testing.T) {
	cause := fmt.Errorf("%w: %w", ErrConnectionClosed, io.EOF)
	err := New("read", "xmpp", "s1", "10.0.0.1:5000", cause)

	if !errors.Is(err, ErrConnectionClosed) {
		t.Error("Expected errors.Is to match ErrConnectionClosed")
	}
	if !errors.Is(err, io.EOF) {
		t.Error("Expected errors.Is to match io.EOF")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("Expected no match for ErrTimeout")
	}

	var pe *ProxyError
	if !errors.As(err, &pe) {
		t.Fatal("Expected errors.As to find ProxyError")
	}
	if pe.SessionID != "s1" || pe.Op != "read" {
		t.Errorf("Expected session s1 op read, got %s %s", pe.SessionID, pe.Op)
	}
	if pe.Unwrap() != cause {
		t.Errorf("Expected Unwrap to return the cause, got %v", pe.Unwrap())
	}
}

func TestNew_Nil(t *testing.T) {
	if err := New("dial", "xmpp", "s1", "", nil); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if err := Wrap(nil, "check backend"); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrTimeout, "read stream header")
	if err.Error() != "read stream header: timeout" {
		t.Errorf("Expected prefixed message, got %q", err.Error())
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("Expected wrapped error to match ErrTimeout")
	}
}
