// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/absmach/xmpproxy/pkg/filter"
	"github.com/absmach/xmpproxy/pkg/metrics"
	"github.com/absmach/xmpproxy/pkg/policy"
	"github.com/absmach/xmpproxy/pkg/stanza"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store   *policy.Store
	silence *filter.Silence
	stats   *filter.Statistics
	metrics *metrics.Metrics
	exec    *Executor
}

func newFixture(t *testing.T, seed map[string]string) *fixture {
	t.Helper()
	store := policy.NewStore()
	for k, v := range seed {
		store.Set(k, v)
	}
	m := metrics.New("", prometheus.NewRegistry())
	f := &fixture{
		store:   store,
		silence: filter.NewSilence(store),
		stats:   filter.NewStatistics(nil),
		metrics: m,
	}
	f.exec = NewExecutor(store, f.silence, f.stats, m, logger)
	return f
}

func TestExecutor_Commands(t *testing.T) {
	tests := []struct {
		name         string
		seed         map[string]string
		req          Request
		wantStatus   string
		wantSilenced string
		wantSetting  string
		silenced     []string
	}{
		{
			name:         "silence new user",
			req:          Request{Type: CmdSilenceUser, Value: "alice"},
			wantStatus:   StatusOK,
			wantSilenced: "alice",
			silenced:     []string{"alice"},
		},
		{
			name:         "silence appends",
			seed:         map[string]string{policy.KeySilencedUsers: "bob"},
			req:          Request{Type: CmdSilenceUser, Value: "alice"},
			wantStatus:   StatusOK,
			wantSilenced: "bob;alice",
			silenced:     []string{"alice", "bob"},
		},
		{
			name:         "silence duplicate",
			seed:         map[string]string{policy.KeySilencedUsers: "alice"},
			req:          Request{Type: CmdSilenceUser, Value: "alice"},
			wantStatus:   StatusError,
			wantSilenced: "alice",
			silenced:     []string{"alice"},
		},
		{
			name:       "silence empty value",
			req:        Request{Type: CmdSilenceUser},
			wantStatus: StatusError,
		},
		{
			name:         "unsilence",
			seed:         map[string]string{policy.KeySilencedUsers: "bob;alice"},
			req:          Request{Type: CmdUnsilenceUser, Value: "alice"},
			wantStatus:   StatusOK,
			wantSilenced: "bob",
			silenced:     []string{"bob"},
		},
		{
			name:         "unsilence unknown",
			seed:         map[string]string{policy.KeySilencedUsers: "bob"},
			req:          Request{Type: CmdUnsilenceUser, Value: "alice"},
			wantStatus:   StatusError,
			wantSilenced: "bob",
			silenced:     []string{"bob"},
		},
		{
			name:       "unsilence from empty list",
			req:        Request{Type: CmdUnsilenceUser, Value: "alice"},
			wantStatus: StatusError,
		},
		{
			name:        "transformation on",
			req:         Request{Type: CmdTransformation, Value: "on"},
			wantStatus:  StatusOK,
			wantSetting: "on",
		},
		{
			name:        "transformation off",
			seed:        map[string]string{policy.KeyTransformation: "on"},
			req:         Request{Type: CmdTransformation, Value: "off"},
			wantStatus:  StatusOK,
			wantSetting: "off",
		},
		{
			name:        "transformation invalid",
			seed:        map[string]string{policy.KeyTransformation: "on"},
			req:         Request{Type: CmdTransformation, Value: "maybe"},
			wantStatus:  StatusError,
			wantSetting: "on",
		},
		{
			name:       "unknown command",
			req:        Request{Type: "reboot", Value: "now"},
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.seed)

			resp := f.exec.Execute(tt.req)

			if resp.Status != tt.wantStatus {
				t.Fatalf("Expected status %s, got %s (%s)", tt.wantStatus, resp.Status, resp.Message)
			}
			if resp.Status == StatusError && resp.Message == "" {
				t.Error("Expected an error message")
			}
			if got, _ := f.store.Get(policy.KeySilencedUsers); got != tt.wantSilenced {
				t.Errorf("Expected silenced list %q, got %q", tt.wantSilenced, got)
			}
			if got, _ := f.store.Get(policy.KeyTransformation); got != tt.wantSetting {
				t.Errorf("Expected transformation %q, got %q", tt.wantSetting, got)
			}
			if diff := cmp.Diff(tt.silenced, f.silence.Users(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Silenced users mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExecutor_ErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "unknown command from client",
			req:  Request{Type: "reboot", Remote: "127.0.0.1:4000"},
			want: `admin command "reboot" 127.0.0.1:4000: unknown command`,
		},
		{
			name: "invalid value without client address",
			req:  Request{Type: CmdTransformation, Value: "maybe"},
			want: "admin transformation: invalid input: value must be on or off",
		},
		{
			name: "duplicate silence from client",
			req:  Request{Type: CmdSilenceUser, Value: "alice", Remote: "10.0.0.2:5000"},
			want: "admin silenceuser 10.0.0.2:5000: invalid input: user already silenced",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{policy.KeySilencedUsers: "alice"})
			resp := f.exec.Execute(tt.req)
			if resp.Message != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, resp.Message)
			}
		})
	}
}

func TestExecutor_Stats(t *testing.T) {
	f := newFixture(t, map[string]string{policy.KeySilencedUsers: "alice"})
	f.stats.Apply(stanza.New(stanza.KindMessage, &stanza.Message{
		Header:  stanza.Header{From: "bob@example.org", To: "alice@example.org"},
		Body:    "hi",
		HasBody: true,
	}))

	resp := f.exec.Execute(Request{Type: CmdStats})
	if resp.Status != StatusOK {
		t.Fatalf("Expected OK, got %s", resp.Status)
	}
	report, ok := resp.Data.(Report)
	if !ok {
		t.Fatalf("Expected Report, got %T", resp.Data)
	}

	want := Report{
		Statistics: filter.Stats{
			Total:    1,
			ByKind:   map[string]uint64{"message": 1},
			BySender: map[string]uint64{"bob@example.org": 1},
		},
		Silenced: []string{"alice"},
		Settings: map[string]string{policy.KeySilencedUsers: "alice"},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_Metrics(t *testing.T) {
	f := newFixture(t, nil)

	f.exec.Execute(Request{Type: CmdSilenceUser, Value: "alice"})
	f.exec.Execute(Request{Type: CmdSilenceUser, Value: "alice"})
	f.exec.Execute(Request{Type: "reboot"})

	tests := []struct {
		command string
		status  string
		want    float64
	}{
		{CmdSilenceUser, StatusOK, 1},
		{CmdSilenceUser, StatusError, 1},
		{"unknown", StatusError, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(f.metrics.AdminCommands.WithLabelValues(tt.command, tt.status)); got != tt.want {
			t.Errorf("Expected %v for %s/%s, got %v", tt.want, tt.command, tt.status, got)
		}
	}
}

func TestExecutor_SilenceReachesFilter(t *testing.T) {
	f := newFixture(t, nil)
	msg := func() *stanza.Stanza {
		return stanza.New(stanza.KindMessage, &stanza.Message{
			Header:  stanza.Header{From: "alice@example.org", To: "bob@example.org"},
			Body:    "hello",
			HasBody: true,
		})
	}

	f.exec.Execute(Request{Type: CmdSilenceUser, Value: "alice@example.org"})
	st := msg()
	f.silence.Apply(st)
	if !st.Rejected {
		t.Fatal("Expected message rejected after silenceuser")
	}

	f.exec.Execute(Request{Type: CmdUnsilenceUser, Value: "alice@example.org"})
	st = msg()
	f.silence.Apply(st)
	if st.Rejected {
		t.Error("Expected message accepted after unsilenceuser")
	}
}

func TestServer_Protocol(t *testing.T) {
	f := newFixture(t, nil)
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	server := NewServer(Config{Logger: logger}, f.exec)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(ctx, l)
	}()
	defer func() {
		cancel()
		select {
		case <-errs:
		case <-time.After(5 * time.Second):
			t.Error("Admin server shutdown timeout")
		}
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial admin server: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)

	tests := []struct {
		line   string
		status string
	}{
		{line: `{"type":"silenceuser","value":"alice"}`, status: StatusOK},
		{line: `{"type":"transformation","value":"on"}`, status: StatusOK},
		{line: `not json`, status: StatusError},
		{line: `{"type":"explode"}`, status: StatusError},
		{line: `{"type":"stats"}`, status: StatusOK},
	}

	var last map[string]any
	for _, tt := range tests {
		if _, err := conn.Write([]byte(tt.line + "\n")); err != nil {
			t.Fatalf("Failed to write request: %v", err)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read response to %s: %v", tt.line, err)
		}
		last = nil
		if err := json.Unmarshal([]byte(line), &last); err != nil {
			t.Fatalf("Expected JSON response, got %q", line)
		}
		if last["status"] != tt.status {
			t.Errorf("%s: expected status %s, got %v", tt.line, tt.status, last["status"])
		}
	}

	data, ok := last["data"].(map[string]any)
	if !ok {
		t.Fatalf("Expected stats data, got %v", last)
	}
	settings, _ := data["settings"].(map[string]any)
	if settings[policy.KeyTransformation] != "on" || settings[policy.KeySilencedUsers] != "alice" {
		t.Errorf("Expected settings to reflect earlier commands, got %v", settings)
	}
	if got := strings.TrimSpace(f.store.List(policy.KeySilencedUsers)[0]); got != "alice" {
		t.Errorf("Expected alice silenced in store, got %s", got)
	}
}
