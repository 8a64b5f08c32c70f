// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

// State is the negotiation phase of a session.
type State int

const (
	NoState State = iota
	WaitingForStream
	Negotiating
	Ready
	ConnectingToServer
	WaitingForServerFeatures
	Connected
)

func (s State) String() string {
	switch s {
	case NoState:
		return "no_state"
	case WaitingForStream:
		return "waiting_for_stream"
	case Negotiating:
		return "negotiating"
	case Ready:
		return "ready"
	case ConnectingToServer:
		return "connecting_to_server"
	case WaitingForServerFeatures:
		return "waiting_for_server_features"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// clientNegotiates reports whether input from the client drives the
// negotiation in state s.
func (s State) clientNegotiates() bool {
	return s == NoState || s == WaitingForStream || s == Negotiating
}

// backendNegotiates reports whether input from the backend drives the
// negotiation in state s.
func (s State) backendNegotiates() bool {
	return s == ConnectingToServer || s == WaitingForServerFeatures
}
