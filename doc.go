// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package xmpproxy holds the environment configuration of an XMPP policy
// proxy. The proxy itself lives in pkg/proxy and the binary in cmd.
package xmpproxy
