// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package filter provides the policy filters applied to every decoded stanza.
//
// A session runs its Chain over each stanza before forwarding it. Filters
// mutate the stanza in place; a filter that refuses a stanza marks it
// rejected and the session decides what happens to it. The filters shipped
// here are Silence, Statistics and Transform, registered in that order.
package filter
