// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package policy holds the process-wide settings that drive the stanza
// filters.
//
// Settings are plain strings. Lists such as the silenced users are stored as
// one string joined with ";" and manipulated through AppendUnique and
// RemoveFromList, which is how the admin channel changes them at runtime. A
// YAML seed file can be loaded at start; the store is never written back.
package policy
