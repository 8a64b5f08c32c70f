// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package xmpp

import "strings"

// cut records message body text removed from the fragment before tokenizing.
type cut struct {
	// at is the offset in the reduced text where the body was removed.
	at   int
	body string
}

// extractBodies removes the text of every message body, in arrival order,
// leaving an empty element behind. The tokenizer then never sees body text.
func extractBodies(text string) (string, []cut) {
	var (
		b       strings.Builder
		cuts    []cut
		written int
		search  int
	)
	for {
		m := indexTag(text, "message", search)
		if m < 0 {
			break
		}
		search = m + len("<message")

		limit := len(text)
		if end := strings.Index(text[m:], "</message>"); end >= 0 {
			limit = m + end
		}
		bs := indexTag(text[:limit], "body", m)
		if bs < 0 {
			continue
		}
		gt := strings.IndexByte(text[bs:limit], '>')
		if gt < 0 {
			continue
		}
		open := bs + gt + 1
		if text[open-2] == '/' {
			search = open
			continue
		}
		closing := strings.Index(text[open:limit], "</body>")
		if closing < 0 {
			continue
		}
		closing += open

		b.WriteString(text[written:open])
		cuts = append(cuts, cut{at: b.Len(), body: text[open:closing]})
		written = closing
		search = closing
	}
	if len(cuts) == 0 {
		return text, nil
	}
	b.WriteString(text[written:])
	return b.String(), cuts
}

// indexTag returns the offset of the first start tag named name at or after
// from, or -1.
func indexTag(s, name string, from int) int {
	open := "<" + name
	for from <= len(s) {
		i := strings.Index(s[from:], open)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(open)
		if next == len(s) {
			return i
		}
		switch s[next] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return i
		}
		from = next
	}
	return -1
}

// origin maps an offset in the reduced text back to the original text. A cut
// placed exactly at off is counted only when inclusive is set, which is what
// the end of a span needs.
func origin(cuts []cut, off int, inclusive bool) int {
	shift := 0
	for _, c := range cuts {
		if c.at > off || (c.at == off && !inclusive) {
			break
		}
		shift += len(c.body)
	}
	return off + shift
}

// bodyAt returns the body removed at off, if any.
func bodyAt(cuts []cut, off int) (string, bool) {
	for _, c := range cuts {
		if c.at == off {
			return c.body, true
		}
		if c.at > off {
			break
		}
	}
	return "", false
}
