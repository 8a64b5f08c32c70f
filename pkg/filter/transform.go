// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"strings"

	"github.com/absmach/xmpproxy/pkg/policy"
	"github.com/absmach/xmpproxy/pkg/stanza"
)

// Values of the transformation setting.
const (
	TransformOn  = "on"
	TransformOff = "off"
)

var _ Filter = (*Transform)(nil)

// Transform rewrites message bodies to leet speak while the transformation
// setting is on. The setting is read on every stanza.
type Transform struct {
	store *policy.Store
}

// NewTransform creates a transformation filter backed by store.
func NewTransform(store *policy.Store) *Transform {
	return &Transform{store: store}
}

// Enabled reports whether bodies are currently rewritten.
func (t *Transform) Enabled() bool {
	if t.store == nil {
		return false
	}
	v, _ := t.store.Get(policy.KeyTransformation)
	return v == TransformOn
}

// Apply implements Filter. Rejected stanzas are left alone.
func (t *Transform) Apply(st *stanza.Stanza) {
	if st.Rejected || !t.Enabled() {
		return
	}
	m, ok := st.Message()
	if !ok || !m.HasBody {
		return
	}
	m.SetBody(Leet(m.Body))
}

// Leet rewrites raw body text. Entity references and markup are copied
// unchanged; 'c' becomes an escaped '<' so the result stays valid wire text.
func Leet(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/4)

	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '&', '<':
			term := byte(';')
			if c == '<' {
				term = '>'
			}
			if n := strings.IndexByte(raw[i:], term); n >= 0 {
				b.WriteString(raw[i : i+n+1])
				i += n
				continue
			}
			b.WriteByte(c)
		case 'a':
			b.WriteByte('4')
		case 'e':
			b.WriteByte('3')
		case 'i':
			b.WriteByte('1')
		case 'o':
			b.WriteByte('0')
		case 'c':
			b.WriteString("&lt;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
