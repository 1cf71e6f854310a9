package filter

import (
	"sort"
	"strings"
)

const MASK = "********"

// Masker replaces secret values in log lines.
type Masker struct {
	replacer *strings.Replacer
	// secrets by first byte, longest first
	byFirst map[byte][]string
	longest int
}

func NewMasker(secrets []string) *Masker {
	parts := make([]string, 0, len(secrets))
	seen := make(map[string]bool, len(secrets))
	for _, secret := range secrets {
		// lines are masked one at a time, so multi-line values are masked per line
		for _, part := range strings.FieldsFunc(secret, func(r rune) bool { return r == '\n' || r == '\r' }) {
			if strings.TrimSpace(part) == "" || seen[part] {
				continue
			}
			seen[part] = true
			parts = append(parts, part)
		}
	}

	if len(parts) == 0 {
		return &Masker{}
	}

	// longest first, so that a secret containing another one is masked as a whole
	sort.Slice(parts, func(i, j int) bool {
		if len(parts[i]) != len(parts[j]) {
			return len(parts[i]) > len(parts[j])
		}
		return parts[i] < parts[j]
	})

	m := &Masker{byFirst: make(map[byte][]string), longest: len(parts[0])}
	pairs := make([]string, 0, 2*len(parts))
	for _, part := range parts {
		pairs = append(pairs, part, MASK)
		m.byFirst[part[0]] = append(m.byFirst[part[0]], part)
	}
	m.replacer = strings.NewReplacer(pairs...)
	return m
}

func (m *Masker) Mask(line string) string {
	if m == nil || m.replacer == nil {
		return line
	}
	return m.replacer.Replace(line)
}

func (m *Masker) Filter(line string) string {
	return m.Mask(line)
}

// FilterChunk masks a leading part of chunk. The last longest-1 bytes are only consumed
// as part of a complete match, since a secret may continue in the following data.
func (m *Masker) FilterChunk(chunk string) (string, int) {
	if m == nil || m.replacer == nil {
		return chunk, len(chunk)
	}

	limit := len(chunk) - (m.longest - 1)
	if limit <= 0 {
		return "", 0
	}

	var b strings.Builder
	b.Grow(limit)
	i := 0
	for i < limit {
		if secret := m.matchAt(chunk, i); secret != "" {
			b.WriteString(MASK)
			i += len(secret)
			continue
		}
		b.WriteByte(chunk[i])
		i++
	}
	return b.String(), i
}

func (m *Masker) matchAt(s string, i int) string {
	for _, secret := range m.byFirst[s[i]] {
		if strings.HasPrefix(s[i:], secret) {
			return secret
		}
	}
	return ""
}
