// Package emoji replaces emoji glyphs in chat text with descriptive phrases
// and counts them
package emoji

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	kemoji "github.com/kyokomi/emoji/v2"
)

const variationSelector = "\ufe0f"

// Normalizer holds an immutable glyph→phrase table. It is safe for
// concurrent use.
type Normalizer struct {
	table    map[string]string
	maxRunes int
}

// New builds a normalizer over a copy of table. Keys that are empty or pure
// ASCII are ignored so ordinary text always passes through unchanged.
func New(table map[string]string) *Normalizer {
	n := &Normalizer{table: make(map[string]string, len(table))}
	for glyph, phrase := range table {
		if glyph == "" || isASCII(glyph) {
			continue
		}
		n.table[glyph] = phrase
		if l := utf8.RuneCountInString(glyph); l > n.maxRunes {
			n.maxRunes = l
		}
	}
	return n
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Len returns the number of glyphs in the table
func (n *Normalizer) Len() int {
	return len(n.table)
}

// Phrase looks up a single glyph
func (n *Normalizer) Phrase(glyph string) (string, bool) {
	p, ok := n.table[glyph]
	return p, ok
}

// Normalize scans text left to right, replacing the longest table glyph at
// each position with its phrase. count is the number of replacements made.
func (n *Normalizer) Normalize(text string) (string, int) {
	if n.maxRunes == 0 || isASCII(text) {
		return text, 0
	}

	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	count := 0

	for i := 0; i < len(runes); {
		matched := 0
		longest := n.maxRunes
		if rest := len(runes) - i; rest < longest {
			longest = rest
		}
		for l := longest; l >= 1; l-- {
			if phrase, ok := n.table[string(runes[i:i+l])]; ok {
				b.WriteString(phrase)
				matched = l
				break
			}
		}
		if matched == 0 {
			b.WriteRune(runes[i])
			i++
			continue
		}
		count++
		i += matched
	}

	if count == 0 {
		return text, 0
	}
	return b.String(), count
}

var (
	defaultOnce sync.Once
	defaultNorm *Normalizer
)

// Default returns the normalizer built from the kyokomi emoji alias table
func Default() *Normalizer {
	defaultOnce.Do(func() {
		defaultNorm = New(DefaultTable())
	})
	return defaultNorm
}

// DefaultTable derives glyph→phrase from the emoji alias map. Each glyph
// takes its longest alias (ties broken alphabetically) with the colons
// dropped and underscores read as spaces. A glyph written with a variation
// selector gives its phrase to the bare form as well, so both spellings
// read the same.
func DefaultTable() map[string]string {
	table := make(map[string]string)
	for glyph, aliases := range kemoji.RevCodeMap() {
		glyph = strings.TrimSpace(glyph)
		if glyph == "" || len(aliases) == 0 {
			continue
		}
		table[glyph] = phrase(aliases)
	}

	selected := make([]string, 0, len(table))
	for glyph := range table {
		if strings.Contains(glyph, variationSelector) {
			selected = append(selected, glyph)
		}
	}
	sort.Strings(selected)
	for _, glyph := range selected {
		bare := strings.ReplaceAll(glyph, variationSelector, "")
		if bare != "" {
			table[bare] = table[glyph]
		}
	}
	return table
}

func phrase(aliases []string) string {
	sorted := append([]string(nil), aliases...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	name := strings.Trim(sorted[0], ":")
	return strings.ReplaceAll(name, "_", " ")
}
