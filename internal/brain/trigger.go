package brain

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	triggerPhoneticThreshold = 0.70
	triggerFuzzyThreshold    = 0.85
)

// TriggerMatcher detects whether a transcript mentions one of the
// principal's trigger names, tolerating recognizer mishearings.
//
// Small speech models routinely garble proper nouns, so an exact substring
// test on the name misses most direct addresses. The matcher instead
// compares every transcript token against each trigger name twice: a Double
// Metaphone pass to find phonetically plausible candidates, and a
// Jaro-Winkler pass to rank them. A token phonetically aligned with a
// trigger name is accepted at a lower similarity than one matched on
// spelling alone.
type TriggerMatcher struct {
	names []string
	codes []map[string]struct{}
}

// NewTriggerMatcher builds a matcher for the given trigger names. Empty
// names are ignored.
func NewTriggerMatcher(names []string) *TriggerMatcher {
	m := &TriggerMatcher{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		m.names = append(m.names, n)
		m.codes = append(m.codes, metaphoneCodes(strings.ToLower(n)))
	}
	return m
}

// Match scans text for a token resembling one of the trigger names.
// It returns the matched trigger name and the similarity score of the best
// match, or ok=false when nothing in the text resembles a trigger.
func (m *TriggerMatcher) Match(text string) (name string, score float64, ok bool) {
	if len(m.names) == 0 {
		return "", 0, false
	}

	tokens := strings.Fields(strings.ToLower(text))
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:\"'")
		if tok == "" {
			continue
		}
		tokCodes := metaphoneCodes(tok)

		for i, trigger := range m.names {
			jw := matchr.JaroWinkler(tok, strings.ToLower(trigger), false)
			threshold := triggerFuzzyThreshold
			if codesOverlap(tokCodes, m.codes[i]) {
				threshold = triggerPhoneticThreshold
			}
			if jw >= threshold && jw > score {
				name, score, ok = trigger, jw, true
			}
		}
	}
	return name, score, ok
}

// metaphoneCodes returns the Double Metaphone codes of every word in s.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	for _, w := range strings.Fields(s) {
		p, sec := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
