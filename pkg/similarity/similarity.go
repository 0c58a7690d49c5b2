// Package similarity provides the pairwise signals the deduplication
// engine clusters on. Every signal is deterministic, symmetric and
// bounded to [0,1].
package similarity

import (
	"strings"
	"unicode"
)

// Title compares two titles. It is a Dice coefficient over stemmed
// significant tokens, so minor inflection ("launches" vs "launch")
// does not break a match. Identical titles score 1.
func Title(a, b string) float64 {
	ta := stemAll(significantTokens(a))
	tb := stemAll(significantTokens(b))

	if len(ta) == 0 && len(tb) == 0 {
		// Both titles dissolve to nothing; equal raw text is a match.
		if normalize(a) == normalize(b) {
			return 1
		}
		return 0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	m := multisetIntersection(ta, tb)
	return 2 * float64(m) / float64(len(ta)+len(tb))
}

// Content compares two bodies using the overlap coefficient
// |A∩B| / min(|A|,|B|) over stemmed token sets. A short item that is
// substantively contained in a longer one scores high; plain length
// difference alone never drags the signal down.
func Content(a, b string) float64 {
	sa := tokenSet(stemAll(significantTokens(a)))
	sb := tokenSet(stemAll(significantTokens(b)))

	if len(sa) == 0 && len(sb) == 0 {
		if normalize(a) == normalize(b) {
			return 1
		}
		return 0
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	minSize := len(sa)
	if len(sb) < minSize {
		minSize = len(sb)
	}
	return float64(inter) / float64(minSize)
}

// EntityOverlap is the Jaccard index over normalized entity sets.
// An empty set on either side yields 0: missing entities are never
// treated as evidence of a match.
func EntityOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, e := range a {
		setA[normalize(e)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, e := range b {
		setB[normalize(e)] = true
	}

	inter := 0
	for e := range setA {
		if setB[e] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "as": true, "if": true, "so": true,
	"not": true, "no": true, "up": true, "out": true, "can": true,
	"all": true, "more": true, "also": true, "than": true, "very": true,
}

// significantTokens splits text into lowercase word tokens, dropping
// stopwords and single characters.
func significantTokens(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, w := range words {
		if len(w) >= 2 && !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

var stemSuffixes = []string{"ingly", "edly", "ings", "ing", "ed", "es", "ly", "s"}

// stem strips common English inflection suffixes. Crude, but applied
// identically to both sides of every comparison, which is all the
// signal contract requires.
func stem(tok string) string {
	for _, suf := range stemSuffixes {
		if strings.HasSuffix(tok, suf) && len(tok)-len(suf) >= 4 {
			return tok[:len(tok)-len(suf)]
		}
	}
	return tok
}

func stemAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = stem(t)
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func multisetIntersection(a, b []string) int {
	counts := make(map[string]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	m := 0
	for _, t := range b {
		if counts[t] > 0 {
			counts[t]--
			m++
		}
	}
	return m
}
