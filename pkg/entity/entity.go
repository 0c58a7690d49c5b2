// Package entity extracts normalized entity strings from item text for
// use as a similarity signal.
package entity

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Extractor produces a normalized entity set for an item's text.
type Extractor interface {
	Extract(ctx context.Context, title, body string) ([]string, error)
}

// DefaultVocabulary seeds the keyword extractor with entities the
// engine cares about out of the box.
var DefaultVocabulary = []string{
	"openai", "anthropic", "claude", "gpt", "gemini", "llama", "mistral",
	"deepmind", "meta", "google", "microsoft", "nvidia", "hugging face",
	"stable diffusion", "midjourney", "pytorch", "tensorflow",
	"reinforcement learning", "fine-tuning", "multimodal", "agentic",
	"foundation model", "open source", "benchmark", "inference",
}

// KeywordExtractor matches a lowercase vocabulary against item text and
// adds capitalized multi-word phrases found in the original casing.
type KeywordExtractor struct {
	vocabulary []string
}

// NewKeywordExtractor builds an extractor from the default vocabulary
// plus any extra terms.
func NewKeywordExtractor(extra []string) *KeywordExtractor {
	vocab := make([]string, 0, len(DefaultVocabulary)+len(extra))
	for _, term := range DefaultVocabulary {
		vocab = append(vocab, Normalize(term))
	}
	for _, term := range extra {
		if n := Normalize(term); n != "" {
			vocab = append(vocab, n)
		}
	}
	return &KeywordExtractor{vocabulary: vocab}
}

// Extract returns the sorted, de-duplicated entity set for the text.
// It never fails; the error return satisfies the Extractor contract for
// implementations that call out to external models.
func (k *KeywordExtractor) Extract(_ context.Context, title, body string) ([]string, error) {
	text := title + " " + body
	lower := strings.ToLower(text)

	found := make(map[string]bool)
	for _, term := range k.vocabulary {
		if strings.Contains(lower, term) {
			found[term] = true
		}
	}
	for _, phrase := range capitalizedPhrases(text) {
		found[phrase] = true
	}

	entities := make([]string, 0, len(found))
	for e := range found {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	return entities, nil
}

// Normalize lowercases and collapses whitespace in an entity string.
func Normalize(entity string) string {
	return strings.Join(strings.Fields(strings.ToLower(entity)), " ")
}

// capitalizedPhrases returns normalized runs of two or more adjacent
// capitalized words ("Model X Turbo" -> "model x turbo"). Single
// capitalized words are skipped: they are mostly sentence starts.
func capitalizedPhrases(text string) []string {
	words := strings.Fields(text)

	var phrases []string
	var run []string
	flush := func() {
		if len(run) >= 2 {
			phrases = append(phrases, Normalize(strings.Join(run, " ")))
		}
		run = nil
	}

	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed != "" && startsUpperOrDigit(trimmed) {
			run = append(run, trimmed)
			// Trailing punctuation ends the phrase.
			if last, _ := utf8.DecodeLastRuneInString(w); !unicode.IsLetter(last) && !unicode.IsDigit(last) {
				flush()
			}
			continue
		}
		flush()
	}
	flush()
	return phrases
}

func startsUpperOrDigit(w string) bool {
	r := []rune(w)[0]
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}
