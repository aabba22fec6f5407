package provider

import (
	"strings"
	"unicode"

	"github.com/whisper/moderation/internal/entity"
)

// Match reasons reported by Filter.
const (
	ReasonBlockedTerm = "blocked_term"
	ReasonSpamPattern = "spam_pattern"
)

// defaultTerms is the built-in blocklist. Deployments extend it through
// configuration rather than editing this list.
var defaultTerms = []string{
	// self-harm and threats
	"kill yourself",
	"go die",
	"bomb threat",
	"shoot up the school",
	// sexual exploitation
	"child porn",
	"send nudes",
	// extremism
	"heil hitler",
	// scams
	"free bitcoin",
	"wire transfer fee",
	"gift card code",
}

// leetMap maps common character substitutions back to letters.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// Match is the outcome of checking text against a Filter.
type Match struct {
	Severity entity.ReviewStatus
	Reason   string
	Term     string
}

// Filter is a keyword and spam-pattern classifier. It is immutable after
// construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases []string
}

// NewFilter returns a Filter over the built-in blocklist plus extra.
func NewFilter(extra ...string) *Filter {
	return NewFilterWithTerms(append(append([]string(nil), defaultTerms...), extra...))
}

// NewFilterWithTerms returns a Filter over exactly terms. Multi-word terms
// match as whole-word phrases.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		tokens := tokenizePlain(term)
		switch len(tokens) {
		case 0:
		case 1:
			f.words[tokens[0]] = struct{}{}
		default:
			f.phrases = append(f.phrases, strings.Join(tokens, " "))
		}
	}
	return f
}

// Check classifies a single text. Blocked terms, including leetspeak
// spellings, are Banned. Everything else is Clean; a spam pattern is
// reported as the reason but does not raise the severity, since links, phone
// numbers and emphasis are ordinary in posts.
func (f *Filter) Check(text string) Match {
	if term, ok := f.blocked(tokenizePlain(text)); ok {
		return Match{Severity: entity.StatusBanned, Reason: ReasonBlockedTerm, Term: term}
	}

	leet := tokenizeLeet(text)
	for i, tok := range leet {
		leet[i] = normalizeLeet(tok)
	}
	if term, ok := f.blocked(leet); ok {
		return Match{Severity: entity.StatusBanned, Reason: ReasonBlockedTerm, Term: term}
	}

	if name, ok := spamPattern(text); ok {
		return Match{Severity: entity.StatusClean, Reason: ReasonSpamPattern, Term: name}
	}
	return Match{Severity: entity.StatusClean}
}

// CheckAll classifies every text and returns the most severe match. Among
// Clean results the first one with a reason is kept.
func (f *Filter) CheckAll(texts []string) Match {
	worst := Match{Severity: entity.StatusClean}
	for _, text := range texts {
		m := f.Check(text)
		if m.Severity == entity.StatusBanned {
			return m
		}
		if worst.Reason == "" && m.Reason != "" {
			worst = m
		}
	}
	return worst
}

func (f *Filter) blocked(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return tok, true
		}
	}
	if len(f.phrases) == 0 || len(tokens) < 2 {
		return "", false
	}
	joined := " " + strings.Join(tokens, " ") + " "
	for _, phrase := range f.phrases {
		if strings.Contains(joined, " "+phrase+" ") {
			return phrase, true
		}
	}
	return "", false
}

// tokenizePlain lowercases text and splits it on anything that is not a
// letter or digit.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet is tokenizePlain but keeps leet substitution characters.
func tokenizeLeet(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if _, ok := leetMap[r]; ok {
			return false
		}
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalizeLeet(s string) string {
	return strings.Map(func(r rune) rune {
		if sub, ok := leetMap[r]; ok {
			return sub
		}
		return r
	}, s)
}
