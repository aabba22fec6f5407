package provider

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// The bare-domain form requires a path so "v2.0" and "3.14" stay clean.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

const (
	charFloodRun = 5
	wordFloodRun = 3
)

// spamChecks run in order; the first match wins.
var spamChecks = []struct {
	name  string
	match func(string) bool
}{
	{"url", urlPattern.MatchString},
	{"phone", phonePattern.MatchString},
	{"char_flood", hasCharFlood},
	{"word_flood", hasWordFlood},
}

func spamPattern(text string) (string, bool) {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return sc.name, true
		}
	}
	return "", false
}

// hasCharFlood reports a run of charFloodRun identical runes. RE2 has no
// backreferences, hence the scan.
func hasCharFlood(text string) bool {
	run := 0
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run >= charFloodRun {
			return true
		}
	}
	return false
}

// hasWordFlood reports the same word, case-insensitively, wordFloodRun times
// in a row.
func hasWordFlood(text string) bool {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < wordFloodRun {
		return false
	}
	run := 0
	prev := ""
	for _, w := range words {
		w = strings.ToLower(w)
		if w == prev {
			run++
		} else {
			run = 1
			prev = w
		}
		if run >= wordFloodRun {
			return true
		}
	}
	return false
}
