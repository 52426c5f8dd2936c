// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package voice

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/bizmap/pkg/textfold"
)

// # Speech Text

var (
	codeFence  = regexp.MustCompile("(?s)```.*?```")
	inlineCode = regexp.MustCompile("`([^`]*)`")
	bold       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italic     = regexp.MustCompile(`\*(.*?)\*`)
	heading    = regexp.MustCompile(`#{1,6}\s+`)
	link       = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	emoji      = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}]`)

	// A pause after punctuation, except inside numbers like 4.8
	pause  = regexp.MustCompile(`([.!?,])([^\s\d.!?,])`)
	spaces = regexp.MustCompile(`[ \t]{2,}`)
)

// FormatForSpeech strips markup, links and emoji from text and spaces out sentence
// punctuation so the synthesizer pauses naturally. Kinyarwanda text also gets
// its filler words normalized.
func FormatForSpeech(text string, lang Language) string {
	out := norm.NFC.String(text)

	out = codeFence.ReplaceAllString(out, "")
	out = inlineCode.ReplaceAllString(out, "$1")
	out = bold.ReplaceAllString(out, "$1")
	out = italic.ReplaceAllString(out, "$1")
	out = heading.ReplaceAllString(out, "")
	out = link.ReplaceAllString(out, "")
	out = emoji.ReplaceAllString(out, "")
	out = pause.ReplaceAllString(out, "$1 $2")

	for _, rule := range lex.fillers[lang] {
		out = rule.pattern.ReplaceAllString(out, rule.replace)
	}

	out = spaces.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// # Language Detection

// fold is the matching form used for lexicon lookups.
func fold(s string) string {
	return textfold.Fold(s)
}

// DetectKinyarwanda reports whether text contains a common Kinyarwanda word.
func DetectKinyarwanda(text string) bool {
	for _, word := range textfold.Words(text) {
		if _, ok := lex.markers[word]; ok {
			return true
		}
	}
	return false
}

// # Intent

// IntentGeneral is returned when no bucket matches.
const IntentGeneral = "general"

// generalConfidence is the fixed confidence of [IntentGeneral].
const generalConfidence = 0.5

// Intent is a best-effort classification of a message.
type Intent struct {
	Name       string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
}

// ExtractIntent scores text against the keyword buckets of lang (English
// buckets when lang has none). The bucket with the highest share of matched
// keywords wins; ties keep the earlier bucket.
func ExtractIntent(text string, lang Language) Intent {
	buckets, ok := lex.Intents[lang]
	if !ok {
		buckets = lex.Intents[English]
	}

	words := textfold.Words(text)
	best := Intent{Name: IntentGeneral, Confidence: generalConfidence}
	bestRatio := 0.0

	for _, bucket := range buckets {
		var matched []string
		for _, keyword := range bucket.Keywords {
			if containsKeyword(words, fold(keyword)) {
				matched = append(matched, keyword)
			}
		}
		if len(matched) == 0 {
			continue
		}

		ratio := float64(len(matched)) / float64(len(bucket.Keywords))
		if ratio > bestRatio {
			bestRatio = ratio
			best = Intent{Name: bucket.Name, Confidence: ratio, Keywords: matched}
		}
	}

	return best
}

// minPrefixLen is the shortest keyword that also matches longer words
// ("restaurant" matches "restaurants", "go" does not match "good").
const minPrefixLen = 4

func containsKeyword(words []string, keyword string) bool {
	for _, word := range words {
		if word == keyword {
			return true
		}
		if len(keyword) >= minPrefixLen && strings.HasPrefix(word, keyword) {
			return true
		}
	}
	return false
}
