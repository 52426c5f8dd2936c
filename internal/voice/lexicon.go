// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package voice

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var lexiconYAML []byte

// lexicon is the parsed form of lexicon.yaml.
type lexicon struct {
	Languages []languageEntry                `yaml:"languages"`
	Markers   []string                       `yaml:"kinyarwanda_markers"`
	Errors    map[Language]map[string]string `yaml:"errors"`
	Messages  map[Language]map[string]string `yaml:"messages"`
	Fillers   map[Language][]fillerEntry     `yaml:"fillers"`
	Intents   map[Language][]intentBucket    `yaml:"intents"`

	// Derived at load time
	tags    map[Language]string
	markers map[string]struct{}
	fillers map[Language][]filler
}

type languageEntry struct {
	Code Language `yaml:"code"`
	Tag  string   `yaml:"tag"`
	Name string   `yaml:"name"`
}

type fillerEntry struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

type intentBucket struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type filler struct {
	pattern *regexp.Regexp
	replace string
}

// lex is loaded once; a malformed embedded file is a build defect.
var lex = mustLoadLexicon(lexiconYAML)

func mustLoadLexicon(raw []byte) *lexicon {
	l, err := loadLexicon(raw)
	if err != nil {
		panic(err)
	}
	return l
}

func loadLexicon(raw []byte) (*lexicon, error) {
	l := &lexicon{}
	if err := yaml.Unmarshal(raw, l); err != nil {
		return nil, fmt.Errorf("voice_lexicon_parse_failed: %w", err)
	}

	l.tags = make(map[Language]string, len(l.Languages))
	for _, lang := range l.Languages {
		l.tags[lang.Code] = lang.Tag
	}

	l.markers = make(map[string]struct{}, len(l.Markers))
	for _, word := range l.Markers {
		l.markers[fold(word)] = struct{}{}
	}

	l.fillers = make(map[Language][]filler, len(l.Fillers))
	for lang, rules := range l.Fillers {
		for _, rule := range rules {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("voice_lexicon_filler_invalid: %q: %w", rule.Pattern, err)
			}
			l.fillers[lang] = append(l.fillers[lang], filler{pattern: re, replace: rule.Replace})
		}
	}

	return l, nil
}

// message returns localized copy, falling back to English.
func (l *lexicon) message(lang Language, key string) string {
	if text, ok := l.Messages[lang][key]; ok {
		return text
	}
	return l.Messages[English][key]
}

// errorMessage maps a platform error code to localized copy. Unknown codes use "default".
func (l *lexicon) errorMessage(lang Language, code string) string {
	table, ok := l.Errors[lang]
	if !ok {
		table = l.Errors[English]
	}
	if text, ok := table[code]; ok {
		return text
	}
	return table["default"]
}
