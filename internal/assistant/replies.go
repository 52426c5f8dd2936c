// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package assistant

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taibuivan/bizmap/internal/voice"
)

//go:embed replies.yaml
var repliesYAML []byte

// copyDeck is the offline copy for one language.
type copyDeck struct {
	DefaultName string              `yaml:"default_name"`
	Welcome     string              `yaml:"welcome"`
	Suggestions []string            `yaml:"suggestions"`
	Tips        []string            `yaml:"tips"`
	TipsTitle   string              `yaml:"tips_title"`
	Replies     map[string][]string `yaml:"replies"`
}

var decks = mustLoadDecks(repliesYAML)

func mustLoadDecks(raw []byte) map[voice.Language]copyDeck {
	out := make(map[voice.Language]copyDeck)
	if err := yaml.Unmarshal(raw, &out); err != nil {
		panic(fmt.Errorf("assistant_replies_parse_failed: %w", err))
	}
	if _, ok := out[voice.English]; !ok {
		panic("assistant_replies_parse_failed: no English copy")
	}
	return out
}

// deck returns the copy for lang; languages without their own copy use English.
func deck(lang voice.Language) copyDeck {
	if d, ok := decks[lang]; ok {
		return d
	}
	return decks[voice.English]
}

// WelcomeMessage returns the greeting shown when a conversation starts.
func WelcomeMessage(lang voice.Language) string {
	return deck(lang).Welcome
}

// QuickSuggestions returns the canned prompts offered under the chat box.
func QuickSuggestions(lang voice.Language) []string {
	return append([]string(nil), deck(lang).Suggestions...)
}

// fallbackReply builds the offline answer for intent. variant picks among the
// general replies so a confused user does not read the same line twice.
func fallbackReply(lang voice.Language, intent, name string, variant int) string {
	d := deck(lang)
	if name == "" {
		name = d.DefaultName
	}

	templates := d.Replies[intent]
	general := len(templates) == 0 || intent == voice.IntentGeneral
	if len(templates) == 0 {
		templates = d.Replies[voice.IntentGeneral]
	}

	reply := strings.ReplaceAll(templates[variant%len(templates)], "{name}", name)
	if !general {
		return reply
	}

	var b strings.Builder
	b.WriteString(reply)
	b.WriteString("\n\n💡 **")
	b.WriteString(d.TipsTitle)
	b.WriteString("**")
	for _, tip := range d.Tips {
		b.WriteString("\n• \"")
		b.WriteString(tip)
		b.WriteString("\"")
	}
	return b.String()
}
