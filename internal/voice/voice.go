// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package voice turns platform speech recognition and synthesis into a
language-aware conversational channel for English, French and Kinyarwanda.

The platform itself is behind two small interfaces, [Recognizer] and
[Synthesizer]. The [Engine] owns the policy on top of them:

  - Recognition is exclusive: one listening session at a time.
  - Synthesis is most-recent-wins: a new utterance cancels the previous one.
  - Final transcripts drive language auto-detection, a confirmation notice
    and a delayed auto-submit.
  - Platform errors become localized copy and never escape as panics.

The lexicon (language tags, markers, localized copy, intent buckets) is
embedded from lexicon.yaml.
*/
package voice

import (
	"context"
	"strings"
)

// # Languages

// Language is a short language code.
type Language string

const (
	Kinyarwanda Language = "rw"
	English     Language = "en"
	French      Language = "fr"
)

// ParseLanguage validates a language code.
func ParseLanguage(code string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(code)))
	_, ok := lex.tags[lang]
	return lang, ok
}

// Tag returns the BCP 47 tag the platform expects (e.g. "rw-RW").
func (l Language) Tag() string {
	if tag, ok := lex.tags[l]; ok {
		return tag
	}
	return lex.tags[English]
}

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Code Language `json:"code"`
	Tag  string   `json:"tag"`
	Name string   `json:"name"`
}

// SupportedLanguages lists the languages the engine can listen and speak in.
func SupportedLanguages() []LanguageInfo {
	out := make([]LanguageInfo, 0, len(lex.Languages))
	for _, entry := range lex.Languages {
		out = append(out, LanguageInfo{Code: entry.Code, Tag: entry.Tag, Name: entry.Name})
	}
	return out
}

// # Synthesis Parameters

// Gender is matched against installed voice names.
type Gender string

const (
	Female Gender = "female"
	Male   Gender = "male"
)

// Emotion adjusts prosody for one utterance.
type Emotion string

const (
	Neutral  Emotion = "neutral"
	Friendly Emotion = "friendly"
	Excited  Emotion = "excited"
	Calm     Emotion = "calm"
	Urgent   Emotion = "urgent"
)

// Prosody is the rate, pitch and volume of an utterance.
type Prosody struct {
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Voice is one installed synthesis voice.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default"`
}

// Utterance is what the synthesizer is asked to say.
type Utterance struct {
	ID      string
	Text    string
	Tag     string
	Voice   *Voice
	Prosody Prosody
}

// # Configuration

// Config is the engine's listening and speaking setup.
type Config struct {
	Language        Language
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
	Gender          Gender
	Prosody         Prosody
}

// DefaultConfig returns the stock setup: Kinyarwanda, interim results,
// three alternatives, a female voice at normal rate and pitch.
func DefaultConfig() Config {
	return Config{
		Language:        Kinyarwanda,
		InterimResults:  true,
		MaxAlternatives: 3,
		Gender:          Female,
		Prosody:         Prosody{Rate: 1.0, Pitch: 1.0, Volume: 0.8},
	}
}

// # Platform

// Result is one recognition result.
type Result struct {
	Transcript   string   `json:"transcript"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
	Final        bool     `json:"final"`
}

// RecognitionKind tells what a recognizer reported.
type RecognitionKind int

const (
	RecognitionResult RecognitionKind = iota
	RecognitionError
	RecognitionEnd
)

// RecognitionEvent is one callback from the recognizer.
// Code is the platform error code (e.g. "no-speech") for RecognitionError.
type RecognitionEvent struct {
	Kind   RecognitionKind
	Result Result
	Code   string
}

// RecognitionConfig is passed to the recognizer on start.
type RecognitionConfig struct {
	Tag             string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Recognizer is the platform speech recognition capability.
//
// Start must not block until speech is heard: results, errors and the end of
// the session are reported through emit, from any goroutine.
type Recognizer interface {
	Available() bool
	Start(ctx context.Context, config RecognitionConfig, emit func(RecognitionEvent)) error
	Stop()
	Abort()
}

// Synthesizer is the platform speech synthesis capability.
//
// Speak blocks until the utterance finishes, fails, or ctx is cancelled.
type Synthesizer interface {
	Available() bool
	Voices() []Voice
	Speak(ctx context.Context, utterance Utterance) error
	Cancel()
}
