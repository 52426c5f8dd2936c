// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package voice

import "strings"

// Platform ranges for utterance parameters.
const (
	minRate, maxRate     = 0.1, 10.0
	minPitch, maxPitch   = 0.0, 2.0
	minVolume, maxVolume = 0.0, 1.0
)

/*
Tune applies an emotion to base prosody.

Description: Every call starts from base, so repeated calls with the same
emotion never compound. The result is clamped to the platform ranges.

Parameters:
  - base: Prosody as configured by the caller
  - emotion: Emotion; unknown values behave as Neutral

Returns:
  - Prosody: adjusted parameters
*/
func Tune(base Prosody, emotion Emotion) Prosody {
	out := base

	switch emotion {
	case Excited:
		out.Rate = min(base.Rate*1.2, 2.0)
		out.Pitch = min(base.Pitch*1.1, 2.0)
	case Calm:
		out.Rate = max(base.Rate*0.8, 0.5)
		out.Pitch = max(base.Pitch*0.9, 0.5)
	case Urgent:
		out.Rate = min(base.Rate*1.3, 2.0)
		out.Volume = min(base.Volume*1.1, 1.0)
	case Friendly:
		out.Pitch = min(base.Pitch*1.05, 2.0)
	}

	out.Rate = clamp(out.Rate, minRate, maxRate)
	out.Pitch = clamp(out.Pitch, minPitch, maxPitch)
	out.Volume = clamp(out.Volume, minVolume, maxVolume)
	return out
}

func clamp(value, lo, hi float64) float64 {
	return max(lo, min(value, hi))
}

/*
SelectVoice picks the installed voice for tag and gender.

Description: Preference order is a voice in the language whose name mentions
the gender, then any voice in the language, then the platform default, then
the first voice.

Parameters:
  - voices: installed voices
  - tag: BCP 47 tag (e.g. "rw-RW"); only the primary subtag is compared
  - gender: Gender to look for in the voice name

Returns:
  - *Voice: the chosen voice, or nil when none are installed
*/
func SelectVoice(voices []Voice, tag string, gender Gender) *Voice {
	if len(voices) == 0 {
		return nil
	}

	prefix := strings.ToLower(primarySubtag(tag))
	var langMatch, fallback *Voice

	for i := range voices {
		v := &voices[i]
		if strings.HasPrefix(strings.ToLower(v.Lang), prefix) {
			if matchesGender(v.Name, gender) {
				return v
			}
			if langMatch == nil {
				langMatch = v
			}
		}
		if v.Default && fallback == nil {
			fallback = v
		}
	}

	switch {
	case langMatch != nil:
		return langMatch
	case fallback != nil:
		return fallback
	default:
		return &voices[0]
	}
}

func primarySubtag(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return tag[:i]
	}
	return tag
}

// matchesGender looks for the gender in a voice name. "female" contains
// "male", so a male match must not be a female one.
func matchesGender(name string, gender Gender) bool {
	if gender == "" {
		return false
	}
	name = strings.ToLower(name)
	if gender == Male && strings.Contains(name, string(Female)) {
		return false
	}
	return strings.Contains(name, string(gender))
}
