// Package speech resolves synthesized speech assets and estimates spoken
// durations for reply text when no measured duration is available.
package speech

import (
	"strings"
	"time"
)

// Estimator computes a words-per-minute duration estimate with a fixed pause
// per punctuation mark. The numbers are empirically tuned defaults, not
// contracts; override them per deployment.
type Estimator struct {
	WordsPerMinute   int
	PunctuationPause time.Duration
	MinDuration      time.Duration
	MaxDuration      time.Duration
}

// DefaultEstimator returns the stock tuning: 160 wpm, 250ms per punctuation
// mark, clamped to [1.2s, 60s].
func DefaultEstimator() Estimator {
	return Estimator{
		WordsPerMinute:   160,
		PunctuationPause: 250 * time.Millisecond,
		MinDuration:      1200 * time.Millisecond,
		MaxDuration:      60 * time.Second,
	}
}

const pauseMarks = ".,!?;:"

// Estimate returns the expected spoken duration of text. Empty text still
// yields the minimum so short acknowledgements are not clipped.
func (e Estimator) Estimate(text string) time.Duration {
	words := len(strings.Fields(text))
	punctuation := 0
	for _, r := range text {
		if strings.ContainsRune(pauseMarks, r) {
			punctuation++
		}
	}

	estimate := time.Duration(words) * time.Minute / time.Duration(e.WordsPerMinute)
	estimate += time.Duration(punctuation) * e.PunctuationPause

	if estimate < e.MinDuration {
		return e.MinDuration
	}
	if estimate > e.MaxDuration {
		return e.MaxDuration
	}
	return estimate
}

// EstimateSpokenDuration estimates with the default tuning.
func EstimateSpokenDuration(text string) time.Duration {
	return DefaultEstimator().Estimate(text)
}
