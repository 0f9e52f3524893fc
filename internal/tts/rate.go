package tts

import (
	"math"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Native rate conversion constants.
const (
	// BaseWordsPerMinute is the rate the say and espeak tools use at speed 1.0.
	BaseWordsPerMinute = 175

	// SAPIMinRate and SAPIMaxRate bound the System.Speech rate scale.
	SAPIMinRate = -10
	SAPIMaxRate = 10

	sapiRateStep = 5
)

// WordsPerMinute converts a speed multiplier to a words-per-minute rate.
// Speed is clamped first; halves round away from zero.
func WordsPerMinute(speed float64) int {
	return int(math.Round(BaseWordsPerMinute * core.ClampSpeed(speed)))
}

// SAPIRate converts a speed multiplier to the [-10, 10] System.Speech rate.
func SAPIRate(speed float64) int {
	rate := int(math.Round((core.ClampSpeed(speed) - 1) * sapiRateStep))

	return min(max(rate, SAPIMinRate), SAPIMaxRate)
}
