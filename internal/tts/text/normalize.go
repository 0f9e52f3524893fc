// Package text normalizes synthesis input before it reaches an external
// speech tool.
//
// Normalization only removes bytes that speech tools mishandle (control
// characters, NUL, stray carriage returns) and folds typographic punctuation
// that some voices read aloud literally.
// It never rewrites words.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
	nbsp         = "\u00a0"

	// maxPunctuationRun caps repeated identical punctuation ("!!!!!!").
	maxPunctuationRun = 3
)

const whitespaceRegexPattern = `\s+`

// Normalizer holds the precompiled patterns used by Normalize.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	typographyFolder  *strings.Replacer
}

// NewNormalizer creates a Normalizer with compiled patterns and replacers.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		typographyFolder: strings.NewReplacer(
			emDash, " - ",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			nbsp, " ",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns text safe to hand to a speech tool. A non-blank input
// never normalizes to an empty string.
func (n *Normalizer) Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return input
	}

	cleaned := stripControl(input)
	cleaned = n.typographyFolder.Replace(cleaned)
	cleaned = capPunctuationRuns(cleaned)
	cleaned = strings.TrimSpace(n.whitespacePattern.ReplaceAllString(cleaned, " "))

	if cleaned == "" {
		return strings.TrimSpace(input)
	}

	return cleaned
}

// stripControl drops control characters; newlines and tabs become spaces.
func stripControl(input string) string {
	return strings.Map(func(char rune) rune {
		switch {
		case char == '\n' || char == '\t' || char == '\r':
			return ' '
		case unicode.IsControl(char), char == unicode.ReplacementChar:
			return -1
		default:
			return char
		}
	}, input)
}

func capPunctuationRuns(input string) string {
	var (
		builder strings.Builder
		last    rune
		run     int
	)

	builder.Grow(len(input))

	for _, char := range input {
		if unicode.IsPunct(char) && char == last {
			run++
		} else {
			run = 1
		}

		last = char

		if run > maxPunctuationRun && char != '.' {
			continue
		}

		builder.WriteRune(char)
	}

	return builder.String()
}
