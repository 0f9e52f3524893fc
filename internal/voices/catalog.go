// Package voices parses the free-text voice listings of the host speech
// tools into voice records. Lines that do not match the expected shape are
// dropped; parsing never fails.
package voices

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/book-expert/tts-gateway/internal/core"
)

// SAPIFieldSeparator separates fields in the PowerShell voice listing.
const SAPIFieldSeparator = "|"

const (
	sapiFieldCount   = 3
	espeakMinFields  = 5
	espeakGenderSep  = "/"
	genderMale       = "male"
	genderFemale     = "female"
	sapiGenderNotSet = "notset"
)

// sayLinePattern matches `say -v '?'` lines: name, locale, '#', sample text.
// Names may contain spaces and parentheses.
var sayLinePattern = regexp.MustCompile(`^(\S.*?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

// ParseSay parses the output of `say -v '?'`.
func ParseSay(output string) []core.Voice {
	var voices []core.Voice

	forEachLine(output, func(line string) {
		match := sayLinePattern.FindStringSubmatch(line)
		if match == nil {
			return
		}

		name := strings.TrimSpace(match[1])
		voices = append(voices, core.Voice{
			ID:          name,
			DisplayName: name,
			Language:    match[2],
			Gender:      "",
		})
	})

	return dedupe(voices)
}

// ParseSAPI parses `Name|Culture|Gender` lines printed by the PowerShell
// voice listing script.
func ParseSAPI(output string) []core.Voice {
	var voices []core.Voice

	forEachLine(output, func(line string) {
		fields := strings.Split(line, SAPIFieldSeparator)
		if len(fields) != sapiFieldCount {
			return
		}

		name := strings.TrimSpace(fields[0])
		if name == "" {
			return
		}

		voices = append(voices, core.Voice{
			ID:          name,
			DisplayName: name,
			Language:    strings.TrimSpace(fields[1]),
			Gender:      normalizeGender(fields[2]),
		})
	})

	return dedupe(voices)
}

// ParseESpeak parses the table printed by `espeak-ng --voices` and by the
// classic `espeak --voices`. The header row fails the priority check and is
// dropped.
func ParseESpeak(output string) []core.Voice {
	var voices []core.Voice

	forEachLine(output, func(line string) {
		fields := strings.Fields(line)
		if len(fields) < espeakMinFields {
			return
		}

		_, err := strconv.Atoi(fields[0])
		if err != nil {
			return
		}

		genderCode, ok := espeakGender(fields[2])
		if !ok {
			return
		}

		voices = append(voices, core.Voice{
			ID:          fields[1],
			DisplayName: strings.ReplaceAll(fields[3], "_", " "),
			Language:    fields[1],
			Gender:      normalizeGender(genderCode),
		})
	})

	return dedupe(voices)
}

// espeakGender extracts the gender letter from the Age/Gender column.
// espeak-ng prints `--/M` or `30/F`; classic espeak prints `M` or `30F`.
func espeakGender(column string) (string, bool) {
	code := column
	if _, after, found := strings.Cut(column, espeakGenderSep); found {
		code = after
	} else {
		code = strings.TrimLeft(code, "0123456789")
	}

	switch code {
	case "M", "F", "-":
		return code, true
	default:
		return "", false
	}
}

// OrDefault substitutes the synthetic default record for an empty catalog.
func OrDefault(voices []core.Voice, label string) []core.Voice {
	if len(voices) == 0 {
		return []core.Voice{core.DefaultVoiceRecord(label)}
	}

	return voices
}

func forEachLine(output string, handle func(line string)) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		handle(line)
	}
}

func normalizeGender(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "m", genderMale:
		return genderMale
	case "f", genderFemale:
		return genderFemale
	case "", "-", "--", sapiGenderNotSet:
		return ""
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

func dedupe(voices []core.Voice) []core.Voice {
	seen := make(map[string]struct{}, len(voices))
	unique := voices[:0]

	for _, voice := range voices {
		if _, ok := seen[voice.ID]; ok {
			continue
		}

		seen[voice.ID] = struct{}{}
		unique = append(unique, voice)
	}

	return unique
}
