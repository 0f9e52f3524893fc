package core

import (
	"fmt"
	"strings"
)

// Speed bounds and default for the speech-rate multiplier.
const (
	MinSpeed     = 0.25
	MaxSpeed     = 4.0
	DefaultSpeed = 1.0
)

// DefaultVoice selects the platform's own default voice.
const DefaultVoice = "default"

// Format is an audio container/codec name from the fixed enumeration.
type Format string

// Supported formats.
const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatOpus Format = "opus"
	FormatAAC  Format = "aac"
	FormatFLAC Format = "flac"
	FormatPCM  Format = "pcm"
)

// DefaultFormat is used when a caller does not name one.
const DefaultFormat = FormatMP3

var mimeTypes = map[Format]string{
	FormatMP3:  "audio/mpeg",
	FormatWAV:  "audio/wav",
	FormatOpus: "audio/opus",
	FormatAAC:  "audio/aac",
	FormatFLAC: "audio/flac",
	FormatPCM:  "audio/pcm",
}

// ParseFormat resolves a format name; empty means DefaultFormat.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return DefaultFormat, nil
	}

	format := Format(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := mimeTypes[format]; !ok {
		return "", fmt.Errorf("%w: unsupported response format %q", ErrValidation, name)
	}

	return format, nil
}

// MIMEType returns the content type for the format.
func (f Format) MIMEType() string {
	if mime, ok := mimeTypes[f]; ok {
		return mime
	}

	return "application/octet-stream"
}

// ClampSpeed bounds speed to [MinSpeed, MaxSpeed]. Callers apply
// DefaultSpeed themselves when no speed was given.
func ClampSpeed(speed float64) float64 {
	switch {
	case speed < MinSpeed:
		return MinSpeed
	case speed > MaxSpeed:
		return MaxSpeed
	default:
		return speed
	}
}

// Request is a normalized synthesis request. Build it with NewRequest.
type Request struct {
	Text   string
	Voice  string
	Format Format
	Speed  float64
	Model  string
}

// NewRequest applies defaults and clamping. Text validation (non-empty,
// length bound) belongs to the caller.
func NewRequest(text, voice string, format Format, speed float64) Request {
	if strings.TrimSpace(voice) == "" {
		voice = DefaultVoice
	}

	if format == "" {
		format = DefaultFormat
	}

	return Request{
		Text:   text,
		Voice:  voice,
		Format: format,
		Speed:  ClampSpeed(speed),
	}
}

// IsDefaultVoice reports whether the platform default voice should apply.
func (r Request) IsDefaultVoice() bool {
	return r.Voice == "" || strings.EqualFold(r.Voice, DefaultVoice)
}

// Result carries audio in the format that was actually produced.
type Result struct {
	Audio  []byte
	Format Format
}

// Voice describes one selectable voice.
type Voice struct {
	ID          string
	DisplayName string
	Language    string
	Gender      string
}

// Model describes a model id advertised to clients.
type Model struct {
	ID    string
	Owner string
}

// Stub model set advertised by engines without a model catalog.
const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
	LocalOwner  = "local"
)

// DefaultModels returns the fixed two-entry model set.
func DefaultModels() []Model {
	return []Model{
		{ID: ModelTTS1, Owner: LocalOwner},
		{ID: ModelTTS1HD, Owner: LocalOwner},
	}
}

// DefaultVoiceRecord returns the synthetic voice substituted when a catalog
// is empty or unavailable. label names the backend.
func DefaultVoiceRecord(label string) Voice {
	return Voice{
		ID:          DefaultVoice,
		DisplayName: fmt.Sprintf("System default (%s)", label),
		Language:    "",
		Gender:      "",
	}
}
