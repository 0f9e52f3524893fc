package tts

import (
	"strconv"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/process"
	"github.com/book-expert/tts-gateway/internal/voices"
)

// Dialect translates requests into one platform tool's invocation.
// Caller text only ever reaches the tool through the input file path.
type Dialect interface {
	// Name labels the platform in logs, metrics and the default voice record.
	Name() string
	SynthesisCommand(req core.Request, inputPath, outputPath string) process.Command
	ListCommand() process.Command
	ParseVoices(output string) []core.Voice
}

// Platform labels.
const (
	SayName    = "say"
	SAPIName   = "sapi"
	ESpeakName = "espeak"
)

const (
	sayDataFormat = "LEI16@22050"

	// Environment variables read by the static PowerShell scripts.
	envSAPIInput  = "TTS_INPUT"
	envSAPIOutput = "TTS_OUTPUT"
	envSAPIVoice  = "TTS_VOICE"
	envSAPIRate   = "TTS_RATE"
)

// sapiSpeakScript never contains caller data; everything arrives through
// the environment.
const sapiSpeakScript = `$ErrorActionPreference = 'Stop'
Add-Type -AssemblyName System.Speech
$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer
try {
  if ($env:TTS_VOICE) { $synth.SelectVoice($env:TTS_VOICE) }
  $synth.Rate = [int]$env:TTS_RATE
  $text = [System.IO.File]::ReadAllText($env:TTS_INPUT, [System.Text.Encoding]::UTF8)
  $synth.SetOutputToWaveFile($env:TTS_OUTPUT)
  $synth.Speak($text)
} finally {
  $synth.Dispose()
}`

const sapiListScript = `$ErrorActionPreference = 'Stop'
Add-Type -AssemblyName System.Speech
$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer
try {
  foreach ($voice in $synth.GetInstalledVoices()) {
    $info = $voice.VoiceInfo
    Write-Output ("{0}|{1}|{2}" -f $info.Name, $info.Culture.Name, $info.Gender)
  }
} finally {
  $synth.Dispose()
}`

var powerShellPrefix = []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command"}

// SayDialect drives the macOS say command.
type SayDialect struct {
	Program string
}

// Name implements Dialect.
func (d SayDialect) Name() string { return SayName }

// SynthesisCommand implements Dialect.
func (d SayDialect) SynthesisCommand(req core.Request, inputPath, outputPath string) process.Command {
	args := []string{
		"-o", outputPath,
		"--file-format=WAVE",
		"--data-format=" + sayDataFormat,
		"-r", strconv.Itoa(WordsPerMinute(req.Speed)),
	}

	if !req.IsDefaultVoice() {
		args = append(args, "-v", req.Voice)
	}

	args = append(args, "-f", inputPath)

	return process.Command{Program: d.Program, Fallback: "", Args: args, Env: nil}
}

// ListCommand implements Dialect.
func (d SayDialect) ListCommand() process.Command {
	return process.Command{Program: d.Program, Fallback: "", Args: []string{"-v", "?"}, Env: nil}
}

// ParseVoices implements Dialect.
func (d SayDialect) ParseVoices(output string) []core.Voice {
	return voices.ParseSay(output)
}

// SAPIDialect drives System.Speech through PowerShell.
type SAPIDialect struct {
	Program string
}

// Name implements Dialect.
func (d SAPIDialect) Name() string { return SAPIName }

// SynthesisCommand implements Dialect.
func (d SAPIDialect) SynthesisCommand(req core.Request, inputPath, outputPath string) process.Command {
	env := map[string]string{
		envSAPIInput:  inputPath,
		envSAPIOutput: outputPath,
		envSAPIRate:   strconv.Itoa(SAPIRate(req.Speed)),
		envSAPIVoice:  "",
	}

	if !req.IsDefaultVoice() {
		env[envSAPIVoice] = req.Voice
	}

	return process.Command{
		Program:  d.Program,
		Fallback: "",
		Args:     append(append([]string{}, powerShellPrefix...), sapiSpeakScript),
		Env:      env,
	}
}

// ListCommand implements Dialect.
func (d SAPIDialect) ListCommand() process.Command {
	return process.Command{
		Program:  d.Program,
		Fallback: "",
		Args:     append(append([]string{}, powerShellPrefix...), sapiListScript),
		Env:      nil,
	}
}

// ParseVoices implements Dialect.
func (d SAPIDialect) ParseVoices(output string) []core.Voice {
	return voices.ParseSAPI(output)
}

// ESpeakDialect drives espeak-ng, falling back to espeak when absent.
// Both tools share the same argument shape.
type ESpeakDialect struct {
	Program  string
	Fallback string
}

// Name implements Dialect.
func (d ESpeakDialect) Name() string { return ESpeakName }

// SynthesisCommand implements Dialect.
func (d ESpeakDialect) SynthesisCommand(req core.Request, inputPath, outputPath string) process.Command {
	args := []string{
		"-w", outputPath,
		"-s", strconv.Itoa(WordsPerMinute(req.Speed)),
	}

	if !req.IsDefaultVoice() {
		args = append(args, "-v", req.Voice)
	}

	args = append(args, "-f", inputPath)

	return process.Command{Program: d.Program, Fallback: d.Fallback, Args: args, Env: nil}
}

// ListCommand implements Dialect.
func (d ESpeakDialect) ListCommand() process.Command {
	return process.Command{Program: d.Program, Fallback: d.Fallback, Args: []string{"--voices"}, Env: nil}
}

// ParseVoices implements Dialect.
func (d ESpeakDialect) ParseVoices(output string) []core.Voice {
	return voices.ParseESpeak(output)
}
