// Package tts implements the speech engines: one local engine per host
// platform tool and a remote engine delegating to a speech API server.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/process"
	"github.com/book-expert/tts-gateway/internal/scratch"
	"github.com/book-expert/tts-gateway/internal/tts/text"
	"github.com/book-expert/tts-gateway/internal/voices"
)

const wavExtension = "wav"

const (
	logFmtFormatSubstituted = "%s engine cannot produce %s, returning wav"
	logFmtListVoicesFailed  = "Voice listing with %s failed, using default voice: %v"
	logFmtSynthesized       = "%s synthesized %d bytes"

	msgScratchFailed = "failed to prepare scratch files"
	msgProcessFailed = "speech tool failed"
	msgNoOutput      = "speech tool wrote no audio"
)

// LocalOptions tunes a LocalEngine.
type LocalOptions struct {
	// Timeout bounds one tool run; zero means no bound beyond the caller's context.
	Timeout   time.Duration
	Normalize bool
}

// LocalEngine synthesizes speech with a host tool through a Dialect.
type LocalEngine struct {
	dialect    Dialect
	runner     *process.Runner
	guard      *scratch.Guard
	normalizer *text.Normalizer
	timeout    time.Duration
	log        *logger.Logger
}

// NewLocalEngine creates a LocalEngine.
func NewLocalEngine(
	dialect Dialect,
	runner *process.Runner,
	guard *scratch.Guard,
	opts LocalOptions,
	log *logger.Logger,
) *LocalEngine {
	var normalizer *text.Normalizer
	if opts.Normalize {
		normalizer = text.NewNormalizer()
	}

	return &LocalEngine{
		dialect:    dialect,
		runner:     runner,
		guard:      guard,
		normalizer: normalizer,
		timeout:    opts.Timeout,
		log:        log,
	}
}

// Name implements core.Engine.
func (e *LocalEngine) Name() string {
	return e.dialect.Name()
}

// Synthesize writes the text to a scratch file, runs the platform tool and
// returns the wave audio it produced. The scratch directory is removed on
// every return path.
func (e *LocalEngine) Synthesize(ctx context.Context, req core.Request) (core.Result, error) {
	err := validateLocal(req)
	if err != nil {
		return core.Result{}, err
	}

	if req.Format != core.FormatWAV {
		e.warn(logFmtFormatSubstituted, e.Name(), req.Format)
	}

	input := req.Text
	if e.normalizer != nil {
		input = e.normalizer.Normalize(input)
	}

	resource, err := e.guard.Acquire()
	if err != nil {
		return core.Result{}, core.NewSynthesisError(e.Name(), msgScratchFailed, err)
	}
	defer resource.Release()

	inputPath, err := resource.WriteInput(input)
	if err != nil {
		return core.Result{}, core.NewSynthesisError(e.Name(), msgScratchFailed, err)
	}

	runCtx, cancel := e.runContext(ctx)
	defer cancel()

	cmd := e.dialect.SynthesisCommand(req, inputPath, resource.OutputPath(wavExtension))

	_, runErr := e.runner.Run(runCtx, cmd)
	if runErr != nil {
		return core.Result{}, core.NewSynthesisError(e.Name(), msgProcessFailed, runErr)
	}

	audio, readErr := resource.ReadOutput(wavExtension)
	if readErr != nil {
		return core.Result{}, core.NewSynthesisError(e.Name(), msgNoOutput, readErr)
	}

	if len(audio) == 0 {
		return core.Result{}, core.NewSynthesisError(e.Name(), msgNoOutput, core.ErrEmptyAudio)
	}

	if e.log != nil {
		e.log.Info(logFmtSynthesized, e.Name(), len(audio))
	}

	return core.Result{Audio: audio, Format: core.FormatWAV}, nil
}

// ListVoices reads the catalog from the platform tool on every call. Any
// failure, or an empty listing, yields the default voice record.
func (e *LocalEngine) ListVoices(ctx context.Context) []core.Voice {
	runCtx, cancel := e.runContext(ctx)
	defer cancel()

	out, err := e.runner.Run(runCtx, e.dialect.ListCommand())
	if err != nil {
		e.warn(logFmtListVoicesFailed, e.Name(), err)

		return voices.OrDefault(nil, e.Name())
	}

	return voices.OrDefault(e.dialect.ParseVoices(string(out.Stdout)), e.Name())
}

// ListModels implements core.Engine.
func (e *LocalEngine) ListModels(_ context.Context) []core.Model {
	return core.DefaultModels()
}

func (e *LocalEngine) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, e.timeout)
}

func (e *LocalEngine) warn(format string, args ...any) {
	if e.log != nil {
		e.log.Warn(format, args...)
	}
}

// ErrVoiceLooksLikeFlag rejects voice names a tool could read as an option.
var ErrVoiceLooksLikeFlag = errors.New("voice name cannot start with '-'")

func validateLocal(req core.Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text cannot be empty", core.ErrValidation)
	}

	if strings.HasPrefix(req.Voice, "-") {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrVoiceLooksLikeFlag)
	}

	return nil
}
