package tts

import (
	"fmt"
	"runtime"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/process"
	"github.com/book-expert/tts-gateway/internal/scratch"
)

const logFmtEngineSelected = "Selected %s speech engine (configured kind '%s', host %s)"

// ResolveKind maps the configured engine kind to a concrete one; "auto"
// picks the platform tool of goos.
func ResolveKind(kind, goos string) string {
	if kind != config.EngineAuto && kind != "" {
		return kind
	}

	switch goos {
	case "darwin":
		return config.EngineSay
	case "windows":
		return config.EngineSAPI
	default:
		return config.EngineESpeak
	}
}

// NewFromConfig builds the engine named by the configuration for this host.
// Selection happens once; the returned engine never re-inspects the platform.
func NewFromConfig(cfg *config.Config, log *logger.Logger) (core.Engine, error) {
	return NewFromConfigWithExecutor(cfg, nil, log)
}

// NewFromConfigWithExecutor is NewFromConfig with a custom process executor
// for the local engines. A nil executor runs programs on the host.
func NewFromConfigWithExecutor(
	cfg *config.Config,
	executor process.Executor,
	log *logger.Logger,
) (core.Engine, error) {
	kind := ResolveKind(cfg.Engine.Kind, runtime.GOOS)

	if log != nil {
		log.Info(logFmtEngineSelected, kind, cfg.Engine.Kind, runtime.GOOS)
	}

	if kind == config.EngineRemote {
		return newRemoteFromConfig(cfg, log), nil
	}

	var dialect Dialect

	switch kind {
	case config.EngineSay:
		dialect = SayDialect{Program: cfg.Engine.SayPath}
	case config.EngineSAPI:
		dialect = SAPIDialect{Program: cfg.Engine.PowerShellPath}
	case config.EngineESpeak:
		dialect = ESpeakDialect{Program: cfg.Engine.ESpeakPath, Fallback: cfg.Engine.ESpeakFallbackPath}
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnknownEngine, kind)
	}

	opts := LocalOptions{
		Timeout:   time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		Normalize: cfg.Engine.NormalizeText,
	}

	return NewLocalEngine(
		dialect,
		process.NewRunner(executor, log),
		scratch.New(cfg.Engine.ScratchDir, log),
		opts,
		log,
	), nil
}

func newRemoteFromConfig(cfg *config.Config, log *logger.Logger) *RemoteEngine {
	opts := RemoteOptions{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
		Model:   cfg.Remote.Model,
		Timeout: time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
	}

	engine := NewRemoteEngine(opts, nil, log)
	engine.controller = NewOpenAIModelController(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.LoadPath, engine.httpClient)

	return engine
}
