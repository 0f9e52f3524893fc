// Package config provides the configuration structure for the tts-gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Engine kinds accepted in [engine].kind.
const (
	EngineAuto   = "auto"
	EngineSay    = "say"
	EngineSAPI   = "sapi"
	EngineESpeak = "espeak"
	EngineRemote = "remote"
)

var (
	// ErrInvalidConcurrency indicates a concurrency ceiling below one.
	ErrInvalidConcurrency = errors.New("server.max_concurrent must be at least 1")
	// ErrInvalidInputLimit indicates a non-positive input length bound.
	ErrInvalidInputLimit = errors.New("server.max_input_chars must be positive")
	// ErrUnknownEngine indicates an unsupported engine kind.
	ErrUnknownEngine = errors.New("unknown engine kind")
	// ErrRemoteBaseURLEmpty indicates the remote engine has nowhere to send requests.
	ErrRemoteBaseURLEmpty = errors.New("remote.base_url is required for the remote engine")
	// ErrNATSSubjectEmpty indicates NATS is enabled without a subject.
	ErrNATSSubjectEmpty = errors.New("nats.synthesize_subject is required when nats is enabled")
)

// ServerConfig holds the HTTP front door settings.
type ServerConfig struct {
	ListenAddr            string `toml:"listen_addr"             env:"TTS_LISTEN_ADDR"`
	MaxInputChars         int    `toml:"max_input_chars"         env:"TTS_MAX_INPUT_CHARS"`
	MaxConcurrent         int    `toml:"max_concurrent"          env:"TTS_MAX_CONCURRENT"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" env:"TTS_REQUEST_TIMEOUT_SECONDS"`
}

// EngineConfig selects and tunes the speech backend.
type EngineConfig struct {
	Kind               string `toml:"kind"                 env:"TTS_ENGINE"`
	TimeoutSeconds     int    `toml:"timeout_seconds"      env:"TTS_ENGINE_TIMEOUT_SECONDS"`
	NormalizeText      bool   `toml:"normalize_text"       env:"TTS_NORMALIZE_TEXT"`
	ScratchDir         string `toml:"scratch_dir"          env:"TTS_SCRATCH_DIR"`
	SayPath            string `toml:"say_path"             env:"TTS_SAY_PATH"`
	PowerShellPath     string `toml:"powershell_path"      env:"TTS_POWERSHELL_PATH"`
	ESpeakPath         string `toml:"espeak_path"          env:"TTS_ESPEAK_PATH"`
	ESpeakFallbackPath string `toml:"espeak_fallback_path" env:"TTS_ESPEAK_FALLBACK_PATH"`
}

// RemoteConfig holds the settings for the remote speech API backend.
type RemoteConfig struct {
	BaseURL        string `toml:"base_url"        env:"TTS_REMOTE_BASE_URL"`
	APIKey         string `toml:"api_key"         env:"TTS_REMOTE_API_KEY"`
	Model          string `toml:"model"           env:"TTS_REMOTE_MODEL"`
	LoadPath       string `toml:"load_path"       env:"TTS_REMOTE_LOAD_PATH"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"TTS_REMOTE_TIMEOUT_SECONDS"`
}

// NATSConfig holds the configuration for the NATS synthesis worker.
type NATSConfig struct {
	Enabled               bool   `toml:"enabled"                  env:"TTS_NATS_ENABLED"`
	URL                   string `toml:"url"                      env:"TTS_NATS_URL"`
	SynthesizeSubject     string `toml:"synthesize_subject"       env:"TTS_NATS_SUBJECT"`
	TextObjectStoreBucket string `toml:"text_object_store_bucket" env:"TTS_NATS_TEXT_BUCKET"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"TTS_LOGS_DIR"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server"`
	Engine EngineConfig `toml:"engine"`
	Remote RemoteConfig `toml:"remote"`
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
}

// Default returns the configuration used for keys a file leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:            "127.0.0.1:8880",
			MaxInputChars:         4096,
			MaxConcurrent:         4,
			RequestTimeoutSeconds: 120,
		},
		Engine: EngineConfig{
			Kind:               EngineAuto,
			TimeoutSeconds:     60,
			NormalizeText:      true,
			ScratchDir:         "",
			SayPath:            "say",
			PowerShellPath:     "powershell",
			ESpeakPath:         "espeak-ng",
			ESpeakFallbackPath: "espeak",
		},
		Remote: RemoteConfig{
			BaseURL:        "",
			APIKey:         "",
			Model:          "",
			LoadPath:       "",
			TimeoutSeconds: 120,
		},
		NATS: NATSConfig{
			Enabled:               false,
			URL:                   "nats://127.0.0.1:4222",
			SynthesizeSubject:     "tts.synthesize",
			TextObjectStoreBucket: "TEXT_FILES",
		},
		Paths: PathsConfig{
			BaseLogsDir: os.TempDir(),
		},
	}
}

// Load discovers the project configuration through the configurator, then
// applies environment overrides.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(cfg)
}

// LoadFile reads the TOML file at path, then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML data over the defaults, then applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	err := toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML configuration: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.Engine.Kind = strings.ToLower(strings.TrimSpace(cfg.Engine.Kind))

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.MaxConcurrent < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Server.MaxConcurrent)
	}

	if c.Server.MaxInputChars < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInputLimit, c.Server.MaxInputChars)
	}

	switch c.Engine.Kind {
	case EngineAuto, EngineSay, EngineSAPI, EngineESpeak:
	case EngineRemote:
		if c.Remote.BaseURL == "" {
			return ErrRemoteBaseURLEmpty
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownEngine, c.Engine.Kind)
	}

	if c.NATS.Enabled && c.NATS.SynthesizeSubject == "" {
		return ErrNATSSubjectEmpty
	}

	return nil
}
