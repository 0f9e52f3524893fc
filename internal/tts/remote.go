package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
)

// RemoteName labels the remote engine.
const RemoteName = "remote"

// API endpoints and headers.
const (
	apiSpeech = "/audio/speech"

	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"

	maxErrorBodyBytes = 64 << 10
)

const (
	logFmtEnsureModelFailed = "Ensuring remote model '%s' failed, continuing: %v"
	logFmtListModelsFailed  = "Listing remote models failed, using defaults: %v"
)

// RemoteOptions configures a RemoteEngine.
type RemoteOptions struct {
	// BaseURL is the API root, e.g. "http://127.0.0.1:8000/v1".
	BaseURL string
	APIKey  string
	// Model is sent when a request names none and is loaded once before
	// the first synthesis when a controller is present.
	Model   string
	Timeout time.Duration
}

// RemoteEngine forwards synthesis to an OpenAI-compatible speech API.
type RemoteEngine struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	controller ModelController
	ensureOnce sync.Once
	log        *logger.Logger
}

// speechRequest is the JSON body of POST {base}/audio/speech. Optional
// fields are omitted so the server applies its own defaults.
type speechRequest struct {
	Input          string   `json:"input"`
	ResponseFormat string   `json:"response_format"`
	Model          string   `json:"model,omitempty"`
	Voice          string   `json:"voice,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
}

// NewRemoteEngine creates a RemoteEngine. controller may be nil.
func NewRemoteEngine(opts RemoteOptions, controller ModelController, log *logger.Logger) *RemoteEngine {
	return &RemoteEngine{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		controller: controller,
		ensureOnce: sync.Once{},
		log:        log,
	}
}

// Name implements core.Engine.
func (e *RemoteEngine) Name() string {
	return RemoteName
}

// Synthesize sends one speech request. A non-success response becomes a
// *core.RemoteError carrying the server's message when it has one.
func (e *RemoteEngine) Synthesize(ctx context.Context, req core.Request) (core.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return core.Result{}, fmt.Errorf("%w: text cannot be empty", core.ErrValidation)
	}

	e.ensureModel(ctx)

	payload := e.buildRequest(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return core.Result{}, fmt.Errorf("failed to marshal speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+apiSpeech, bytes.NewReader(body))
	if err != nil {
		return core.Result{}, fmt.Errorf("failed to create speech request: %w", err)
	}

	setJSONHeaders(httpReq, e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return core.Result{}, fmt.Errorf("%w at %s: %w", core.ErrRemoteUnavailable, e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return core.Result{}, remoteError(resp, errBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Result{}, fmt.Errorf("failed to read remote audio: %w", err)
	}

	if len(audio) == 0 {
		return core.Result{}, core.NewSynthesisError(RemoteName, "remote API returned no audio", core.ErrEmptyAudio)
	}

	return core.Result{Audio: audio, Format: core.Format(payload.ResponseFormat)}, nil
}

// ListVoices returns the default record; the remote API exposes no catalog.
func (e *RemoteEngine) ListVoices(_ context.Context) []core.Voice {
	return []core.Voice{core.DefaultVoiceRecord(RemoteName)}
}

// ListModels asks the controller, falling back to the stub set.
func (e *RemoteEngine) ListModels(ctx context.Context) []core.Model {
	if e.controller == nil {
		return core.DefaultModels()
	}

	models, err := e.controller.ListModels(ctx)
	if err != nil || len(models) == 0 {
		if err != nil && e.log != nil {
			e.log.Warn(logFmtListModelsFailed, err)
		}

		return core.DefaultModels()
	}

	return models
}

// ensureModel runs at most once per engine. Its failure never blocks
// synthesis; the server may already serve the model.
func (e *RemoteEngine) ensureModel(ctx context.Context) {
	if e.controller == nil || e.model == "" {
		return
	}

	e.ensureOnce.Do(func() {
		err := e.controller.EnsureLoaded(ctx, e.model)
		if err != nil && e.log != nil {
			e.log.Warn(logFmtEnsureModelFailed, e.model, err)
		}
	})
}

func (e *RemoteEngine) buildRequest(req core.Request) speechRequest {
	model := req.Model
	if model == "" {
		model = e.model
	}

	voice := ""
	if !req.IsDefaultVoice() {
		voice = req.Voice
	}

	var speed *float64
	if clamped := core.ClampSpeed(req.Speed); clamped != core.DefaultSpeed {
		speed = &clamped
	}

	format := req.Format
	if format == "" {
		format = core.DefaultFormat
	}

	return speechRequest{
		Input:          req.Text,
		ResponseFormat: string(format),
		Model:          model,
		Voice:          voice,
		Speed:          speed,
	}
}

func setJSONHeaders(req *http.Request, apiKey string) {
	req.Header.Set(headerContentType, contentTypeJSON)

	if apiKey != "" {
		req.Header.Set(headerAuthorization, "Bearer "+apiKey)
	}
}

// remoteError extracts a message from the common error body shapes:
// {"error":{"message":...}}, {"error":"..."}, {"detail":"..."} and
// {"message":"..."}. Anything else falls back to the status text.
func remoteError(resp *http.Response, payload []byte) *core.RemoteError {
	message := extractErrorMessage(payload)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &core.RemoteError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    message,
	}
}

func extractErrorMessage(payload []byte) string {
	var body map[string]json.RawMessage

	err := json.Unmarshal(payload, &body)
	if err != nil {
		return ""
	}

	if raw, ok := body["error"]; ok {
		var nested struct {
			Message string `json:"message"`
		}

		if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
			return nested.Message
		}

		var flat string
		if json.Unmarshal(raw, &flat) == nil && flat != "" {
			return flat
		}
	}

	for _, key := range []string{"detail", "message"} {
		var value string
		if json.Unmarshal(body[key], &value) == nil && value != "" {
			return value
		}
	}

	return ""
}
