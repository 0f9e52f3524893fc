package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/process"
)

const (
	headerContentType = "Content-Type"
	headerRetryAfter  = "Retry-After"
	// HeaderAudioFormat names the format actually produced, which may
	// differ from the requested one.
	HeaderAudioFormat = "X-Audio-Format"

	contentTypeJSON = "application/json"
)

const (
	logFmtFormatSubstituted = "Requested %s but %s produced %s"
	logFmtSynthesisFailed   = "Synthesis failed: %v"
)

// SpeechRequest is the body of POST /v1/audio/speech.
type SpeechRequest struct {
	Model          string   `json:"model"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice"`
	ResponseFormat string   `json:"response_format"`
	Speed          *float64 `json:"speed"`
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

type voiceEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

type voiceList struct {
	Voices []voiceEntry `json:"voices"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Engine   string `json:"engine"`
	InFlight int64  `json:"in_flight"`
	Capacity int64  `json:"capacity"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var body SpeechRequest

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, fmt.Sprintf("invalid JSON body: %v", err))

		return
	}

	req, err := s.buildRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())

		return
	}

	ctx := r.Context()

	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	result, err := s.engine.Synthesize(ctx, req)
	if err != nil {
		s.writeSynthesisError(w, err)

		return
	}

	if result.Format != req.Format && s.log != nil {
		s.log.Warn(logFmtFormatSubstituted, req.Format, s.engine.Name(), result.Format)
	}

	w.Header().Set(headerContentType, result.Format.MIMEType())
	w.Header().Set(HeaderAudioFormat, string(result.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Audio)
}

// buildRequest validates the body and applies defaults and clamping.
func (s *Server) buildRequest(body SpeechRequest) (core.Request, error) {
	if strings.TrimSpace(body.Input) == "" {
		return core.Request{}, fmt.Errorf("%w: input cannot be empty", core.ErrValidation)
	}

	if utf8.RuneCountInString(body.Input) > s.opts.MaxInputChars {
		return core.Request{}, fmt.Errorf("%w: input exceeds %d characters", core.ErrValidation, s.opts.MaxInputChars)
	}

	if strings.HasPrefix(strings.TrimSpace(body.Voice), "-") {
		return core.Request{}, fmt.Errorf("%w: voice cannot start with '-'", core.ErrValidation)
	}

	format, err := core.ParseFormat(body.ResponseFormat)
	if err != nil {
		return core.Request{}, err
	}

	speed := core.DefaultSpeed
	if body.Speed != nil {
		speed = *body.Speed
	}

	req := core.NewRequest(body.Input, strings.TrimSpace(body.Voice), format, speed)
	req.Model = body.Model

	return req, nil
}

func (s *Server) writeSynthesisError(w http.ResponseWriter, err error) {
	var remoteErr *core.RemoteError

	switch {
	case errors.Is(err, core.ErrAdmissionRefused):
		w.Header().Set(headerRetryAfter, "1")
		writeError(w, http.StatusTooManyRequests, errTypeServerBusy, err.Error())

		return
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())

		return
	}

	if s.log != nil {
		s.log.Error(logFmtSynthesisFailed, err)
	}

	switch {
	case errors.As(err, &remoteErr):
		writeError(w, http.StatusBadGateway, errTypeUpstream, remoteErr.Message)
	case errors.Is(err, core.ErrRemoteUnavailable):
		writeError(w, http.StatusBadGateway, errTypeUpstream, err.Error())
	case errors.Is(err, process.ErrNotFound):
		writeError(w, http.StatusServiceUnavailable, errTypeEngineUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, errTypeSynthesis, err.Error())
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.engine.ListModels(r.Context())

	response := modelList{Object: "list", Data: make([]modelEntry, 0, len(models))}
	for _, model := range models {
		response.Data = append(response.Data, modelEntry{ID: model.ID, Object: "model", OwnedBy: model.Owner})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices := s.engine.ListVoices(r.Context())

	response := voiceList{Voices: make([]voiceEntry, 0, len(voices))}
	for _, voice := range voices {
		response.Voices = append(response.Voices, voiceEntry{
			ID:       voice.ID,
			Name:     voice.DisplayName,
			Language: voice.Language,
			Gender:   voice.Gender,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Engine:   s.engine.Name(),
		InFlight: s.engine.Gate().InFlight(),
		Capacity: s.engine.Gate().Capacity(),
	})
}
