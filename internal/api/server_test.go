// Package api_test tests the HTTP front door.
package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/api"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/gate"
	"github.com/book-expert/tts-gateway/internal/process"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deadBeef = []byte{0xDE, 0xAD, 0xBE, 0xEF}

// stubEngine always answers in wav, like the local engines.
type stubEngine struct {
	mu       sync.Mutex
	requests []core.Request
	err      error
	started  chan struct{}
	release  chan struct{}
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Synthesize(_ context.Context, req core.Request) (core.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.started != nil {
		s.started <- struct{}{}
	}

	if s.release != nil {
		<-s.release
	}

	if s.err != nil {
		return core.Result{}, s.err
	}

	return core.Result{Audio: deadBeef, Format: core.FormatWAV}, nil
}

func (s *stubEngine) ListVoices(_ context.Context) []core.Voice {
	return []core.Voice{{ID: "af", DisplayName: "Afrikaans", Language: "af", Gender: "male"}}
}

func (s *stubEngine) ListModels(_ context.Context) []core.Model {
	return core.DefaultModels()
}

func (s *stubEngine) lastRequest(t *testing.T) core.Request {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	require.NotEmpty(t, s.requests)

	return s.requests[len(s.requests)-1]
}

func newTestServer(t *testing.T, engine core.Engine, capacity int) *httptest.Server {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "api-test.log")
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics, err := gate.NewMetrics(registry)
	require.NoError(t, err)

	admission, err := gate.New(capacity, metrics)
	require.NoError(t, err)

	server := api.NewServer(
		gate.Guard(engine, admission),
		registry,
		api.Options{MaxInputChars: 20, RequestTimeout: 5 * time.Second, MaxBodyBytes: 0},
		testLogger,
	)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return httpServer
}

func postSpeech(t *testing.T, baseURL, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodPost,
		baseURL+"/v1/audio/speech",
		strings.NewReader(body),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func decodeError(t *testing.T, resp *http.Response) apiError {
	t.Helper()

	var body apiError

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, resp.StatusCode, body.Error.Code)

	return body
}

func TestSpeech_ReportsActualFormat(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	server := newTestServer(t, engine, 2)

	resp := postSpeech(t, server.URL, `{"model":"tts-1","input":"Hello","voice":"default","response_format":"mp3"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	audio, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, deadBeef, audio)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Equal(t, "wav", resp.Header.Get(api.HeaderAudioFormat))

	req := engine.lastRequest(t)
	assert.Equal(t, core.FormatMP3, req.Format)
	assert.Equal(t, "tts-1", req.Model)
	assert.InDelta(t, 1.0, req.Speed, 1e-9)
	assert.True(t, req.IsDefaultVoice())
}

func TestSpeech_ClampsSpeed(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	server := newTestServer(t, engine, 2)

	resp := postSpeech(t, server.URL, `{"input":"Hello","speed":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, core.MaxSpeed, engine.lastRequest(t).Speed, 1e-9)

	resp = postSpeech(t, server.URL, `{"input":"Hello","speed":0.01}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, core.MinSpeed, engine.lastRequest(t).Speed, 1e-9)

	resp = postSpeech(t, server.URL, `{"input":"Hello","speed":0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, core.MinSpeed, engine.lastRequest(t).Speed, 1e-9)

	resp = postSpeech(t, server.URL, `{"input":"Hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, core.DefaultSpeed, engine.lastRequest(t).Speed, 1e-9)
}

func TestSpeech_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"input":`},
		{name: "empty input", body: `{"input":"   "}`},
		{name: "missing input", body: `{"voice":"af"}`},
		{name: "too long", body: `{"input":"` + strings.Repeat("é", 21) + `"}`},
		{name: "unknown format", body: `{"input":"Hello","response_format":"ogg"}`},
		{name: "flag-like voice", body: `{"input":"Hello","voice":"--stdout"}`},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			engine := &stubEngine{}
			server := newTestServer(t, engine, 2)

			resp := postSpeech(t, server.URL, testCase.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request_error", decodeError(t, resp).Error.Type)
			assert.Empty(t, engine.requests)
		})
	}
}

func TestSpeech_InputLimitCountsCharacters(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubEngine{}, 2)

	resp := postSpeech(t, server.URL, `{"input":"`+strings.Repeat("é", 20)+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSpeech_RefusalIsRetryable(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	server := newTestServer(t, engine, 1)

	first := make(chan int, 1)

	go func() {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost,
			server.URL+"/v1/audio/speech", strings.NewReader(`{"input":"first"}`))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			first <- 0

			return
		}

		_ = resp.Body.Close()
		first <- resp.StatusCode
	}()

	<-engine.started

	resp := postSpeech(t, server.URL, `{"input":"second"}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, "server_busy", decodeError(t, resp).Error.Type)

	close(engine.release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestSpeech_FailureMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantType    string
		wantMessage string
	}{
		{
			name:        "remote failure",
			err:         &core.RemoteError{StatusCode: 503, Status: "503 Service Unavailable", Message: "model busy"},
			wantStatus:  http.StatusBadGateway,
			wantType:    "upstream_error",
			wantMessage: "model busy",
		},
		{
			name:        "remote unreachable",
			err:         core.ErrRemoteUnavailable,
			wantStatus:  http.StatusBadGateway,
			wantType:    "upstream_error",
			wantMessage: "unreachable",
		},
		{
			name:        "process failure",
			err:         core.NewSynthesisError("espeak", "speech tool failed", process.NonZeroExit("espeak-ng", 1, "bad voice", nil)),
			wantStatus:  http.StatusInternalServerError,
			wantType:    "synthesis_error",
			wantMessage: "bad voice",
		},
		{
			name:        "tool missing",
			err:         core.NewSynthesisError("espeak", "speech tool failed", process.NotFound("espeak", nil)),
			wantStatus:  http.StatusServiceUnavailable,
			wantType:    "engine_unavailable",
			wantMessage: "program not found",
		},
		{
			name:        "unclassified",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantType:    "synthesis_error",
			wantMessage: "boom",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, &stubEngine{err: testCase.err}, 1)

			resp := postSpeech(t, server.URL, `{"input":"Hello"}`)
			require.Equal(t, testCase.wantStatus, resp.StatusCode)

			body := decodeError(t, resp)
			assert.Equal(t, testCase.wantType, body.Error.Type)
			assert.Contains(t, body.Error.Message, testCase.wantMessage)
		})
	}
}

func TestCatalogEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubEngine{}, 3)

	var models struct {
		Object string `json:"object"`
		Data   []struct {
			ID      string `json:"id"`
			Object  string `json:"object"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}

	require.NoError(t, json.NewDecoder(get(t, server.URL+"/v1/models").Body).Decode(&models))
	assert.Equal(t, "list", models.Object)
	require.Len(t, models.Data, 2)
	assert.Equal(t, "tts-1", models.Data[0].ID)
	assert.Equal(t, "local", models.Data[0].OwnedBy)

	var voices struct {
		Voices []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"voices"`
	}

	require.NoError(t, json.NewDecoder(get(t, server.URL+"/v1/audio/voices").Body).Decode(&voices))
	require.Len(t, voices.Voices, 1)
	assert.Equal(t, "Afrikaans", voices.Voices[0].Name)

	var health struct {
		Status   string `json:"status"`
		Engine   string `json:"engine"`
		InFlight int64  `json:"in_flight"`
		Capacity int64  `json:"capacity"`
	}

	require.NoError(t, json.NewDecoder(get(t, server.URL+"/health").Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "stub", health.Engine)
	assert.Equal(t, int64(3), health.Capacity)
	assert.Equal(t, int64(0), health.InFlight)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubEngine{}, 1)

	require.Equal(t, http.StatusOK, postSpeech(t, server.URL, `{"input":"Hello"}`).StatusCode)

	resp := get(t, server.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	exposition, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(exposition), "tts_gateway_synthesis_duration_seconds")
	assert.Contains(t, string(exposition), "tts_gateway_admission_refused_total")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "api-serve-test.log")
	require.NoError(t, err)

	admission, err := gate.New(1, nil)
	require.NoError(t, err)

	server := api.NewServer(gate.Guard(&stubEngine{}, admission), nil, api.Options{}, testLogger)

	var listenConfig net.ListenConfig

	ln, err := listenConfig.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Serve(ctx, ln)
	}()

	resp := get(t, "http://"+ln.Addr().String()+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, "http://"+ln.Addr().String()+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "metrics are disabled without a gatherer")

	cancel()
	require.NoError(t, <-done)
}
