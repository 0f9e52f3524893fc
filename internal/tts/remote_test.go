package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLoadFailed = errors.New("load failed")

type countingController struct {
	ensureCalls atomic.Int32
	ensureErr   error
	models      []core.Model
	listErr     error
}

func (c *countingController) ListModels(_ context.Context) ([]core.Model, error) {
	return c.models, c.listErr
}

func (c *countingController) EnsureLoaded(_ context.Context, _ string) error {
	c.ensureCalls.Add(1)

	return c.ensureErr
}

func newRemote(t *testing.T, baseURL string, controller tts.ModelController) *tts.RemoteEngine {
	t.Helper()

	opts := tts.RemoteOptions{
		BaseURL: baseURL,
		APIKey:  "secret",
		Model:   "kokoro",
		Timeout: 5 * time.Second,
	}

	return tts.NewRemoteEngine(opts, controller, newTestLogger(t))
}

func decodeBody(t *testing.T, request *http.Request) map[string]any {
	t.Helper()

	var body map[string]any

	require.NoError(t, json.NewDecoder(request.Body).Decode(&body))

	return body
}

func TestRemoteEngine_MapsRequestFields(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 2)

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/v1/audio/speech", request.URL.Path)
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", request.Header.Get("Authorization"))

		bodies <- decodeBody(t, request)

		_, _ = writer.Write(deadBeef)
	}))
	defer server.Close()

	engine := newRemote(t, server.URL+"/v1/", nil)

	result, err := engine.Synthesize(context.Background(), core.NewRequest("Hello", "default", core.FormatMP3, 1.0))
	require.NoError(t, err)
	assert.Equal(t, deadBeef, result.Audio)
	assert.Equal(t, core.FormatMP3, result.Format)

	minimal := <-bodies
	assert.Equal(t, map[string]any{"input": "Hello", "response_format": "mp3", "model": "kokoro"}, minimal)

	req := core.NewRequest("Hello", "af_bella", core.FormatOpus, 1.5)
	req.Model = "tts-1-hd"

	_, err = engine.Synthesize(context.Background(), req)
	require.NoError(t, err)

	full := <-bodies
	assert.Equal(t, "af_bella", full["voice"])
	assert.Equal(t, "tts-1-hd", full["model"])
	assert.Equal(t, "opus", full["response_format"])
	assert.InDelta(t, 1.5, full["speed"], 1e-9)
}

func TestRemoteEngine_ReportsFormatItSent(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 1)

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		bodies <- decodeBody(t, request)

		_, _ = writer.Write(deadBeef)
	}))
	defer server.Close()

	engine := newRemote(t, server.URL, nil)

	result, err := engine.Synthesize(context.Background(), core.Request{
		Text:   "Hello",
		Voice:  "",
		Format: "",
		Speed:  0,
		Model:  "",
	})
	require.NoError(t, err)

	body := <-bodies
	assert.Equal(t, "mp3", body["response_format"])
	assert.InDelta(t, core.MinSpeed, body["speed"], 1e-9)
	assert.Equal(t, core.DefaultFormat, result.Format)
}

func TestRemoteEngine_ErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{name: "openai shape", status: http.StatusBadRequest, body: `{"error":{"message":"voice not found","type":"invalid_request_error"}}`, wantMessage: "voice not found"},
		{name: "flat error", status: http.StatusInternalServerError, body: `{"error":"model crashed"}`, wantMessage: "model crashed"},
		{name: "detail", status: http.StatusUnprocessableEntity, body: `{"detail":"input too long"}`, wantMessage: "input too long"},
		{name: "message", status: http.StatusServiceUnavailable, body: `{"message":"warming up"}`, wantMessage: "warming up"},
		{name: "plain text", status: http.StatusBadGateway, body: `<html>oops</html>`, wantMessage: "Bad Gateway"},
		{name: "empty body", status: http.StatusTooManyRequests, body: ``, wantMessage: "Too Many Requests"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				_, _ = io.Copy(io.Discard, request.Body)
				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.body))
			}))
			defer server.Close()

			_, err := newRemote(t, server.URL, nil).Synthesize(
				context.Background(),
				core.NewRequest("Hello", "", core.FormatWAV, 1.0),
			)

			var remoteErr *core.RemoteError
			require.ErrorAs(t, err, &remoteErr)
			assert.Equal(t, testCase.status, remoteErr.StatusCode)
			assert.Equal(t, testCase.wantMessage, remoteErr.Message)
		})
	}
}

func TestRemoteEngine_EnsureModelRunsOnceAndIsSwallowed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write(deadBeef)
	}))
	defer server.Close()

	controller := &countingController{ensureErr: errLoadFailed, models: nil, listErr: nil}
	engine := newRemote(t, server.URL, controller)

	for range 3 {
		_, err := engine.Synthesize(context.Background(), core.NewRequest("Hello", "", core.FormatWAV, 1.0))
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), controller.ensureCalls.Load())
}

func TestRemoteEngine_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	_, err := newRemote(t, baseURL, nil).Synthesize(context.Background(), core.NewRequest("Hello", "", core.FormatWAV, 1.0))
	require.ErrorIs(t, err, core.ErrRemoteUnavailable)
}

func TestRemoteEngine_EmptyAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := newRemote(t, server.URL, nil).Synthesize(context.Background(), core.NewRequest("Hello", "", core.FormatWAV, 1.0))
	require.ErrorIs(t, err, core.ErrEmptyAudio)
}

func TestRemoteEngine_Catalogs(t *testing.T) {
	t.Parallel()

	engine := newRemote(t, "http://127.0.0.1:1", nil)

	voiceList := engine.ListVoices(context.Background())
	require.Len(t, voiceList, 1)
	assert.Equal(t, core.DefaultVoice, voiceList[0].ID)
	assert.Equal(t, core.DefaultModels(), engine.ListModels(context.Background()))

	served := []core.Model{{ID: "kokoro", Owner: "remote"}}
	withController := newRemote(t, "http://127.0.0.1:1", &countingController{ensureErr: nil, models: served, listErr: nil})
	assert.Equal(t, served, withController.ListModels(context.Background()))

	failing := newRemote(t, "http://127.0.0.1:1", &countingController{ensureErr: nil, models: nil, listErr: errLoadFailed})
	assert.Equal(t, core.DefaultModels(), failing.ListModels(context.Background()))
}

func modelsServer(t *testing.T, loads *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"object":"list","data":[{"id":"kokoro","object":"model","created":0,"owned_by":"remote"}]}`))
	})
	mux.HandleFunc("POST /v1/models/load", func(writer http.ResponseWriter, request *http.Request) {
		body := decodeBody(t, request)
		assert.Equal(t, "piper", body["model"])
		loads.Add(1)
		writer.WriteHeader(http.StatusOK)
	})

	return httptest.NewServer(mux)
}

func TestOpenAIModelController(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32

	server := modelsServer(t, &loads)
	defer server.Close()

	controller := tts.NewOpenAIModelController(server.URL+"/v1", "secret", "/models/load", server.Client())

	models, err := controller.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Model{{ID: "kokoro", Owner: "remote"}}, models)

	require.NoError(t, controller.EnsureLoaded(context.Background(), "kokoro"))
	assert.Equal(t, int32(0), loads.Load(), "listed model needs no load")

	require.NoError(t, controller.EnsureLoaded(context.Background(), "piper"))
	assert.Equal(t, int32(1), loads.Load())

	listOnly := tts.NewOpenAIModelController(server.URL+"/v1", "secret", "", nil)
	require.ErrorIs(t, listOnly.EnsureLoaded(context.Background(), "piper"), tts.ErrModelNotServed)
}
