package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	apiSpeech = "/v1/audio/speech"
	apiHealth = "/health"

	headerContentType = "Content-Type"
	headerAudioFormat = "X-Audio-Format"
	contentTypeJSON   = "application/json"
)

type speechRequest struct {
	Model          string  `json:"model,omitempty"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// speakHTTP posts to the front door and reports the format the server
// actually produced.
func speakHTTP(ctx context.Context, flags clientFlags) (speech, error) {
	body, err := json.Marshal(speechRequest{
		Model:          flags.model,
		Input:          flags.text,
		Voice:          flags.voice,
		ResponseFormat: flags.format,
		Speed:          flags.speed,
	})
	if err != nil {
		return speech{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(flags.url, "/")+apiSpeech, bytes.NewReader(body))
	if err != nil {
		return speech{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return speech{}, fmt.Errorf("failed to reach gateway at %s: %w", flags.url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return speech{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse

		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return speech{}, fmt.Errorf("gateway returned %s (%s): %s", resp.Status, apiErr.Error.Type, apiErr.Error.Message)
		}

		return speech{}, fmt.Errorf("gateway returned %s", resp.Status)
	}

	format := resp.Header.Get(headerAudioFormat)
	if format == "" {
		format = flags.format
	}

	return speech{audio: payload, format: format}, nil
}

// checkHealth returns the raw health document.
func checkHealth(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+apiHealth, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("health check failed for gateway at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return strings.TrimSpace(string(body)), nil
}
