package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/book-expert/tts-gateway/internal/core"
	openai "github.com/sashabaranov/go-openai"
)

// ErrModelNotServed is returned when a model is neither listed nor loadable.
var ErrModelNotServed = errors.New("model is not served by the remote API")

// ModelController inspects and prepares the models of a remote speech API.
type ModelController interface {
	ListModels(ctx context.Context) ([]core.Model, error)
	EnsureLoaded(ctx context.Context, model string) error
}

// OpenAIModelController lists models through the OpenAI-compatible
// /models endpoint and, when loadPath is set, asks the server to load a
// missing model with POST {base}{loadPath} {"model": id}.
type OpenAIModelController struct {
	client     *openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	loadPath   string
}

type loadModelRequest struct {
	Model string `json:"model"`
}

// NewOpenAIModelController creates a controller for the API at baseURL.
// A nil httpClient selects a client without a timeout.
func NewOpenAIModelController(baseURL, apiKey, loadPath string, httpClient *http.Client) *OpenAIModelController {
	baseURL = strings.TrimRight(baseURL, "/")

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = httpClient

	return &OpenAIModelController{
		client:     openai.NewClientWithConfig(clientConfig),
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		loadPath:   loadPath,
	}
}

// ListModels returns the models the server reports.
func (c *OpenAIModelController) ListModels(ctx context.Context) ([]core.Model, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote models: %w", err)
	}

	models := make([]core.Model, 0, len(list.Models))
	for _, model := range list.Models {
		models = append(models, core.Model{ID: model.ID, Owner: model.OwnedBy})
	}

	return models, nil
}

// EnsureLoaded succeeds when model is already listed, otherwise requests a load.
func (c *OpenAIModelController) EnsureLoaded(ctx context.Context, model string) error {
	models, err := c.ListModels(ctx)
	if err == nil {
		for _, listed := range models {
			if listed.ID == model {
				return nil
			}
		}
	}

	if c.loadPath == "" {
		if err != nil {
			return err
		}

		return fmt.Errorf("%w: %s", ErrModelNotServed, model)
	}

	return c.load(ctx, model)
}

func (c *OpenAIModelController) load(ctx context.Context, model string) error {
	body, err := json.Marshal(loadModelRequest{Model: model})
	if err != nil {
		return fmt.Errorf("failed to marshal load request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.loadPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create load request: %w", err)
	}

	setJSONHeaders(req, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return remoteError(resp, payload)
	}

	return nil
}
