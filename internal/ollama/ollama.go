package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spacecat/sage/internal/providers"
)

// DefaultBaseURL is the local Ollama daemon
const DefaultBaseURL = "http://localhost:11434"

// Ollama is a provider for a local Ollama server running a vision model
type Ollama struct {
	client *http.Client
}

// New returns a new Ollama provider
func New(client *http.Client) *Ollama {
	if client == nil {
		client = &http.Client{}
	}
	return &Ollama{client: client}
}

// Caption calls /api/generate with the image attached
func (o *Ollama) Caption(ctx context.Context, req providers.Request) (string, error) {
	encoded, err := providers.EncodeImage(req.ImagePath)
	if err != nil {
		return "", err
	}

	baseURL := req.Endpoint.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	url := strings.TrimRight(baseURL, "/") + "/api/generate"

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  req.Endpoint.Model,
		"prompt": providers.PromptOrDefault(req.Prompt),
		"images": []string{encoded},
		"stream": false,
		"options": map[string]interface{}{
			"num_predict": providers.MaxTokensOrDefault(req.MaxTokens),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Endpoint.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Endpoint.APIKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &providers.HTTPError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to read response body: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", providers.ErrMalformedResponse, err)
	}
	if response.Response == "" {
		return "", providers.ErrEmptyResponse
	}

	return response.Response, nil
}
