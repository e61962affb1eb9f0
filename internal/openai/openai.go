package openai

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

// DefaultBaseURL is used when the endpoint does not name one
const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAI talks to any OpenAI-compatible chat completions endpoint,
// which covers both the hosted API and self-hosted vLLM servers.
type OpenAI struct {
	client *http.Client
}

// New returns a new OpenAI provider. A nil client uses a default http.Client.
func New(client *http.Client) *OpenAI {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAI{client: client}
}

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Caption sends the image and prompt as a single user message and returns the reply text
func (o *OpenAI) Caption(ctx context.Context, req providers.Request) (string, error) {
	encoded, err := providers.EncodeImage(req.ImagePath)
	if err != nil {
		return "", err
	}

	baseURL := req.Endpoint.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	url := strings.TrimRight(baseURL, "/") + "/chat/completions"

	requestBody, err := json.Marshal(chatRequest{
		Model: req.Endpoint.Model,
		Messages: []message{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: providers.PromptOrDefault(req.Prompt)},
					{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + encoded}},
				},
			},
		},
		MaxTokens: providers.MaxTokensOrDefault(req.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Endpoint.APIKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &providers.HTTPError{Provider: string(req.Endpoint.ModelType), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to read response body: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", providers.ErrMalformedResponse, err)
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", providers.ErrEmptyResponse
	}

	return response.Choices[0].Message.Content, nil
}
