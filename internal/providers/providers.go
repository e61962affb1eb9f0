package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/spacecat/sage/internal/models"
)

// DefaultMaxTokens bounds the length of a generated caption
const DefaultMaxTokens = 500

// DefaultPrompt is sent when the caller supplies an empty prompt
const DefaultPrompt = "Generate a detailed description of this image."

// Request is a single vision call against one model endpoint
type Request struct {
	ImagePath string
	Prompt    string
	Endpoint  models.ModelEndpointConfig
	MaxTokens int
}

// Provider captions a single image
type Provider interface {
	Caption(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Caption(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var (
	// ErrImageRead is returned when the image is missing, unreadable or empty
	ErrImageRead = errors.New("image read failed")
	// ErrEmptyResponse is returned when the model answered without any content
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrMalformedResponse is returned when the response body could not be decoded
	ErrMalformedResponse = errors.New("malformed response from model")
)

// HTTPError is a non-2xx reply from a model endpoint
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: received non-200 status code: %d - %s", e.Provider, e.StatusCode, e.Body)
}

// ReadImage loads the image bytes, rejecting missing or empty files
func ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageRead, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrImageRead, path)
	}
	return data, nil
}

// EncodeImage reads the image and returns it base64 encoded
func EncodeImage(path string) (string, error) {
	data, err := ReadImage(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// PromptOrDefault substitutes DefaultPrompt for an empty prompt
func PromptOrDefault(prompt string) string {
	if prompt == "" {
		return DefaultPrompt
	}
	return prompt
}

// MaxTokensOrDefault substitutes DefaultMaxTokens for a non-positive limit
func MaxTokensOrDefault(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}
