package captioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spacecat/sage/internal/metrics"
	"github.com/spacecat/sage/internal/models"
	"github.com/spacecat/sage/internal/providers"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = time.Second
	DefaultRequestTimeout = 120 * time.Second
)

// CaptionWriter persists accepted captions
type CaptionWriter interface {
	UpsertCaption(ctx context.Context, imageName, caption string) error
}

// Engine runs a single caption request end to end: prompt, model call,
// rejection check, retry and persistence.
type Engine struct {
	workspace      string
	store          CaptionWriter
	clients        map[models.ModelType]providers.Provider
	maxAttempts    int
	retryDelay     time.Duration
	requestTimeout time.Duration
	maxTokens      int
}

// Option customises an Engine
type Option func(*Engine)

// WithRetry sets the attempt ceiling and the delay between attempts
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			e.retryDelay = delay
		}
	}
}

// WithRequestTimeout bounds each model call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) { e.requestTimeout = d }
}

// WithMaxTokens overrides the response token budget
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// NewEngine returns an engine writing into store for images under workspace
func NewEngine(workspace string, store CaptionWriter, clients map[models.ModelType]providers.Provider, opts ...Option) *Engine {
	e := &Engine{
		workspace:      workspace,
		store:          store,
		clients:        clients,
		maxAttempts:    DefaultMaxAttempts,
		retryDelay:     DefaultRetryDelay,
		requestTimeout: DefaultRequestTimeout,
		maxTokens:      providers.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workspace returns the directory request images are resolved against
func (e *Engine) Workspace() string { return e.workspace }

// Generate never returns an error; every failure is reported in the Outcome.
func (e *Engine) Generate(ctx context.Context, req models.CaptionRequest) Outcome {
	imagePath, err := e.validate(req)
	if err != nil {
		slog.Warn("Rejecting caption request", "image", req.ImageName, "err", err)
		return Failure(req.ImageName, KindValidation, err.Error())
	}

	endpoint, err := ResolveEndpoint(req.Settings.Endpoint)
	if err != nil {
		return Failure(req.ImageName, KindConfig, err.Error())
	}
	client, ok := e.clients[endpoint.ModelType]
	if !ok {
		return Failure(req.ImageName, KindConfig, fmt.Sprintf("no client registered for model type %q", endpoint.ModelType))
	}

	call := providers.Request{
		ImagePath: imagePath,
		Prompt:    BuildPrompt(req.Settings.Caption),
		Endpoint:  endpoint,
		MaxTokens: e.maxTokens,
	}
	modelType := string(endpoint.ModelType)

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncRetry()
			if err := sleep(ctx, e.retryDelay); err != nil {
				return e.cancelled(req.ImageName, attempt-1)
			}
		}
		if ctx.Err() != nil {
			return e.cancelled(req.ImageName, attempt-1)
		}

		start := time.Now()
		caption, err := e.call(ctx, client, call)
		if err != nil {
			if ctx.Err() != nil {
				metrics.ObserveCaption(modelType, "cancelled", time.Since(start))
				return e.cancelled(req.ImageName, attempt)
			}
			kind := classify(err)
			metrics.ObserveCaption(modelType, string(kind), time.Since(start))
			slog.Warn("Caption attempt failed",
				"image", req.ImageName,
				"attempt", attempt,
				"max_attempts", e.maxAttempts,
				"kind", kind,
				"err", err)
			if kind == KindMalformed && attempt == e.maxAttempts {
				out := Failure(req.ImageName, KindMalformed, err.Error())
				out.Attempts = attempt
				return out
			}
			lastErr = err
			continue
		}

		if IsRejection(caption) {
			metrics.ObserveCaption(modelType, string(KindRejected), time.Since(start))
			slog.Warn("Model reply classified as rejection", "image", req.ImageName, "attempt", attempt, "reply", truncate(caption, 120))
			lastErr = fmt.Errorf("rejected content: %s", truncate(caption, 200))
			continue
		}
		metrics.ObserveCaption(modelType, "success", time.Since(start))

		caption = strings.TrimSpace(caption)
		if err := e.store.UpsertCaption(context.WithoutCancel(ctx), req.ImageName, caption); err != nil {
			slog.Error("Failed to persist caption", "image", req.ImageName, "err", err)
			out := Failure(req.ImageName, KindStorage, err.Error())
			out.Attempts = attempt
			return out
		}

		slog.Info("Caption generated", "image", req.ImageName, "attempt", attempt, "length", len(caption))
		out := Success(req.ImageName, caption)
		out.Attempts = attempt
		return out
	}

	out := Failure(req.ImageName, KindExhaustedRetries, fmt.Sprintf("failed after %d attempts: %v", e.maxAttempts, lastErr))
	out.Attempts = e.maxAttempts
	return out
}

func (e *Engine) call(ctx context.Context, client providers.Provider, req providers.Request) (string, error) {
	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}
	return client.Caption(ctx, req)
}

func (e *Engine) cancelled(imageName string, attempts int) Outcome {
	slog.Info("Caption request cancelled", "image", imageName)
	out := Cancelled(imageName)
	out.Attempts = attempts
	return out
}

func (e *Engine) validate(req models.CaptionRequest) (string, error) {
	if e.workspace == "" {
		return "", errors.New("no session workspace is set")
	}
	if req.ImageName == "" {
		return "", errors.New("image name is required")
	}
	if !IsPlainName(req.ImageName) {
		return "", fmt.Errorf("image name must be a plain file name: %q", req.ImageName)
	}
	if req.Settings == nil {
		return "", errors.New("settings are required")
	}

	imagePath := req.ImagePath
	if imagePath == "" {
		imagePath = filepath.Join(e.workspace, req.ImageName)
	}
	info, err := os.Stat(imagePath)
	if err != nil {
		return "", fmt.Errorf("image not found: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("image is not a regular file: %s", imagePath)
	}
	return imagePath, nil
}

// IsPlainName reports whether name is a single path element inside the workspace
func IsPlainName(name string) bool {
	return filepath.IsLocal(name) && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// ResolveEndpoint checks that the endpoint carries what its model type needs
// and returns a normalized copy.
func ResolveEndpoint(ep models.ModelEndpointConfig) (models.ModelEndpointConfig, error) {
	if ep.ModelType == "" {
		ep.ModelType = models.ModelTypeOpenAI
	}
	ep.APIKey = strings.Trim(strings.TrimSpace(ep.APIKey), `"`)
	ep.Model = strings.TrimSpace(ep.Model)
	ep.BaseURL = strings.TrimSpace(ep.BaseURL)

	switch ep.ModelType {
	case models.ModelTypeOpenAI, models.ModelTypeGemini:
		if ep.APIKey == "" {
			return ep, fmt.Errorf("%s API key is not configured", ep.ModelType)
		}
	case models.ModelTypeVLLM:
		if ep.APIKey == "" {
			return ep, errors.New("vllm API key is not configured")
		}
		if ep.BaseURL == "" {
			return ep, errors.New("vllm base URL is not configured")
		}
	case models.ModelTypeOllama:
	default:
		return ep, fmt.Errorf("unknown model type %q", ep.ModelType)
	}
	if ep.Model == "" {
		return ep, fmt.Errorf("%s model is not configured", ep.ModelType)
	}
	return ep, nil
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, providers.ErrImageRead):
		return KindImageRead
	case errors.Is(err, providers.ErrMalformedResponse):
		return KindMalformed
	default:
		return KindTransport
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
