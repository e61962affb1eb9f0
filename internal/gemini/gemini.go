package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/generative-ai-go/genai"
	"github.com/spacecat/sage/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini vision models
type Gemini struct{}

// New returns a new Gemini provider
func New() *Gemini {
	return &Gemini{}
}

// Caption sends the image inline with the prompt and returns the first text part
func (g *Gemini) Caption(ctx context.Context, req providers.Request) (string, error) {
	data, err := providers.ReadImage(req.ImagePath)
	if err != nil {
		return "", err
	}

	opts := []option.ClientOption{option.WithAPIKey(req.Endpoint.APIKey)}
	if req.Endpoint.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(req.Endpoint.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.Endpoint.Model)
	model.SetMaxOutputTokens(int32(providers.MaxTokensOrDefault(req.MaxTokens)))

	resp, err := model.GenerateContent(ctx,
		genai.Text(providers.PromptOrDefault(req.Prompt)),
		genai.ImageData(imageFormat(data), data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return responseText(resp)
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", providers.ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", providers.ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text parts in candidate", providers.ErrMalformedResponse)
	}

	return sb.String(), nil
}

// imageFormat returns the subtype genai.ImageData expects, e.g. "png"
func imageFormat(data []byte) string {
	ct, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	if sub, ok := strings.CutPrefix(ct, "image/"); ok {
		return sub
	}
	return "jpeg"
}
