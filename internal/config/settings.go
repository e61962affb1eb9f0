package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spacecat/sage/internal/models"
	"gopkg.in/yaml.v3"
)

// Endpoint is the stored configuration of one model backend
type Endpoint struct {
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Interface holds front-end preferences
type Interface struct {
	SeparateViewed bool `yaml:"separate_viewed" json:"separate_viewed"`
}

// Settings is the user settings file
type Settings struct {
	ModelType models.ModelType     `yaml:"model_type" json:"model_type"`
	OpenAI    Endpoint             `yaml:"openai" json:"openai"`
	VLLM      Endpoint             `yaml:"vllm" json:"vllm"`
	Gemini    Endpoint             `yaml:"gemini" json:"gemini"`
	Ollama    Endpoint             `yaml:"ollama" json:"ollama"`
	Prompts   models.CaptionConfig `yaml:"prompts" json:"prompts"`
	Interface Interface            `yaml:"interface" json:"interface"`
}

// DefaultSettings returns the settings used when no file exists
func DefaultSettings() Settings {
	return Settings{
		ModelType: models.ModelTypeOpenAI,
		OpenAI:    Endpoint{Model: "gpt-4o"},
		VLLM:      Endpoint{Model: "llama-joycaption-alpha-two-hf-llava"},
		Gemini:    Endpoint{Model: "gemini-1.5-flash"},
		Ollama:    Endpoint{Model: "llava", BaseURL: "http://localhost:11434"},
		Prompts: models.CaptionConfig{
			CaptionType:   models.CaptionDescriptive,
			CaptionLength: "medium-length",
		},
	}
}

// LoadSettings reads the YAML settings file over the defaults. A missing
// file is not an error. Credentials left empty are filled from the environment.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return s, fmt.Errorf("failed to read settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}

	s.applyEnv()
	return s, nil
}

func (s *Settings) applyEnv() {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&s.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&s.OpenAI.BaseURL, "OPENAI_BASE_URL")
	fill(&s.VLLM.APIKey, "VLLM_API_KEY")
	fill(&s.VLLM.BaseURL, "VLLM_BASE_URL")
	fill(&s.Gemini.APIKey, "GEMINI_API_KEY")
	fill(&s.Ollama.BaseURL, "OLLAMA_URL")

	for _, ep := range []*Endpoint{&s.OpenAI, &s.VLLM, &s.Gemini, &s.Ollama} {
		ep.APIKey = strings.Trim(strings.TrimSpace(ep.APIKey), `"`)
	}
}

// Save writes the settings as YAML, creating the parent directory
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Endpoint returns the endpoint configuration for the active model type
func (s Settings) Endpoint() models.ModelEndpointConfig {
	var ep Endpoint
	switch s.ModelType {
	case models.ModelTypeVLLM:
		ep = s.VLLM
	case models.ModelTypeGemini:
		ep = s.Gemini
	case models.ModelTypeOllama:
		ep = s.Ollama
	default:
		ep = s.OpenAI
	}
	return models.ModelEndpointConfig{
		ModelType: s.ModelType,
		APIKey:    ep.APIKey,
		Model:     ep.Model,
		BaseURL:   ep.BaseURL,
	}
}

// CaptionSettings returns the per-call settings handed to the caption engine
func (s Settings) CaptionSettings() *models.CaptionSettings {
	caption := s.Prompts
	caption.ExtraOptions = append([]string(nil), s.Prompts.ExtraOptions...)
	return &models.CaptionSettings{Caption: caption, Endpoint: s.Endpoint()}
}

// Redacted returns a copy safe to print, with API keys masked
func (s Settings) Redacted() Settings {
	mask := func(k string) string {
		if len(k) <= 4 {
			if k == "" {
				return ""
			}
			return "****"
		}
		return k[:4] + "****"
	}
	s.OpenAI.APIKey = mask(s.OpenAI.APIKey)
	s.VLLM.APIKey = mask(s.VLLM.APIKey)
	s.Gemini.APIKey = mask(s.Gemini.APIKey)
	s.Ollama.APIKey = mask(s.Ollama.APIKey)
	return s
}
