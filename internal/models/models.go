package models

import "time"

// ModelType selects which vision backend serves a caption request
type ModelType string

const (
	ModelTypeOpenAI ModelType = "openai"
	ModelTypeVLLM   ModelType = "vllm"
	ModelTypeGemini ModelType = "gemini"
	ModelTypeOllama ModelType = "ollama"
)

// Caption type identifiers understood by the prompt builder
const (
	CaptionDescriptive         = "Descriptive"
	CaptionDescriptiveInformal = "Descriptive (Informal)"
	CaptionTrainingPrompt      = "Training Prompt"
	CaptionMidJourney          = "MidJourney"
	CaptionBooruTags           = "Booru tag list"
	CaptionBooruLikeTags       = "Booru-like tag list"
	CaptionArtCritic           = "Art Critic"
	CaptionProductListing      = "Product Listing"
	CaptionSocialMedia         = "Social Media Post"
	CaptionCustom              = "Custom/VQA"

	// LengthAny disables the length clause
	LengthAny = "any"
)

// CaptionConfig describes what kind of caption to ask for
type CaptionConfig struct {
	CaptionType   string   `json:"caption_type" yaml:"caption_type"`
	CaptionLength string   `json:"caption_length" yaml:"caption_length"`
	CustomPrompt  string   `json:"custom_prompt,omitempty" yaml:"custom_prompt,omitempty"`
	CustomName    string   `json:"custom_name,omitempty" yaml:"custom_name,omitempty"`
	ExtraOptions  []string `json:"extra_options,omitempty" yaml:"extra_options,omitempty"`
}

// ModelEndpointConfig carries the credentials and target of one model backend
type ModelEndpointConfig struct {
	ModelType ModelType `json:"model_type"`
	APIKey    string    `json:"-"`
	Model     string    `json:"model"`
	BaseURL   string    `json:"base_url,omitempty"`
}

// CaptionSettings is the explicit, per-call settings object handed to the engine
type CaptionSettings struct {
	Caption  CaptionConfig       `json:"caption"`
	Endpoint ModelEndpointConfig `json:"endpoint"`
}

// CaptionRequest is a single caption generation request
type CaptionRequest struct {
	ImageName string           `json:"image_name"`
	ImagePath string           `json:"image_path,omitempty"`
	Settings  *CaptionSettings `json:"settings"`
}

// CaptionRecord is a persisted caption row
type CaptionRecord struct {
	ImageName string    `json:"image_name"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ViewedMark records that an image has been viewed
type ViewedMark struct {
	ImageName string    `json:"image_name"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// BatchProgress is emitted before each item of a batch run
type BatchProgress struct {
	CurrentIndex int    `json:"current_index"` // 1-based
	Total        int    `json:"total"`
	ImageName    string `json:"image_name"`
}

// FileRecord describes an image that landed in the workspace
type FileRecord struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size"`
	HasCaption bool   `json:"has_caption"`
	MIMEType   string `json:"mime_type,omitempty"`
}
