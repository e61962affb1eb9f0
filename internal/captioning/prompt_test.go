package captioning

import (
	"strings"
	"testing"

	"github.com/spacecat/sage/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		config   models.CaptionConfig
		expected string
	}{
		{
			name:     "descriptive any",
			config:   models.CaptionConfig{CaptionType: models.CaptionDescriptive, CaptionLength: models.LengthAny},
			expected: "Write a descriptive caption for this image in a formal tone.",
		},
		{
			name:     "descriptive unset length",
			config:   models.CaptionConfig{CaptionType: models.CaptionDescriptive},
			expected: "Write a descriptive caption for this image in a formal tone.",
		},
		{
			name:     "qualitative length inserted verbatim",
			config:   models.CaptionConfig{CaptionType: models.CaptionDescriptive, CaptionLength: "short"},
			expected: "Write a short descriptive caption for this image in a formal tone.",
		},
		{
			name:     "informal word count",
			config:   models.CaptionConfig{CaptionType: models.CaptionDescriptiveInformal, CaptionLength: "20"},
			expected: "Write a descriptive caption for this image in a casual tone within 20 words.",
		},
		{
			name:     "unknown type falls back to formal descriptive",
			config:   models.CaptionConfig{CaptionType: "Haiku", CaptionLength: "long"},
			expected: "Write a long descriptive caption for this image in a formal tone.",
		},
		{
			name:     "custom prompt governs",
			config:   models.CaptionConfig{CaptionType: models.CaptionCustom, CaptionLength: "10", CustomPrompt: "What colour is the car?"},
			expected: "What colour is the car?",
		},
		{
			name: "extra options with name",
			config: models.CaptionConfig{
				CaptionType:   models.CaptionTrainingPrompt,
				CaptionLength: models.LengthAny,
				CustomName:    "Mia",
				ExtraOptions:  []string{"Refer to the person as {name}.", "Do not mention the lighting."},
			},
			expected: "Write a stable diffusion prompt for this image.\n\nAdditional requirements:\n- Refer to the person as Mia.\n- Do not mention the lighting.",
		},
		{
			name: "name token left alone without a name",
			config: models.CaptionConfig{
				CaptionType:  models.CaptionMidJourney,
				ExtraOptions: []string{"Call them {name}."},
			},
			expected: "Write a MidJourney prompt for this image.\n\nAdditional requirements:\n- Call them {name}.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPrompt(tt.config)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestBuildPromptWordCountAllTypes(t *testing.T) {
	for _, captionType := range CaptionTypes() {
		if captionType == models.CaptionCustom {
			continue
		}
		t.Run(captionType, func(t *testing.T) {
			got := BuildPrompt(models.CaptionConfig{CaptionType: captionType, CaptionLength: "42"})
			if !strings.Contains(got, "within 42 words") {
				t.Errorf("Expected word count clause in %q", got)
			}
		})
	}
}

func TestBuildPromptQualitativeAllTypes(t *testing.T) {
	for _, captionType := range CaptionTypes() {
		if captionType == models.CaptionCustom {
			continue
		}
		t.Run(captionType, func(t *testing.T) {
			got := BuildPrompt(models.CaptionConfig{CaptionType: captionType, CaptionLength: "medium-length"})
			if !strings.Contains(got, "medium-length") {
				t.Errorf("Expected length token in %q", got)
			}
			if strings.Contains(got, "within") {
				t.Errorf("Unexpected word count clause in %q", got)
			}
		})
	}
}
