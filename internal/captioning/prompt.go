package captioning

import (
	"fmt"
	"strings"

	"github.com/spacecat/sage/internal/models"
)

// promptTemplate holds the three phrasings of one caption type.
// words and length take a single %s argument.
type promptTemplate struct {
	base   string
	words  string
	length string
}

var promptTemplates = map[string]promptTemplate{
	models.CaptionDescriptive: {
		base:   "Write a descriptive caption for this image in a formal tone.",
		words:  "Write a descriptive caption for this image in a formal tone within %s words.",
		length: "Write a %s descriptive caption for this image in a formal tone.",
	},
	models.CaptionDescriptiveInformal: {
		base:   "Write a descriptive caption for this image in a casual tone.",
		words:  "Write a descriptive caption for this image in a casual tone within %s words.",
		length: "Write a %s descriptive caption for this image in a casual tone.",
	},
	models.CaptionTrainingPrompt: {
		base:   "Write a stable diffusion prompt for this image.",
		words:  "Write a stable diffusion prompt for this image within %s words.",
		length: "Write a %s stable diffusion prompt for this image.",
	},
	models.CaptionMidJourney: {
		base:   "Write a MidJourney prompt for this image.",
		words:  "Write a MidJourney prompt for this image within %s words.",
		length: "Write a %s MidJourney prompt for this image.",
	},
	models.CaptionBooruTags: {
		base:   "Write a list of Booru tags for this image.",
		words:  "Write a list of Booru tags for this image within %s words.",
		length: "Write a %s list of Booru tags for this image.",
	},
	models.CaptionBooruLikeTags: {
		base:   "Write a list of Booru-like tags for this image.",
		words:  "Write a list of Booru-like tags for this image within %s words.",
		length: "Write a %s list of Booru-like tags for this image.",
	},
	models.CaptionArtCritic: {
		base:   "Analyze this image like an art critic would with information about its composition, style, symbolism, the use of color, light, any artistic movement it might belong to, etc.",
		words:  "Analyze this image like an art critic would with information about its composition, style, symbolism, the use of color, light, any artistic movement it might belong to, etc. Keep it within %s words.",
		length: "Write a %s art critique of this image covering its composition, style, symbolism, use of color and light, and any artistic movement it might belong to.",
	},
	models.CaptionProductListing: {
		base:   "Write a caption for this image as though it were a product listing.",
		words:  "Write a caption for this image as though it were a product listing. Keep it within %s words.",
		length: "Write a %s caption for this image as though it were a product listing.",
	},
	models.CaptionSocialMedia: {
		base:   "Write a caption for this image as if it were being used for a social media post.",
		words:  "Write a caption for this image as if it were being used for a social media post. Keep it within %s words.",
		length: "Write a %s caption for this image as if it were being used for a social media post.",
	},
}

const extraOptionsHeader = "\n\nAdditional requirements:\n"

// CaptionTypes lists the caption types with built-in templates
func CaptionTypes() []string {
	return []string{
		models.CaptionDescriptive,
		models.CaptionDescriptiveInformal,
		models.CaptionTrainingPrompt,
		models.CaptionMidJourney,
		models.CaptionBooruTags,
		models.CaptionBooruLikeTags,
		models.CaptionArtCritic,
		models.CaptionProductListing,
		models.CaptionSocialMedia,
		models.CaptionCustom,
	}
}

// BuildPrompt turns a caption config into the instruction sent to the model.
// Unknown caption types fall back to Descriptive.
func BuildPrompt(cfg models.CaptionConfig) string {
	var prompt string
	if cfg.CaptionType == models.CaptionCustom {
		prompt = cfg.CustomPrompt
	} else {
		tmpl, ok := promptTemplates[cfg.CaptionType]
		if !ok {
			tmpl = promptTemplates[models.CaptionDescriptive]
		}
		prompt = tmpl.render(cfg.CaptionLength)
	}

	if len(cfg.ExtraOptions) > 0 {
		bullets := make([]string, 0, len(cfg.ExtraOptions))
		for _, opt := range cfg.ExtraOptions {
			if cfg.CustomName != "" {
				opt = strings.ReplaceAll(opt, "{name}", cfg.CustomName)
			}
			bullets = append(bullets, "- "+opt)
		}
		prompt += extraOptionsHeader + strings.Join(bullets, "\n")
	}

	return prompt
}

func (t promptTemplate) render(length string) string {
	switch {
	case length == "" || length == models.LengthAny:
		return t.base
	case isDigits(length):
		return fmt.Sprintf(t.words, length)
	default:
		return fmt.Sprintf(t.length, length)
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
