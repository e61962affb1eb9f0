package captioning

import "strings"

// RejectionPhrases marks a reply as a refusal or error rather than a caption.
// Matching is a case-insensitive substring test, so a genuine caption that
// mentions e.g. "an error message on a screen" is also rejected.
var RejectionPhrases = []string{
	"sorry",
	"i apologize",
	"cannot",
	"unable to",
	"failed to",
	"could not",
	"error",
	"invalid",
	"not able to",
}

// IsRejection reports whether the model reply should be discarded
func IsRejection(caption string) bool {
	if strings.TrimSpace(caption) == "" {
		return true
	}
	lower := strings.ToLower(caption)
	for _, phrase := range RejectionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
