package content

import "strings"

const minLines = 3

var errorIndicators = []string{
	"i apologize",
	"i'm sorry",
	"i cannot",
	"i'm unable",
	"error",
	"failed",
}

// ValidateContent rejects blank text, text under minWords words or minLines
// lines, and text containing refusal or error phrases in any casing.
func ValidateContent(text string, minWords int) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if len(strings.Fields(text)) < minWords {
		return false
	}
	if len(strings.Split(text, "\n")) < minLines {
		return false
	}

	lower := strings.ToLower(text)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}
	return true
}
