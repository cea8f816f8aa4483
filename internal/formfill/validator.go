package formfill

import (
	"regexp"
	"strings"

	"github.com/ternarybob/petitor/internal/models"
)

// narrativePhrases mark values that read like prose lifted from a resume
// rather than a direct field answer.
var narrativePhrases = []string{
	"as a",
	"i am",
	"during my time",
	"my experience",
	"i have",
	"i worked",
	"my role",
	"in my position",
	"my background",
}

// simpleFieldMaxLen bounds values for single-line text inputs
const simpleFieldMaxLen = 50

var workAuthLabelRegex = regexp.MustCompile(`(?i)work authorization|authorized to work`)

// usStateNames detects a state name leaking into a work-authorization
// answer, which indicates the mapper picked the wrong profile key.
var usStateNames = []string{
	"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado",
	"Connecticut", "Delaware", "Florida", "Georgia", "Hawaii", "Idaho",
	"Illinois", "Indiana", "Iowa", "Kansas", "Kentucky", "Louisiana",
	"Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
	"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada",
	"New Hampshire", "New Jersey", "New Mexico", "New York",
	"North Carolina", "North Dakota", "Ohio", "Oklahoma", "Oregon",
	"Pennsylvania", "Rhode Island", "South Carolina", "South Dakota",
	"Tennessee", "Texas", "Utah", "Vermont", "Virginia", "Washington",
	"West Virginia", "Wisconsin", "Wyoming",
}

// Clean sanitizes a candidate value before it reaches the page. An empty
// return tells the caller to treat the field as needing human input.
func Clean(value, fieldLabel string, category models.FieldCategory) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}

	lower := strings.ToLower(value)

	// Textareas take essays; the narrative and overflow rules only guard
	// single-line inputs.
	if category == models.CategoryTextInput {
		for _, phrase := range narrativePhrases {
			if strings.Contains(lower, phrase) {
				return ""
			}
		}
		if len(value) > simpleFieldMaxLen {
			return ""
		}
	}

	if workAuthLabelRegex.MatchString(fieldLabel) {
		for _, state := range usStateNames {
			if strings.Contains(lower, strings.ToLower(state)) {
				return ""
			}
		}
	}

	return strings.TrimSpace(value)
}
