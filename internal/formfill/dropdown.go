package formfill

import (
	"strings"
)

// stopWords are ignored when token-matching option text
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "with": true,
	"-": true, "/": true, "(": true, ")": true,
}

// fuzzyMatchThreshold is the minimum score MapDropdownValue accepts
const fuzzyMatchThreshold = 0.7

// canonicalDropdownValues maps a profile value to the option spellings
// ATS vendors actually use, per field type.
var canonicalDropdownValues = map[string]map[string][]string{
	"gender": {
		"male":       {"Male", "M", "Man", "Male (He/Him)"},
		"female":     {"Female", "F", "Woman", "Female (She/Her)"},
		"non-binary": {"Non-binary", "Non-Binary", "Non-Binary - They/Them", "Nonbinary", "Other"},
	},
	"race_ethnicity": {
		"asian":            {"Asian", "Asian (Not Hispanic or Latino)", "Asian or Asian American"},
		"black":            {"Black or African American", "Black", "African American"},
		"hispanic":         {"Hispanic or Latino", "Hispanic", "Latino", "Latinx"},
		"white":            {"White", "White (Not Hispanic or Latino)", "Caucasian"},
		"native american":  {"American Indian or Alaska Native", "Native American"},
		"pacific islander": {"Native Hawaiian or Other Pacific Islander", "Pacific Islander"},
		"two or more":      {"Two or More Races", "Two or more races", "Multiracial"},
	},
	"work_authorization": {
		"yes": {"Yes", "Yes, I am authorized to work", "Authorized"},
		"no":  {"No", "No, I am not authorized to work", "Not authorized"},
	},
	"require_sponsorship": {
		"yes": {"Yes", "Yes, I require sponsorship", "Will require sponsorship"},
		"no":  {"No", "No, I do not require sponsorship", "Will not require sponsorship"},
	},
	"degree": {
		"bachelor's": {"Bachelor's", "Bachelors", "Bachelor's Degree", "Bachelor of Science", "Bachelor of Arts", "BS", "BA"},
		"master's":   {"Master's", "Masters", "Master's Degree", "Master of Science", "Master of Arts", "MS", "MA"},
		"doctorate":  {"Doctorate", "PhD", "Ph.D.", "Doctor of Philosophy", "Doctoral"},
		"associate":  {"Associate", "Associate's", "Associate's Degree", "Associate Degree"},
	},
	"veteran_status": {
		"yes": {"Veteran", "I am a veteran", "Protected veteran", "I identify as one or more of the classifications of a protected veteran"},
		"no":  {"Not a veteran", "Non-veteran", "I am not a protected veteran", "No, I am not a protected veteran"},
	},
	"disability_status": {
		"yes": {"Yes", "Yes, I have a disability", "Yes, I have a disability, or have had one in the past"},
		"no":  {"No", "No, I do not have a disability", "No, I do not have a disability and have not had one in the past"},
	},
	"willing_to_relocate": {
		"yes": {"Yes", "Yes, I am willing to relocate", "Open to relocation"},
		"no":  {"No", "No, I am not willing to relocate", "Not open to relocation"},
	},
}

// degreeNormalizations map long-form degree names to the short forms
// dropdown options commonly use, and vice versa.
var degreeNormalizations = map[string]string{
	"bachelor of science":  "bachelor's",
	"bachelor of arts":     "bachelor's",
	"bachelor of":          "bachelor's",
	"bachelors":            "bachelor's",
	"bs":                   "bachelor's",
	"ba":                   "bachelor's",
	"b.s.":                 "bachelor's",
	"b.a.":                 "bachelor's",
	"master of science":    "master's",
	"master of arts":       "master's",
	"master of":            "master's",
	"masters":              "master's",
	"ms":                   "master's",
	"ma":                   "master's",
	"m.s.":                 "master's",
	"m.a.":                 "master's",
	"mba":                  "master's",
	"doctor of philosophy": "doctorate",
	"phd":                  "doctorate",
	"ph.d.":                "doctorate",
	"ph.d":                 "doctorate",
	"doctoral":             "doctorate",
	"associate of":         "associate",
	"associates":           "associate",
	"high school diploma":  "high school",
	"ged":                  "high school",
}

// NormalizeDegree reduces a degree string to its canonical short form.
// "Master of Science in Computer Science" normalizes to "master's".
func NormalizeDegree(degree string) string {
	lower := strings.ToLower(strings.TrimSpace(degree))
	if lower == "" {
		return ""
	}

	if canonical, ok := degreeNormalizations[lower]; ok {
		return canonical
	}

	// Longest prefix wins so "master of science in X" maps before "ms"
	best := ""
	bestLen := 0
	for long, canonical := range degreeNormalizations {
		if strings.Contains(lower, long) && len(long) > bestLen {
			best = canonical
			bestLen = len(long)
		}
	}
	if best != "" {
		return best
	}

	return lower
}

// MapDropdownValue resolves a profile value to one of the control's
// available options. fieldType selects the canonical table ("gender",
// "degree", ...); pass empty to skip straight to fuzzy matching.
// Returns the chosen option text, its score, and whether a match cleared
// the threshold.
func MapDropdownValue(value, fieldType string, availableOptions []string) (string, float64, bool) {
	if value == "" || len(availableOptions) == 0 {
		return "", 0, false
	}

	valueLower := strings.ToLower(strings.TrimSpace(value))

	if table, ok := canonicalDropdownValues[fieldType]; ok {
		key := valueLower
		if fieldType == "degree" {
			key = NormalizeDegree(value)
		}
		if variants, ok := table[key]; ok {
			// Exact variant match first, then substring
			for _, variant := range variants {
				for _, option := range availableOptions {
					if strings.EqualFold(option, variant) {
						return option, 1.0, true
					}
				}
			}
			for _, variant := range variants {
				variantLower := strings.ToLower(variant)
				for _, option := range availableOptions {
					optionLower := strings.ToLower(option)
					if strings.Contains(optionLower, variantLower) || strings.Contains(variantLower, optionLower) {
						return option, 0.95, true
					}
				}
			}
		}
	}

	// Fuzzy fallback over every option
	bestOption := ""
	bestScore := 0.0
	for _, option := range availableOptions {
		score := FuzzyScore(valueLower, strings.ToLower(option))
		if score > bestScore {
			bestScore = score
			bestOption = option
		}
	}

	if bestScore >= fuzzyMatchThreshold {
		return bestOption, bestScore, true
	}
	return bestOption, bestScore, false
}

// FuzzyScore rates the similarity of two lower-cased strings in [0,1].
// Tries equality, containment, token overlap, and character overlap.
func FuzzyScore(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}

	if a == b {
		return 1.0
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}

	score := tokenOverlapScore(a, b)
	if charScore := charOverlapScore(a, b); charScore > score {
		score = charScore
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// significantTokens splits on whitespace and drops stop words
func significantTokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'")
		if f == "" || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tokenOverlapScore computes Jaccard similarity over significant tokens,
// boosted 1.2x when any long token matches exactly.
func tokenOverlapScore(a, b string) float64 {
	tokensA := significantTokens(a)
	tokensB := significantTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}

	intersection := 0
	significantHit := false
	for t := range setA {
		if setB[t] {
			intersection++
			if len(t) > 3 {
				significantHit = true
			}
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	score := float64(intersection) / float64(union)
	if significantHit {
		score *= 1.2
	}
	return score
}

// charOverlapScore computes the ratio of shared characters
func charOverlapScore(a, b string) float64 {
	setA := make(map[rune]bool)
	for _, r := range a {
		if r != ' ' {
			setA[r] = true
		}
	}
	setB := make(map[rune]bool)
	for _, r := range b {
		if r != ' ' {
			setB[r] = true
		}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for r := range setA {
		if setB[r] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	// Character overlap alone is weak evidence; damp it so it only
	// decides between otherwise tied options.
	return 0.6 * float64(intersection) / float64(union)
}
