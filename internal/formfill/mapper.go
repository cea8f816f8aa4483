package formfill

import (
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/models"
)

// NormalizeLabel lower-cases a field label, collapses whitespace, and
// strips the trailing required-marker punctuation forms use.
func NormalizeLabel(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	lower = strings.Join(strings.Fields(lower), " ")
	lower = strings.TrimRight(lower, "*: ")
	return strings.TrimSpace(lower)
}

// exactLabelTable maps profile keys to the label spellings seen across
// ATS forms. Hits return confidence 1.0.
var exactLabelTable = map[string][]string{
	"first_name":          {"first name", "given name", "first", "fname", "legal first name"},
	"last_name":           {"last name", "family name", "surname", "last", "lname", "legal last name"},
	"email":               {"email", "email address", "e-mail", "e-mail address", "contact email"},
	"phone":               {"phone", "phone number", "mobile", "mobile number", "telephone", "cell phone", "contact number"},
	"address":             {"address", "street address", "address line 1", "home address"},
	"address_line_2":      {"address line 2", "apt/suite", "apartment, suite, etc."},
	"city":                {"city", "town"},
	"state":               {"state", "state/province", "province", "region"},
	"zip_code":            {"zip", "zip code", "postal code", "zip/postal code"},
	"country":             {"country", "country/region", "country of residence"},
	"nationality":         {"nationality", "citizenship"},
	"linkedin":            {"linkedin", "linkedin profile", "linkedin url", "linkedin profile url"},
	"github":              {"github", "github url", "github profile"},
	"portfolio":           {"portfolio", "portfolio url", "website", "personal website"},
	"current_title":       {"current title", "job title", "current job title", "title"},
	"current_company":     {"current company", "current employer", "company", "employer"},
	"years_experience":    {"years of experience", "years experience", "total years of experience"},
	"salary_expectation":  {"salary expectation", "expected salary", "desired salary", "salary requirements", "compensation expectations"},
	"availability":        {"availability", "start date", "available start date", "earliest start date", "notice period"},
	"gender":              {"gender", "gender identity"},
	"race_ethnicity":      {"race", "ethnicity", "race/ethnicity", "race & ethnicity"},
	"veteran_status":      {"veteran status", "protected veteran status"},
	"disability_status":   {"disability", "disability status"},
	"work_authorization":  {"work authorization", "authorization to work"},
	"require_sponsorship": {"sponsorship", "visa sponsorship", "require sponsorship"},
	"referral_source":     {"how did you hear about us", "how did you hear about this job", "referral source", "source"},
	"preferred_language":  {"preferred language", "language preference"},
	"date_of_birth":       {"date of birth", "birth date", "dob"},
	"cover_letter":        {"cover letter"},
	"summary":             {"summary", "professional summary", "about you", "about yourself"},
}

// patternEntry ties a profile key to a label regex, confidence 0.9
type patternEntry struct {
	key     string
	pattern *regexp.Regexp
}

var labelPatterns = []patternEntry{
	{"first_name", regexp.MustCompile(`^(first|given)\s*(name)?$`)},
	{"last_name", regexp.MustCompile(`^(last|family)\s*(name)?$`)},
	{"email", regexp.MustCompile(`e[\s-]?mail`)},
	{"phone", regexp.MustCompile(`phone|mobile|cell`)},
	{"linkedin", regexp.MustCompile(`linked\s*in`)},
	{"github", regexp.MustCompile(`git\s*hub`)},
	{"zip_code", regexp.MustCompile(`zip|postal`)},
	{"require_sponsorship", regexp.MustCompile(`(visa|work)?\s*sponsorship`)},
	{"work_authorization", regexp.MustCompile(`(legally\s+)?authori[sz]ed\s+to\s+work|work\s+authori[sz]ation`)},
	{"salary_expectation", regexp.MustCompile(`salary|compensation|pay\s+expectation`)},
	{"years_experience", regexp.MustCompile(`years?\s+of\s+(relevant\s+)?(work\s+)?experience`)},
	{"graduation_date", regexp.MustCompile(`graduat(ion|e)\s*(date|year)`)},
	{"veteran_status", regexp.MustCompile(`veteran`)},
	{"disability_status", regexp.MustCompile(`disabilit`)},
	{"gender", regexp.MustCompile(`^gender`)},
	{"race_ethnicity", regexp.MustCompile(`race|ethnicit`)},
	{"referral_source", regexp.MustCompile(`hear\s+about\s+(us|this)`)},
	{"willing_to_relocate", regexp.MustCompile(`relocat`)},
	{"cover_letter", regexp.MustCompile(`cover\s*letter`)},
}

// termsLabelRegex matches consent/terms questions eligible for auto-check
var termsLabelRegex = regexp.MustCompile(`(?i)terms|conditions|agreement|consent|acknowledge|privacy policy|accept|agree|i have read|i understand|confirm`)

var workedAtRegex = regexp.MustCompile(`(?i)(?:have you\s+)?(?:ever\s+|previously\s+)?work(?:ed)?\s+(?:at|for)\s+([A-Za-z0-9 .&'’-]+?)\s*(?:\?|$|before)`)

var enrolledRegex = regexp.MustCompile(`(?i)currently\s+(enrolled|a\s+student)|still\s+(enrolled|in\s+school)`)

var expectGraduateRegex = regexp.MustCompile(`(?i)(expect(ed)?\s+to\s+graduat|expected\s+graduation|when\s+.*graduat)`)

// educationDateFormats are the layouts tried when parsing an education
// end date for enrollment arithmetic.
var educationDateFormats = []string{
	"2006",
	"2006-01",
	"01/2006",
	"January 2006",
	"Jan 2006",
	"2006-01-02",
	"01/02/2006",
}

// DeterministicMapper maps field labels to profile values without any
// model call. Three tiers: exact table, label regexes, then semantic
// inference over question-shaped labels.
type DeterministicMapper struct {
	logger arbor.ILogger

	// now is injectable so enrollment arithmetic is testable
	now func() time.Time
}

// NewDeterministicMapper creates a mapper using the wall clock
func NewDeterministicMapper(logger arbor.ILogger) *DeterministicMapper {
	return &DeterministicMapper{
		logger: logger,
		now:    time.Now,
	}
}

// Map attempts to resolve a field to a profile value. Returns false when
// no tier produced a mapping; the caller falls through to learned
// patterns and then the model.
func (m *DeterministicMapper) Map(field *models.FormField, profile *models.Profile) (*models.FieldMapping, bool) {
	label := field.Label
	if label == "" {
		label = field.Question
	}
	normalized := NormalizeLabel(label)

	// Tier 1: exact table
	for key, variants := range exactLabelTable {
		for _, variant := range variants {
			if normalized == variant {
				if value := m.resolveKey(profile, key); value != "" {
					return &models.FieldMapping{
						ProfileKey: key,
						Value:      value,
						Confidence: 1.0,
						Method:     models.MethodExact,
					}, true
				}
			}
		}
	}

	// Tier 2: pattern table
	for _, entry := range labelPatterns {
		if entry.pattern.MatchString(normalized) {
			if value := m.resolveKey(profile, entry.key); value != "" {
				return &models.FieldMapping{
					ProfileKey: entry.key,
					Value:      value,
					Confidence: 0.9,
					Method:     models.MethodPattern,
				}, true
			}
		}
	}

	// Tier 3: semantic inference over question-shaped labels
	return m.mapSemantic(field, normalized, profile)
}

// mapSemantic handles question-shaped labels the tables cannot express
func (m *DeterministicMapper) mapSemantic(field *models.FormField, normalized string, profile *models.Profile) (*models.FieldMapping, bool) {
	// Terms/consent auto-check. Runs even when the element id contains
	// "honeypot": a consent label is taken at face value, but only for
	// visible, labeled controls.
	if field.Category == models.CategoryCheckbox || field.Category == models.CategoryCheckboxGroup {
		if field.Visible && normalized != "" && termsLabelRegex.MatchString(normalized) {
			return &models.FieldMapping{
				ProfileKey: "terms_agreement",
				Value:      "true",
				Confidence: 0.9,
				Method:     models.MethodTermsAutocheck,
			}, true
		}
	}

	// "Have you worked at <company>?"
	if match := workedAtRegex.FindStringSubmatch(normalized); match != nil {
		company := strings.TrimSpace(match[1])
		answer := "No"
		for _, exp := range profile.WorkExperience {
			if FuzzyScore(strings.ToLower(company), strings.ToLower(exp.Company)) >= 0.7 {
				answer = "Yes"
				break
			}
		}
		return &models.FieldMapping{
			ProfileKey: "work_experience",
			Value:      answer,
			Confidence: 0.9,
			Method:     models.MethodSemantic,
		}, true
	}

	// "Are you authorized to work?"
	if strings.Contains(normalized, "authorized to work") || strings.Contains(normalized, "authorised to work") {
		if value := profile.StringOr("work_authorization", ""); value != "" {
			return &models.FieldMapping{ProfileKey: "work_authorization", Value: value, Confidence: 0.9, Method: models.MethodSemantic}, true
		}
		visa := profile.StringOr("visa_status", "")
		switch visa {
		case "F-1", "H1B", "H-1B", "Green Card", "US Citizen":
			return &models.FieldMapping{ProfileKey: "visa_status", Value: "Yes", Confidence: 0.9, Method: models.MethodSemantic}, true
		}
	}

	// "Do you require sponsorship?"
	if strings.Contains(normalized, "sponsorship") {
		if value := profile.StringOr("require_sponsorship", ""); value != "" {
			return &models.FieldMapping{ProfileKey: "require_sponsorship", Value: value, Confidence: 0.9, Method: models.MethodSemantic}, true
		}
	}

	// "Are you willing to relocate?"
	if strings.Contains(normalized, "relocate") || strings.Contains(normalized, "relocation") {
		if value := profile.StringOr("willing_to_relocate", ""); value != "" {
			return &models.FieldMapping{ProfileKey: "willing_to_relocate", Value: value, Confidence: 0.9, Method: models.MethodSemantic}, true
		}
	}

	// Enrollment questions answer from date arithmetic alone; the
	// "current" flag on education records is unreliable upstream.
	if enrolledRegex.MatchString(normalized) {
		if endDate, ok := m.latestEducationEnd(profile); ok {
			answer := "No"
			if endDate.After(m.now()) {
				answer = "Yes"
			}
			return &models.FieldMapping{ProfileKey: "education", Value: answer, Confidence: 0.9, Method: models.MethodSemantic}, true
		}
	}

	// "When do you expect to graduate?" answers with the raw end date so
	// option matching can pick the month-year choice.
	if expectGraduateRegex.MatchString(normalized) {
		if raw, endDate, ok := m.latestEducationEndRaw(profile); ok && endDate.After(m.now()) {
			return &models.FieldMapping{ProfileKey: "graduation_date", Value: raw, Confidence: 0.9, Method: models.MethodSemantic}, true
		}
	}

	return nil, false
}

// resolveKey reads a profile key, handling the derived keys the tables
// reference.
func (m *DeterministicMapper) resolveKey(profile *models.Profile, key string) string {
	switch key {
	case "graduation_date":
		if raw, _, ok := m.latestEducationEndRaw(profile); ok {
			return raw
		}
		return ""
	case "current_title":
		if v := profile.StringOr(key, ""); v != "" {
			return v
		}
		for _, exp := range profile.WorkExperience {
			if exp.Current {
				return exp.Title
			}
		}
		return ""
	case "current_company":
		if v := profile.StringOr(key, ""); v != "" {
			return v
		}
		for _, exp := range profile.WorkExperience {
			if exp.Current {
				return exp.Company
			}
		}
		return ""
	default:
		return profile.StringOr(key, "")
	}
}

// latestEducationEnd parses the most recent education end date
func (m *DeterministicMapper) latestEducationEnd(profile *models.Profile) (time.Time, bool) {
	_, t, ok := m.latestEducationEndRaw(profile)
	return t, ok
}

// latestEducationEndRaw returns the raw string and parsed time of the
// latest education end date, preferring graduation_date when present.
func (m *DeterministicMapper) latestEducationEndRaw(profile *models.Profile) (string, time.Time, bool) {
	var bestRaw string
	var bestTime time.Time
	found := false

	for _, edu := range profile.Education {
		raw := edu.EndDate
		if raw == "" {
			raw = edu.GraduationDate
		}
		if raw == "" {
			continue
		}
		parsed, err := ParseEducationDate(raw)
		if err != nil {
			continue
		}
		if !found || parsed.After(bestTime) {
			bestRaw = raw
			bestTime = parsed
			found = true
		}
	}

	return bestRaw, bestTime, found
}

// ParseEducationDate tries each accepted layout in order
func ParseEducationDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range educationDateFormats {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// FieldTypeForKey maps a profile key to its canonical dropdown table
func FieldTypeForKey(key string) string {
	switch key {
	case "gender", "race_ethnicity", "work_authorization", "require_sponsorship",
		"veteran_status", "disability_status", "willing_to_relocate":
		return key
	case "graduation_date", "education":
		return ""
	default:
		if strings.Contains(key, "degree") {
			return "degree"
		}
		return ""
	}
}
