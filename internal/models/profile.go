package models

import (
	"fmt"
	"sort"
	"strings"
)

// ProfileValueKind discriminates the tagged ProfileValue union
type ProfileValueKind int

const (
	ProfileValueString ProfileValueKind = iota
	ProfileValueList
)

// ProfileValue is either a scalar string or a list of strings.
// Nested records (work experience, education, projects) live on the
// Profile struct itself rather than inside the value map.
type ProfileValue struct {
	Kind ProfileValueKind `json:"kind"`
	Str  string           `json:"str,omitempty"`
	List []string         `json:"list,omitempty"`
}

// StringValue wraps a scalar string
func StringValue(s string) ProfileValue {
	return ProfileValue{Kind: ProfileValueString, Str: s}
}

// ListValue wraps a list of strings
func ListValue(items []string) ProfileValue {
	return ProfileValue{Kind: ProfileValueList, List: items}
}

// WorkExperience is a single employment record
type WorkExperience struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
}

// Education is a single education record
type Education struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	FieldOfStudy   string `json:"field_of_study"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	GraduationDate string `json:"graduation_date"`
	GPA            string `json:"gpa"`
}

// Project is a single portfolio project record
type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	URL          string   `json:"url"`
}

// KeyError reports a missing or wrongly-typed profile key
type KeyError struct {
	Key    string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("profile key %q: %s", e.Key, e.Reason)
}

// Profile holds the user's application data. It is read-only for the
// duration of a fill session.
type Profile struct {
	Values         map[string]ProfileValue `json:"values"`
	WorkExperience []WorkExperience        `json:"work_experience"`
	Education      []Education             `json:"education"`
	Projects       []Project               `json:"projects"`
}

// NewProfile creates an empty profile
func NewProfile() *Profile {
	return &Profile{Values: make(map[string]ProfileValue)}
}

// NormalizeKey canonicalizes a profile key: lower-cased, spaces collapsed
// to underscores. "First Name" and "first_name" address the same entry.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.Join(strings.Fields(key), "_")
	return key
}

// SortedKeys returns the profile's value keys in stable order
func (p *Profile) SortedKeys() []string {
	keys := make([]string, 0, len(p.Values))
	for k := range p.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores a scalar value under the normalized key
func (p *Profile) Set(key, value string) {
	p.Values[NormalizeKey(key)] = StringValue(value)
}

// SetList stores a list value under the normalized key
func (p *Profile) SetList(key string, items []string) {
	p.Values[NormalizeKey(key)] = ListValue(items)
}

// String returns the scalar value for key. Lists are joined with ", "
// so callers filling single-value controls get something usable.
func (p *Profile) String(key string) (string, error) {
	v, ok := p.Values[NormalizeKey(key)]
	if !ok {
		return "", &KeyError{Key: key, Reason: "not present"}
	}
	switch v.Kind {
	case ProfileValueString:
		return v.Str, nil
	case ProfileValueList:
		return strings.Join(v.List, ", "), nil
	}
	return "", &KeyError{Key: key, Reason: "unknown value kind"}
}

// StringOr returns the scalar value for key, or fallback when absent or empty
func (p *Profile) StringOr(key, fallback string) string {
	s, err := p.String(key)
	if err != nil || strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// List returns the list value for key. Scalars are split on commas.
func (p *Profile) List(key string) ([]string, error) {
	v, ok := p.Values[NormalizeKey(key)]
	if !ok {
		return nil, &KeyError{Key: key, Reason: "not present"}
	}
	switch v.Kind {
	case ProfileValueList:
		return v.List, nil
	case ProfileValueString:
		if strings.TrimSpace(v.Str) == "" {
			return nil, nil
		}
		parts := strings.Split(v.Str, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	}
	return nil, &KeyError{Key: key, Reason: "unknown value kind"}
}

// Has reports whether key holds a non-empty value
func (p *Profile) Has(key string) bool {
	s, err := p.String(key)
	return err == nil && strings.TrimSpace(s) != ""
}

// Skills merges the profile's skill arrays, deduplicated in order
func (p *Profile) Skills() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, key := range []string{"programming_languages", "frameworks", "tools", "technical_skills"} {
		items, err := p.List(key)
		if err != nil {
			continue
		}
		for _, item := range items {
			norm := strings.ToLower(strings.TrimSpace(item))
			if norm == "" {
				continue
			}
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			out = append(out, strings.TrimSpace(item))
		}
	}
	return out
}

// FullName builds "First Last" from the profile, empty string when unknown
func (p *Profile) FullName() string {
	first := p.StringOr("first_name", "")
	last := p.StringOr("last_name", "")
	return strings.TrimSpace(first + " " + last)
}
