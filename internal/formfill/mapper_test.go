package formfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/models"
)

func testProfile() *models.Profile {
	p := models.NewProfile()
	p.Set("first_name", "Maya")
	p.Set("last_name", "Okafor")
	p.Set("email", "maya.okafor@example.com")
	p.Set("phone", "+1 415 555 0132")
	p.Set("work_authorization", "Authorized to work in the US")
	p.Set("require_sponsorship", "No")
	p.Set("willing_to_relocate", "Yes")
	p.WorkExperience = []models.WorkExperience{
		{Company: "Stripe", Title: "Software Engineer", Current: true},
		{Company: "Datadog", Title: "SRE"},
	}
	return p
}

func newTestMapper(at time.Time) *DeterministicMapper {
	m := NewDeterministicMapper(common.GetLogger())
	m.now = func() time.Time { return at }
	return m
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "first name", NormalizeLabel("  First   Name *  "))
	assert.Equal(t, "email address", NormalizeLabel("Email Address:"))
	assert.Equal(t, "phone", NormalizeLabel("PHONE"))
}

func TestMap_ExactTable(t *testing.T) {
	m := newTestMapper(time.Now())
	profile := testProfile()

	field := &models.FormField{Label: "First Name *", Category: models.CategoryTextInput}
	mapping, ok := m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "first_name", mapping.ProfileKey)
	assert.Equal(t, "Maya", mapping.Value)
	assert.Equal(t, 1.0, mapping.Confidence)
	assert.Equal(t, models.MethodExact, mapping.Method)
}

func TestMap_PatternTable(t *testing.T) {
	m := newTestMapper(time.Now())
	profile := testProfile()

	field := &models.FormField{Label: "Your E-Mail", Category: models.CategoryTextInput}
	mapping, ok := m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "email", mapping.ProfileKey)
	assert.Equal(t, 0.9, mapping.Confidence)
	assert.Equal(t, models.MethodPattern, mapping.Method)
}

func TestMap_MissingProfileValueFallsThrough(t *testing.T) {
	m := newTestMapper(time.Now())
	profile := models.NewProfile()

	field := &models.FormField{Label: "First Name", Category: models.CategoryTextInput}
	_, ok := m.Map(field, profile)
	assert.False(t, ok)
}

func TestMap_TermsCheckboxAutocheck(t *testing.T) {
	m := newTestMapper(time.Now())
	profile := testProfile()

	// An id that screams honeypot does not matter; visibility and a real
	// consent label do.
	field := &models.FormField{
		ID:       "honey-pot-0",
		Label:    "I agree to the terms and conditions",
		Category: models.CategoryCheckbox,
		Visible:  true,
	}
	mapping, ok := m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "true", mapping.Value)
	assert.Equal(t, 0.9, mapping.Confidence)
	assert.Equal(t, models.MethodTermsAutocheck, mapping.Method)

	// Invisible or unlabeled controls never auto-check
	field.Visible = false
	_, ok = m.Map(field, profile)
	assert.False(t, ok)

	field.Visible = true
	field.Label = ""
	_, ok = m.Map(field, profile)
	assert.False(t, ok)
}

func TestMap_WorkedAtCompany(t *testing.T) {
	m := newTestMapper(time.Now())
	profile := testProfile()

	field := &models.FormField{Label: "Have you ever worked at Stripe?", Category: models.CategoryRadioGroup}
	mapping, ok := m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "Yes", mapping.Value)

	field = &models.FormField{Label: "Have you ever worked at Initech?", Category: models.CategoryRadioGroup}
	mapping, ok = m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "No", mapping.Value)
}

func TestMap_EnrollmentDateArithmetic(t *testing.T) {
	today := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	m := newTestMapper(today)

	profile := testProfile()
	profile.Education = []models.Education{{Institution: "UCLA", EndDate: "May 2025"}}

	field := &models.FormField{Label: "Are you currently enrolled in a degree program?", Category: models.CategoryRadioGroup}
	mapping, ok := m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "Yes", mapping.Value)

	profile.Education = []models.Education{{Institution: "UCLA", EndDate: "May 2023"}}
	mapping, ok = m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "No", mapping.Value)
}

func TestMap_ExpectedGraduationReturnsRawDate(t *testing.T) {
	today := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	m := newTestMapper(today)

	profile := testProfile()
	profile.Education = []models.Education{{Institution: "UCLA", EndDate: "May 2025"}}

	// The raw string survives so option matching can pick "May 2025"
	field := &models.FormField{Label: "When do you expect to graduate?", Category: models.CategoryDropdown}
	mapping, ok := m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "May 2025", mapping.Value)
	assert.Equal(t, "graduation_date", mapping.ProfileKey)
}

func TestMap_AuthorizationFallsBackToVisaStatus(t *testing.T) {
	m := newTestMapper(time.Now())

	profile := models.NewProfile()
	profile.Set("visa_status", "Green Card")

	field := &models.FormField{Label: "Are you authorized to work in the United States?", Category: models.CategoryRadioGroup}
	mapping, ok := m.Map(field, profile)
	require.True(t, ok)
	assert.Equal(t, "Yes", mapping.Value)
}

func TestParseEducationDate(t *testing.T) {
	cases := map[string]time.Time{
		"2025":       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"2025-05":    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		"05/2025":    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		"May 2025":   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		"2025-05-15": time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := ParseEducationDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseEducationDate("sometime soon")
	assert.Error(t, err)
}
