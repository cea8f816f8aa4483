package models

// FieldCategory is the normalized kind of a form control as produced by
// detection. Vendor-specific dropdown flavors carry the vendor prefix.
type FieldCategory string

const (
	CategoryTextInput           FieldCategory = "text_input"
	CategoryTextarea            FieldCategory = "textarea"
	CategoryCheckbox            FieldCategory = "checkbox"
	CategoryRadio               FieldCategory = "radio"
	CategoryRadioGroup          FieldCategory = "radio_group"
	CategoryCheckboxGroup       FieldCategory = "checkbox_group"
	CategoryDropdown            FieldCategory = "dropdown"
	CategoryGreenhouseDropdown  FieldCategory = "greenhouse_dropdown"
	CategoryGreenhouseMulti     FieldCategory = "greenhouse_dropdown_multi"
	CategoryWorkdayDropdown     FieldCategory = "workday_dropdown"
	CategoryWorkdayMultiselect  FieldCategory = "workday_multiselect"
	CategoryLeverDropdown       FieldCategory = "lever_dropdown"
	CategoryAshbyButtonGroup    FieldCategory = "ashby_button_group"
	CategoryFileUpload          FieldCategory = "file_upload"
)

// IsDropdown reports whether the category is any dropdown flavor
func (c FieldCategory) IsDropdown() bool {
	switch c {
	case CategoryDropdown, CategoryGreenhouseDropdown, CategoryWorkdayDropdown, CategoryLeverDropdown:
		return true
	}
	return false
}

// IsTextLike reports whether the category accepts free text
func (c FieldCategory) IsTextLike() bool {
	return c == CategoryTextInput || c == CategoryTextarea
}

// FieldOption is one selectable choice within a group or dropdown
type FieldOption struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	ID       string `json:"id"`
	Selector string `json:"selector"` // CSS selector resolving the concrete control
}

// FormField describes one logical control detected on a page. The struct
// lives for a single iteration of the fill loop; StableID is deterministic
// so completion/attempt trackers carry across iterations.
type FormField struct {
	StableID    string        `json:"stable_id"`
	Label       string        `json:"label"`
	Category    FieldCategory `json:"field_category"`
	Name        string        `json:"name"`
	ID          string        `json:"id"`
	Placeholder string        `json:"placeholder"`
	AriaLabel   string        `json:"aria_label"`
	TagName     string        `json:"tag_name"`
	InputType   string        `json:"input_type"`
	Required    bool          `json:"required"`
	Question    string        `json:"field_question,omitempty"`
	Options     []FieldOption `json:"options,omitempty"`
	Selector    string        `json:"selector"` // CSS selector used to re-resolve the element
	Visible     bool          `json:"visible"`
	Disabled    bool          `json:"disabled"`
	Filled      bool          `json:"filled"` // element already carried a value at detection time
}

// MapMethod records which strategy produced a field mapping
type MapMethod string

const (
	MethodExact          MapMethod = "exact"
	MethodPattern        MapMethod = "pattern"
	MethodSemantic       MapMethod = "semantic"
	MethodLearned        MapMethod = "learned"
	MethodAI             MapMethod = "ai"
	MethodTermsAutocheck MapMethod = "terms_autocheck"
	MethodNeedsAI        MapMethod = "needs_ai"
)

// FieldMapping is the outcome of mapping a form label to profile data
type FieldMapping struct {
	ProfileKey string    `json:"profile_key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Method     MapMethod `json:"method"`
}

// FillResult reports the outcome of a single field interaction
type FillResult struct {
	Success    bool    `json:"success"`
	Method     string  `json:"method"`
	FinalValue string  `json:"final_value"`
	Error      string  `json:"error,omitempty"`
	Verified   bool    `json:"verification"`
	TimeMs     int64   `json:"time_ms"`
}
