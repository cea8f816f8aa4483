package formfill

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/petitor/internal/models"
)

// uuidShapedID matches ids carrying a UUID, whose first segments group
// sibling checkboxes generated from one question.
var uuidShapedID = regexp.MustCompile(`^(.*?[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4})-`)

// idGroupPrefix extracts the shared prefix of a UUID-shaped id: the
// first 4 dash-separated segments. Empty when the id is not UUID-shaped.
func idGroupPrefix(id string) string {
	if m := uuidShapedID.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return ""
}

// consolidateFields turns raw controls into logical fields: radios with
// the same name fold into one radio_group, checkboxes sharing a question
// or id prefix fold into one checkbox_group. Everything else maps 1:1.
func consolidateFields(raws []rawField) []models.FormField {
	var out []models.FormField

	radioGroups := make(map[string][]rawField)
	var radioOrder []string
	var checkboxes []rawField

	for _, r := range raws {
		switch {
		case r.InputType == "radio" && r.Name != "":
			if _, seen := radioGroups[r.Name]; !seen {
				radioOrder = append(radioOrder, r.Name)
			}
			radioGroups[r.Name] = append(radioGroups[r.Name], r)
		case r.InputType == "checkbox":
			checkboxes = append(checkboxes, r)
		default:
			out = append(out, toFormField(r))
		}
	}

	for _, name := range radioOrder {
		out = append(out, buildRadioGroup(name, radioGroups[name]))
	}

	out = append(out, buildCheckboxGroups(checkboxes)...)
	return out
}

// buildRadioGroup consolidates same-name radios into one field whose
// options carry each member's extracted label.
func buildRadioGroup(name string, members []rawField) models.FormField {
	question := ""
	anyVisible := false
	allFilled := false
	for _, m := range members {
		if question == "" && m.Question != "" {
			question = m.Question
		}
		if m.Visible {
			anyVisible = true
		}
		if m.Filled {
			allFilled = true
		}
	}
	if question == "" {
		for _, m := range members {
			if m.OptionLabel != "" {
				question = m.OptionLabel
				break
			}
		}
	}

	options := make([]models.FieldOption, 0, len(members))
	for _, m := range members {
		options = append(options, models.FieldOption{
			Label:    m.OptionLabel,
			Value:    m.Value,
			ID:       m.ID,
			Selector: selectorFor(m),
		})
	}

	return models.FormField{
		StableID: StableID("radiogroup", "", name, question),
		Label:    question,
		Category: models.CategoryRadioGroup,
		Name:     name,
		Question: question,
		Options:  options,
		Selector: fmt.Sprintf(`input[type="radio"][name="%s"]`, name),
		Visible:  anyVisible,
		Filled:   allFilled,
	}
}

// buildCheckboxGroups clusters checkboxes by shared question text or by
// a shared UUID id prefix. A cluster of one with a question becomes an
// ordinary checkbox whose label is the question.
func buildCheckboxGroups(checkboxes []rawField) []models.FormField {
	type cluster struct {
		key     string
		members []rawField
	}

	var clusters []*cluster
	index := make(map[string]*cluster)

	keyFor := func(r rawField) string {
		if q := strings.ToLower(strings.TrimSpace(r.Question)); q != "" {
			return "q:" + q
		}
		if p := idGroupPrefix(r.ID); p != "" {
			return "p:" + p
		}
		// No grouping signal: each control stands alone
		return "solo:" + r.ID + "|" + r.Name + "|" + r.OptionLabel
	}

	for _, r := range checkboxes {
		key := keyFor(r)
		c, ok := index[key]
		if !ok {
			c = &cluster{key: key}
			index[key] = c
			clusters = append(clusters, c)
		}
		c.members = append(c.members, r)
	}

	var out []models.FormField
	for _, c := range clusters {
		if len(c.members) == 1 {
			r := c.members[0]
			f := toFormField(r)
			if r.Question != "" {
				f.Label = r.Question
				f.StableID = StableID(r.TagName, r.ID, r.Name, f.Label)
			}
			out = append(out, f)
			continue
		}

		question := ""
		anyVisible := false
		for _, m := range c.members {
			if question == "" && m.Question != "" {
				question = m.Question
			}
			if m.Visible {
				anyVisible = true
			}
		}

		options := make([]models.FieldOption, 0, len(c.members))
		for _, m := range c.members {
			options = append(options, models.FieldOption{
				Label:    m.OptionLabel,
				Value:    m.Value,
				ID:       m.ID,
				Selector: selectorFor(m),
			})
		}

		first := c.members[0]
		out = append(out, models.FormField{
			StableID: StableID("checkboxgroup", first.ID, first.Name, question),
			Label:    question,
			Category: models.CategoryCheckboxGroup,
			Name:     first.Name,
			Question: question,
			Options:  options,
			Selector: selectorFor(first),
			Visible:  anyVisible,
		})
	}
	return out
}
