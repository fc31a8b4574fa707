package agents

import "regexp"

// Entities holds the values pulled out of free text. Empty categories are
// empty slices so they encode as [] rather than null.
type Entities struct {
	Dates      []string `json:"dates"`
	Amounts    []string `json:"amounts"`
	References []string `json:"references"`
	Contacts   []string `json:"contacts"`
}

var (
	datePattern      = regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2}`)
	amountPattern    = regexp.MustCompile(`\$?\d+(?:,\d{3})*(?:\.\d{2})?`)
	referencePattern = regexp.MustCompile(`(?i)(?:ref|reference|id|number)[:\s]+([A-Z0-9-]+)`)
	emailPattern     = regexp.MustCompile(`[\w\.-]+@[\w\.-]+\.\w+`)
	phonePattern     = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
)

// ExtractEntities scans text for dates, amounts, references and contacts.
// Contacts list email addresses first, then phone numbers.
func ExtractEntities(text string) Entities {
	e := Entities{
		Dates:      findAll(datePattern, text),
		Amounts:    findAll(amountPattern, text),
		References: []string{},
		Contacts:   findAll(emailPattern, text),
	}
	for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
		e.References = append(e.References, m[1])
	}
	e.Contacts = append(e.Contacts, findAll(phonePattern, text)...)
	return e
}

func findAll(re *regexp.Regexp, text string) []string {
	matches := re.FindAllString(text, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}
