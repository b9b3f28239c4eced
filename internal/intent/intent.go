// Package intent implements rule-based intent classification and response
// selection for the portfolio assistant.
package intent

import (
	"fmt"
	"strings"
)

// Intent is the symbolic category assigned to a visitor input.
type Intent string

const (
	Greeting   Intent = "GREETING"
	Wellbeing  Intent = "WELLBEING"
	Gratitude  Intent = "GRATITUDE"
	Farewell   Intent = "FAREWELL"
	About      Intent = "ABOUT"
	Projects   Intent = "PROJECTS"
	Skills     Intent = "SKILLS"
	Education  Intent = "EDUCATION"
	Experience Intent = "EXPERIENCE"
	Contact    Intent = "CONTACT"
	Goals      Intent = "GOALS"
	Hobbies    Intent = "HOBBIES"
	Heritage   Intent = "HERITAGE"
	// Default is the catch-all assigned when no rule matches.
	Default Intent = "DEFAULT"
)

// All lists the closed intent set. Every member must have a response set.
var All = []Intent{
	Greeting, Wellbeing, Gratitude, Farewell,
	About, Projects, Skills, Education, Experience, Contact, Goals, Hobbies, Heritage,
	Default,
}

// Valid reports whether i belongs to the closed intent set.
func (i Intent) Valid() bool {
	for _, known := range All {
		if i == known {
			return true
		}
	}
	return false
}

// ParseIntent converts a case-insensitive name into an Intent.
func ParseIntent(name string) (Intent, error) {
	i := Intent(strings.ToUpper(strings.TrimSpace(name)))
	if !i.Valid() {
		return "", fmt.Errorf("unknown intent %q", name)
	}
	return i, nil
}
