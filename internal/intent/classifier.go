package intent

import (
	"strings"

	"golang.org/x/text/cases"
)

var quoteReplacer = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

// Source provides the library currently in effect.
type Source interface {
	Current() *Library
}

// Normalize trims, case-folds and collapses whitespace so rules can be
// written in lower case.
func Normalize(raw string) string {
	s := quoteReplacer.Replace(raw)
	// cases.Caser is stateful; build one per call.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Classifier assigns exactly one intent to every input.
type Classifier struct {
	src Source
}

// NewClassifier creates a classifier over the given library source.
func NewClassifier(src Source) *Classifier {
	return &Classifier{src: src}
}

// Classify returns the intent for raw input. It never fails: input that no
// rule matches, including blank input, is Default.
func (c *Classifier) Classify(raw string) Intent {
	in, _ := c.Explain(raw)
	return in
}

// Explain is Classify plus the matched keyword text, for logging and the
// classify endpoint.
func (c *Classifier) Explain(raw string) (Intent, string) {
	text := Normalize(raw)
	if text == "" {
		return Default, ""
	}
	return c.src.Current().Match(text)
}
