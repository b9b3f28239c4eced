package intent

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed library.yaml
var defaultLibraryYAML []byte

var (
	defaultOnce    sync.Once
	defaultLibrary *Library
)

// Rule maps an ordered list of keywords to an intent.
type Rule struct {
	Intent   Intent   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
}

// GreetingSet holds the assistant's first turn for new and cleared sessions.
type GreetingSet struct {
	Opening string `yaml:"opening"`
	Fresh   string `yaml:"fresh"`
}

// Library is the static configuration consumed by the classifier, the
// selector and the conversation session. A Library is immutable after Parse.
type Library struct {
	Greeting     GreetingSet         `yaml:"greeting"`
	Celebration  []string            `yaml:"celebration"`
	QuickActions []string            `yaml:"quick_actions"`
	Rules        []Rule              `yaml:"rules"`
	Responses    map[Intent][]string `yaml:"responses"`

	matchers    []matcher
	celebration *regexp.Regexp
}

type matcher struct {
	intent Intent
	re     *regexp.Regexp
}

// Embedded returns the library embedded in the binary.
func Embedded() *Library {
	defaultOnce.Do(func() {
		lib, err := Parse(defaultLibraryYAML)
		if err != nil {
			panic("intent: embedded library is invalid: " + err.Error())
		}
		defaultLibrary = lib
	})
	return defaultLibrary
}

// DefaultYAML returns a copy of the embedded library source.
func DefaultYAML() []byte {
	return bytes.Clone(defaultLibraryYAML)
}

// LoadFile reads and parses a library from disk.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	lib, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse library %s: %w", path, err)
	}
	return lib, nil
}

// Parse decodes, validates and compiles a YAML library.
func Parse(data []byte) (*Library, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var lib Library
	if err := dec.Decode(&lib); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if lib.Greeting.Fresh == "" {
		lib.Greeting.Fresh = lib.Greeting.Opening
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	if err := lib.compile(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Validate checks that every intent the classifier can produce has a
// non-empty response set and that the rule table is well formed.
func (l *Library) Validate() error {
	var errs []error

	if strings.TrimSpace(l.Greeting.Opening) == "" {
		errs = append(errs, errors.New("greeting.opening cannot be empty"))
	}

	seen := make(map[Intent]bool, len(l.Rules))
	for idx, rule := range l.Rules {
		switch {
		case !rule.Intent.Valid():
			errs = append(errs, fmt.Errorf("rules[%d]: unknown intent %q", idx, rule.Intent))
		case rule.Intent == Default:
			errs = append(errs, fmt.Errorf("rules[%d]: %s matches implicitly and cannot have a rule", idx, Default))
		case seen[rule.Intent]:
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate rule for %s", idx, rule.Intent))
		}
		seen[rule.Intent] = true
		if len(rule.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("rules[%d]: %s has no keywords", idx, rule.Intent))
		}
	}

	for key := range l.Responses {
		if !key.Valid() {
			errs = append(errs, fmt.Errorf("responses: unknown intent %q", key))
		}
	}
	for _, in := range All {
		set := l.Responses[in]
		if len(set) == 0 {
			errs = append(errs, fmt.Errorf("responses: %s has no responses", in))
			continue
		}
		for n, text := range set {
			if strings.TrimSpace(text) == "" {
				errs = append(errs, fmt.Errorf("responses: %s[%d] is empty", in, n))
			}
		}
	}

	return errors.Join(errs...)
}

func (l *Library) compile() error {
	l.matchers = make([]matcher, 0, len(l.Rules))
	for _, rule := range l.Rules {
		re, err := compileKeywords(rule.Keywords)
		if err != nil {
			return fmt.Errorf("compile %s rule: %w", rule.Intent, err)
		}
		l.matchers = append(l.matchers, matcher{intent: rule.Intent, re: re})
	}

	if len(l.Celebration) > 0 {
		re, err := compileKeywords(l.Celebration)
		if err != nil {
			return fmt.Errorf("compile celebration keywords: %w", err)
		}
		l.celebration = re
	}
	return nil
}

// Word characters for keyword boundaries. RE2's \b is ASCII-only, so
// "hi" would match inside "hiérarchie" with it.
const (
	wordClass    = `[\p{L}\p{N}_]`
	nonWordClass = `[^\p{L}\p{N}_]`
)

// compileKeywords builds one word-boundary alternation from keywords. The
// keyword itself is capture group 1. Multi-word keywords tolerate any
// whitespace run; a trailing "*" accepts any word suffix.
func compileKeywords(keywords []string) (*regexp.Regexp, error) {
	alts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = Normalize(kw)
		wildcard := strings.HasSuffix(kw, "*")
		kw = strings.TrimSpace(strings.TrimSuffix(kw, "*"))
		if kw == "" {
			return nil, errors.New("empty keyword")
		}

		words := strings.Fields(kw)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		expr := strings.Join(words, `\s+`)
		if wildcard {
			expr += wordClass + `*`
		}
		alts = append(alts, expr)
	}
	return regexp.Compile(`(?:^|` + nonWordClass + `)(` + strings.Join(alts, "|") + `)(?:$|` + nonWordClass + `)`)
}

// Match runs the rule table against normalized text and returns the first
// matching intent with the text that triggered it. Default is returned with
// an empty trigger when nothing matches.
func (l *Library) Match(normalized string) (Intent, string) {
	for _, m := range l.matchers {
		if hit := m.re.FindStringSubmatch(normalized); hit != nil {
			return m.intent, hit[1]
		}
	}
	return Default, ""
}

// Celebrates reports whether text contains an excitement keyword.
func (l *Library) Celebrates(text string) bool {
	if l.celebration == nil {
		return false
	}
	return l.celebration.MatchString(Normalize(text))
}

// ResponsesFor returns the response set for an intent.
func (l *Library) ResponsesFor(in Intent) []string {
	return l.Responses[in]
}

// Current implements Source for a fixed library.
func (l *Library) Current() *Library {
	return l
}
