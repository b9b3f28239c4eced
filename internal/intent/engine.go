package intent

import (
	"sync/atomic"
)

// Store holds the library in effect and allows it to be swapped at runtime.
type Store struct {
	lib atomic.Pointer[Library]
}

// NewStore creates a store seeded with lib.
func NewStore(lib *Library) *Store {
	s := &Store{}
	s.lib.Store(lib)
	return s
}

// Current returns the library in effect.
func (s *Store) Current() *Library {
	return s.lib.Load()
}

// Swap replaces the library and returns the previous one.
func (s *Store) Swap(lib *Library) *Library {
	return s.lib.Swap(lib)
}

// Engine bundles classification, selection and the greeting/celebration
// configuration consumed by a conversation session.
type Engine struct {
	src        Source
	classifier *Classifier
	selector   *Selector
}

// NewEngine creates an engine over src.
func NewEngine(src Source, opts ...SelectorOption) *Engine {
	return &Engine{
		src:        src,
		classifier: NewClassifier(src),
		selector:   NewSelector(src, opts...),
	}
}

// Classify returns the intent for text.
func (e *Engine) Classify(text string) Intent {
	return e.classifier.Classify(text)
}

// Explain returns the intent for text and the keyword that matched.
func (e *Engine) Explain(text string) (Intent, string) {
	return e.classifier.Explain(text)
}

// Reply classifies text and draws a response for the resulting intent.
func (e *Engine) Reply(text string) (Intent, string) {
	in := e.classifier.Classify(text)
	return in, e.selector.Select(in)
}

// Greeting returns the assistant's opening line. fresh selects the variant
// used after the conversation is cleared.
func (e *Engine) Greeting(fresh bool) string {
	g := e.src.Current().Greeting
	if fresh {
		return g.Fresh
	}
	return g.Opening
}

// Celebrates reports whether text should raise the celebration flag.
func (e *Engine) Celebrates(text string) bool {
	return e.src.Current().Celebrates(text)
}

// QuickActions returns the canned prompts offered to visitors.
func (e *Engine) QuickActions() []string {
	actions := e.src.Current().QuickActions
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}
