// Package voice turns recognised speech into commands and keeps the
// recogniser listening.
package voice

import (
	"strings"
)

type Kind int

const (
	None Kind = iota
	Wake
	Reading
	Navigation
	Currency
	FlashOn
	FlashOff
	CurrencyTotal
	CurrencyReset
	Query
)

func (k Kind) String() string {
	switch k {
	case Wake:
		return "wake"
	case Reading:
		return "reading"
	case Navigation:
		return "navigation"
	case Currency:
		return "currency"
	case FlashOn:
		return "flash-on"
	case FlashOff:
		return "flash-off"
	case CurrencyTotal:
		return "currency-total"
	case CurrencyReset:
		return "currency-reset"
	case Query:
		return "query"
	default:
		return "none"
	}
}

// Scope tells the router which mode-dependent categories are live.
type Scope struct {
	Assistant bool
	Currency  bool
}

type Command struct {
	Kind Kind
	// Text is the normalised utterance; for Query it is the question.
	Text string
}

type category struct {
	kind    Kind
	phrases []string
	// only reports whether the category applies in scope s.
	only func(s Scope) bool
}

// Vocabulary maps each command category to the phrases that trigger it.
type Vocabulary map[Kind][]string

// DefaultVocabulary is tuned to common mis-hearings of the wake phrase.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Wake:          {"hey siri", "hey series", "hey ciri", "hi siri", "a siri", "hey serie", "hey zero", "hey silly"},
		Reading:       {"read", "reading", "read mode", "reader", "text mode"},
		Navigation:    {"navigate", "navigation", "guide", "walking mode"},
		Currency:      {"currency", "money", "detect currency", "identify money", "bill detection", "cash detection"},
		FlashOn:       {"light on", "flashlight on", "torch on", "turn on light"},
		FlashOff:      {"light off", "flashlight off", "torch off", "turn off light"},
		CurrencyTotal: {"total", "how much"},
		CurrencyReset: {"reset", "start over"},
	}
}

// minQueryLen is the shortest utterance forwarded as a free-text question.
const minQueryLen = 4

// Router matches utterances against a fixed priority order of categories.
// The first matching category wins and consumes the utterance.
type Router struct {
	order []category
}

func NewRouter(v Vocabulary) *Router {
	if v == nil {
		v = DefaultVocabulary()
	}

	inCurrency := func(s Scope) bool { return s.Currency }

	return &Router{order: []category{
		{kind: Wake, phrases: v[Wake]},
		{kind: Reading, phrases: v[Reading]},
		{kind: Navigation, phrases: v[Navigation]},
		{kind: Currency, phrases: v[Currency]},
		{kind: FlashOn, phrases: v[FlashOn]},
		{kind: FlashOff, phrases: v[FlashOff]},
		{kind: CurrencyTotal, phrases: v[CurrencyTotal], only: inCurrency},
		{kind: CurrencyReset, phrases: v[CurrencyReset], only: inCurrency},
	}}
}

// Route classifies text. Partial results only ever produce commands; a
// free-text Query needs a final result in assistant scope.
func (r *Router) Route(text string, s Scope, final bool) Command {
	norm := normalize(text)
	if norm == "" {
		return Command{Kind: None}
	}

	for _, c := range r.order {
		if c.only != nil && !c.only(s) {
			continue
		}
		if containsAny(norm, c.phrases) {
			return Command{Kind: c.kind, Text: norm}
		}
	}

	if s.Assistant && final && len(norm) >= minQueryLen {
		return Command{Kind: Query, Text: strings.TrimSpace(text)}
	}
	return Command{Kind: None, Text: norm}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// InitialPrompt lists the command phrases so the decoder favours them.
func InitialPrompt(v Vocabulary) string {
	var words []string
	for _, k := range []Kind{Wake, Reading, Navigation, Currency, FlashOn, FlashOff} {
		if p := v[k]; len(p) > 0 {
			words = append(words, p[0])
		}
	}
	return strings.Join(words, ", ") + "."
}
