package privacy

import (
	"strings"
	"unicode/utf8"
)

// LabelPerson is the entity label that can flag text as sensitive
const LabelPerson = "PERSON"

// Entity is a span tagged by a named-entity recogniser. Start and End are
// byte offsets into the analysed text.
type Entity struct {
	Text  string  `json:"-"`
	Label string  `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float32 `json:"score"`
}

// EntityRecognizer tags named entities in text. Implementations must be
// safe for concurrent use and must not panic on any input.
type EntityRecognizer interface {
	Name() string
	Entities(text string) []Entity
}

// NoopRecognizer is used when no model is configured or it failed to load
type NoopRecognizer struct{}

// Name implements EntityRecognizer
func (NoopRecognizer) Name() string { return "none" }

// Entities implements EntityRecognizer
func (NoopRecognizer) Entities(string) []Entity { return nil }

// personDenyTerms reject spans the model often mistakes for names
var personDenyTerms = []string{"api", "openai", "key"}

const minPersonRunes = 4

// FilterPersons keeps PERSON entities that look like a real full name
func FilterPersons(entities []Entity, h HeuristicConfig) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Label != LabelPerson {
			continue
		}

		span := strings.ToLower(strings.TrimSpace(e.Text))
		if h.IsGenericLabel(span) || utf8.RuneCountInString(span) < minPersonRunes {
			continue
		}
		if len(strings.Fields(span)) < 2 {
			continue
		}
		if containsAny(span, personDenyTerms) {
			continue
		}

		out = append(out, e)
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
