package ner

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"go.uber.org/zap"
)

// DefaultLabels is the label order of dslim/bert-base-NER
var DefaultLabels = []string{"O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC"}

// entityTypes maps model label suffixes to entity labels
var entityTypes = map[string]string{
	"PER":    privacy.LabelPerson,
	"PERSON": privacy.LabelPerson,
	"ORG":    "ORG",
	"LOC":    "LOC",
	"MISC":   "MISC",
}

// Recognizer tags entities with a token-classification model. It implements
// privacy.EntityRecognizer.
type Recognizer struct {
	tokenizer *Tokenizer
	backend   Backend
	labels    []string
	logger    *logger.Logger
}

// NewRecognizer combines a tokenizer, a backend and the model's label list
func NewRecognizer(tokenizer *Tokenizer, backend Backend, labels []string, log *logger.Logger) (*Recognizer, error) {
	if tokenizer == nil || backend == nil {
		return nil, fmt.Errorf("recognizer requires a tokenizer and a backend")
	}
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Recognizer{tokenizer: tokenizer, backend: backend, labels: labels, logger: log}, nil
}

// Name implements privacy.EntityRecognizer
func (r *Recognizer) Name() string { return "onnx-ner" }

// Close releases the backend
func (r *Recognizer) Close() error { return r.backend.Close() }

// Entities implements privacy.EntityRecognizer. Inference failures and
// panics yield no entities.
func (r *Recognizer) Entities(text string) (entities []privacy.Entity) {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Entity recognition panicked", zap.Any("panic", rec))
			entities = nil
		}
	}()

	input := r.tokenizer.Encode(text)
	logits, err := r.backend.Classify(context.Background(), input)
	if err != nil {
		r.logger.Warn("Entity recognition failed", zap.Error(err))
		return nil
	}
	if len(logits) != input.Len() {
		r.logger.Warn("Entity recognition returned wrong row count",
			zap.Int("rows", len(logits)),
			zap.Int("tokens", input.Len()),
		)
		return nil
	}

	return r.decode(text, input, logits)
}

// decode groups BIO-tagged tokens into entity spans. Continuation word
// pieces always extend the current entity.
func (r *Recognizer) decode(text string, input *TokenizedInput, logits [][]float32) []privacy.Entity {
	var (
		out     []privacy.Entity
		current *privacy.Entity
		scores  []float32
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = text[current.Start:current.End]
		current.Score = mean(scores)
		out = append(out, *current)
		current, scores = nil, nil
	}

	for i, span := range input.Offsets {
		if span[0] < 0 {
			continue
		}

		label, score := r.best(logits[i])

		if !input.WordStart[i] {
			if current != nil {
				current.End = span[1]
				scores = append(scores, score)
			}
			continue
		}

		prefix, kind := splitLabel(label)
		entityType, known := entityTypes[kind]
		if label == "O" || !known {
			flush()
			continue
		}

		if prefix == "I" && current != nil && current.Label == entityType {
			current.End = span[1]
			scores = append(scores, score)
			continue
		}

		flush()
		current = &privacy.Entity{Label: entityType, Start: span[0], End: span[1]}
		scores = []float32{score}
	}
	flush()

	return out
}

// best returns the arg-max label and its softmax probability
func (r *Recognizer) best(row []float32) (string, float32) {
	if len(row) == 0 {
		return "O", 0
	}

	maxIdx := 0
	for i, v := range row {
		if v > row[maxIdx] {
			maxIdx = i
		}
	}

	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - row[maxIdx]))
	}
	prob := float32(1 / sum)

	if maxIdx >= len(r.labels) {
		return "O", prob
	}
	return r.labels[maxIdx], prob
}

func splitLabel(label string) (prefix, kind string) {
	if p, k, ok := strings.Cut(label, "-"); ok && (p == "B" || p == "I") {
		return p, k
	}
	return "B", label
}

func mean(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	var total float32
	for _, v := range values {
		total += v
	}
	return total / float32(len(values))
}
