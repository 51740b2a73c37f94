package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/logger"
	"go.uber.org/zap"
)

// Detector handles PII detection and masking. All state is built in New
// and only read afterwards, so a Detector is safe for concurrent use.
type Detector struct {
	registry   *Registry
	rules      []*Rule
	heuristics HeuristicConfig
	pipeline   *Pipeline
	recognizer EntityRecognizer
	logger     *logger.Logger
	config     config.PrivacyConfig
}

// Option customises a Detector
type Option func(*options)

type options struct {
	registry   *Registry
	recognizer EntityRecognizer
}

// WithRegistry uses reg instead of the rules file or the default registry
func WithRegistry(reg *Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithEntityRecognizer adds a secondary entity recogniser to Detect
func WithEntityRecognizer(r EntityRecognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// New creates a new PII detector instance
func New(cfg config.PrivacyConfig, log *logger.Logger, opts ...Option) (*Detector, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if o.recognizer == nil {
		o.recognizer = NoopRecognizer{}
	}

	reg, err := resolveRegistry(cfg, o.registry)
	if err != nil {
		return nil, err
	}

	distinctRatio := DefaultDistinctRatioThreshold
	if r := cfg.Heuristics.DistinctRatio; r != nil {
		distinctRatio = *r
	}

	detector := &Detector{
		registry:   reg,
		recognizer: o.recognizer,
		logger:     log.WithComponent("privacy"),
		config:     cfg,
		heuristics: NewHeuristicConfig(
			cfg.Heuristics.MinLength,
			cfg.Heuristics.GenericLabels,
			distinctRatio,
		),
	}

	// Configure enabled detectors
	if err := detector.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}
	detector.pipeline = NewPipeline(detector.rules, detector.heuristics)

	detector.logger.Info("Privacy detector initialized",
		zap.Int("total_rules", len(reg.rules)),
		zap.Int("enabled_rules", len(detector.rules)),
		zap.Int("pipeline_stages", len(detector.pipeline.stages)),
		zap.String("entity_recognizer", detector.recognizer.Name()),
	)

	return detector, nil
}

func resolveRegistry(cfg config.PrivacyConfig, reg *Registry) (*Registry, error) {
	switch {
	case reg != nil:
		return reg, nil
	case cfg.RulesFile != "":
		rules, err := LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		reg, err := NewRegistry(rules)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rules from %s: %w", cfg.RulesFile, err)
		}
		return reg, nil
	default:
		reg, err := DefaultRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to compile default rules: %w", err)
		}
		return reg, nil
	}
}

// configureDetectors selects the enabled rules, preserving registry order.
// An empty list or "all" enables every rule.
func (d *Detector) configureDetectors(detectors []string) error {
	enabled := make(map[Category]bool, len(d.registry.rules))
	all := len(detectors) == 0

	for _, name := range detectors {
		if name == "all" {
			all = true
			continue
		}
		if _, ok := d.registry.index[Category(name)]; !ok {
			return fmt.Errorf("unknown detector: %s", name)
		}
		enabled[Category(name)] = true
	}

	d.rules = d.rules[:0]
	for _, rule := range d.registry.rules {
		if all || enabled[rule.category] {
			d.rules = append(d.rules, rule)
		}
	}

	return nil
}

// Find returns the first confirmed structural match. Categories run in
// registry order and patterns in declaration order; only the leftmost match
// of each pattern is considered, and a rejected match moves on to the next
// pattern.
func (d *Detector) Find(text string) (Match, bool) {
	if text == "" {
		return Match{}, false
	}

	for _, rule := range d.rules {
		for _, pattern := range rule.patterns {
			loc := pattern.re.FindStringSubmatchIndex(text)
			if loc == nil {
				continue
			}
			m := newMatch(rule.category, pattern, text, loc)
			if rule.heuristic {
				if verdict := d.heuristics.Evaluate(m.Value); verdict != VerdictConfirmed {
					d.logger.Debug("Candidate rejected by heuristics",
						zap.String("category", string(rule.category)),
						zap.String("verdict", string(verdict)),
					)
					continue
				}
			}
			return m, true
		}
	}

	return Match{}, false
}

// Persons runs the entity recogniser and keeps plausible person names
func (d *Detector) Persons(text string) []Entity {
	if text == "" {
		return nil
	}
	return FilterPersons(d.recognizer.Entities(text), d.heuristics)
}

// Detect reports whether text contains at least one confirmed sensitive
// value. It short-circuits on the first confirmation.
func (d *Detector) Detect(text string) bool {
	if m, ok := d.Find(text); ok {
		d.logger.Debug("PII detected",
			zap.String("category", string(m.Category)),
			zap.String("pattern", m.Pattern),
		)
		return true
	}

	if persons := d.Persons(text); len(persons) > 0 {
		d.logger.Debug("Person entity detected", zap.Int("count", len(persons)))
		return true
	}

	return false
}

// Mask returns text with every confirmed value replaced by MaskToken, or
// the input unchanged when Detect reports nothing.
func (d *Detector) Mask(text string) string {
	return d.Redact(text).Text
}

// Redact masks text and reports how many values were replaced per
// category. Entity-only findings set Detected but leave the text as is.
func (d *Detector) Redact(text string) Result {
	if _, ok := d.Find(text); !ok {
		if len(d.Persons(text)) > 0 {
			return Result{Text: text, Detected: true, EntityDetected: true}
		}
		return Result{Text: text}
	}

	masked, findings := d.pipeline.Run(text)
	for _, f := range findings {
		d.logger.Debug("PII masked",
			zap.String("category", string(f.Category)),
			zap.Int("count", f.Count),
		)
	}

	return Result{Text: masked, Detected: true, Findings: findings}
}

// Pipeline returns the masking pipeline for the enabled rules
func (d *Detector) Pipeline() *Pipeline {
	return d.pipeline
}

// Heuristics returns the active heuristic thresholds
func (d *Detector) Heuristics() HeuristicConfig {
	return d.heuristics
}

// Rules returns the enabled rules in evaluation order
func (d *Detector) Rules() []*Rule {
	out := make([]*Rule, len(d.rules))
	copy(out, d.rules)
	return out
}

// EnabledCategories returns the enabled categories in evaluation order
func (d *Detector) EnabledCategories() []Category {
	out := make([]Category, len(d.rules))
	for i, rule := range d.rules {
		out[i] = rule.category
	}
	return out
}

// RecognizerName names the active entity recogniser
func (d *Detector) RecognizerName() string {
	return d.recognizer.Name()
}

// Fingerprint identifies the detector's behaviour: enabled rules, their
// patterns, the heuristic thresholds and the recogniser. Detectors with
// equal fingerprints return the same verdicts.
func (d *Detector) Fingerprint() string {
	h := sha256.New()
	for _, rule := range d.rules {
		fmt.Fprintf(h, "%s|%t\n", rule.category, rule.heuristic)
		for _, p := range rule.patterns {
			fmt.Fprintf(h, "%s=%s\n", p.name, p.re.String())
		}
	}

	labels := d.heuristics.GenericLabels()
	sort.Strings(labels)
	fmt.Fprintf(h, "%d|%g|%v|%s", d.heuristics.MinLength, d.heuristics.DistinctRatioThreshold, labels, d.recognizer.Name())

	return hex.EncodeToString(h.Sum(nil))[:16]
}
