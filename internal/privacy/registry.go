package privacy

import (
	"fmt"
	"regexp"
	"sync"
)

// Pattern is a compiled registry pattern
type Pattern struct {
	name string
	re   *regexp.Regexp
}

// Name returns the sub-pattern name, e.g. "visa"
func (p *Pattern) Name() string { return p.name }

// String returns the compiled expression
func (p *Pattern) String() string { return p.re.String() }

// Rule is a compiled, read-only registry entry
type Rule struct {
	category    Category
	description string
	patterns    []*Pattern
	heuristic   bool
}

// Category returns the rule's category id
func (r *Rule) Category() Category { return r.category }

// Description returns the human readable description
func (r *Rule) Description() string { return r.description }

// Heuristic reports whether matches are gated by the heuristic filter
func (r *Rule) Heuristic() bool { return r.heuristic }

// Patterns returns the rule's patterns in evaluation order
func (r *Rule) Patterns() []*Pattern {
	out := make([]*Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Registry is the fixed, ordered table of compiled rules. It is never
// mutated after NewRegistry returns and is safe for concurrent use.
type Registry struct {
	rules []*Rule
	index map[Category]*Rule
}

// NewRegistry compiles rules in the given order. Any compile failure is
// returned and the registry must not be used.
func NewRegistry(rules []DetectionRule) (*Registry, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("registry requires at least one rule")
	}

	reg := &Registry{
		rules: make([]*Rule, 0, len(rules)),
		index: make(map[Category]*Rule, len(rules)),
	}

	for i, spec := range rules {
		if spec.Category == "" {
			return nil, fmt.Errorf("rule %d: category is required", i)
		}
		if _, dup := reg.index[spec.Category]; dup {
			return nil, fmt.Errorf("rule %s: duplicate category", spec.Category)
		}
		if len(spec.Patterns) == 0 {
			return nil, fmt.Errorf("rule %s: at least one pattern is required", spec.Category)
		}

		rule := &Rule{
			category:    spec.Category,
			description: spec.Description,
			heuristic:   spec.Heuristic,
			patterns:    make([]*Pattern, 0, len(spec.Patterns)),
		}

		for j, ps := range spec.Patterns {
			if ps.Expr == "" {
				return nil, fmt.Errorf("rule %s: pattern %d is empty", spec.Category, j)
			}
			expr := ps.Expr
			if !spec.CaseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid pattern %q: %w", spec.Category, ps.Name, err)
			}
			name := ps.Name
			if name == "" {
				name = fmt.Sprintf("pattern_%d", j)
			}
			rule.patterns = append(rule.patterns, &Pattern{name: name, re: re})
		}

		reg.rules = append(reg.rules, rule)
		reg.index[rule.category] = rule
	}

	return reg, nil
}

// Rules returns all rules in evaluation order
func (r *Registry) Rules() []*Rule {
	out := make([]*Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Rule looks up a single category
func (r *Registry) Rule(category Category) (*Rule, bool) {
	rule, ok := r.index[category]
	return rule, ok
}

// Patterns returns the ordered pattern sequence for a category, or nil
func (r *Registry) Patterns(category Category) []*Pattern {
	rule, ok := r.index[category]
	if !ok {
		return nil
	}
	return rule.Patterns()
}

// Categories returns the category ids in evaluation order
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.category
	}
	return out
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
	defaultRegistryErr  error
)

// DefaultRegistry compiles DefaultRules once per process
func DefaultRegistry() (*Registry, error) {
	defaultRegistryOnce.Do(func() {
		defaultRegistry, defaultRegistryErr = NewRegistry(DefaultRules())
	})
	return defaultRegistry, defaultRegistryErr
}
