package privacy

import "strings"

// Stage is one step of the masking pipeline: a single registry pattern
// applied as a replace-all over the text it receives.
type Stage struct {
	Category  Category
	Pattern   *Pattern
	heuristic *HeuristicConfig
}

// newMatch builds a Match from a submatch index slice. The value is group 2
// when the pattern has one and it participated, otherwise the whole match.
func newMatch(category Category, pattern *Pattern, text string, loc []int) Match {
	m := Match{
		Category:   category,
		Pattern:    pattern.name,
		Start:      loc[0],
		End:        loc[1],
		ValueStart: loc[0],
		ValueEnd:   loc[1],
	}
	if len(loc) >= 6 && loc[4] >= 0 {
		m.ValueStart, m.ValueEnd = loc[4], loc[5]
	}
	m.Value = text[m.ValueStart:m.ValueEnd]
	return m
}

// confirmed reports whether a match survives the stage's heuristic gate
func (s Stage) confirmed(m Match) bool {
	return s.heuristic == nil || s.heuristic.Confirm(m.Value)
}

// Apply replaces the value span of every confirmed match with MaskToken and
// returns the new text and the number of replacements. Rejected matches are
// copied through verbatim.
func (s Stage) Apply(text string) (string, int) {
	locs := s.Pattern.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))

	last, replaced := 0, 0
	for _, loc := range locs {
		m := newMatch(s.Category, s.Pattern, text, loc)
		if !s.confirmed(m) {
			continue
		}
		b.WriteString(text[last:m.ValueStart])
		b.WriteString(MaskToken)
		last = m.ValueEnd
		replaced++
	}

	if replaced == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), replaced
}

// Pipeline is the ordered list of masking stages, one per (category,
// pattern) pair of the enabled registry rules.
type Pipeline struct {
	stages []Stage
}

// StageTrace records what a single stage saw and produced
type StageTrace struct {
	Category Category
	Pattern  string
	Input    string
	Output   string
	Replaced int
}

// NewPipeline builds stages for the given rules in order. Heuristic rules
// are gated by h.
func NewPipeline(rules []*Rule, h HeuristicConfig) *Pipeline {
	p := &Pipeline{}
	for _, rule := range rules {
		var gate *HeuristicConfig
		if rule.heuristic {
			gate = &h
		}
		for _, pattern := range rule.patterns {
			p.stages = append(p.stages, Stage{Category: rule.category, Pattern: pattern, heuristic: gate})
		}
	}
	return p
}

// Stages returns a copy of the pipeline's stages
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Run feeds the text through every stage, each stage consuming the previous
// stage's output. Findings are aggregated per category in stage order.
func (p *Pipeline) Run(text string) (string, []Finding) {
	var findings []Finding
	index := make(map[Category]int)

	for _, stage := range p.stages {
		var n int
		text, n = stage.Apply(text)
		if n == 0 {
			continue
		}
		if i, ok := index[stage.Category]; ok {
			findings[i].Count += n
			continue
		}
		index[stage.Category] = len(findings)
		findings = append(findings, Finding{Category: stage.Category, Count: n})
	}

	return text, findings
}

// Trace runs the pipeline and records the input seen by every stage
func (p *Pipeline) Trace(text string) []StageTrace {
	traces := make([]StageTrace, 0, len(p.stages))
	for _, stage := range p.stages {
		out, n := stage.Apply(text)
		traces = append(traces, StageTrace{
			Category: stage.Category,
			Pattern:  stage.Pattern.name,
			Input:    text,
			Output:   out,
			Replaced: n,
		})
		text = out
	}
	return traces
}
