package privacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// RedactJSON masks every string value of a JSON document and leaves keys,
// numbers, booleans and nulls untouched, so the output is still valid JSON.
// A document without findings is returned byte for byte. Invalid JSON is
// reported as an error and callers fall back to Redact.
func (d *Detector) RedactJSON(body []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("failed to decode JSON body: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Result{}, fmt.Errorf("failed to decode JSON body: trailing data")
	}

	acc := &jsonRedaction{detector: d, counts: make(map[Category]int)}
	doc = acc.walk(doc)

	if !acc.detected {
		return Result{Text: string(body)}, nil
	}
	if len(acc.counts) == 0 {
		return Result{Text: string(body), Detected: true, EntityDetected: true}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return Result{}, fmt.Errorf("failed to encode JSON body: %w", err)
	}

	findings := make([]Finding, 0, len(acc.counts))
	for _, rule := range d.rules {
		if n, ok := acc.counts[rule.category]; ok {
			findings = append(findings, Finding{Category: rule.category, Count: n})
		}
	}

	return Result{
		Text:     string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))),
		Detected: true,
		Findings: findings,
	}, nil
}

// jsonRedaction sums per-string findings by category
type jsonRedaction struct {
	detector *Detector
	detected bool
	counts   map[Category]int
}

func (j *jsonRedaction) walk(v any) any {
	switch val := v.(type) {
	case string:
		res := j.detector.Redact(val)
		if !res.Detected {
			return val
		}
		j.detected = true
		for _, f := range res.Findings {
			j.counts[f.Category] += f.Count
		}
		return res.Text
	case []any:
		for i := range val {
			val[i] = j.walk(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = j.walk(val[k])
		}
		return val
	default:
		return v
	}
}
