// Package evaluate measures detector accuracy against labelled datasets.
// Only counts and row numbers are reported; text never leaves the process.
package evaluate

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/prompt-shield/internal/privacy"
)

// Record is one labelled sample. Label is 1 when the text contains
// sensitive data and 0 otherwise.
type Record struct {
	Text      string `json:"text"`
	LabelText string `json:"label_text,omitempty"`
	Label     int64  `json:"label"`

	row int64
}

// Config contains evaluation settings
type Config struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`
	MaxTextLength  int `yaml:"max_text_length" mapstructure:"max_text_length"`
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"`
	MaxSampleRows  int `yaml:"max_sample_rows" mapstructure:"max_sample_rows"`
}

// DefaultConfig returns the settings used when a field is left at zero
func DefaultConfig() Config {
	return Config{
		BatchSize:      1000,
		WorkerCount:    4,
		MaxTextLength:  100000,
		ProgressReport: 10000,
		MaxSampleRows:  20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = def.MaxTextLength
	}
	if c.ProgressReport <= 0 {
		c.ProgressReport = def.ProgressReport
	}
	switch {
	case c.MaxSampleRows == 0:
		c.MaxSampleRows = def.MaxSampleRows
	case c.MaxSampleRows < 0:
		c.MaxSampleRows = 0
	}
	return c
}

// Report is the confusion matrix of one evaluation run
type Report struct {
	TotalRecords   int64                      `json:"total_records"`
	Skipped        int64                      `json:"skipped"`
	TruePositives  int64                      `json:"true_positives"`
	FalsePositives int64                      `json:"false_positives"`
	TrueNegatives  int64                      `json:"true_negatives"`
	FalseNegatives int64                      `json:"false_negatives"`
	EntityOnly     int64                      `json:"entity_only"`
	Categories     map[privacy.Category]int64 `json:"categories"`

	// Row numbers (1-based, data rows only) of misclassified samples
	FalsePositiveRows []int64 `json:"false_positive_rows,omitempty"`
	FalseNegativeRows []int64 `json:"false_negative_rows,omitempty"`

	Duration time.Duration `json:"duration"`
}

func newReport() *Report {
	return &Report{Categories: make(map[privacy.Category]int64)}
}

// Precision is TP / (TP + FP), or 0 when nothing was flagged
func (r *Report) Precision() float64 {
	return ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
}

// Recall is TP / (TP + FN), or 0 when the dataset has no positives
func (r *Report) Recall() float64 {
	return ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall
func (r *Report) F1() float64 {
	p, rc := r.Precision(), r.Recall()
	if p+rc == 0 {
		return 0
	}
	return 2 * p * rc / (p + rc)
}

// Accuracy is the share of evaluated records classified correctly
func (r *Report) Accuracy() float64 {
	return ratio(r.TruePositives+r.TrueNegatives, r.evaluated())
}

func (r *Report) evaluated() int64 {
	return r.TruePositives + r.FalsePositives + r.TrueNegatives + r.FalseNegatives
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) (FileFormat, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, true
	case ".parquet":
		return FormatParquet, true
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, true
	default:
		return "", false
	}
}

// ParseFormat accepts an explicit format name
func ParseFormat(name string) (FileFormat, bool) {
	switch f := FileFormat(strings.ToLower(name)); f {
	case FormatCSV, FormatParquet, FormatJSONL:
		return f, true
	case "json", "ndjson":
		return FormatJSONL, true
	default:
		return "", false
	}
}
