package evaluate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Classifier is the part of the privacy detector an evaluation needs
type Classifier interface {
	Find(text string) (privacy.Match, bool)
	Detect(text string) bool
}

// Pipeline runs a Classifier over labelled datasets
type Pipeline struct {
	detector Classifier
	config   Config
	logger   *logger.Logger
}

// NewPipeline creates a new evaluation pipeline
func NewPipeline(detector Classifier, cfg Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		detector: detector,
		config:   cfg.withDefaults(),
		logger:   log.WithComponent("evaluate"),
	}
}

// ProcessFile evaluates a CSV, Parquet or JSON Lines dataset. An empty
// format is inferred from the file extension.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string, format FileFormat) (*Report, error) {
	if format == "" {
		var ok bool
		if format, ok = DetectFileFormat(filePath); !ok {
			return nil, fmt.Errorf("cannot infer dataset format from %q", filePath)
		}
	}

	p.logger.Info("Starting evaluation",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount),
	)

	start := time.Now()
	report := newReport()

	read, closer, err := openReader(filePath, format, func(row int64, reason string) {
		report.Skipped++
		p.logger.Debug("Skipping record", zap.Int64("row", row), zap.String("reason", reason))
	})
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	if err := p.processBatches(ctx, read, report); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	p.logger.Info("Evaluation completed",
		zap.Int64("total_records", report.TotalRecords),
		zap.Int64("skipped", report.Skipped),
		zap.Float64("precision", report.Precision()),
		zap.Float64("recall", report.Recall()),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// ProcessRecords evaluates records already in memory
func (p *Pipeline) ProcessRecords(ctx context.Context, records []*Record) (*Report, error) {
	start := time.Now()
	report := newReport()
	for i, rec := range records {
		if rec.row == 0 {
			rec.row = int64(i + 1)
		}
	}

	next := 0
	read := func(n int) ([]*Record, error) {
		end := next + n
		if end > len(records) {
			end = len(records)
		}
		batch := records[next:end]
		next = end
		return batch, nil
	}

	if err := p.processBatches(ctx, read, report); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (p *Pipeline) processBatches(ctx context.Context, read batchReader, report *Report) error {
	var lastReport int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := read(p.config.BatchSize)
		if len(batch) > 0 {
			if perr := p.processBatch(ctx, batch, report); perr != nil {
				return perr
			}
		}
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if report.TotalRecords-lastReport >= int64(p.config.ProgressReport) {
			lastReport = report.TotalRecords
			p.logger.Info("Evaluation progress",
				zap.Int64("records_processed", report.TotalRecords),
				zap.Int64("skipped", report.Skipped),
			)
		}
	}

	sortRows(report.FalsePositiveRows)
	sortRows(report.FalseNegativeRows)
	return nil
}

// tally is one worker's share of a batch
type tally struct {
	tp, fp, tn, fn, entityOnly, skipped int64
	categories                          map[privacy.Category]int64
	fpRows, fnRows                      []int64
}

// processBatch splits a batch across the worker pool
func (p *Pipeline) processBatch(ctx context.Context, batch []*Record, report *Report) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.WorkerCount)

	var mu sync.Mutex
	chunk := (len(batch) + p.config.WorkerCount - 1) / p.config.WorkerCount

	for start := 0; start < len(batch); start += chunk {
		end := start + chunk
		if end > len(batch) {
			end = len(batch)
		}
		part := batch[start:end]

		g.Go(func() error {
			t := tally{categories: make(map[privacy.Category]int64)}
			for _, rec := range part {
				if err := ctx.Err(); err != nil {
					return err
				}
				p.classify(rec, &t)
			}

			mu.Lock()
			p.merge(report, &t)
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

func (p *Pipeline) classify(rec *Record, t *tally) {
	if rec.Text == "" || len(rec.Text) > p.config.MaxTextLength {
		t.skipped++
		return
	}

	detected := p.detector.Detect(rec.Text)
	if detected {
		if m, ok := p.detector.Find(rec.Text); ok {
			t.categories[m.Category]++
		} else {
			t.entityOnly++
		}
	}

	switch {
	case detected && rec.Label == 1:
		t.tp++
	case detected:
		t.fp++
		t.fpRows = append(t.fpRows, rec.row)
	case rec.Label == 1:
		t.fn++
		t.fnRows = append(t.fnRows, rec.row)
	default:
		t.tn++
	}
}

func (p *Pipeline) merge(report *Report, t *tally) {
	report.TotalRecords += t.tp + t.fp + t.tn + t.fn
	report.Skipped += t.skipped
	report.TruePositives += t.tp
	report.FalsePositives += t.fp
	report.TrueNegatives += t.tn
	report.FalseNegatives += t.fn
	report.EntityOnly += t.entityOnly
	for c, n := range t.categories {
		report.Categories[c] += n
	}
	report.FalsePositiveRows = appendRows(report.FalsePositiveRows, t.fpRows, p.config.MaxSampleRows)
	report.FalseNegativeRows = appendRows(report.FalseNegativeRows, t.fnRows, p.config.MaxSampleRows)
}

// appendRows keeps at most limit rows, preferring the lowest row numbers
func appendRows(dst, src []int64, limit int) []int64 {
	dst = append(dst, src...)
	if len(dst) > limit {
		sortRows(dst)
		dst = dst[:limit]
	}
	return dst
}

func sortRows(rows []int64) {
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })
}
