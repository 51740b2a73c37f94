package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/raaihank/prompt-shield/internal/cache"
	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/evaluate"
	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/ner"
	"github.com/raaihank/prompt-shield/internal/privacy"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Labelled dataset (CSV, Parquet or JSON Lines)")
		format     = flag.String("format", "", "Dataset format (csv, parquet, jsonl); inferred from the extension when empty")
		batchSize  = flag.Int("batch-size", 1000, "Records read per batch")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
		samples    = flag.Int("samples", 20, "Misclassified row numbers to report per class (-1 for none)")
		asJSON     = flag.Bool("json", false, "Print the report as JSON")
		showStats  = flag.Bool("cache-stats", false, "Show verdict cache statistics and exit")
		clearCache = flag.Bool("clear-cache", false, "Delete all cached verdicts and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats && !*clearCache {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --workers 8 --json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --cache-stats\n", os.Args[0])
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so the report can be piped
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Stderr: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *showStats, *clearCache:
		if err := cacheCommand(ctx, cfg, log, *clearCache); err != nil {
			log.Fatal("Cache operation failed", zap.Error(err))
		}
	default:
		dataFormat := evaluate.FileFormat("")
		if *format != "" {
			f, ok := evaluate.ParseFormat(*format)
			if !ok {
				log.Fatal("Unknown dataset format", zap.String("format", *format))
			}
			dataFormat = f
		}

		evalConfig := evaluate.Config{
			BatchSize:     *batchSize,
			WorkerCount:   *workers,
			MaxSampleRows: *samples,
		}
		if err := processDataset(ctx, cfg, evalConfig, *inputFile, dataFormat, *asJSON, log); err != nil {
			log.Fatal("Evaluation failed", zap.Error(err))
		}
	}
}

// processDataset evaluates the configured detector against inputFile
func processDataset(ctx context.Context, cfg *config.Config, evalConfig evaluate.Config, inputFile string, format evaluate.FileFormat, asJSON bool, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); err != nil {
		return fmt.Errorf("input file: %w", err)
	}

	entities := ner.NewLoader(cfg.Privacy.Entities, log)
	defer entities.Close()

	detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"),
		privacy.WithEntityRecognizer(entities.Recognizer()))
	if err != nil {
		return fmt.Errorf("failed to create privacy detector: %w", err)
	}

	report, err := evaluate.NewPipeline(detector, evalConfig, log).ProcessFile(ctx, inputFile, format)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(os.Stdout, report)
	return nil
}

func printReport(out io.Writer, r *evaluate.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "\n=== Evaluation ===\n")
	fmt.Fprintf(w, "Records:\t%d\n", r.TotalRecords)
	fmt.Fprintf(w, "Skipped:\t%d\n", r.Skipped)
	fmt.Fprintf(w, "Duration:\t%v\n", r.Duration)

	fmt.Fprintf(w, "\n\tpredicted PII\tpredicted clean\n")
	fmt.Fprintf(w, "labelled PII\t%d\t%d\n", r.TruePositives, r.FalseNegatives)
	fmt.Fprintf(w, "labelled clean\t%d\t%d\n", r.FalsePositives, r.TrueNegatives)

	fmt.Fprintf(w, "\nPrecision:\t%.4f\n", r.Precision())
	fmt.Fprintf(w, "Recall:\t%.4f\n", r.Recall())
	fmt.Fprintf(w, "F1:\t%.4f\n", r.F1())
	fmt.Fprintf(w, "Accuracy:\t%.4f\n", r.Accuracy())

	fmt.Fprintf(w, "\n=== First match by category ===\n")
	categories := make([]privacy.Category, 0, len(r.Categories))
	for c := range r.Categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return r.Categories[categories[i]] > r.Categories[categories[j]] })
	for _, c := range categories {
		fmt.Fprintf(w, "%s\t%d\n", c, r.Categories[c])
	}
	if r.EntityOnly > 0 {
		fmt.Fprintf(w, "entity only\t%d\n", r.EntityOnly)
	}

	if len(r.FalsePositiveRows) > 0 {
		fmt.Fprintf(w, "\nFalse positive rows:\t%v\n", r.FalsePositiveRows)
	}
	if len(r.FalseNegativeRows) > 0 {
		fmt.Fprintf(w, "False negative rows:\t%v\n", r.FalseNegativeRows)
	}

	w.Flush()
}

// cacheCommand shows or clears the verdict cache
func cacheCommand(ctx context.Context, cfg *config.Config, log *logger.Logger, wipe bool) error {
	verdicts, err := cache.NewVerdictCache(cfg.Cache, log)
	if err != nil {
		return err
	}
	defer verdicts.Close()

	if wipe {
		if err := verdicts.Clear(ctx); err != nil {
			return err
		}
		log.Info("Verdict cache cleared")
		return nil
	}

	stats, err := verdicts.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n=== Verdict Cache ===\n")
	fmt.Fprintf(w, "Cached verdicts:\t%d\n", stats.TotalKeys)
	return w.Flush()
}
