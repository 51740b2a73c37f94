// Package cli implements the shieldctl command line tool.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// ErrDetected is returned by detect when the input contains sensitive
// data. Execute turns it into exit code 1.
var ErrDetected = errors.New("sensitive data detected")

type options struct {
	configPath string
	rulesFile  string
	detectors  []string
	json       bool
	verbose    bool
}

// NewRootCmd builds the shieldctl command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "shieldctl",
		Short:         "Detect and mask PII and secrets in text",
		Long:          "shieldctl runs the prompt-shield detector locally. Text is read from the arguments or, when none are given, from stdin.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (privacy section is used)")
	root.PersistentFlags().StringVar(&opts.rulesFile, "rules", "", "YAML rules file replacing the built-in rules")
	root.PersistentFlags().StringSliceVar(&opts.detectors, "detectors", nil, "comma-separated categories to enable (default all)")
	root.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "emit JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newDetectCmd(opts),
		newMaskCmd(opts),
		newRulesCmd(opts),
		newTraceCmd(opts),
	)
	return root
}

// Execute runs shieldctl and exits with 1 when detect found something and
// 2 on any other error
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if errors.Is(err, ErrDetected) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

// privacyConfig merges the config file with command line overrides
func (o *options) privacyConfig() (config.PrivacyConfig, error) {
	cfg := config.GetDefaults()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.PrivacyConfig{}, err
		}
		cfg = loaded
	}

	p := cfg.Privacy
	p.Enabled = true
	if o.rulesFile != "" {
		p.RulesFile = o.rulesFile
	}
	if len(o.detectors) > 0 {
		p.Detectors = o.detectors
	}
	return p, nil
}

func (o *options) logger() (*logger.Logger, error) {
	if !o.verbose {
		return logger.NewNop(), nil
	}
	return logger.New(logger.Config{Level: "debug", Format: "console", Stderr: true})
}

func (o *options) detector() (*privacy.Detector, error) {
	cfg, err := o.privacyConfig()
	if err != nil {
		return nil, err
	}
	log, err := o.logger()
	if err != nil {
		return nil, err
	}
	return privacy.New(cfg, log)
}

// readInput joins the arguments, or reads stdin when there are none
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}
