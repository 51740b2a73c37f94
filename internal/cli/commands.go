package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/raaihank/prompt-shield/internal/privacy"
	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type detectOutput struct {
	Detected bool             `json:"detected"`
	Category privacy.Category `json:"category,omitempty"`
	Pattern  string           `json:"pattern,omitempty"`
}

func newDetectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [text...]",
		Short: "Report whether text contains sensitive data",
		Long:  "detect exits with status 1 when sensitive data is found, so it can guard commit hooks and pipelines. The matched value is never printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.detector()
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			out := detectOutput{Detected: d.Detect(text)}
			if m, ok := d.Find(text); ok {
				out.Category, out.Pattern = m.Category, m.Pattern
			}

			if opts.json {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				switch {
				case out.Category != "":
					fmt.Fprintf(cmd.OutOrStdout(), "detected: %s (%s)\n", out.Category, out.Pattern)
				case out.Detected:
					fmt.Fprintln(cmd.OutOrStdout(), "detected: person name")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "clean")
				}
			}

			if out.Detected {
				return ErrDetected
			}
			return nil
		},
	}
}

func newMaskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mask [text...]",
		Short: "Print text with sensitive values replaced by " + privacy.MaskToken,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.detector()
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			res := d.Redact(text)
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}

type ruleOutput struct {
	Category    privacy.Category `json:"category"`
	Description string           `json:"description"`
	Heuristic   bool             `json:"heuristic"`
	Patterns    []string         `json:"patterns"`
}

func newRulesCmd(opts *options) *cobra.Command {
	var export bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the enabled detection rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if export {
				body, err := privacy.MarshalRules(privacy.DefaultRules())
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}

			d, err := opts.detector()
			if err != nil {
				return err
			}

			var rules []ruleOutput
			for _, rule := range d.Rules() {
				out := ruleOutput{
					Category:    rule.Category(),
					Description: rule.Description(),
					Heuristic:   rule.Heuristic(),
				}
				for _, p := range rule.Patterns() {
					out.Patterns = append(out.Patterns, p.Name())
				}
				rules = append(rules, out)
			}

			if opts.json {
				return writeJSON(cmd.OutOrStdout(), rules)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tHEURISTIC\tPATTERNS\tDESCRIPTION")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%t\t%d\t%s\n", r.Category, r.Heuristic, len(r.Patterns), r.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&export, "export", false, "print the built-in rules as YAML, a starting point for --rules")
	return cmd
}

type traceOutput struct {
	Category privacy.Category `json:"category"`
	Pattern  string           `json:"pattern"`
	Replaced int              `json:"replaced"`
	Output   string           `json:"output"`
}

func newTraceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "trace [text...]",
		Short: "Show which masking stages changed the text",
		Long:  "trace prints every stage that replaced a value, with the text as it left that stage. Use it to debug overlapping patterns on test data only.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.detector()
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			var steps []traceOutput
			for _, st := range d.Pipeline().Trace(text) {
				if st.Replaced == 0 {
					continue
				}
				steps = append(steps, traceOutput{Category: st.Category, Pattern: st.Pattern, Replaced: st.Replaced, Output: st.Output})
			}

			if opts.json {
				return writeJSON(cmd.OutOrStdout(), steps)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, s := range steps {
				fmt.Fprintf(w, "%s/%s\t%d\t%s\n", s.Category, s.Pattern, s.Replaced, s.Output)
			}
			return w.Flush()
		},
	}
}
