package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/jobdoc"
	"github.com/3leaps/gojobgraph/pkg/output"
	"github.com/3leaps/gojobgraph/pkg/workspace"
)

var validateCmd = &cobra.Command{
	Use:   "validate <doc>",
	Short: "Validate a job document",
	Long: `Load a job document and report every problem found in it.

Jobs missing a required field, or repeating an earlier id, are dropped and
reported as errors. Malformed optional fields are ignored and reported as
warnings. The command fails only when no job survives.

Examples:
  gojobgraph validate jobs.json
  gojobgraph validate s3://bucket/exports/jobs.yaml
  gojobgraph validate jobs.json --jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("jsonl", false, "Emit JSONL records instead of text")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonl := wantJSONL(cmd)

	res, loc, err := loadDocument(ctx, args[0])
	if err != nil {
		observability.CLILogger.Error("Failed to load job document", zap.String("source", args[0]), zap.Error(err))
		var le *jobdoc.LoadError
		if jsonl && errors.As(err, &le) {
			w := newJSONLWriter(cmd, "", args[0])
			_ = w.WriteError(ctx, &output.ErrorRecord{
				Code:    output.ErrCodeInvalidDocument,
				Message: jobdoc.ErrInvalidDocument.Error(),
				Details: map[string]any{"errors": le.Errors},
			})
			_ = w.Close()
		}
		return exitError(foundry.ExitInvalidArgument, "Invalid job document", err)
	}

	if jsonl {
		w := newJSONLWriter(cmd, workspace.AnnotationsKey(res.Document.IDs()), loc.String())
		defer func() { _ = w.Close() }()
		for _, msg := range res.Errors {
			if err := w.WriteValidation(ctx, &output.ValidationRecord{Level: output.LevelError, Message: msg}); err != nil {
				return err
			}
		}
		for _, msg := range res.Warnings {
			if err := w.WriteValidation(ctx, &output.ValidationRecord{Level: output.LevelWarning, Message: msg}); err != nil {
				return err
			}
		}
		return nil
	}

	out := cmd.OutOrStdout()
	status := "✅"
	if !res.Valid() {
		status = "⚠️ "
	}
	_, _ = fmt.Fprintf(out, "%s %s: %d jobs, %d errors, %d warnings\n",
		status, loc.String(), len(res.Document.Jobs), len(res.Errors), len(res.Warnings))
	for _, msg := range res.Errors {
		_, _ = fmt.Fprintf(out, "  error:   %s\n", msg)
	}
	for _, msg := range res.Warnings {
		_, _ = fmt.Fprintf(out, "  warning: %s\n", msg)
	}
	return nil
}
