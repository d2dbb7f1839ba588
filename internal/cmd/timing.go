package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/output"
	"github.com/3leaps/gojobgraph/pkg/timing"
	"github.com/3leaps/gojobgraph/pkg/workspace"
)

var timingCmd = &cobra.Command{
	Use:   "timing <doc>",
	Short: "Compute earliest start and finish times and the critical path",
	Long: `Run a timing analysis over a job document.

Each job starts when its last dependency finishes, or at its fixed start
time when that is later. The critical path is the chain of jobs that
decides the total duration.

Duration overrides model "what if this job took N minutes" and are
reported as a delta from the baseline. Fixed-time choices are loaded from
the workspace and saved back with --persist.

Examples:
  gojobgraph timing jobs.json
  gojobgraph timing jobs.json --override load=5 --override report=10
  gojobgraph timing jobs.json --fixed nightly_extract=false --persist
  gojobgraph timing jobs.json --critical-only --jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runTiming,
}

var (
	timingOverrides    []string
	timingFixed        []string
	timingNoImportFix  bool
	timingCriticalOnly bool
	timingPersist      bool
)

func init() {
	rootCmd.AddCommand(timingCmd)

	timingCmd.Flags().StringArrayVar(&timingOverrides, "override", nil, "Duration override id=minutes (repeatable)")
	timingCmd.Flags().StringArrayVar(&timingFixed, "fixed", nil, "Fixed start time choice id=true|false (repeatable)")
	timingCmd.Flags().BoolVar(&timingNoImportFix, "no-import-fixed", false, "Ignore fixedStartTime flags from the document")
	timingCmd.Flags().BoolVar(&timingCriticalOnly, "critical-only", false, "Only list jobs on the critical path")
	timingCmd.Flags().BoolVar(&timingPersist, "persist", false, "Save fixed-time choices to the workspace")
	timingCmd.Flags().Bool("jsonl", false, "Emit JSONL records instead of a table")
}

// parseOverrides parses id=minutes pairs.
func parseOverrides(pairs []string) (timing.DurationOverrides, error) {
	out := make(timing.DurationOverrides, len(pairs))
	for _, p := range pairs {
		id, raw, ok := strings.Cut(p, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("override %q: expected id=minutes", p)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("override %q: minutes must be an integer", p)
		}
		out[id] = n
	}
	return out, nil
}

// parseFixed parses id=true|false pairs.
func parseFixed(pairs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		id, raw, ok := strings.Cut(p, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("fixed %q: expected id=true|false", p)
		}
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("fixed %q: value must be true or false", p)
		}
		out[id] = b
	}
	return out, nil
}

// applyTimingFlags loads persisted fixed-time choices for jobs, then layers
// the --fixed and --override flags on top.
func applyTimingFlags(s *timing.Session, jobs []jobgraph.Job, ws *workspace.Store) (string, error) {
	overrides, err := parseOverrides(timingOverrides)
	if err != nil {
		return "", err
	}
	fixed, err := parseFixed(timingFixed)
	if err != nil {
		return "", err
	}

	s.SetJobs(jobs)
	key := workspace.FixedTimesKey(jobgraph.JobIDs(jobs))
	s.LoadFixedOverrides(ws.LoadFixedTimes(key))

	index := jobgraph.Index(jobs)
	for id, on := range fixed {
		if _, ok := index[id]; !ok {
			return "", fmt.Errorf("%w: %s", timing.ErrUnknownJob, id)
		}
		s.SetFixedOverride(id, on)
	}
	s.Enable()
	for id, minutes := range overrides {
		if err := s.SetDurationOverride(id, minutes); err != nil {
			return "", fmt.Errorf("override %s: %w", id, err)
		}
	}
	return key, nil
}

func runTiming(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if timingPersist {
		if err := requireWritable("persist fixed-time choices"); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot persist", err)
		}
	}

	res, loc, err := loadDocument(ctx, args[0])
	if err != nil {
		observability.CLILogger.Error("Failed to load job document", zap.String("source", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid job document", err)
	}

	session := newSession(appConfig().Timing.ImportFixed && !timingNoImportFix)
	ws := newWorkspace()
	key, err := applyTimingFlags(session, res.Document.Jobs, ws)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid timing flags", err)
	}

	if timingPersist {
		if err := ws.SaveFixedTimes(key, session.FixedOverrides()); err != nil {
			observability.CLILogger.Error("Failed to save fixed-time choices", zap.String("key", key), zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Failed to persist fixed-time choices", err)
		}
		observability.CLILogger.Info("Saved fixed-time choices", zap.String("path", ws.Path(key)))
	}

	return writeTiming(ctx, cmd, session, workspace.AnnotationsKey(res.Document.IDs()), loc.String())
}

// writeTiming renders the session's analysis as a table or JSONL.
func writeTiming(ctx context.Context, cmd *cobra.Command, s *timing.Session, dataset, source string) error {
	a, sum, ok := s.Evaluate()
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No jobs to analyze.")
		return nil
	}
	records := output.TimingRecords(s.Jobs(), *a, s.DurationOverrides(), timingCriticalOnly)

	if wantJSONL(cmd) {
		w := newJSONLWriter(cmd, dataset, source)
		defer func() { _ = w.Close() }()
		for i := range records {
			if err := w.WriteTiming(ctx, &records[i]); err != nil {
				return err
			}
		}
		return w.WriteTimingSummary(ctx, output.NewTimingSummary(*a, sum))
	}

	out := cmd.OutOrStdout()
	printTimingTable(out, records)
	_, _ = fmt.Fprintln(out)
	printTimingSummary(out, a, sum)
	return nil
}

func printTimingTable(out io.Writer, records []output.TimingRecord) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "JOB\tDURATION\tSTART\tFINISH\tWAIT\tCRITICAL\tFIXED")
	for _, r := range records {
		duration := timing.FormatDuration(r.Duration)
		if r.Overridden {
			duration += "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.JobID, duration,
			timing.FormatDuration(r.EarliestStart),
			timing.FormatDuration(r.EarliestFinish),
			timing.FormatDuration(r.WaitTime),
			yesNo(r.Critical), yesNo(r.Fixed))
	}
}

func printTimingSummary(out io.Writer, a *timing.Analysis, sum timing.Summary) {
	total := timing.FormatDuration(sum.TotalDuration)
	if sum.Delta != nil {
		total += fmt.Sprintf(" (%s from baseline %s)", timing.FormatDelta(*sum.Delta), timing.FormatDuration(sum.Baseline))
	}
	_, _ = fmt.Fprintf(out, "Total duration: %s\n", total)
	_, _ = fmt.Fprintf(out, "Critical path:  %s\n", strings.Join(a.CriticalPath, " -> "))
	if sum.TotalWaitTime > 0 {
		_, _ = fmt.Fprintf(out, "Wait on path:   %s\n", timing.FormatDuration(sum.TotalWaitTime))
	}
	if sum.ReferenceTime != "" {
		_, _ = fmt.Fprintf(out, "Reference time: %s (%d fixed)\n", sum.ReferenceTime, sum.FixedCount)
	}
	if len(a.Excluded) > 0 {
		_, _ = fmt.Fprintf(out, "Excluded:       %s (dependency cycle)\n", strings.Join(a.Excluded, ", "))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
