package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/explorer"
	"github.com/3leaps/gojobgraph/pkg/output"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

var exploreCmd = &cobra.Command{
	Use:   "explore <seed>",
	Short: "Materialize the neighborhood of a job from the store",
	Long: `Start an explorer session at a job in the store and print what is
materialized, together with the ghost frontier: unloaded jobs one edge
away from a materialized job.

--expand and --materialize are applied in order after seeding, so a single
invocation can replay a whole exploration.

Examples:
  gojobgraph explore report --db jobs.db
  gojobgraph explore report --db jobs.db --up 3 --down 0
  gojobgraph explore report --db jobs.db --expand load:2:0 --materialize extract
  gojobgraph explore report --db jobs.db --timing --jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runExplore,
}

var (
	exploreDB          string
	exploreUp          int
	exploreDown        int
	exploreExpand      []string
	exploreMaterialize []string
	exploreTiming      bool
)

func init() {
	rootCmd.AddCommand(exploreCmd)

	exploreCmd.Flags().StringVar(&exploreDB, "db", "", "Store path or URL (overrides store.path/store.url)")
	exploreCmd.Flags().IntVar(&exploreUp, "up", 1, "Upstream levels to materialize around the seed")
	exploreCmd.Flags().IntVar(&exploreDown, "down", 1, "Downstream levels to materialize around the seed")
	exploreCmd.Flags().StringArrayVar(&exploreExpand, "expand", nil, "Expand around id[:up:down] (repeatable)")
	exploreCmd.Flags().StringArrayVar(&exploreMaterialize, "materialize", nil, "Materialize a ghost job (repeatable)")
	exploreCmd.Flags().BoolVar(&exploreTiming, "timing", false, "Run a timing analysis over the materialized jobs")
	exploreCmd.Flags().Bool("jsonl", false, "Emit JSONL records instead of tables")
}

type expandStep struct {
	id       string
	up, down int
}

// parseExpand parses id, id:up or id:up:down. Missing levels default to
// the seed's.
func parseExpand(raw string, up, down int) (expandStep, error) {
	parts := strings.Split(raw, ":")
	step := expandStep{id: parts[0], up: up, down: down}
	if step.id == "" || len(parts) > 3 {
		return step, fmt.Errorf("expand %q: expected id[:up:down]", raw)
	}
	levels := []*int{&step.up, &step.down}
	for i, p := range parts[1:] {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return step, fmt.Errorf("expand %q: levels must be non-negative integers", raw)
		}
		*levels[i] = n
	}
	return step, nil
}

func runExplore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	seed := args[0]
	if exploreUp < 0 || exploreDown < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid levels", fmt.Errorf("--up and --down must not be negative"))
	}
	steps := make([]expandStep, 0, len(exploreExpand))
	for _, raw := range exploreExpand {
		step, err := parseExpand(raw, exploreUp, exploreDown)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --expand", err)
		}
		steps = append(steps, step)
	}

	store, err := openStore(ctx, exploreDB)
	if err != nil {
		observability.CLILogger.Error("Failed to open job store", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	wb := newWorkbench(observability.CLILogger, appConfig().Timing.ImportFixed)
	if err := wb.OpenStore(ctx, store); err != nil {
		_ = store.Close()
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	defer func() { _ = wb.Close() }()

	job, err := wb.Job(ctx, seed)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Lookup failed", err)
	}
	if job == nil {
		return exitError(foundry.ExitInvalidArgument, "Job not found", fmt.Errorf("no job with id %q", seed))
	}

	e, err := wb.Explorer()
	if err != nil {
		return err
	}
	if err := e.SetStartingNode(ctx, seed, exploreUp, exploreDown); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Explore failed", err)
	}
	for _, step := range steps {
		if err := e.ExpandFromNode(ctx, step.id, step.up, step.down); err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Expand failed", err)
		}
	}
	for _, id := range exploreMaterialize {
		if err := e.MaterializeGhost(ctx, id); err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Materialize failed", err)
		}
	}
	wb.Sync()

	observability.CLILogger.Debug("Explorer session ready",
		zap.String("seed", seed),
		zap.Int("materialized", len(e.Materialized())),
		zap.Int("ghosts", len(e.Ghosts())))

	if err := writeExplorer(cmd, wb, e); err != nil {
		return err
	}
	if exploreTiming {
		wb.Session().Enable()
		if !wantJSONL(cmd) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
		}
		return writeTiming(ctx, cmd, wb.Session(), wb.DatasetKey(), "store")
	}
	return nil
}

func writeExplorer(cmd *cobra.Command, wb *workbench.Workbench, e *explorer.Engine) error {
	ctx := cmd.Context()
	state := e.Snapshot()

	if wantJSONL(cmd) {
		w := newJSONLWriter(cmd, wb.DatasetKey(), "store")
		defer func() { _ = w.Close() }()
		for _, j := range state.Jobs {
			rec := &output.JobRecord{Job: j}
			if note, ok := wb.Annotation(j.ID); ok {
				rec.Annotation = &note
			}
			if err := w.WriteJob(ctx, rec); err != nil {
				return err
			}
		}
		for i := range state.Ghosts {
			if err := w.WriteGhost(ctx, &state.Ghosts[i]); err != nil {
				return err
			}
		}
		return nil
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Seed %s: %d materialized, %d ghosts\n\n", state.Seed, len(state.MaterializedIDs), len(state.Ghosts))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE\tDEPENDENCIES\tNOTE")
	for _, j := range state.Jobs {
		note := ""
		if a, ok := wb.Annotation(j.ID); ok {
			note = fmt.Sprintf("[%s] %s", a.Color, a.Text)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, j.EffectiveType(), strings.Join(j.Dependencies, ","), note)
	}
	_ = tw.Flush()

	if len(state.Ghosts) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "GHOST\tNAME\tDIRECTION\tCONNECTED TO")
	for _, g := range state.Ghosts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, g.Name, g.Direction, g.ConnectedTo)
	}
	return tw.Flush()
}
