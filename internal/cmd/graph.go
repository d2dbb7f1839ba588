package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/timing"
	"github.com/3leaps/gojobgraph/pkg/workspace"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Lineage queries and graph export",
}

var graphUpstreamCmd = &cobra.Command{
	Use:   "upstream <doc> <id>",
	Short: "List every job the given job depends on, directly or not",
	Long: `List the transitive dependencies of a job in breadth-first order.

Examples:
  gojobgraph graph upstream jobs.json report
  gojobgraph graph upstream jobs.json report --tree --depth 2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLineage(cmd, args, jobgraph.Upstream)
	},
}

var graphDownstreamCmd = &cobra.Command{
	Use:   "downstream <doc> <id>",
	Short: "List every job that depends on the given job, directly or not",
	Long: `List the transitive dependents of a job in breadth-first order.

Examples:
  gojobgraph graph downstream jobs.json extract
  gojobgraph graph downstream jobs.json extract --tree`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLineage(cmd, args, jobgraph.Downstream)
	},
}

var graphExportCmd = &cobra.Command{
	Use:   "export <doc>",
	Short: "Export the job graph as Graphviz DOT or JSON",
	Long: `Render the job graph as Graphviz DOT or as JSON nodes and edges.

The output goes to stdout, a local file, or an s3:// object.

Examples:
  gojobgraph graph export jobs.json | dot -Tsvg > jobs.svg
  gojobgraph graph export jobs.json --timing --out jobs.dot
  gojobgraph graph export jobs.json --format json --hide-type condition
  gojobgraph graph export jobs.json --match 'etl_*' --out s3://bucket/graphs/etl.dot`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphExport,
}

var (
	lineageTree  bool
	lineageDepth int

	exportFormat   string
	exportOut      string
	exportTiming   bool
	exportTypes    []string
	exportHidden   []string
	exportPatterns []string
	exportQuery    string
)

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphUpstreamCmd, graphDownstreamCmd, graphExportCmd)

	for _, c := range []*cobra.Command{graphUpstreamCmd, graphDownstreamCmd} {
		c.Flags().BoolVar(&lineageTree, "tree", false, "Print an indented tree instead of a flat list")
		c.Flags().IntVar(&lineageDepth, "depth", 0, "Tree depth limit (0 = unlimited)")
	}

	graphExportCmd.Flags().StringVar(&exportFormat, "format", "dot", "Output format (dot, json)")
	graphExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Destination path or s3:// URI (default stdout)")
	graphExportCmd.Flags().BoolVar(&exportTiming, "timing", false, "Mark the critical path and annotate start/finish times")
	graphExportCmd.Flags().StringSliceVar(&exportTypes, "type", nil, "Only include these job types")
	graphExportCmd.Flags().StringSliceVar(&exportHidden, "hide-type", nil, "Exclude these job types")
	graphExportCmd.Flags().StringArrayVar(&exportPatterns, "match", nil, "Only include job ids matching this glob (repeatable)")
	graphExportCmd.Flags().StringVar(&exportQuery, "query", "", "Highlight jobs whose name or id contains this text")
}

func runLineage(cmd *cobra.Command, args []string, dir jobgraph.Direction) error {
	res, _, err := loadDocument(cmd.Context(), args[0])
	if err != nil {
		observability.CLILogger.Error("Failed to load job document", zap.String("source", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid job document", err)
	}
	id := args[1]
	g := jobgraph.FromJobs(res.Document.Jobs)
	if !g.HasNode(id) {
		return exitError(foundry.ExitInvalidArgument, "Unknown job", fmt.Errorf("%w: %s", timing.ErrUnknownJob, id))
	}

	out := cmd.OutOrStdout()
	if lineageTree {
		return jobgraph.RenderTree(out, g.LineageTree(id, dir, lineageDepth))
	}
	ids := g.Upstream(id)
	if dir == jobgraph.Downstream {
		ids = g.Downstream(id)
	}
	for _, other := range ids {
		n, _ := g.Node(other)
		_, _ = fmt.Fprintf(out, "%s\t%s\n", other, n.Label)
	}
	return nil
}

// exportFilter builds the node filter from the export flags.
func exportFilter() (jobgraph.Filter, error) {
	f := jobgraph.Filter{Query: exportQuery, Patterns: exportPatterns}
	if len(exportTypes) > 0 || len(exportHidden) > 0 {
		f.Types = make(map[jobgraph.JobType]bool, len(jobgraph.AllTypes))
	}
	if len(exportTypes) > 0 {
		for _, t := range jobgraph.AllTypes {
			f.Types[t] = false
		}
		for _, raw := range exportTypes {
			t, err := jobgraph.ParseJobType(strings.TrimSpace(raw))
			if err != nil {
				return f, err
			}
			f.Types[t] = true
		}
	}
	for _, raw := range exportHidden {
		t, err := jobgraph.ParseJobType(strings.TrimSpace(raw))
		if err != nil {
			return f, err
		}
		f.Types[t] = false
	}
	return f, f.Validate()
}

type graphExport struct {
	Nodes        []jobgraph.Node `json:"nodes"`
	Edges        []jobgraph.Edge `json:"edges"`
	CriticalPath []string        `json:"criticalPath,omitempty"`
	Duration     *int            `json:"totalDuration,omitempty"`
}

func runGraphExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format := strings.ToLower(exportFormat)
	if format != "dot" && format != "json" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --format", fmt.Errorf("unsupported format %q (dot, json)", exportFormat))
	}
	f, err := exportFilter()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filter", err)
	}

	res, _, err := loadDocument(ctx, args[0])
	if err != nil {
		observability.CLILogger.Error("Failed to load job document", zap.String("source", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid job document", err)
	}
	g := jobgraph.FromJobs(res.Document.Jobs)
	visible := g.Visible(f)

	var analysis *timing.Analysis
	if exportTiming {
		s := newSession(appConfig().Timing.ImportFixed)
		s.SetJobs(res.Document.Jobs)
		s.LoadFixedOverrides(newWorkspace().LoadFixedTimes(workspace.FixedTimesKey(res.Document.IDs())))
		s.Enable()
		analysis, _ = s.Analyze()
	}

	var buf bytes.Buffer
	switch format {
	case "json":
		doc := graphExport{Nodes: visible.Nodes(), Edges: visible.Edges()}
		if analysis != nil {
			doc.CriticalPath = analysis.CriticalPath
			doc.Duration = &analysis.TotalDuration
		}
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return err
		}
	default:
		opts := jobgraph.DOTOptions{Highlight: map[string]bool{}}
		for _, id := range visible.SearchMatches(f) {
			opts.Highlight[id] = true
		}
		if analysis != nil {
			opts.Critical = analysis.CriticalSet()
			opts.CriticalEdges = make(map[string]bool, len(analysis.CriticalPath))
			for _, id := range analysis.CriticalEdges() {
				opts.CriticalEdges[id] = true
			}
			opts.Annotate = make(map[string]string, len(analysis.Nodes))
			for id, r := range analysis.Nodes {
				opts.Annotate[id] = fmt.Sprintf("%s - %s", timing.FormatDuration(r.EarliestStart), timing.FormatDuration(r.EarliestFinish))
			}
		}
		if err := jobgraph.RenderDOT(&buf, visible, opts); err != nil {
			return err
		}
	}

	if err := publish(ctx, cmd.OutOrStdout(), exportOut, buf.Bytes()); err != nil {
		observability.CLILogger.Error("Failed to write export", zap.String("dest", exportOut), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write export", err)
	}
	return nil
}
