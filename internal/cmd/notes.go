package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/observability"
	"github.com/3leaps/gojobgraph/pkg/annotations"
	"github.com/3leaps/gojobgraph/pkg/jobgraph"
	"github.com/3leaps/gojobgraph/pkg/output"
	"github.com/3leaps/gojobgraph/pkg/timing"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage job annotations",
	Long: `Manage the sticky notes attached to jobs of a document.

Notes are stored in the workspace per dataset, so the same set of job ids
always sees the same notes regardless of where the document was loaded from.

Colors: yellow, cyan, pink, lime, orange, violet.`,
}

var notesSetCmd = &cobra.Command{
	Use:   "set <doc> <job-id> <color> <text...>",
	Short: "Attach a note to a job",
	Long: `Attach a note to a job, replacing any existing note.

Text longer than 80 characters is truncated.

Examples:
  gojobgraph notes set jobs.json load yellow "slow on month end"`,
	Args: cobra.MinimumNArgs(4),
	RunE: runNotesSet,
}

var notesRmCmd = &cobra.Command{
	Use:   "rm <doc> <job-id>",
	Short: "Remove a job's note",
	Args:  cobra.ExactArgs(2),
	RunE:  runNotesRm,
}

var notesClearCmd = &cobra.Command{
	Use:   "clear <doc>",
	Short: "Remove every note of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotesClear,
}

var notesListCmd = &cobra.Command{
	Use:   "list <doc>",
	Short: "List notes of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotesList,
}

var notesExportCmd = &cobra.Command{
	Use:   "export <doc>",
	Short: "Export notes as a JSON array",
	Long: `Export notes as a JSON array.

Examples:
  gojobgraph notes export jobs.json
  gojobgraph notes export jobs.json --out notes.json
  gojobgraph notes export jobs.json --out s3://bucket/notes/jobs.json`,
	Args: cobra.ExactArgs(1),
	RunE: runNotesExport,
}

var notesImportCmd = &cobra.Command{
	Use:   "import <doc> <notes-file>",
	Short: "Replace notes from a JSON array",
	Long: `Replace the notes of a document from a JSON array as written by export.

Entries with an unknown color or missing fields are skipped.

Examples:
  gojobgraph notes import jobs.json notes.json`,
	Args: cobra.ExactArgs(2),
	RunE: runNotesImport,
}

var notesOut string

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesSetCmd)
	notesCmd.AddCommand(notesRmCmd)
	notesCmd.AddCommand(notesClearCmd)
	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesExportCmd)
	notesCmd.AddCommand(notesImportCmd)

	notesListCmd.Flags().Bool("jsonl", false, "Emit JSONL records instead of a table")
	notesExportCmd.Flags().StringVarP(&notesOut, "out", "o", "", "Destination path or s3:// URI (default stdout)")
}

// openNotes loads doc into a workbench bound to the workspace.
func openNotes(cmd *cobra.Command, doc string) (*workbench.Workbench, error) {
	res, loc, err := loadDocument(cmd.Context(), doc)
	if err != nil {
		observability.CLILogger.Error("Failed to load job document", zap.String("doc", doc), zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Failed to load job document", err)
	}
	wb := newWorkbench(observability.CLILogger, appConfig().Timing.ImportFixed)
	if err := wb.LoadDocument(res.Document, loc.String()); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Failed to load job document", err)
	}
	return wb, nil
}

func runNotesSet(cmd *cobra.Command, args []string) error {
	if err := requireWritable("write annotations"); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Refusing to write", err)
	}
	color, err := annotations.ParseColor(strings.ToLower(args[2]))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid color", err)
	}
	text := strings.Join(args[3:], " ")

	wb, err := openNotes(cmd, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	if err := wb.SetAnnotation(args[1], text, color); err != nil {
		if errors.Is(err, timing.ErrUnknownJob) {
			return exitError(foundry.ExitInvalidArgument, "Job not found", err)
		}
		observability.CLILogger.Error("Failed to save annotation", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to save annotation", err)
	}
	note, _ := wb.Annotation(args[1])
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Noted %s [%s]: %s\n", note.JobID, note.Color, note.Text)
	return nil
}

func runNotesRm(cmd *cobra.Command, args []string) error {
	if err := requireWritable("remove annotations"); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Refusing to write", err)
	}
	wb, err := openNotes(cmd, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	removed, err := wb.RemoveAnnotation(args[1])
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to save annotations", err)
	}
	if !removed {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No note on %s\n", args[1])
		return nil
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed note on %s\n", args[1])
	return nil
}

func runNotesClear(cmd *cobra.Command, args []string) error {
	if err := requireWritable("clear annotations"); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Refusing to write", err)
	}
	wb, err := openNotes(cmd, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	n := len(wb.Annotations())
	if err := wb.ClearAnnotations(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to save annotations", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d notes\n", n)
	return nil
}

func runNotesList(cmd *cobra.Command, args []string) error {
	wb, err := openNotes(cmd, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()
	notes := wb.Annotations()

	if wantJSONL(cmd) {
		w := newJSONLWriter(cmd, wb.DatasetKey(), args[0])
		defer func() { _ = w.Close() }()
		jobs := jobgraph.Index(wb.Jobs())
		for i := range notes {
			job, ok := jobs[notes[i].JobID]
			if !ok {
				continue
			}
			if err := w.WriteJob(cmd.Context(), &output.JobRecord{Job: job, Annotation: &notes[i]}); err != nil {
				return err
			}
		}
		return nil
	}

	out := cmd.OutOrStdout()
	if len(notes) == 0 {
		_, _ = fmt.Fprintln(out, "No notes")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "JOB\tCOLOR\tSIZE\tTEXT")
	for _, n := range notes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.JobID, n.Color, annotations.SizeClass(n.Text), n.Text)
	}
	return tw.Flush()
}

func runNotesExport(cmd *cobra.Command, args []string) error {
	wb, err := openNotes(cmd, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	data, err := wb.ExportAnnotations()
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to export annotations", err)
	}
	if err := publish(cmd.Context(), cmd.OutOrStdout(), notesOut, append(data, '\n')); err != nil {
		observability.CLILogger.Error("Failed to write annotations", zap.String("out", notesOut), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write annotations", err)
	}
	return nil
}

func runNotesImport(cmd *cobra.Command, args []string) error {
	if err := requireWritable("import annotations"); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Refusing to write", err)
	}
	data, err := readObject(cmd.Context(), args[1])
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Failed to read annotations", err)
	}
	wb, err := openNotes(cmd, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	ok, err := wb.ImportAnnotations(data)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to save annotations", err)
	}
	if !ok {
		return exitError(foundry.ExitInvalidArgument, "Invalid annotations file", fmt.Errorf("%s: expected a JSON array", args[1]))
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d notes\n", len(wb.Annotations()))
	return nil
}
