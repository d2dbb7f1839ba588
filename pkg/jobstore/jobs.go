package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

// ImportStats counts what ImportDocument wrote.
type ImportStats struct {
	Jobs         int `json:"jobs"`
	Dependencies int `json:"dependencies"`
}

const upsertJobSQL = `INSERT INTO jobs
	(id, name, description, type, machine, owner, command, condition_expr, schedule,
	 avg_duration_minutes, last_run_start, last_run_end, fixed_start_time,
	 tags, tables_read, tables_written, custom_attributes, imported_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	  name = excluded.name,
	  description = excluded.description,
	  type = excluded.type,
	  machine = excluded.machine,
	  owner = excluded.owner,
	  command = excluded.command,
	  condition_expr = excluded.condition_expr,
	  schedule = excluded.schedule,
	  avg_duration_minutes = excluded.avg_duration_minutes,
	  last_run_start = excluded.last_run_start,
	  last_run_end = excluded.last_run_end,
	  fixed_start_time = excluded.fixed_start_time,
	  tags = excluded.tags,
	  tables_read = excluded.tables_read,
	  tables_written = excluded.tables_written,
	  custom_attributes = excluded.custom_attributes,
	  imported_at = excluded.imported_at`

// ImportDocument upserts every job in doc and replaces their dependency
// lists, all in one transaction.
func (s *Store) ImportDocument(ctx context.Context, doc *jobgraph.Document) (ImportStats, error) {
	var stats ImportStats
	if doc == nil || len(doc.Jobs) == 0 {
		return stats, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, s.done("import", fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.PrepareContext(ctx, s.rebind(upsertJobSQL))
	if err != nil {
		return stats, s.done("import", fmt.Errorf("prepare job upsert: %w", err))
	}
	defer func() { _ = upsert.Close() }()

	clearDeps, err := tx.PrepareContext(ctx, s.rebind(`DELETE FROM job_dependencies WHERE job_id = ?`))
	if err != nil {
		return stats, s.done("import", fmt.Errorf("prepare dependency delete: %w", err))
	}
	defer func() { _ = clearDeps.Close() }()

	insertDep, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO job_dependencies (job_id, depends_on, ordinal) VALUES (?, ?, ?)
		 ON CONFLICT(job_id, depends_on) DO NOTHING`))
	if err != nil {
		return stats, s.done("import", fmt.Errorf("prepare dependency insert: %w", err))
	}
	defer func() { _ = insertDep.Close() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, j := range doc.Jobs {
		args, err := jobArgs(j, now)
		if err != nil {
			return stats, s.done("import", err)
		}
		if _, err := upsert.ExecContext(ctx, args...); err != nil {
			return stats, s.done("import", fmt.Errorf("upsert job %s: %w", j.ID, err))
		}
		if _, err := clearDeps.ExecContext(ctx, j.ID); err != nil {
			return stats, s.done("import", fmt.Errorf("clear dependencies of %s: %w", j.ID, err))
		}

		seen := make(map[string]bool, len(j.Dependencies))
		for _, dep := range j.Dependencies {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if _, err := insertDep.ExecContext(ctx, j.ID, dep, len(seen)-1); err != nil {
				return stats, s.done("import", fmt.Errorf("insert dependency %s->%s: %w", dep, j.ID, err))
			}
			stats.Dependencies++
		}
		stats.Jobs++
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, s.done("import", fmt.Errorf("commit tx: %w", err))
	}
	s.logger.Info("Imported job document",
		zap.Int("jobs", stats.Jobs),
		zap.Int("dependencies", stats.Dependencies))
	return stats, s.done("import", nil)
}

func jobArgs(j jobgraph.Job, importedAt string) ([]any, error) {
	tags, err := jsonColumn(j.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags of %s: %w", j.ID, err)
	}
	read, err := jsonColumn(j.TablesRead)
	if err != nil {
		return nil, fmt.Errorf("encode tablesRead of %s: %w", j.ID, err)
	}
	written, err := jsonColumn(j.TablesWritten)
	if err != nil {
		return nil, fmt.Errorf("encode tablesWritten of %s: %w", j.ID, err)
	}
	var attrs sql.NullString
	if len(j.CustomAttributes) > 0 {
		data, err := json.Marshal(j.CustomAttributes)
		if err != nil {
			return nil, fmt.Errorf("encode customAttributes of %s: %w", j.ID, err)
		}
		attrs = sql.NullString{String: string(data), Valid: true}
	}

	var avg sql.NullInt64
	if j.AvgDurationMinutes != nil {
		avg = sql.NullInt64{Int64: int64(*j.AvgDurationMinutes), Valid: true}
	}
	fixed := 0
	if j.FixedStartTime {
		fixed = 1
	}

	return []any{
		j.ID, j.Name, nullString(j.Description), nullString(string(j.Type)),
		nullString(j.Machine), nullString(j.Owner), nullString(j.Command),
		nullString(j.Condition), nullString(j.Schedule),
		avg, nullString(j.LastRunStart), nullString(j.LastRunEnd), fixed,
		tags, read, written, attrs, importedAt,
	}, nil
}

func jsonColumn(values []string) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
