package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/3leaps/gojobgraph/pkg/jobgraph"
)

// DefaultSearchLimit applies when SearchJobs is called with limit <= 0.
const DefaultSearchLimit = 20

// maxInList bounds the number of placeholders per IN clause.
const maxInList = 500

const jobColumns = `j.id, j.name, j.description, j.type, j.machine, j.owner, j.command,
	j.condition_expr, j.schedule, j.avg_duration_minutes, j.last_run_start, j.last_run_end,
	j.fixed_start_time, j.tags, j.tables_read, j.tables_written, j.custom_attributes`

// SearchHit is a lightweight search result.
type SearchHit struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Type jobgraph.JobType `json:"type,omitempty"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (jobgraph.Job, error) {
	var j jobgraph.Job
	var description, typ, machine, owner, command sql.NullString
	var condition, schedule, lastStart, lastEnd sql.NullString
	var tags, tablesRead, tablesWritten, customAttrs sql.NullString
	var avg sql.NullInt64
	var fixed int64
	if err := row.Scan(&j.ID, &j.Name, &description, &typ, &machine, &owner, &command,
		&condition, &schedule, &avg, &lastStart, &lastEnd,
		&fixed, &tags, &tablesRead, &tablesWritten, &customAttrs); err != nil {
		return jobgraph.Job{}, err
	}

	j.Description = description.String
	j.Type = jobgraph.JobType(typ.String)
	j.Machine = machine.String
	j.Owner = owner.String
	j.Command = command.String
	j.Condition = condition.String
	j.Schedule = schedule.String
	if avg.Valid {
		j.AvgDurationMinutes = jobgraph.Minutes(int(avg.Int64))
	}
	j.LastRunStart = lastStart.String
	j.LastRunEnd = lastEnd.String
	j.FixedStartTime = fixed != 0
	j.Dependencies = []string{}

	// Malformed JSON columns are ignored rather than failing the row.
	j.Tags = decodeStrings(tags)
	j.TablesRead = decodeStrings(tablesRead)
	j.TablesWritten = decodeStrings(tablesWritten)
	if customAttrs.Valid && customAttrs.String != "" {
		var m map[string]string
		if json.Unmarshal([]byte(customAttrs.String), &m) == nil {
			j.CustomAttributes = m
		}
	}
	return j, nil
}

func decodeStrings(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if json.Unmarshal([]byte(v.String), &out) != nil {
		return nil
	}
	return out
}

// GetJob returns a single hydrated job, or nil when id is unknown.
func (s *Store) GetJob(ctx context.Context, id string) (*jobgraph.Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs j WHERE j.id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.done("get_job", nil)
	}
	if err != nil {
		return nil, s.done("get_job", fmt.Errorf("query jobs: %w", err))
	}

	deps, err := s.dependencies(ctx, []string{id})
	if err != nil {
		return nil, s.done("get_job", err)
	}
	if d := deps[id]; d != nil {
		j.Dependencies = d
	}
	return &j, s.done("get_job", nil)
}

// GetJobs returns hydrated jobs in the requested order. Unknown ids are skipped.
func (s *Store) GetJobs(ctx context.Context, ids []string) ([]jobgraph.Job, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return []jobgraph.Job{}, nil
	}

	byID, err := s.jobsByID(ctx, ids)
	if err != nil {
		return nil, s.done("get_jobs", err)
	}
	out := make([]jobgraph.Job, 0, len(byID))
	for _, id := range ids {
		if j, ok := byID[id]; ok {
			out = append(out, j)
		}
	}
	return out, s.done("get_jobs", nil)
}

func (s *Store) jobsByID(ctx context.Context, ids []string) (map[string]jobgraph.Job, error) {
	byID := make(map[string]jobgraph.Job, len(ids))
	for _, chunk := range chunks(ids, maxInList) {
		query := `SELECT ` + jobColumns + ` FROM jobs j WHERE j.id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, s.rebind(query), anyArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query jobs: %w", err)
		}
		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan job: %w", err)
			}
			byID[j.ID] = j
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("query jobs: %w", err)
		}
	}

	found := make([]string, 0, len(byID))
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			found = append(found, id)
		}
	}
	deps, err := s.dependencies(ctx, found)
	if err != nil {
		return nil, err
	}
	for id, d := range deps {
		j := byID[id]
		j.Dependencies = d
		byID[id] = j
	}
	return byID, nil
}

// dependencies loads dependency lists in document order.
func (s *Store) dependencies(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for _, chunk := range chunks(ids, maxInList) {
		query := `SELECT job_id, depends_on FROM job_dependencies
			WHERE job_id IN (` + placeholders(len(chunk)) + `)
			ORDER BY job_id, ordinal`
		rows, err := s.db.QueryContext(ctx, s.rebind(query), anyArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query dependencies: %w", err)
		}
		for rows.Next() {
			var jobID, dep string
			if err := rows.Scan(&jobID, &dep); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan dependency: %w", err)
			}
			out[jobID] = append(out[jobID], dep)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("query dependencies: %w", err)
		}
	}
	return out, nil
}

// SearchJobs matches query against job names and ids, case-insensitively.
// Prefix matches rank first, then results are ordered by name.
func (s *Store) SearchJobs(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := strings.ToLower(escapeLike(query))
	pattern := "%" + q + "%"
	prefix := q + "%"

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, name, type FROM jobs
		 WHERE LOWER(name) LIKE ? ESCAPE '\' OR LOWER(id) LIKE ? ESCAPE '\'
		 ORDER BY
		   CASE WHEN LOWER(name) LIKE ? ESCAPE '\' OR LOWER(id) LIKE ? ESCAPE '\' THEN 0 ELSE 1 END,
		   name, id
		 LIMIT ?`),
		pattern, pattern, prefix, prefix, limit)
	if err != nil {
		return nil, s.done("search", fmt.Errorf("query jobs: %w", err))
	}
	defer func() { _ = rows.Close() }()

	hits := []SearchHit{}
	for rows.Next() {
		var h SearchHit
		var typ sql.NullString
		if err := rows.Scan(&h.ID, &h.Name, &typ); err != nil {
			return nil, s.done("search", fmt.Errorf("scan search hit: %w", err))
		}
		h.Type = jobgraph.JobType(typ.String)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, s.done("search", fmt.Errorf("query jobs: %w", err))
	}
	return hits, s.done("search", nil)
}

const expandSQL = `WITH RECURSIVE
	upstream(job_id, depth) AS (
		SELECT CAST(? AS TEXT), 0
		UNION
		SELECT jd.depends_on, u.depth + 1
		FROM upstream u JOIN job_dependencies jd ON jd.job_id = u.job_id
		WHERE u.depth < ?
	),
	downstream(job_id, depth) AS (
		SELECT CAST(? AS TEXT), 0
		UNION
		SELECT jd.job_id, d.depth + 1
		FROM downstream d JOIN job_dependencies jd ON jd.depends_on = d.job_id
		WHERE d.depth < ?
	)
	SELECT DISTINCT j.id FROM jobs j
	WHERE j.id IN (SELECT job_id FROM upstream UNION SELECT job_id FROM downstream)
	ORDER BY j.id`

// ExpandLevels returns the seed plus every job within up levels of
// dependencies and down levels of dependents, hydrated and ordered by id.
// An unknown seed yields an empty slice.
func (s *Store) ExpandLevels(ctx context.Context, id string, up, down int) ([]jobgraph.Job, error) {
	up, down = max(up, 0), max(down, 0)

	rows, err := s.db.QueryContext(ctx, s.rebind(expandSQL), id, up, id, down)
	if err != nil {
		return nil, s.done("expand", fmt.Errorf("query jobs: %w", err))
	}
	var ids []string
	for rows.Next() {
		var jid string
		if err := rows.Scan(&jid); err != nil {
			_ = rows.Close()
			return nil, s.done("expand", fmt.Errorf("scan job id: %w", err))
		}
		ids = append(ids, jid)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, s.done("expand", fmt.Errorf("query jobs: %w", err))
	}
	if !slices.Contains(ids, id) {
		return []jobgraph.Job{}, s.done("expand", nil)
	}

	byID, err := s.jobsByID(ctx, ids)
	if err != nil {
		return nil, s.done("expand", err)
	}
	out := make([]jobgraph.Job, 0, len(ids))
	for _, jid := range ids {
		out = append(out, byID[jid])
	}
	return out, s.done("expand", nil)
}

// DiscoverGhosts lists the unmaterialized neighbors of materialized jobs,
// one entry per connecting edge: upstream ghosts first, then downstream.
// Neighbors without a job row are skipped.
func (s *Store) DiscoverGhosts(ctx context.Context, materialized []string) ([]jobgraph.GhostNode, error) {
	ids := dedupe(materialized)
	if len(ids) == 0 {
		return []jobgraph.GhostNode{}, nil
	}
	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	var up, down []jobgraph.GhostNode
	for _, chunk := range chunks(ids, maxInList) {
		list := placeholders(len(chunk))
		g, err := s.ghostRows(ctx, jobgraph.Upstream,
			`SELECT j.id, j.name, j.type, jd.job_id
			 FROM job_dependencies jd
			 JOIN jobs j ON j.id = jd.depends_on
			 WHERE jd.job_id IN (`+list+`)
			 ORDER BY jd.job_id, jd.ordinal`, chunk, inSet)
		if err != nil {
			return nil, s.done("ghosts", err)
		}
		up = append(up, g...)

		g, err = s.ghostRows(ctx, jobgraph.Downstream,
			`SELECT j.id, j.name, j.type, jd.depends_on
			 FROM job_dependencies jd
			 JOIN jobs j ON j.id = jd.job_id
			 WHERE jd.depends_on IN (`+list+`)
			 ORDER BY jd.depends_on, j.id`, chunk, inSet)
		if err != nil {
			return nil, s.done("ghosts", err)
		}
		down = append(down, g...)
	}
	return append(append([]jobgraph.GhostNode{}, up...), down...), s.done("ghosts", nil)
}

func (s *Store) ghostRows(ctx context.Context, dir jobgraph.Direction, query string, ids []string, materialized map[string]bool) ([]jobgraph.GhostNode, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), anyArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query ghosts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []jobgraph.GhostNode
	for rows.Next() {
		var g jobgraph.GhostNode
		var typ sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &typ, &g.ConnectedTo); err != nil {
			return nil, fmt.Errorf("scan ghost: %w", err)
		}
		if materialized[g.ID] {
			continue
		}
		g.Type = jobgraph.JobType(typ.String)
		g.Direction = dir
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query ghosts: %w", err)
	}
	return out, nil
}

// CountJobs returns the number of stored jobs.
func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, s.done("count", fmt.Errorf("count jobs: %w", err))
	}
	return int(n), s.done("count", nil)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func anyArgs(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
