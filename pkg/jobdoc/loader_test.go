package jobdoc

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gojobgraph/pkg/provider"
	"github.com/3leaps/gojobgraph/pkg/provider/file"
)

const yamlDoc = `metadata:
  source: control-m
jobs:
  - id: extract
    name: Extract
    dependencies: []
    avgDurationMinutes: 15
  - id: report
    name: Report
    dependencies: [extract]
    lastRunStart: "06:45"
`

const tomlDoc = `[metadata]
source = "cron"

[[jobs]]
id = "extract"
name = "Extract"
dependencies = []
avgDurationMinutes = 15

[[jobs]]
id = "report"
name = "Report"
dependencies = ["extract"]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("a/jobs.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("jobs.yml"))
	assert.Equal(t, FormatTOML, FormatFromPath("jobs.toml"))
	assert.Equal(t, FormatAuto, FormatFromPath("jobs"))
}

func TestLoadYAML(t *testing.T) {
	res, err := Load(writeFile(t, "jobs.yaml", yamlDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"extract", "report"}, res.Document.IDs())
	assert.Equal(t, 15, *res.Document.Jobs[0].AvgDurationMinutes)
	assert.Equal(t, "06:45", res.Document.Jobs[1].LastRunStart)
	assert.Equal(t, "control-m", res.Document.Metadata.Source)
}

func TestLoadTOML(t *testing.T) {
	res, err := Load(writeFile(t, "jobs.toml", tomlDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"extract", "report"}, res.Document.IDs())
	assert.Equal(t, []string{"extract"}, res.Document.Jobs[1].Dependencies)
	assert.Equal(t, "cron", res.Document.Metadata.Source)
}

func TestLoadAutoDetectsYAML(t *testing.T) {
	res, err := LoadFromBytes([]byte(yamlDoc), FormatAuto)
	require.NoError(t, err)
	assert.Len(t, res.Document.Jobs, 2)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job document not found")

	_, err = LoadFromBytes([]byte("  \n"), FormatJSON)
	assert.EqualError(t, err, "job document is empty")

	_, err = LoadFromBytes([]byte("{nope"), FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON in job document")

	_, err = LoadFromBytes([]byte("jobs = ["), FormatTOML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid TOML in job document")
}

func TestLoadFromReader(t *testing.T) {
	res, err := LoadFromReader(strings.NewReader(nightly), FormatJSON)
	require.NoError(t, err)
	assert.Len(t, res.Document.Jobs, 2)
}

func TestFetchFromFileProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs.yaml"), []byte(yamlDoc), 0o644))
	p, err := file.New(file.Config{BaseDir: dir})
	require.NoError(t, err)

	res, err := Fetch(context.Background(), p, "jobs.yaml")
	require.NoError(t, err)
	assert.Len(t, res.Document.Jobs, 2)

	_, err = Fetch(context.Background(), p, "missing.json")
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))
}

type oversized struct{}

func (oversized) GetObject(context.Context, string) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader("{}")), MaxDocumentBytes + 1, nil
}

type failing struct{}

func (failing) GetObject(context.Context, string) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("boom")
}

func TestFetchRejects(t *testing.T) {
	_, err := Fetch(context.Background(), oversized{}, "jobs.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	_, err = Fetch(context.Background(), failing{}, "jobs.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch job document")
}
