package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/molecules/internal/testutil"
)

var testNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// testEnv is a throwaway database and config with a frozen clock and
// sequential ids.
type testEnv struct {
	t      *testing.T
	dir    string
	config string
	clock  *testutil.FakeClock
	opts   *RootOptions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "molecules.yaml")
	content := "database: " + filepath.Join(dir, "molecules.db") + "\n" +
		"timezone: UTC\n" +
		"ledger:\n  max_entries: 3\n" +
		"logging:\n  level: warn\n"
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0o644))

	clk := testutil.NewFakeClock(testNow)
	return &testEnv{
		t:      t,
		dir:    dir,
		config: cfg,
		clock:  clk,
		opts:   &RootOptions{Clock: clk, IDs: testutil.NewSequenceIDs("id")},
	}
}

// run executes the root command with args and returns stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(e.opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRun runs args and fails the test on error.
func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "output: %s", out)
	return out
}

// runJSON runs args with --format json and decodes the data payload.
func runJSON[T any](e *testEnv, args ...string) T {
	e.t.Helper()
	out := e.mustRun(append([]string{"--format", "json"}, args...)...)
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(e.t, "ok", resp.Status)
	return resp.Data
}

// seed imports the test templates and schedules the first week of 2024.
func (e *testEnv) seed() {
	e.t.Helper()
	e.mustRun("templates", "import", filepath.Join("testdata", "templates"))
	e.mustRun("schedule", "--from", "2024-01-01", "--days", "7")
}

// molecule returns the listed molecule with the given template on date.
func (e *testEnv) molecule(template, date string) MoleculeView {
	e.t.Helper()
	views := runJSON[[]MoleculeView](e, "list", "--from", date, "--template", template)
	require.Len(e.t, views, 1)
	return views[0]
}

func atomID(t *testing.T, m MoleculeView, title string) string {
	t.Helper()
	for _, a := range m.Atoms {
		if a.Title == title {
			return a.ID
		}
	}
	t.Fatalf("molecule %s has no atom %q", m.ID, title)
	return ""
}
