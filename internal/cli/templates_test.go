package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/molecules/internal/compiler"
)

var templatesDir = filepath.Join("testdata", "templates")

func writeCUE(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "habits.cue"), []byte(src), 0o644))
	return dir
}

func runValidateCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := newTemplatesValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidTemplates(t *testing.T) {
	out, err := runValidateCmd(t, "text", templatesDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 2 template(s) valid")
}

func TestValidateValidTemplatesJSON(t *testing.T) {
	out, err := runValidateCmd(t, "json", templatesDir)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := runValidateCmd(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := runValidateCmd(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateNoTemplates(t *testing.T) {
	dir := writeCUE(t, "package habits\n\nsettings: {}\n")

	out, err := runValidateCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "no templates found")
}

func TestValidateMissingTitle(t *testing.T) {
	dir := writeCUE(t, `package habits

template: morning: {
	rule: {frequency: "daily", anchor: "2024-01-01"}
	atoms: [{title: "Stretch"}]
}
`)

	out, err := runValidateCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrTemplateTitle)
	assert.Contains(t, out, "template morning")
}

func TestValidateCollectsEveryTemplate(t *testing.T) {
	dir := writeCUE(t, `package habits

template: a: {
	rule: {frequency: "daily", anchor: "2024-01-01"}
}
template: b: {
	title: "B"
	rule: {frequency: "hourly", anchor: "2024-01-01"}
}
template: c: {
	title: "C"
	rule: {frequency: "daily", anchor: "2024-01-01"}
	atoms: [{title: "x", type: "binary", step: 2}]
}
`)

	out, err := runValidateCmd(t, "json", dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	var codes []string
	for _, e := range resp.Data.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, compiler.ErrTemplateTitle)
	assert.Contains(t, codes, compiler.ErrRuleFrequency)
	assert.Contains(t, codes, compiler.ErrAtomStep)
}

func TestValidateNoAtomsIsWarning(t *testing.T) {
	dir := writeCUE(t, `package habits

template: empty: {
	title: "Nothing to do"
	rule: {frequency: "weekly", anchor: "2024-01-01"}
}
`)

	out, err := runValidateCmd(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "warning "+compiler.ErrTemplateNoAtoms)
	assert.Contains(t, out, "✓ All 1 template(s) valid")
}

func TestValidateVerboseOutput(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := newTemplatesValidateCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{templatesDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "Found 1 CUE file(s)")
	assert.Contains(t, errOut.String(), "Validating template: morning")
	assert.NotContains(t, out.String(), "Validating template")
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"title", compiler.ErrTemplateTitle},
		{"rule", compiler.ErrRuleFrequency},
		{"rule.frequency", compiler.ErrRuleFrequency},
		{"frequency", compiler.ErrRuleFrequency},
		{"rule.weekdays", compiler.ErrRuleWeekdays},
		{"anchor", compiler.ErrRuleAnchor},
		{"rule.end", compiler.ErrRuleEnd},
		{"atoms[2].type", compiler.ErrAtomType},
		{"atoms[0].title", compiler.ErrAtomTitle},
		{"atoms[1].target", compiler.ErrAtomTarget},
		{"atoms[1].step", compiler.ErrAtomStep},
		{"capture.photo", compiler.ErrCaptureOverride},
		{"whatever", ErrCodeGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}

func TestTemplatesImportAndList(t *testing.T) {
	env := newTestEnv(t)

	imported := runJSON[ImportResult](env, "templates", "import", templatesDir)
	require.Len(t, imported.Imported, 2)
	assert.Equal(t, "morning", imported.Imported[0].Name)
	assert.Equal(t, "id-1", imported.Imported[0].ID)
	assert.Equal(t, "Every day", imported.Imported[0].Schedule)
	assert.Equal(t, 4, imported.Imported[0].Atoms)
	assert.Equal(t, "review", imported.Imported[1].Name)
	assert.Equal(t, "Every week on Monday", imported.Imported[1].Schedule)

	listed := runJSON[[]TemplateSummary](env, "templates", "list")
	assert.Equal(t, imported.Imported, listed)
}

func TestTemplatesReimportKeepsIDs(t *testing.T) {
	env := newTestEnv(t)

	first := runJSON[ImportResult](env, "templates", "import", templatesDir)
	second := runJSON[ImportResult](env, "templates", "import", templatesDir)

	require.Len(t, second.Imported, 2)
	for i := range first.Imported {
		assert.Equal(t, first.Imported[i].ID, second.Imported[i].ID)
	}
	assert.Len(t, runJSON[[]TemplateSummary](env, "templates", "list"), 2)
}

func TestTemplatesImportRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	dir := writeCUE(t, `package habits

template: morning: {
	rule: {frequency: "daily", anchor: "2024-01-01"}
}
`)

	_, err := env.run("templates", "import", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out := env.mustRun("templates", "list")
	assert.Contains(t, out, "No templates.")
}

func TestTemplatesDelete(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	deleted := runJSON[TemplateSummary](env, "templates", "delete", "review")
	assert.Equal(t, "review", deleted.Name)

	listed := runJSON[[]TemplateSummary](env, "templates", "list")
	require.Len(t, listed, 1)
	assert.Equal(t, "morning", listed[0].Name)

	day := runJSON[[]MoleculeView](env, "list", "--from", "2024-01-01")
	require.Len(t, day, 2, "scheduled molecules outlive their template")
	var titles []string
	for _, v := range day {
		titles = append(titles, v.Title)
	}
	assert.Contains(t, titles, "Weekly review")

	out, err := env.run("templates", "delete", "review")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `template "review" not found`)
}
