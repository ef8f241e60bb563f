package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "molecules", cmd.Use)
	assert.Contains(t, cmd.Long, "verifiable history")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"templates", "validate"},
		{"templates", "import"},
		{"templates", "list"},
		{"templates", "delete"},
		{"schedule"},
		{"list"},
		{"atom", "toggle"},
		{"atom", "inc"},
		{"atom", "dec"},
		{"atom", "set"},
		{"atom", "capture"},
		{"atom", "complete"},
		{"atom", "fail"},
		{"atom", "retry"},
		{"delete"},
		{"purge-future"},
		{"reschedule"},
		{"history", "list"},
		{"history", "append"},
		{"history", "export"},
		{"history", "verify"},
		{"history", "clear"},
		{"scenario"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestScheduleCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	scheduleCmd, _, err := cmd.Find([]string{"schedule"})
	require.NoError(t, err)

	daysFlag := scheduleCmd.Flags().Lookup("days")
	require.NotNil(t, daysFlag)
	assert.Equal(t, "7", daysFlag.DefValue)
	require.NotNil(t, scheduleCmd.Flags().Lookup("from"))
	require.NotNil(t, scheduleCmd.Flags().Lookup("to"))
	require.NotNil(t, scheduleCmd.Flags().Lookup("template"))
}

func TestHistoryExportFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"history", "export"})
	require.NoError(t, err)

	asFlag := exportCmd.Flags().Lookup("as")
	require.NotNil(t, asFlag)
	assert.Equal(t, "json", asFlag.DefValue)

	outFlag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)
	assert.Equal(t, "o", outFlag.Shorthand)
}

func TestScenarioCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	scenarioCmd, _, err := cmd.Find([]string{"scenario"})
	require.NoError(t, err)

	updateFlag := scenarioCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, scenarioCmd.Flags().Lookup("filter"))
	require.NotNil(t, scenarioCmd.Flags().Lookup("golden"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "templates", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMissingExplicitConfigIsCommandError(t *testing.T) {
	env := newTestEnv(t)
	env.config = env.dir + "/missing.yaml"

	_, err := env.run("list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
