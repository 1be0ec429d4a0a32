package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--env-file", ""))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAssumptionsFromFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addAssumptionFlags(fs)
	require.NoError(t, fs.Parse([]string{"--entry-yield", "5", "--erv", "90"}))

	a, err := assumptionsFromFlags(fs)
	require.NoError(t, err)
	assert.Equal(t, 5.0, a[underwriting.KeyEntryYield])
	assert.Equal(t, 90.0, a[underwriting.KeyERV])
	assert.Equal(t, underwriting.DefaultLTV, a[underwriting.KeyLTV])
}

func TestAssumptionsFromFlags_Negative(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addAssumptionFlags(fs)
	require.NoError(t, fs.Parse([]string{"--ltv=-1"}))

	_, err := assumptionsFromFlags(fs)
	assert.ErrorContains(t, err, "--ltv")
}

func TestProjectCommand(t *testing.T) {
	out, err := execute(t, "project", "--erv", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "Purchase price")
	assert.Contains(t, out, "Levered IRR")
	assert.Contains(t, out, "Yield on cost")
}

func TestScenarioCommand(t *testing.T) {
	out, err := execute(t, "scenario", "--archetype", "stress")
	require.NoError(t, err)
	assert.Contains(t, out, "Stress Test")
	assert.Contains(t, out, "ERV -10.0%, Exit Yield +50bps")
}

func TestScenarioCommand_UnknownArchetype(t *testing.T) {
	_, err := execute(t, "scenario", "--archetype", "sideways")
	assert.ErrorContains(t, err, "unknown archetype")
}

func TestPrintTurn_HidesLogs(t *testing.T) {
	res := &model.TurnResult{Messages: []model.Message{
		model.SystemLog("System Processing:\n- step"),
		model.AssistantMessage("Done."),
	}}

	var quiet bytes.Buffer
	printTurn(&quiet, res, false)
	assert.NotContains(t, quiet.String(), "System Processing")
	assert.Contains(t, quiet.String(), "Done.")

	var verbose bytes.Buffer
	printTurn(&verbose, res, true)
	assert.Contains(t, verbose.String(), "System Processing")
}
