package cmd

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/events"
)

// execute runs the root command with args and captures stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// withTestConfig points the config at a temp data dir with the offline
// rules backend so commands run hermetically.
func withTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	viper.Set(config.KeyDataDir, dir)
	viper.Set(config.KeyAgentBackend, config.AgentBackendRules)
	t.Cleanup(func() {
		viper.Set(config.KeyDataDir, "")
		viper.Set(config.KeyAgentBackend, nil)
	})
	return dir
}

func writeDataset(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "synthetic_comments.json")
	require.NoError(t, events.SaveDataset(path, events.Generate(n, rand.New(rand.NewSource(1)))))
	return path
}

func TestRunCommand_OfflineEndToEnd(t *testing.T) {
	dir := withTestConfig(t)
	dataset := writeDataset(t, dir, 10)

	out, err := execute(t, "run", "--dataset", dataset)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed:      10")
	assert.Contains(t, out, "Total cost:     $0.0000")

	// The run leaves a result log and a cost summary behind.
	assert.FileExists(t, filepath.Join(dir, "results.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "costs.json"))

	runDataset = ""
}

func TestRunCommand_MaxEventsLimits(t *testing.T) {
	dir := withTestConfig(t)
	dataset := writeDataset(t, dir, 10)

	out, err := execute(t, "run", "--dataset", dataset, "--max-events", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed:      3")

	runDataset = ""
	runMaxEvents = 0
}

func TestGenerateCommand(t *testing.T) {
	dir := withTestConfig(t)
	output := filepath.Join(dir, "out.json")

	out, err := execute(t, "generate", "--num", "7", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 7 events")

	evs, err := events.LoadDataset(output)
	require.NoError(t, err)
	assert.Len(t, evs, 7)

	generateOutput = ""
	generateNum = 50
}

func TestEvalCommand_AfterRun(t *testing.T) {
	dir := withTestConfig(t)
	dataset := writeDataset(t, dir, 10)

	_, err := execute(t, "run", "--dataset", dataset)
	require.NoError(t, err)
	runDataset = ""

	out, err := execute(t, "eval")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged:            10")
	assert.Contains(t, out, "Disagreement rate:")
}

func TestStateCommand_AfterRun(t *testing.T) {
	dir := withTestConfig(t)
	dataset := writeDataset(t, dir, 5)

	_, err := execute(t, "run", "--dataset", dataset)
	require.NoError(t, err)
	runDataset = ""

	out, err := execute(t, "state")
	require.NoError(t, err)
	assert.Contains(t, out, "users,")
}

func TestMemoryCommand_EmptyMemory(t *testing.T) {
	withTestConfig(t)

	out, err := execute(t, "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "0 entries")
}

func TestCostsCommand_WithoutRunFails(t *testing.T) {
	withTestConfig(t)

	_, err := execute(t, "costs")
	assert.Error(t, err)
}
