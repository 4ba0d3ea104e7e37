package exec

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunSucceedsAndCapturesArtifacts(t *testing.T) {
	dir := t.TempDir()
	r := New()

	result := r.Run(context.Background(), RunOpts{
		AgentID:     "reviewer",
		TriggeredBy: "Path: src/**/*.go",
		Command:     "echo hello-stdout",
		ArtifactDir: dir,
		PromptBody:  "do the review",
	})

	require.True(t, result.Success)
	require.Equal(t, 0, result.ExitCode)
	require.Contains(t, result.Stdout, "hello-stdout")
	require.FileExists(t, filepath.Join(dir, "stdout.txt"))
	require.FileExists(t, filepath.Join(dir, "prompt.md"))

	manifestPath := filepath.Join(dir, "manifest.json")
	require.FileExists(t, manifestPath)
	var m manifest
	raw, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, "reviewer", m.AgentID)
	require.True(t, m.Success)
	require.Equal(t, 0, m.ExitCode)
}

func TestRunReportsNonZeroExitAsSubprocessExit(t *testing.T) {
	r := New()
	result := r.Run(context.Background(), RunOpts{
		AgentID: "failer",
		Command: "exit 7",
	})

	require.False(t, result.Success)
	require.Equal(t, 7, result.ExitCode)
}

func TestRunEnforcesTimeout(t *testing.T) {
	r := New()
	result := r.Run(context.Background(), RunOpts{
		AgentID: "sleeper",
		Command: "sleep 5",
		Timeout: 200 * time.Millisecond,
	})

	require.False(t, result.Success)
	require.Error(t, result.Err)
}

func TestRunParsesBackChannelAndTrackCost(t *testing.T) {
	r := New()
	script := `printf '{"agent_id":"a","timestamp":"t","status":"completed","data":{"cost_usd":0.5}}\n' >&3
printf 'not json\n' >&4
printf '{"agent_id":"a","timestamp":"t","level":"info","message":"done","context":{"usage":{"total_cost":0.25}}}\n' >&4
`
	result := r.Run(context.Background(), RunOpts{
		AgentID: "a",
		Command: script,
	})

	require.True(t, result.Success)
	require.Len(t, result.StatusReports, 1)
	require.Len(t, result.LogEntries, 1, "malformed log line must be discarded, not abort the drain")
	require.InDelta(t, 0.75, result.CostUSD, 0.0001)
}

func TestRunWithPTYCapturesCombinedOutput(t *testing.T) {
	r := New()
	result := r.Run(context.Background(), RunOpts{
		AgentID: "ptyagent",
		Command: "echo from-pty",
		UsePTY:  true,
	})

	require.True(t, result.Success)
	require.Contains(t, result.Stdout, "from-pty")
	require.Empty(t, result.Stderr)
}
