package dispatchconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/agentdispatch/pkg/resource"
)

func TestLoadMergesLocalOverEmbeddedDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
defaults:
  cli_command: "echo hi"
  timeout: 10
remote_agents:
  enabled: true
  sources:
    individual:
      - uri: "https://example.com/a.agent.md"
        alias: "a"
cli_agents:
  claude:
    cli_command: "claude run"
    inject_prompt_to_stdin: true
`), 0o644))

	loader := resource.New(resource.Options{WorkDir: dir})
	cfg, err := Load(Options{LocalPath: path, Loader: loader})
	require.NoError(t, err)

	require.Equal(t, "echo hi", cfg.Defaults.CLICommand)
	require.Equal(t, 10, cfg.Defaults.TimeoutMinutes)
	require.True(t, cfg.RemoteAgents.Enabled)
	require.Len(t, cfg.RemoteAgents.Individual, 1)
	require.Equal(t, "a", cfg.RemoteAgents.Individual[0].Alias)
	require.True(t, cfg.CLIAgents["claude"].InjectPromptToStdin)
}

func TestLoadFallsBackToEmbeddedDefaultsWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	loader := resource.New(resource.Options{WorkDir: dir})
	cfg, err := Load(Options{LocalPath: filepath.Join(dir, "missing.yaml"), Loader: loader})
	require.NoError(t, err)
	require.False(t, cfg.RemoteAgents.Enabled)
	require.Greater(t, cfg.Defaults.TimeoutMinutes, 0)
}

func TestRemoteOverrideWinsOverLocal(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte("defaults:\n  model: local-model\n"), 0o644))

	remotePath := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(remotePath, []byte("defaults:\n  model: remote-model\n"), 0o644))

	loader := resource.New(resource.Options{WorkDir: dir})
	cfg, err := Load(Options{LocalPath: localPath, RemoteURI: remotePath, Loader: loader})
	require.NoError(t, err)
	require.Equal(t, "remote-model", cfg.Defaults.Model)
}
