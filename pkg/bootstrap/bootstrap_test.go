package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildScansLocalAgentsAndLoadsConfig(t *testing.T) {
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(agentsDir, "reviewer.agent.md"), []byte(`---
name: reviewer
events: [pull_request]
---
Review it.
`), 0o644))

	cfgPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`defaults:
  timeout: 5
`), 0o644))

	env, err := Build(Options{AgentsDir: agentsDir, ConfigPath: cfgPath, WorkDir: dir})
	require.NoError(t, err)
	require.Len(t, env.Registry.All(), 1)
	require.Equal(t, 5, env.Config.Defaults.TimeoutMinutes)
}
