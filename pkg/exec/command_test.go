package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/model"
)

func TestSelectCommandPrefersDescriptorOwnCommand(t *testing.T) {
	d := &model.Descriptor{ID: "a", CLICommand: "my-cli run"}
	cfg := &model.Config{Defaults: model.Defaults{CLICommand: "fallback"}}

	res, err := SelectCommand(d, cfg)
	require.NoError(t, err)
	require.Equal(t, "my-cli run", res.CommandTemplate)
}

func TestSelectCommandFallsBackToGlobalDefault(t *testing.T) {
	d := &model.Descriptor{ID: "a"}
	cfg := &model.Config{Defaults: model.Defaults{CLICommand: "fallback run"}}

	res, err := SelectCommand(d, cfg)
	require.NoError(t, err)
	require.Equal(t, "fallback run", res.CommandTemplate)
}

func TestSelectCommandUsesDescriptorCLIAgentKey(t *testing.T) {
	d := &model.Descriptor{ID: "a", CLIAgentTemplate: "claude"}
	cfg := &model.Config{
		CLIAgents: map[string]model.CLIAgentTemplate{
			"claude": {CLICommand: "claude --prompt {{prompt_path}}"},
			"codex":  {CLICommand: "codex exec"},
		},
	}
	res, err := SelectCommand(d, cfg)
	require.NoError(t, err)
	require.NotNil(t, res.AgentTemplate)
	require.Equal(t, "claude --prompt {{prompt_path}}", res.CommandTemplate)
}

func TestSelectCommandAutoSelectsByModelSubstring(t *testing.T) {
	d := &model.Descriptor{ID: "a", Model: "claude-sonnet-4"}
	cfg := &model.Config{
		CLIAgents: map[string]model.CLIAgentTemplate{
			"claude": {CLICommand: "claude run"},
			"codex":  {CLICommand: "codex run"},
		},
	}
	res, err := SelectCommand(d, cfg)
	require.NoError(t, err)
	require.Equal(t, "claude run", res.CommandTemplate)
}

func TestSelectCommandFirstAvailableIsDeterministic(t *testing.T) {
	d := &model.Descriptor{ID: "a"}
	cfg := &model.Config{
		CLIAgents: map[string]model.CLIAgentTemplate{
			"zeta":  {CLICommand: "zeta run"},
			"alpha": {CLICommand: "alpha run"},
		},
	}
	res, err := SelectCommand(d, cfg)
	require.NoError(t, err)
	require.Equal(t, "alpha run", res.CommandTemplate, "first-available must pick lexicographically smallest key for determinism")
}

func TestSelectCommandFailsNoCliConfigured(t *testing.T) {
	d := &model.Descriptor{ID: "a"}
	cfg := &model.Config{}

	_, err := SelectCommand(d, cfg)
	require.Error(t, err)
	require.True(t, direrr.Is(err, direrr.KindNoCliConfigured))
}

func TestComposeCommandAppliesEnvsStdinAndPrintenv(t *testing.T) {
	res := Resolution{
		CommandTemplate: "claude --prompt",
		AgentTemplate: &model.CLIAgentTemplate{
			CLICommand:          "claude --prompt",
			Envs:                map[string]string{"FOO": "bar"},
			InjectPromptToStdin: true,
			InjectEnvsToPrompt:  true,
		},
	}
	out := ComposeCommand(res, ComposeContext{PromptPath: "/tmp/p.md"})
	require.Contains(t, out, "FOO=bar")
	require.Contains(t, out, "printenv | cat - /tmp/p.md")
	require.Contains(t, out, "claude --prompt")
}

func TestComposeCommandPrintenvPrefixWithoutStdin(t *testing.T) {
	res := Resolution{
		CommandTemplate: "claude --prompt",
		AgentTemplate: &model.CLIAgentTemplate{
			InjectEnvsToPrompt: true,
		},
	}
	out := ComposeCommand(res, ComposeContext{})
	require.True(t, len(out) > 0 && out[:len("printenv | ")] == "printenv | ")
}

func TestComposeCommandExpandsPlaceholders(t *testing.T) {
	res := Resolution{CommandTemplate: "run --model {{model}} --turns {{max_turns}}"}
	out := ComposeCommand(res, ComposeContext{Model: "gpt-4", MaxTurns: 5})
	require.Equal(t, "run --model gpt-4 --turns 5", out)
}
