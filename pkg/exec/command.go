// Package exec implements the execution orchestrator (C7): resolving which
// CLI command runs an agent, composing it from the descriptor and
// configuration, and spawning it as a subprocess with a back-channel.
package exec

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/model"
)

// Env var overrides consulted during CLI command resolution (§4.7 step 3c/4).
const (
	EnvCLIAgentOverride   = "AGENTDISPATCH_CLI_AGENT"
	EnvCLICommandOverride = "AGENTDISPATCH_CLI_COMMAND"
)

// modelSubstringAgents maps a lowercase model-name substring to the
// cli_agents template key it auto-selects (§4.7 step 3, rule 4).
var modelSubstringAgents = []struct {
	substr string
	agent  string
}{
	{"claude", "claude"},
	{"sonnet", "claude"},
	{"haiku", "claude"},
	{"opus", "claude"},
	{"gpt", "codex"},
	{"o1", "codex"},
	{"o4", "codex"},
	{"gemini", "gemini"},
}

// Resolution is the outcome of CLI command selection: either a raw command
// string (steps 1, 2, 4) or a named cli_agents template (step 3).
type Resolution struct {
	CommandTemplate string
	AgentTemplate   *model.CLIAgentTemplate
}

// SelectCommand implements §4.7's first-match-wins CLI resolution hierarchy.
func SelectCommand(d *model.Descriptor, cfg *model.Config) (Resolution, error) {
	if d.CLICommand != "" {
		return Resolution{CommandTemplate: d.CLICommand}, nil
	}
	if cfg.Defaults.CLICommand != "" {
		return Resolution{CommandTemplate: cfg.Defaults.CLICommand}, nil
	}

	if _, tmpl, ok := selectTemplate(d, cfg); ok {
		return Resolution{CommandTemplate: tmpl.CLICommand, AgentTemplate: &tmpl}, nil
	}

	if raw := os.Getenv(EnvCLICommandOverride); raw != "" {
		return Resolution{CommandTemplate: raw}, nil
	}

	return Resolution{}, direrr.New(direrr.KindNoCliConfigured, "no CLI command resolvable for agent %q", d.ID)
}

// selectTemplate implements §4.7 step 3's ordered sub-rules over cfg.CLIAgents.
func selectTemplate(d *model.Descriptor, cfg *model.Config) (string, model.CLIAgentTemplate, bool) {
	if d.CLIAgentTemplate != "" {
		if tmpl, ok := cfg.CLIAgents[d.CLIAgentTemplate]; ok {
			return d.CLIAgentTemplate, tmpl, true
		}
	}
	if cfg.Defaults.CLIAgent != "" {
		if tmpl, ok := cfg.CLIAgents[cfg.Defaults.CLIAgent]; ok {
			return cfg.Defaults.CLIAgent, tmpl, true
		}
	}
	if key := os.Getenv(EnvCLIAgentOverride); key != "" {
		if tmpl, ok := cfg.CLIAgents[key]; ok {
			return key, tmpl, true
		}
	}
	if key, tmpl, ok := autoSelectByModel(resolvedModel(d, cfg), cfg.CLIAgents); ok {
		return key, tmpl, true
	}
	if key, tmpl, ok := firstAvailable(cfg.CLIAgents); ok {
		return key, tmpl, true
	}
	return "", model.CLIAgentTemplate{}, false
}

func resolvedModel(d *model.Descriptor, cfg *model.Config) string {
	if d.Model != "" {
		return d.Model
	}
	return cfg.Defaults.Model
}

func autoSelectByModel(modelName string, agents map[string]model.CLIAgentTemplate) (string, model.CLIAgentTemplate, bool) {
	if modelName == "" {
		return "", model.CLIAgentTemplate{}, false
	}
	lower := strings.ToLower(modelName)
	for _, rule := range modelSubstringAgents {
		if !strings.Contains(lower, rule.substr) {
			continue
		}
		if rule.agent == "codex" {
			if tmpl, ok := agents["azure_codex"]; ok && os.Getenv("AZURE_PROJECT") != "" {
				return "azure_codex", tmpl, true
			}
		}
		if tmpl, ok := agents[rule.agent]; ok {
			return rule.agent, tmpl, true
		}
	}
	return "", model.CLIAgentTemplate{}, false
}

// firstAvailable picks a deterministic "first" entry from the unordered
// cli_agents map: lexicographically smallest key.
func firstAvailable(agents map[string]model.CLIAgentTemplate) (string, model.CLIAgentTemplate, bool) {
	if len(agents) == 0 {
		return "", model.CLIAgentTemplate{}, false
	}
	keys := make([]string, 0, len(agents))
	for k := range agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], agents[keys[0]], true
}

// ComposeContext is the template context §4.7 composes the final command
// against, after the envs/stdin/printenv prefixing rules are applied.
type ComposeContext struct {
	PromptPath    string
	MCPConfigPath string
	Model         string
	MaxTurns      int
	Verbose       bool
	Files         []string
	Config        map[string]any
	GlobalConfig  *model.Config
	Envs          map[string]string
}

// ComposeCommand applies §4.7's envs/stdin/printenv prefix rules to res's
// command template, then expands the {{placeholder}} tokens against cc.
func ComposeCommand(res Resolution, cc ComposeContext) string {
	command := res.CommandTemplate

	if res.AgentTemplate != nil && len(res.AgentTemplate.Envs) > 0 {
		command = envPrefix(res.AgentTemplate.Envs) + command
	}

	injectStdin := res.AgentTemplate != nil && res.AgentTemplate.InjectPromptToStdin
	injectEnvs := res.AgentTemplate != nil && res.AgentTemplate.InjectEnvsToPrompt

	if injectStdin {
		command = "cat {{prompt_path}} | " + command
	}
	if injectEnvs {
		if strings.Contains(command, "cat {{prompt_path}}") {
			command = strings.Replace(command, "cat {{prompt_path}}", "printenv | cat - {{prompt_path}}", 1)
		} else {
			command = "printenv | " + command
		}
	}

	return expandPlaceholders(command, cc)
}

func envPrefix(envs map[string]string) string {
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(envs[k])
		b.WriteString(" ")
	}
	return b.String()
}

func expandPlaceholders(command string, cc ComposeContext) string {
	replacer := strings.NewReplacer(
		"{{prompt_path}}", cc.PromptPath,
		"{{mcp_config_path}}", cc.MCPConfigPath,
		"{{model}}", cc.Model,
		"{{max_turns}}", strconv.Itoa(cc.MaxTurns),
		"{{verbose}}", strconv.FormatBool(cc.Verbose),
		"{{files}}", strings.Join(cc.Files, " "),
	)
	return replacer.Replace(command)
}
