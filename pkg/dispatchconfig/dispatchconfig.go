// Package dispatchconfig loads the dispatcher's configuration file (§6.1):
// embedded defaults, deep-merged with a local file, deep-merged with a
// remote override, with user-supplied values always winning.
package dispatchconfig

import (
	"gopkg.in/yaml.v3"

	"github.com/a5c-ai/agentdispatch/pkg/constants"
	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/resource"
)

var log = logger.New("dispatchconfig:loader")

// fileDefaults mirrors model.Defaults with yaml tags. Its fields are plain
// values, so merge treats a zero value as absent: an explicit zero, empty
// string or false in a file does not override the layer below it.
type fileDefaults struct {
	CLICommand     string   `yaml:"cli_command"`
	CLIAgent       string   `yaml:"cli_agent"`
	Model          string   `yaml:"model"`
	MaxTurns       int      `yaml:"max_turns"`
	TimeoutMinutes int      `yaml:"timeout"`
	Verbose        bool     `yaml:"verbose"`
	UserWhitelist  []string `yaml:"user_whitelist"`
}

type fileIndividualSource struct {
	URI   string `yaml:"uri"`
	Alias string `yaml:"alias"`
}

type fileRepositorySource struct {
	URI     string `yaml:"uri"`
	Pattern string `yaml:"pattern"`
	Branch  string `yaml:"branch"`
}

type fileSources struct {
	Individual   []fileIndividualSource `yaml:"individual"`
	Repositories []fileRepositorySource `yaml:"repositories"`
}

type fileRemoteAgents struct {
	Enabled         bool        `yaml:"enabled"`
	CacheTimeoutMin int         `yaml:"cache_timeout_min"`
	RetryAttempts   int         `yaml:"retry_attempts"`
	RetryDelayMS    int         `yaml:"retry_delay_ms"`
	Sources         fileSources `yaml:"sources"`
}

type fileFileProcessing struct {
	MaxFileSize     int64    `yaml:"max_file_size"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type fileAgentDiscovery struct {
	Enabled              bool `yaml:"enabled"`
	MaxAgentsInContext   int  `yaml:"max_agents_in_context"`
	IncludeSameDirectory bool `yaml:"include_same_directory"`
}

type filePromptURI struct {
	CacheTimeoutMin int `yaml:"cache_timeout_min"`
	RetryAttempts   int `yaml:"retry_attempts"`
	RetryDelayMS    int `yaml:"retry_delay_ms"`
}

type fileCLIAgentTemplate struct {
	CLICommand          string            `yaml:"cli_command"`
	Envs                map[string]string `yaml:"envs"`
	InjectPromptToStdin bool              `yaml:"inject_prompt_to_stdin"`
	InjectEnvsToPrompt  bool              `yaml:"inject_envs_to_prompt"`
	Model               string            `yaml:"model"`
}

// fileConfig is the on-disk shape of the configuration document (§6.1).
type fileConfig struct {
	Defaults       fileDefaults                    `yaml:"defaults"`
	MCPConfigPath  string                          `yaml:"mcp_config_path"`
	RemoteAgents   fileRemoteAgents                `yaml:"remote_agents"`
	FileProcessing fileFileProcessing              `yaml:"file_processing"`
	AgentDiscovery fileAgentDiscovery              `yaml:"agent_discovery"`
	PromptURI      filePromptURI                   `yaml:"prompt_uri"`
	CLIAgents      map[string]fileCLIAgentTemplate `yaml:"cli_agents"`
}

// Options controls where Load looks for configuration.
type Options struct {
	LocalPath string // filesystem path; skipped if empty or absent
	RemoteURI string // fetched via loader; skipped if empty
	Loader    *resource.Loader
}

// Load resolves embedded defaults ← local file ← remote override into one
// model.Config, deep-merging at each step with later values winning.
func Load(opts Options) (*model.Config, error) {
	cfg := embeddedDefaults()

	if opts.LocalPath != "" {
		body, absent, err := opts.Loader.Load(opts.LocalPath, resource.FetchOpts{})
		if err != nil {
			return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "loading local config %q", opts.LocalPath)
		}
		if !absent {
			var fc fileConfig
			if err := yaml.Unmarshal(body, &fc); err != nil {
				return nil, direrr.Wrap(direrr.KindValidationError, err, "parsing local config %q", opts.LocalPath)
			}
			merge(cfg, &fc)
		} else {
			log.Printf("local config %q absent, using embedded defaults", opts.LocalPath)
		}
	}

	if opts.RemoteURI != "" {
		body, absent, err := opts.Loader.Load(opts.RemoteURI, resource.FetchOpts{})
		if err != nil {
			return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "loading remote config %q", opts.RemoteURI)
		}
		if !absent {
			var fc fileConfig
			if err := yaml.Unmarshal(body, &fc); err != nil {
				return nil, direrr.Wrap(direrr.KindValidationError, err, "parsing remote config %q", opts.RemoteURI)
			}
			merge(cfg, &fc)
		} else {
			log.Printf("remote config %q absent, skipping override", opts.RemoteURI)
		}
	}

	return cfg, nil
}

// embeddedDefaults are the dispatcher's built-in defaults, applied before
// any file is consulted.
func embeddedDefaults() *model.Config {
	return &model.Config{
		Defaults: model.Defaults{
			TimeoutMinutes: constants.DefaultTimeoutMinutes,
		},
		RemoteAgents: model.RemoteAgentsConfig{
			RetryAttempts: constants.DefaultRetryAttempts,
		},
		AgentDiscovery: model.AgentDiscoveryConfig{
			MaxAgentsInContext: 5,
		},
		CLIAgents: map[string]model.CLIAgentTemplate{},
	}
}

// merge deep-merges fc's explicitly-set fields into cfg, fc's values
// winning — implements §6.1's "deep-merged with user values winning".
func merge(cfg *model.Config, fc *fileConfig) {
	if fc.Defaults.CLICommand != "" {
		cfg.Defaults.CLICommand = fc.Defaults.CLICommand
	}
	if fc.Defaults.CLIAgent != "" {
		cfg.Defaults.CLIAgent = fc.Defaults.CLIAgent
	}
	if fc.Defaults.Model != "" {
		cfg.Defaults.Model = fc.Defaults.Model
	}
	if fc.Defaults.MaxTurns != 0 {
		cfg.Defaults.MaxTurns = fc.Defaults.MaxTurns
	}
	if fc.Defaults.TimeoutMinutes != 0 {
		cfg.Defaults.TimeoutMinutes = fc.Defaults.TimeoutMinutes
	}
	if fc.Defaults.Verbose {
		cfg.Defaults.Verbose = true
	}
	if len(fc.Defaults.UserWhitelist) > 0 {
		cfg.Defaults.UserWhitelist = fc.Defaults.UserWhitelist
	}

	if fc.MCPConfigPath != "" {
		cfg.MCPConfigPath = fc.MCPConfigPath
	}

	if fc.RemoteAgents.Enabled {
		cfg.RemoteAgents.Enabled = true
	}
	if fc.RemoteAgents.CacheTimeoutMin != 0 {
		cfg.RemoteAgents.CacheTimeoutMin = fc.RemoteAgents.CacheTimeoutMin
	}
	if fc.RemoteAgents.RetryAttempts != 0 {
		cfg.RemoteAgents.RetryAttempts = fc.RemoteAgents.RetryAttempts
	}
	if fc.RemoteAgents.RetryDelayMS != 0 {
		cfg.RemoteAgents.RetryDelayMS = fc.RemoteAgents.RetryDelayMS
	}
	for _, s := range fc.RemoteAgents.Sources.Individual {
		cfg.RemoteAgents.Individual = append(cfg.RemoteAgents.Individual, model.IndividualAgentSource{URI: s.URI, Alias: s.Alias})
	}
	for _, s := range fc.RemoteAgents.Sources.Repositories {
		cfg.RemoteAgents.Repositories = append(cfg.RemoteAgents.Repositories, model.RepositoryAgentSource{URI: s.URI, Pattern: s.Pattern, Branch: s.Branch})
	}

	if fc.FileProcessing.MaxFileSize != 0 {
		cfg.FileProcessing.MaxFileSize = fc.FileProcessing.MaxFileSize
	}
	if len(fc.FileProcessing.IncludePatterns) > 0 {
		cfg.FileProcessing.IncludePatterns = fc.FileProcessing.IncludePatterns
	}
	if len(fc.FileProcessing.ExcludePatterns) > 0 {
		cfg.FileProcessing.ExcludePatterns = fc.FileProcessing.ExcludePatterns
	}

	if fc.AgentDiscovery.Enabled {
		cfg.AgentDiscovery.Enabled = true
	}
	if fc.AgentDiscovery.MaxAgentsInContext != 0 {
		cfg.AgentDiscovery.MaxAgentsInContext = fc.AgentDiscovery.MaxAgentsInContext
	}
	if fc.AgentDiscovery.IncludeSameDirectory {
		cfg.AgentDiscovery.IncludeSameDirectory = true
	}

	if fc.PromptURI.CacheTimeoutMin != 0 {
		cfg.PromptURI.CacheTimeoutMin = fc.PromptURI.CacheTimeoutMin
	}
	if fc.PromptURI.RetryAttempts != 0 {
		cfg.PromptURI.RetryAttempts = fc.PromptURI.RetryAttempts
	}
	if fc.PromptURI.RetryDelayMS != 0 {
		cfg.PromptURI.RetryDelayMS = fc.PromptURI.RetryDelayMS
	}

	for key, tmpl := range fc.CLIAgents {
		cfg.CLIAgents[key] = model.CLIAgentTemplate{
			CLICommand:          tmpl.CLICommand,
			Envs:                tmpl.Envs,
			InjectPromptToStdin: tmpl.InjectPromptToStdin,
			InjectEnvsToPrompt:  tmpl.InjectEnvsToPrompt,
			Model:               tmpl.Model,
		}
	}
}
