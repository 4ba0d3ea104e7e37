package model

// Defaults is the configuration file's `defaults` section (§6.1).
type Defaults struct {
	CLICommand    string
	CLIAgent      string
	Model         string
	MaxTurns      int
	TimeoutMinutes int
	Verbose       bool
	UserWhitelist []string
}

// CLIAgentTemplate is one entry of the `cli_agents` mapping (§6.1, §4.7).
type CLIAgentTemplate struct {
	CLICommand          string
	Envs                map[string]string
	InjectPromptToStdin bool
	InjectEnvsToPrompt  bool
	Model               string
}

// RemoteAgentsConfig is the `remote_agents` section.
type RemoteAgentsConfig struct {
	Enabled         bool
	CacheTimeoutMin int
	RetryAttempts   int
	RetryDelayMS    int
	Individual      []IndividualAgentSource
	Repositories    []RepositoryAgentSource
}

// IndividualAgentSource is one `remote_agents.sources.individual` entry.
type IndividualAgentSource struct {
	URI   string
	Alias string
}

// RepositoryAgentSource is one `remote_agents.sources.repositories` entry.
type RepositoryAgentSource struct {
	URI     string
	Pattern string
	Branch  string
}

// FileProcessingConfig is the `file_processing` section.
type FileProcessingConfig struct {
	MaxFileSize     int64
	IncludePatterns []string
	ExcludePatterns []string
}

// AgentDiscoveryConfig is the `agent_discovery` section (global default,
// overridden per-descriptor by model.AgentDiscovery).
type AgentDiscoveryConfig struct {
	Enabled              bool
	MaxAgentsInContext   int
	IncludeSameDirectory bool
}

// PromptURIConfig is the `prompt_uri` section: fetch policy for prompt_uri descriptors.
type PromptURIConfig struct {
	CacheTimeoutMin int
	RetryAttempts   int
	RetryDelayMS    int
}

// Config is the fully-resolved dispatcher configuration (§6.1): embedded
// defaults, deep-merged with a local file, deep-merged with a remote
// override, user values always winning.
type Config struct {
	Defaults      Defaults
	MCPConfigPath string
	RemoteAgents  RemoteAgentsConfig
	FileProcessing FileProcessingConfig
	AgentDiscovery AgentDiscoveryConfig
	PromptURI     PromptURIConfig
	CLIAgents     map[string]CLIAgentTemplate
}
