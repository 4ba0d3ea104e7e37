// Package model holds the data types shared across the dispatcher's
// components: the resolved agent descriptor (§3), the event context handed
// to trigger matching and prompt assembly, and the run result a dispatch
// produces. Keeping these in one leaf package avoids import cycles between
// pkg/descriptor, pkg/trigger, pkg/prompt, and pkg/exec.
package model

// Source records where a descriptor's bytes came from.
type Source struct {
	Local  string // path, set when Remote == ""
	Remote string // URI, set when Local == ""
}

func (s Source) String() string {
	if s.Remote != "" {
		return "remote:" + s.Remote
	}
	return "local:" + s.Local
}

// AgentDiscovery controls whether and how a descriptor sees its peers via
// the registry's discover() query (§4.4).
type AgentDiscovery struct {
	Enabled             bool
	IncludeSameDirectory bool
	IncludeExternal     []string
	MaxInContext        int
}

// Descriptor is the normalized unit the engine consumes, after header
// parsing (C2) and inheritance resolution (C3). Until resolved, From may be
// non-empty and PromptBody may still contain an unsubstituted
// "{{base-prompt}}" token.
type Descriptor struct {
	ID                string
	Name              string
	Description       string
	Category          string
	Version           string
	UsageContext      string
	InvocationContext string
	Source            Source

	Events   []string
	Mentions []string
	Labels   []string
	Branches []string
	Paths    []string
	Schedule string
	Priority int

	UserWhitelist []string
	MCPServers    []string

	CLICommand      string
	CLIAgentTemplate string
	Model           string
	MaxTurns        int
	TimeoutMinutes  int
	Verbose         bool

	Envs                map[string]string
	InjectPromptToStdin bool
	InjectEnvsToPrompt  bool

	PromptURI  string
	PromptBody string

	From string

	AgentDiscovery AgentDiscovery
}

// DiscoverySummary is the peer-facing view of a descriptor returned by
// registry discovery (§4.4): only the fields useful for another agent to
// decide whether to mention or reason about this one.
type DiscoverySummary struct {
	ID               string
	Name             string
	Category         string
	Description      string
	UsageContext     string
	InvocationContext string
	Mentions         []string
	Events           []string
	Labels           []string
	Paths            []string
	PeerProvenance   string
}
