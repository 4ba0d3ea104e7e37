package stringutil

import "strings"

// NormalizeAgentID strips a trailing ".md" extension and any directory
// components from a descriptor path or a5c:// URI, leaving the bare agent
// identifier used for registry lookups and status-report agent_id fields.
//
// Examples:
//
//	NormalizeAgentID("reviewer")                   // returns "reviewer"
//	NormalizeAgentID("reviewer.md")                 // returns "reviewer"
//	NormalizeAgentID(".a5c/agents/reviewer.md")      // returns "reviewer"
func NormalizeAgentID(name string) string {
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, ".md")
}

// NormalizeEnvKey converts dashes to underscores and upper-cases an
// identifier for use as an environment variable key, matching the
// transformation applied to template field names like "max-turns" before
// they are exported as MAX_TURNS for inject_envs_to_prompt.
//
// Examples:
//
//	NormalizeEnvKey("max-turns")   // returns "MAX_TURNS"
//	NormalizeEnvKey("agent_id")    // returns "AGENT_ID"
func NormalizeEnvKey(identifier string) string {
	return strings.ToUpper(strings.ReplaceAll(identifier, "-", "_"))
}
