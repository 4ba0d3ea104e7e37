package stringutil

import "testing"

func TestNormalizeAgentID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare name", "reviewer", "reviewer"},
		{"with .md extension", "reviewer.md", "reviewer"},
		{"with directory prefix", ".a5c/agents/reviewer.md", "reviewer"},
		{"nested directory", "agents/review/security.md", "security"},
		{"dots in name", "my.agent.md", "my.agent"},
		{"no extension", "agent", "agent"},
		{"empty string", "", ""},
		{"just .md", ".md", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeAgentID(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeAgentID(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeEnvKey(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		expected   string
	}{
		{"dash-separated", "max-turns", "MAX_TURNS"},
		{"already underscore", "agent_id", "AGENT_ID"},
		{"multiple dashes", "cli-agent-template", "CLI_AGENT_TEMPLATE"},
		{"mixed case input", "Max-Turns", "MAX_TURNS"},
		{"no dashes", "model", "MODEL"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeEnvKey(tt.identifier)
			if result != tt.expected {
				t.Errorf("NormalizeEnvKey(%q) = %q, want %q", tt.identifier, result, tt.expected)
			}
		})
	}
}

func BenchmarkNormalizeAgentID(b *testing.B) {
	name := ".a5c/agents/weekly-research.md"
	for i := 0; i < b.N; i++ {
		NormalizeAgentID(name)
	}
}

func BenchmarkNormalizeEnvKey(b *testing.B) {
	identifier := "inject-envs-to-prompt"
	for i := 0; i < b.N; i++ {
		NormalizeEnvKey(identifier)
	}
}
