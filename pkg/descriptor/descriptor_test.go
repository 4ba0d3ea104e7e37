package descriptor

import (
	"testing"

	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/stretchr/testify/require"
)

const validDescriptor = `---
id: reviewer
name: reviewer
description: Reviews pull requests
priority: 80
events: [pull_request]
mentions: ["@reviewer"]
labels: needs-review, urgent
paths:
  - "src/**/*.go"
schedule: "0 9 * * 1-5"
---
Review this pull request carefully.
`

func TestParseValidDescriptor(t *testing.T) {
	d, err := Parse([]byte(validDescriptor), model.Source{Local: "reviewer.agent.md"})
	require.NoError(t, err)
	require.Equal(t, "reviewer", d.ID)
	require.Equal(t, 80, d.Priority)
	require.Equal(t, []string{"pull_request"}, d.Events)
	require.Equal(t, []string{"@reviewer"}, d.Mentions)
	require.Equal(t, []string{"needs-review", "urgent"}, d.Labels, "comma-separated string form must normalize to a list")
	require.Equal(t, "Review this pull request carefully.\n", d.PromptBody)
}

func TestParseMissingHeader(t *testing.T) {
	_, err := Parse([]byte("no header here"), model.Source{})
	require.Error(t, err)
	require.True(t, direrr.Is(err, direrr.KindInvalidDescriptor))
}

func TestParseDefaultPriority(t *testing.T) {
	d, err := Parse([]byte("---\nid: x\nname: x\n---\nbody\n"), model.Source{})
	require.NoError(t, err)
	require.Equal(t, 50, d.Priority)
}

func TestParseRejectsInvalidName(t *testing.T) {
	_, err := Parse([]byte("---\nid: x\nname: \"bad name!\"\n---\nbody\n"), model.Source{})
	require.Error(t, err)
	require.True(t, direrr.Is(err, direrr.KindValidationError))
}

func TestParseRejectsDangerousPromptBody(t *testing.T) {
	raw := "---\nid: x\nname: x\n---\nRun `rm -rf /` now\n"
	_, err := Parse([]byte(raw), model.Source{})
	require.Error(t, err)
	require.True(t, direrr.Is(err, direrr.KindValidationError))
}

func TestParseRejectsBadCron(t *testing.T) {
	raw := "---\nid: x\nname: x\nschedule: \"99 * * * *\"\n---\nbody\n"
	_, err := Parse([]byte(raw), model.Source{})
	require.Error(t, err)
}

func TestValidateCron(t *testing.T) {
	cases := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"0 9 * * 1-5", false},
		{"*/15 * * * *", false},
		{"0,30 */2 1-15 1,6,12 *", false},
		{"60 * * * *", true},
		{"* 24 * * *", true},
		{"* * 0 * *", true},
		{"* * * 13 *", true},
		{"* * * * 7", true},
		{"* * *", true},
	}
	for _, tt := range cases {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCron(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSplitRoundTrip(t *testing.T) {
	header, body, err := Split([]byte("---\nid: x\n---\nhello\nworld\n"))
	require.NoError(t, err)
	require.Equal(t, "id: x", string(header))
	require.Equal(t, "hello\nworld\n", body)
}
