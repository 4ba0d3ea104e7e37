package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/agentdispatch/pkg/exec"
	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/prompt"
	"github.com/a5c-ai/agentdispatch/pkg/resource"
)

type stubRegistry struct {
	descriptors []*model.Descriptor
}

func (s *stubRegistry) All() []*model.Descriptor { return s.descriptors }

func (s *stubRegistry) Resolve(id string) (*model.Descriptor, error) {
	for _, d := range s.descriptors {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (s *stubRegistry) Discover(current *model.Descriptor) []model.DiscoverySummary { return nil }

func TestDispatchRunsMatchedAgentAndAggregates(t *testing.T) {
	reviewer := &model.Descriptor{
		ID:         "reviewer",
		Events:     []string{"pull_request"},
		PromptBody: "Review {{.Agent.ID}}",
		CLICommand: "echo done",
	}
	unrelated := &model.Descriptor{
		ID:     "deployer",
		Events: []string{"push"},
	}

	cfg := &model.Config{Defaults: model.Defaults{TimeoutMinutes: 1}}
	d := New(nil, githost.NewFake(), prompt.New(resource.New(resource.Options{})), exec.New(), cfg, t.TempDir())
	d.Registry = &stubRegistry{descriptors: []*model.Descriptor{reviewer, unrelated}}

	evt := model.NewEventContext(nil)
	evt.Kind = model.EventPullRequest

	summary := d.Dispatch(context.Background(), evt)
	require.Equal(t, 1, summary.AgentsRun)
	require.Equal(t, 1, summary.AgentsSuccessful)
	require.True(t, summary.Success)
	require.Equal(t, "reviewer", summary.AgentResults[0].AgentID)
}

func TestDispatchSkipsUnauthorizedActor(t *testing.T) {
	d1 := &model.Descriptor{
		ID:            "locked",
		Events:        []string{"issues"},
		UserWhitelist: []string{"alice"},
		CLICommand:    "echo hi",
	}
	cfg := &model.Config{}
	d := New(nil, githost.NewFake(), prompt.New(resource.New(resource.Options{})), exec.New(), cfg, "")
	d.Registry = &stubRegistry{descriptors: []*model.Descriptor{d1}}

	evt := model.NewEventContext(nil)
	evt.Kind = model.EventIssues
	evt.Actor = "mallory"

	summary := d.Dispatch(context.Background(), evt)
	require.Equal(t, 0, summary.AgentsRun, "actor not in whitelist must be skipped before execution")
}

func TestDispatchDoesNotDedupeAcrossMentionAndEventPasses(t *testing.T) {
	both := &model.Descriptor{
		ID:         "both",
		Events:     []string{"issue_comment"},
		Mentions:   []string{"@both"},
		CLICommand: "echo hi",
	}
	cfg := &model.Config{}
	d := New(nil, githost.NewFake(), prompt.New(resource.New(resource.Options{})), exec.New(), cfg, "")
	d.Registry = &stubRegistry{descriptors: []*model.Descriptor{both}}

	evt := model.NewEventContext(nil)
	evt.Kind = model.EventIssueComment
	evt.MentionableContent = "please look @both"

	summary := d.Dispatch(context.Background(), evt)
	require.Equal(t, 1, summary.AgentsRun, "mention-driven descriptors only ever enter the mention pass, never the event pass, so merging both passes without deduping still runs this descriptor once")
}

func TestDispatchContinuesAfterOneFailure(t *testing.T) {
	failer := &model.Descriptor{ID: "failer", Events: []string{"push"}, CLICommand: "exit 3"}
	succeeder := &model.Descriptor{ID: "succeeder", Events: []string{"push"}, CLICommand: "echo ok"}

	cfg := &model.Config{}
	d := New(nil, githost.NewFake(), prompt.New(resource.New(resource.Options{})), exec.New(), cfg, "")
	d.Registry = &stubRegistry{descriptors: []*model.Descriptor{failer, succeeder}}

	evt := model.NewEventContext(nil)
	evt.Kind = model.EventPush

	summary := d.Dispatch(context.Background(), evt)
	require.Equal(t, 2, summary.AgentsRun)
	require.Equal(t, 1, summary.AgentsFailed)
	require.Equal(t, 1, summary.AgentsSuccessful)
	require.False(t, summary.Success, "overall success must be false if any candidate failed")
}
