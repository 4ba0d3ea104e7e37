package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/model"
)

func TestBuildExtractsIssueCommentFields(t *testing.T) {
	raw := []byte(`{
		"action": "created",
		"sender": {"login": "alice"},
		"repository": {"full_name": "acme/widgets"},
		"comment": {"body": "please look @reviewer"},
		"issue": {"title": "bug", "body": "it broke", "labels": [{"name": "bug"}]}
	}`)

	ctx, err := Build(model.EventIssueComment, "", raw, githost.NewFake())
	require.NoError(t, err)
	require.Equal(t, "alice", ctx.Actor)
	require.Equal(t, "acme/widgets", ctx.RepoFullName)
	require.Contains(t, ctx.MentionableContent, "please look @reviewer")
	require.Contains(t, ctx.MentionableContent, "bug")
	require.Equal(t, []string{"bug"}, ctx.Labels)
}

func TestBuildPullRequestFetchesFilesLazily(t *testing.T) {
	fake := githost.NewFake()
	fake.PRFiles["acme/widgets#7"] = []string{"src/a.go", "docs/readme.md"}

	raw := []byte(`{
		"number": 7,
		"repository": {"full_name": "acme/widgets"},
		"pull_request": {"head": {"ref": "feature/x", "sha": "deadbeef"}, "title": "t", "body": "b"}
	}`)

	ctx, err := Build(model.EventPullRequest, "", raw, fake)
	require.NoError(t, err)
	require.Equal(t, "feature/x", ctx.Branch)
	require.Equal(t, "deadbeef", ctx.SHA)

	files, err := ctx.ChangedFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"src/a.go", "docs/readme.md"}, files)
}

func TestBuildScheduledTickHasNoPayload(t *testing.T) {
	ctx, err := Build(model.EventScheduledTick, "0 * * * *", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "0 * * * *", ctx.CronExpression)
	require.Empty(t, ctx.RepoFullName)
}

func TestBuildWorkflowRunSynthesizesMarker(t *testing.T) {
	ctx, err := Build(model.EventWorkflowRun, "", []byte(`{"workflow_run": {"name": "CI"}}`), nil)
	require.NoError(t, err)
	require.Contains(t, ctx.MentionableContent, "Event Type: workflow_run")
	require.Contains(t, ctx.MentionableContent, "CI")
}
