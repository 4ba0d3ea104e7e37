// Package webhook turns a raw GitHub webhook payload plus its declared
// event kind into the model.EventContext C5/C6 consume. It is the one
// place in the tree that knows the shape of GitHub's webhook JSON; every
// other component only sees the normalized EventContext.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/repoutil"
	"github.com/a5c-ai/agentdispatch/pkg/trigger"
)

// Build parses raw (the GitHub Actions GITHUB_EVENT_PATH document, or an
// empty payload for a scheduled tick) and returns an EventContext ready
// for C5/C6. host is consulted lazily, only if the path matcher actually
// needs ctx.changed_files.
func Build(kind model.EventKind, cronExpression string, raw []byte, host githost.Client) (*model.EventContext, error) {
	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("parsing event payload: %w", err)
		}
	}

	ctx := model.NewEventContext(changedFilesResolver(kind, payload, host))
	ctx.Kind = kind
	ctx.CronExpression = cronExpression
	ctx.Action, _ = payload["action"].(string)
	ctx.Actor = actorOf(payload)
	ctx.RepoFullName = repoFullNameOf(payload)
	ctx.Branch = branchOf(kind, payload)
	ctx.SHA = shaOf(kind, payload)
	ctx.Labels = labelsOf(payload)
	ctx.MentionableContent = mentionableContent(kind, payload)
	ctx.RawPayload = payload
	return ctx, nil
}

func actorOf(payload map[string]any) string {
	if sender, ok := payload["sender"].(map[string]any); ok {
		if login, ok := sender["login"].(string); ok {
			return login
		}
	}
	return ""
}

func repoFullNameOf(payload map[string]any) string {
	repo, ok := payload["repository"].(map[string]any)
	if !ok {
		return ""
	}
	full, _ := repo["full_name"].(string)
	return full
}

func branchOf(kind model.EventKind, payload map[string]any) string {
	switch kind {
	case model.EventPush:
		ref, _ := payload["ref"].(string)
		return strings.TrimPrefix(ref, "refs/heads/")
	case model.EventPullRequest, model.EventReview, model.EventReviewComment:
		return nestedString(payload, "pull_request", "head", "ref")
	default:
		return ""
	}
}

func shaOf(kind model.EventKind, payload map[string]any) string {
	switch kind {
	case model.EventPush:
		after, _ := payload["after"].(string)
		return after
	case model.EventPullRequest, model.EventReview, model.EventReviewComment:
		return nestedString(payload, "pull_request", "head", "sha")
	default:
		return ""
	}
}

func labelsOf(payload map[string]any) []string {
	var out []string
	for _, holder := range []string{"pull_request", "issue"} {
		item, ok := payload[holder].(map[string]any)
		if !ok {
			continue
		}
		raw, ok := item["labels"].([]any)
		if !ok {
			continue
		}
		for _, l := range raw {
			if m, ok := l.(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					out = append(out, name)
				}
			}
		}
	}
	if label, ok := payload["label"].(map[string]any); ok {
		if name, ok := label["name"].(string); ok {
			out = append(out, name)
		}
	}
	return out
}

// mentionableContent implements §4.5.3's content-assembly rule.
func mentionableContent(kind model.EventKind, payload map[string]any) string {
	var parts []string

	if comment, ok := payload["comment"].(map[string]any); ok {
		if body, ok := comment["body"].(string); ok {
			parts = append(parts, body)
		}
	}
	if review, ok := payload["review"].(map[string]any); ok {
		if body, ok := review["body"].(string); ok {
			parts = append(parts, body)
		}
	}
	for _, holder := range []string{"pull_request", "issue"} {
		if item, ok := payload[holder].(map[string]any); ok {
			if title, ok := item["title"].(string); ok {
				parts = append(parts, title)
			}
			if body, ok := item["body"].(string); ok {
				parts = append(parts, body)
			}
		}
	}
	if kind == model.EventPush {
		if commits, ok := payload["commits"].([]any); ok {
			for _, c := range commits {
				if m, ok := c.(map[string]any); ok {
					if msg, ok := m["message"].(string); ok {
						parts = append(parts, msg)
					}
				}
			}
		}
	}
	if kind == model.EventWorkflowRun {
		parts = append(parts, "Event Type: workflow_run")
		if wr, ok := payload["workflow_run"].(map[string]any); ok {
			if name, ok := wr["name"].(string); ok {
				parts = append(parts, name)
			}
		}
	}

	return strings.Join(parts, " ")
}

// changedFilesResolver builds the lazy ctx.changed_files callback per
// §4.5.1: a single-commit push uses the commit's own added/modified/removed
// sets; a push whose head commit message names a PR merge, and a
// pull_request event, both fetch the PR's files from the host.
func changedFilesResolver(kind model.EventKind, payload map[string]any, host githost.Client) func() ([]string, error) {
	repoFull := repoFullNameOf(payload)

	switch kind {
	case model.EventPullRequest:
		number := intOf(payload["number"])
		return func() ([]string, error) {
			if host == nil || repoFull == "" || number == 0 {
				return nil, nil
			}
			org, repo, err := repoutil.SplitRepoSlug(repoFull)
			if err != nil {
				return nil, err
			}
			return host.ListPRFiles(org, repo, number)
		}
	case model.EventPush:
		headCommit, _ := payload["head_commit"].(map[string]any)
		message, _ := headCommit["message"].(string)
		if number, ok := trigger.ExtractMergedPRNumber(message); ok {
			return func() ([]string, error) {
				if host == nil || repoFull == "" {
					return nil, nil
				}
				org, repo, err := repoutil.SplitRepoSlug(repoFull)
				if err != nil {
					return nil, err
				}
				return host.ListPRFiles(org, repo, number)
			}
		}
		return func() ([]string, error) {
			return stringsOf(headCommit["added"]).union(stringsOf(headCommit["modified"])).union(stringsOf(headCommit["removed"])), nil
		}
	default:
		return nil
	}
}

func nestedString(payload map[string]any, keys ...string) string {
	cur := any(payload)
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[k]
	}
	s, _ := cur.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

type fileSet []string

func stringsOf(v any) fileSet {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make(fileSet, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a fileSet) union(b fileSet) fileSet {
	return append(append(fileSet{}, a...), b...)
}
