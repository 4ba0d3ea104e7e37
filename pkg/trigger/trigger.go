// Package trigger implements the trigger-matching engine (C5): the event
// pass and the mention pass that decide which registered descriptors run in
// response to an event, and in what order.
package trigger

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/sliceutil"
)

// Match pairs a descriptor with the reason it was selected.
type Match struct {
	Descriptor  *model.Descriptor
	TriggeredBy string
	// MentionOrder is the first-occurrence index of the matched mention
	// token within the searched content; only meaningful for mention-pass
	// results, where it drives the ordering.
	MentionOrder int
}

// Engine runs both passes over a fixed descriptor set.
type Engine struct {
	Descriptors []*model.Descriptor
}

// New constructs an Engine over descriptors (already inheritance-resolved).
func New(descriptors []*model.Descriptor) *Engine {
	return &Engine{Descriptors: descriptors}
}

// AgentsForEvent is the event-trigger pass (§4.5.1): for each descriptor,
// collects a hit from any sub-matcher (a descriptor whose only trigger is a
// matching events list counts as a hit), then orders matches descending by
// priority, stable on ties.
func (e *Engine) AgentsForEvent(ctx *model.EventContext) ([]Match, error) {
	var matches []Match
	for _, d := range e.Descriptors {
		if len(d.Events) > 0 && !containsEventKind(d.Events, ctx.Kind) {
			continue
		}
		if len(d.Mentions) > 0 {
			continue // mention-driven descriptors only participate in the mention pass
		}

		reason, hit, err := firstSubMatcherHit(d, ctx)
		if err != nil {
			return nil, err
		}
		if hit {
			matches = append(matches, Match{Descriptor: d, TriggeredBy: reason})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Descriptor.Priority > matches[j].Descriptor.Priority
	})
	return matches, nil
}

func firstSubMatcherHit(d *model.Descriptor, ctx *model.EventContext) (string, bool, error) {
	if ctx.Kind == model.EventScheduledTick && d.Schedule != "" {
		if strings.TrimSpace(ctx.CronExpression) == strings.TrimSpace(d.Schedule) {
			return "Schedule: " + d.Schedule, true, nil
		}
	}

	if label, hit := matchLabel(d.Labels, ctx.Labels); hit {
		return "Label: " + label, true, nil
	}

	if pattern, hit := matchBranch(d.Branches, ctx.Branch); hit {
		return "Branch: " + pattern, true, nil
	}

	if len(d.Paths) > 0 {
		files, err := ctx.ChangedFiles()
		if err != nil {
			return "", false, err
		}
		if pattern, hit := matchPaths(d.Paths, files); hit {
			return "Path: " + pattern, true, nil
		}
	}

	if len(d.Events) > 0 && d.Schedule == "" && len(d.Labels) == 0 && len(d.Branches) == 0 && len(d.Paths) == 0 {
		return "Event: " + string(ctx.Kind), true, nil
	}

	return "", false, nil
}

func containsEventKind(events []string, kind model.EventKind) bool {
	return sliceutil.Contains(events, string(kind))
}

func matchLabel(descLabels, eventLabels []string) (string, bool) {
	for _, want := range descLabels {
		if sliceutil.Contains(eventLabels, want) {
			return want, true
		}
	}
	return "", false
}

func matchBranch(patterns []string, branch string) (string, bool) {
	for _, p := range patterns {
		if wildcardMatch(p, branch) {
			return p, true
		}
	}
	return "", false
}

// wildcardMatch implements the branch matcher's glob semantics (exact,
// prefix*, *suffix, a*b*c middle-wildcards) with plain string operations —
// regex is deliberately not used here (§4.5.1). "*" never matches "/", so
// "feature/*" matches "feature/x" but rejects "feature/x/y".
func wildcardMatch(pattern, s string) bool {
	segments := strings.Split(pattern, "*")
	if len(segments) == 1 {
		return pattern == s
	}

	if !strings.HasPrefix(s, segments[0]) {
		return false
	}
	pos := len(segments[0])

	for _, seg := range segments[1 : len(segments)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(s[pos:], seg)
		if idx < 0 {
			return false
		}
		if strings.Contains(s[pos:pos+idx], "/") {
			return false
		}
		pos += idx + len(seg)
	}

	last := segments[len(segments)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	suffixStart := len(s) - len(last)
	if suffixStart < pos {
		return false
	}
	return !strings.Contains(s[pos:suffixStart], "/")
}

func matchPaths(patterns, files []string) (string, bool) {
	for _, p := range patterns {
		for _, f := range files {
			if ok, _ := doublestar.Match(p, f); ok {
				return p, true
			}
		}
	}
	return "", false
}

// AgentsForMentions is the mention pass (§4.5.2): descriptors with at least
// one mention token present in content, ordered ascending by first
// occurrence. For a workflow_run event every descriptor with mentions is
// admitted on its first token, without searching content.
func (e *Engine) AgentsForMentions(content string, kind model.EventKind) []Match {
	var matches []Match
	for _, d := range e.Descriptors {
		if len(d.Events) > 0 && !containsEventKind(d.Events, kind) {
			continue
		}
		if len(d.Mentions) == 0 {
			continue
		}

		if kind == model.EventWorkflowRun {
			matches = append(matches, Match{
				Descriptor:   d,
				TriggeredBy:  "Mention: " + d.Mentions[0] + " (workflow_run)",
				MentionOrder: 0,
			})
			continue
		}

		order := -1
		var token string
		for _, t := range d.Mentions {
			idx := strings.Index(content, t)
			if idx < 0 {
				continue
			}
			if order == -1 || idx < order {
				order = idx
				token = t
			}
		}
		if order >= 0 {
			matches = append(matches, Match{
				Descriptor:   d,
				TriggeredBy:  "Mention: " + token,
				MentionOrder: order,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MentionOrder < matches[j].MentionOrder
	})
	return matches
}

// mergePatterns are the lower-cased prefixes of the §6.3 PR-merge
// commit-message shapes, matched as plain substrings.
var mergePatterns = []string{
	`merge pull request #`,
	`merged pull request #`,
	`merge pr #`,
	`squash and merge pull request #`,
	`rebase and merge pull request #`,
}

// ExtractMergedPRNumber detects whether commitMessage names a PR merge per
// §6.3 and returns its number. The "#<n> from <branch>" shape is checked
// last since it lacks a distinguishing verb prefix.
func ExtractMergedPRNumber(commitMessage string) (int, bool) {
	lower := strings.ToLower(commitMessage)
	for _, p := range mergePatterns {
		if idx := strings.Index(lower, p); idx >= 0 {
			if n, ok := readLeadingInt(commitMessage[idx+len(p):]); ok {
				return n, true
			}
		}
	}
	if idx := strings.Index(commitMessage, "#"); idx >= 0 {
		rest := commitMessage[idx+1:]
		if n, ok := readLeadingInt(rest); ok && strings.Contains(rest, " from ") {
			return n, true
		}
	}
	return 0, false
}

func readLeadingInt(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
