// Package dispatch implements the dispatcher (C8): the per-event driver
// that ties the registry, trigger engine, prompt assembler, and execution
// orchestrator together and produces one aggregate summary per event.
package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/a5c-ai/agentdispatch/pkg/exec"
	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/prompt"
	"github.com/a5c-ai/agentdispatch/pkg/registry"
	"github.com/a5c-ai/agentdispatch/pkg/repoutil"
	"github.com/a5c-ai/agentdispatch/pkg/trigger"
)

var log = logger.New("dispatch:dispatcher")

// Registry is the subset of *registry.Registry the dispatcher consumes,
// narrowed to ease testing with a stub.
type Registry interface {
	All() []*model.Descriptor
	Resolve(id string) (*model.Descriptor, error)
	Discover(current *model.Descriptor) []model.DiscoverySummary
}

// Dispatcher runs one event through the full C4→C8 pipeline.
type Dispatcher struct {
	Registry   Registry
	Host       githost.Client
	Assembler  *prompt.Assembler
	Runner     *exec.Runner
	Config     *model.Config
	ArtifactRoot string
}

// New constructs a Dispatcher. Each agent's artifacts go to a subdirectory of
// artifactRoot named after the agent id.
func New(reg *registry.Registry, host githost.Client, assembler *prompt.Assembler, runner *exec.Runner, cfg *model.Config, artifactRoot string) *Dispatcher {
	return &Dispatcher{
		Registry:     reg,
		Host:         host,
		Assembler:    assembler,
		Runner:       runner,
		Config:       cfg,
		ArtifactRoot: artifactRoot,
	}
}

// Dispatch implements §4.8: mention pass, event pass, authorization filter,
// sequential C7 execution with failure isolation, result aggregation.
func (d *Dispatcher) Dispatch(ctx context.Context, evtCtx *model.EventContext) model.DispatchSummary {
	descriptors := d.Registry.All()
	engine := trigger.New(descriptors)

	mentionMatches := engine.AgentsForMentions(evtCtx.MentionableContent, evtCtx.Kind)
	eventMatches, err := engine.AgentsForEvent(evtCtx)
	if err != nil {
		log.Printf("event-pass matching failed: %v", err)
	}

	// §9 open question: whether mention-pass and event-pass matches for the
	// same descriptor should be deduplicated — resolved by following the
	// source's own behavior, which runs both passes without cross-pass
	// dedup. No descriptor is matched by both: the event pass skips every
	// descriptor that has mentions.
	candidates := append(append([]trigger.Match{}, mentionMatches...), eventMatches...)
	authorized := d.filterAuthorized(evtCtx, candidates)

	var results []model.RunResult
	for _, m := range authorized {
		results = append(results, d.runOne(ctx, evtCtx, m))
	}

	return summarize(results)
}

// filterAuthorized implements §4.8 step 5's user-authorization filter.
func (d *Dispatcher) filterAuthorized(evtCtx *model.EventContext, candidates []trigger.Match) []trigger.Match {
	if evtCtx.Actor == "" {
		return candidates
	}

	var out []trigger.Match
	for _, m := range candidates {
		whitelist := m.Descriptor.UserWhitelist
		if len(whitelist) == 0 {
			whitelist = d.Config.Defaults.UserWhitelist
		}

		var allowed bool
		if len(whitelist) > 0 {
			allowed = containsFold(whitelist, evtCtx.Actor)
		} else {
			allowed = d.isCollaboratorOrMember(evtCtx.RepoFullName, evtCtx.Actor)
		}

		if !allowed {
			log.Printf("skipping %s: actor %q is not in the effective whitelist", m.Descriptor.ID, evtCtx.Actor)
			continue
		}
		out = append(out, m)
	}
	return out
}

func (d *Dispatcher) isCollaboratorOrMember(repoFullName, actor string) bool {
	if d.Host == nil || repoFullName == "" {
		return false
	}
	org, repo, err := repoutil.SplitRepoSlug(repoFullName)
	if err != nil {
		return false
	}

	if collabs, err := d.Host.ListRepoCollaborators(org, repo); err == nil && containsFold(collabs, actor) {
		return true
	}
	if members, err := d.Host.ListOrgMembers(org); err == nil && containsFold(members, actor) {
		return true
	}
	return false
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) runOne(ctx context.Context, evtCtx *model.EventContext, m trigger.Match) model.RunResult {
	resolved, err := d.Registry.Resolve(m.Descriptor.ID)
	if err != nil {
		return model.RunResult{AgentID: m.Descriptor.ID, TriggeredBy: m.TriggeredBy, Success: false, Err: err}
	}

	peers := d.Registry.Discover(resolved)
	promptCtx := prompt.Context{
		Event:      evtCtx,
		Agent:      resolved,
		Activation: prompt.Activation{Reason: m.TriggeredBy},
		Peers:      peers,
	}

	base := resolved.PromptURI
	if base == "" {
		base = resolved.Source.Remote
		if base == "" {
			base = resolved.Source.Local
		}
	}
	rendered := d.Assembler.Render(resolved.PromptBody, base, promptCtx)

	res, err := exec.SelectCommand(resolved, d.Config)
	if err != nil {
		return model.RunResult{AgentID: resolved.ID, TriggeredBy: m.TriggeredBy, Success: false, Err: err}
	}

	timeout := resolved.TimeoutMinutes
	if timeout == 0 {
		timeout = d.Config.Defaults.TimeoutMinutes
	}

	artifactDir := ""
	if d.ArtifactRoot != "" {
		artifactDir = filepath.Join(d.ArtifactRoot, sanitizeID(resolved.ID))
	}

	command := exec.ComposeCommand(res, exec.ComposeContext{
		PromptPath:    filepath.Join(artifactDir, "prompt.md"),
		MCPConfigPath: d.Config.MCPConfigPath,
		Model:         resolved.Model,
		MaxTurns:      resolved.MaxTurns,
		Verbose:       resolved.Verbose,
		GlobalConfig:  d.Config,
	})

	return d.Runner.Run(ctx, exec.RunOpts{
		AgentID:     resolved.ID,
		TriggeredBy: m.TriggeredBy,
		Command:     command,
		Timeout:     time.Duration(timeout) * time.Minute,
		ArtifactDir: artifactDir,
		PromptBody:  rendered,
	})
}

func sanitizeID(id string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(id)
}

// summarize implements §6.6: aggregate agent results into a dispatch summary.
func summarize(results []model.RunResult) model.DispatchSummary {
	summary := model.DispatchSummary{AgentResults: results, Success: true}
	for _, r := range results {
		summary.AgentsRun++
		if r.Success {
			summary.AgentsSuccessful++
		} else {
			summary.AgentsFailed++
			summary.Success = false
		}
	}
	summary.SummaryText = fmt.Sprintf("%d agent(s) run, %d succeeded, %d failed",
		summary.AgentsRun, summary.AgentsSuccessful, summary.AgentsFailed)
	return summary
}
