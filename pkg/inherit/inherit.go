// Package inherit implements the inheritance resolver (C3): recursively
// resolving a descriptor's `from` reference, detecting cycles, deep-merging
// base into child, and substituting the "{{base-prompt}}" token in the
// child's prompt body.
package inherit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/a5c-ai/agentdispatch/pkg/constants"
	"github.com/a5c-ai/agentdispatch/pkg/descriptor"
	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/resource"
)

var log = logger.New("inherit:resolver")

// basePromptToken is the only template expression the inheritance pass
// substitutes; everything else is left for C6.
const basePromptToken = "{{base-prompt}}"

var a5cRefRegexp = regexp.MustCompile(`^a5c://([^/]+)/([^/]+)/(.+)@(.+)$`)

// Resolver resolves `from` references using a Loader for bytes and a
// githost.Client for a5c:// version resolution.
type Resolver struct {
	Loader *resource.Loader
	Host   githost.Client
}

// Resolve walks d's inheritance chain to completion, returning a descriptor
// with From empty and PromptBody fully substituted. chain carries the ids
// already visited on the current recursion path for cycle detection.
func (r *Resolver) Resolve(d *model.Descriptor, chain []string) (*model.Descriptor, error) {
	if d.From == "" {
		return d, nil
	}
	if len(chain) >= constants.MaxInheritanceDepth {
		return nil, direrr.New(direrr.KindCircularInheritance, "inheritance chain exceeded %d hops: %s", constants.MaxInheritanceDepth, strings.Join(chain, " -> "))
	}
	for _, seen := range chain {
		if seen == d.ID {
			return nil, direrr.New(direrr.KindCircularInheritance, "circular inheritance: %s", strings.Join(append(chain, d.ID), " -> "))
		}
	}
	chain = append(chain, d.ID)
	log.Printf("resolving base for %s from %s", d.ID, d.From)

	baseRaw, baseSrc, err := r.loadBase(d.From, d.Source)
	if err != nil {
		return nil, err
	}

	base, err := descriptor.Parse(baseRaw, baseSrc)
	if err != nil {
		return nil, err
	}

	resolvedBase, err := r.Resolve(base, chain)
	if err != nil {
		return nil, err
	}

	return merge(resolvedBase, d), nil
}

// loadBase resolves d.From to bytes, following §4.3's resolution order:
// explicit scheme, relative/absolute path, then conventional locations for
// a bare identifier.
func (r *Resolver) loadBase(from string, childSource model.Source) ([]byte, model.Source, error) {
	if strings.HasPrefix(from, "a5c://") {
		return r.loadA5C(from)
	}
	if strings.Contains(from, "://") || strings.HasPrefix(from, "/") || strings.HasPrefix(from, ".") || strings.Contains(from, "/") {
		base := childSource.Local
		if base == "" {
			base = childSource.Remote
		}
		body, absent, err := r.Loader.Load(from, resource.FetchOpts{Base: base})
		if err != nil {
			return nil, model.Source{}, err
		}
		if absent {
			return nil, model.Source{}, direrr.New(direrr.KindBaseNotFound, "base %q not found", from)
		}
		return body, model.Source{Local: resource.ResolveRelative(from, base)}, nil
	}

	for _, pattern := range constants.DescriptorConventionalPaths {
		candidate := fmt.Sprintf(pattern, from)
		body, absent, err := r.Loader.Load(candidate, resource.FetchOpts{})
		if err != nil {
			return nil, model.Source{}, err
		}
		if !absent {
			return body, model.Source{Local: candidate}, nil
		}
	}
	return nil, model.Source{}, direrr.New(direrr.KindBaseNotFound, "base %q not found in any conventional location", from)
}

func (r *Resolver) loadA5C(from string) ([]byte, model.Source, error) {
	m := a5cRefRegexp.FindStringSubmatch(from)
	if m == nil {
		return nil, model.Source{}, direrr.New(direrr.KindValidationError, "malformed a5c:// reference %q", from)
	}
	org, repo, path, rng := m[1], m[2], m[3], m[4]

	if r.Host == nil {
		return nil, model.Source{}, direrr.New(direrr.KindVersionResolutionFailed, "no repo-host client configured to resolve %q", from)
	}
	tags, err := r.Host.ListTags(org, repo)
	if err != nil {
		return nil, model.Source{}, direrr.Wrap(direrr.KindVersionResolutionFailed, err, "listing tags for %s/%s", org, repo)
	}
	tag, err := highestSatisfying(tags, rng)
	if err != nil {
		return nil, model.Source{}, direrr.Wrap(direrr.KindVersionResolutionFailed, err, "resolving %q", from)
	}

	body, err := r.Host.GetFileAtRef(org, repo, path, tag)
	if err != nil {
		return nil, model.Source{}, direrr.Wrap(direrr.KindResourceFetchFailed, err, "fetching %s/%s/%s@%s", org, repo, path, tag)
	}
	return body, model.Source{Remote: from}, nil
}

// merge deep-merges base into child per §4.3 step 6: overridable scalars
// take the child's value when set, list fields union with dedup preserving
// first-seen order, envs is merged per-key with the child winning, and From
// is dropped from the result.
func merge(base, child *model.Descriptor) *model.Descriptor {
	out := *base

	out.ID = child.ID
	overrideIfSet(&out.Name, child.Name)
	overrideIfSet(&out.Version, child.Version)
	overrideIfSet(&out.Category, child.Category)
	overrideIfSet(&out.Description, child.Description)
	overrideIfSet(&out.Model, child.Model)
	overrideIfSet(&out.UsageContext, child.UsageContext)
	overrideIfSet(&out.InvocationContext, child.InvocationContext)
	overrideIfSet(&out.CLICommand, child.CLICommand)
	overrideIfSet(&out.CLIAgentTemplate, child.CLIAgentTemplate)
	overrideIfSet(&out.PromptURI, child.PromptURI)
	overrideIfSet(&out.Schedule, child.Schedule)
	if child.MaxTurns != 0 {
		out.MaxTurns = child.MaxTurns
	}
	if child.TimeoutMinutes != 0 {
		out.TimeoutMinutes = child.TimeoutMinutes
	}
	if child.Priority != 0 {
		out.Priority = child.Priority
	}
	if child.AgentDiscovery.Enabled || len(child.AgentDiscovery.IncludeExternal) > 0 || child.AgentDiscovery.MaxInContext != 0 {
		out.AgentDiscovery = child.AgentDiscovery
	}

	out.Events = unionDedup(base.Events, child.Events)
	out.Labels = unionDedup(base.Labels, child.Labels)
	out.Branches = unionDedup(base.Branches, child.Branches)
	out.Paths = unionDedup(base.Paths, child.Paths)
	out.MCPServers = unionDedup(base.MCPServers, child.MCPServers)
	out.Mentions = child.Mentions
	if len(out.Mentions) == 0 {
		out.Mentions = base.Mentions
	}

	out.Envs = mergeEnvs(base.Envs, child.Envs)

	out.PromptBody = substituteBasePrompt(child.PromptBody, base.PromptBody)
	out.Source = child.Source
	out.From = ""

	return &out
}

func overrideIfSet(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func unionDedup(base, child []string) []string {
	seen := make(map[string]bool, len(base)+len(child))
	out := make([]string, 0, len(base)+len(child))
	for _, v := range base {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range child {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func mergeEnvs(base, child map[string]string) map[string]string {
	if len(base) == 0 && len(child) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(child))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

// highestSatisfying returns the highest tag (by semver precedence) in tags
// that satisfies the Masterminds/semver constraint rng. Tags that don't
// parse as a version (after stripping a leading "v") are skipped.
func highestSatisfying(tags []string, rng string) (string, error) {
	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return "", fmt.Errorf("invalid version range %q: %w", rng, err)
	}

	var best *semver.Version
	bestTag := ""
	for _, tag := range tags {
		v, err := semver.NewVersion(tag)
		if err != nil {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestTag = tag
		}
	}
	if best == nil {
		return "", fmt.Errorf("no tag satisfies %q among %d candidates", rng, len(tags))
	}
	return bestTag, nil
}

// substituteBasePrompt replaces the exact "{{base-prompt}}" token in the
// child body with baseBody; every other template expression is left
// verbatim for C6.
func substituteBasePrompt(childBody, baseBody string) string {
	if !strings.Contains(childBody, basePromptToken) {
		return childBody
	}
	return strings.ReplaceAll(childBody, basePromptToken, baseBody)
}
