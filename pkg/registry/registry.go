// Package registry implements the in-memory descriptor registry (C4):
// populated from a local directory scan plus configured remote sources,
// exposing keyed lookup and peer discovery. Inheritance is resolved lazily,
// on first access, so descriptors nobody selects never trigger a remote
// fetch beyond the initial listing.
package registry

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/a5c-ai/agentdispatch/pkg/constants"
	"github.com/a5c-ai/agentdispatch/pkg/descriptor"
	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/inherit"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/repoutil"
	"github.com/a5c-ai/agentdispatch/pkg/resource"
)

var log = logger.New("registry:store")

// IndividualSource is one `remote_agents.sources.individual` entry.
type IndividualSource struct {
	URI   string
	Alias string
}

// RepositorySource is one `remote_agents.sources.repositories` entry.
type RepositorySource struct {
	URI     string // "org/repo"
	Pattern string // optional glob filtering blob paths, beyond the suffix filter
	Branch  string // defaults to "main"
}

// Options configures a Registry.
type Options struct {
	LocalRoot   string
	Individual  []IndividualSource
	Repositories []RepositorySource
	TreeCacheTTL time.Duration
}

type treeCacheEntry struct {
	entries   []githost.TreeEntry
	sha       string
	insertedAt time.Time
}

// Registry is the process-local store for one dispatch run.
type Registry struct {
	loader   *resource.Loader
	resolver *inherit.Resolver
	host     githost.Client

	opts Options

	mu          sync.Mutex
	descriptors map[string]*model.Descriptor // unresolved, keyed by id
	resolved    map[string]*model.Descriptor // resolved on first access
	order       []string                     // insertion order, for deterministic iteration

	treeMu    sync.Mutex
	treeCache map[string]treeCacheEntry
}

// New constructs an empty Registry backed by loader for bytes and host for
// remote tree/tag/file operations.
func New(loader *resource.Loader, host githost.Client, opts Options) *Registry {
	if opts.TreeCacheTTL <= 0 {
		opts.TreeCacheTTL = constants.ChangedFilesCacheTTL
	}
	return &Registry{
		loader:      loader,
		resolver:    &inherit.Resolver{Loader: loader, Host: host},
		host:        host,
		opts:        opts,
		descriptors: map[string]*model.Descriptor{},
		resolved:    map[string]*model.Descriptor{},
		treeCache:   map[string]treeCacheEntry{},
	}
}

// LoadLocal recursively scans opts.LocalRoot for files with the reserved
// descriptor suffix, parsing and validating each. Parse errors are logged
// as warnings and the scan continues — one bad descriptor never blocks the
// rest of the registry from loading.
func (r *Registry) LoadLocal() error {
	if r.opts.LocalRoot == "" {
		return nil
	}
	return filepath.WalkDir(r.opts.LocalRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, constants.DescriptorSuffix) {
			return nil
		}
		body, absent, ferr := r.loader.Load(path, resource.FetchOpts{})
		if ferr != nil {
			log.Printf("skipping %s: %v", path, ferr)
			return nil
		}
		if absent {
			return nil
		}
		desc, perr := descriptor.Parse(body, model.Source{Local: path})
		if perr != nil {
			log.Printf("skipping %s: %v", path, perr)
			return nil
		}
		if aerr := r.add(desc); aerr != nil {
			log.Printf("skipping %s: %v", path, aerr)
		}
		return nil
	})
}

// LoadRemote populates the registry from configured individual and
// repository sources. Disabled entirely when enabled is false (the
// `remote_agents.enabled` config flag).
func (r *Registry) LoadRemote(enabled bool) error {
	if !enabled {
		return nil
	}
	for _, src := range r.opts.Individual {
		if err := r.loadIndividual(src); err != nil {
			log.Printf("skipping individual source %s: %v", src.URI, err)
		}
	}
	for _, src := range r.opts.Repositories {
		if err := r.loadRepository(src); err != nil {
			log.Printf("skipping repository source %s: %v", src.URI, err)
		}
	}
	return nil
}

func (r *Registry) loadIndividual(src IndividualSource) error {
	body, absent, err := r.loader.Load(src.URI, resource.FetchOpts{})
	if err != nil {
		return err
	}
	if absent {
		return direrr.New(direrr.KindHTTPAbsent, "individual source %q absent", src.URI)
	}
	desc, err := descriptor.Parse(body, model.Source{Remote: src.URI})
	if err != nil {
		return err
	}
	if src.Alias != "" {
		desc.ID = src.Alias
	}
	return r.add(desc)
}

func (r *Registry) loadRepository(src RepositorySource) error {
	org, repo, err := repoutil.SplitRepoSlug(src.URI)
	if err != nil {
		return direrr.Wrap(direrr.KindValidationError, err, "repository source %q must be org/repo", src.URI)
	}
	branch := src.Branch
	if branch == "" {
		branch = "main"
	}

	entries, sha, err := r.treeFor(org, repo, branch)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Type != "blob" || !strings.HasSuffix(e.Path, constants.DescriptorSuffix) {
			continue
		}
		if src.Pattern != "" {
			if ok, _ := filepath.Match(src.Pattern, e.Path); !ok {
				continue
			}
		}
		body, err := r.host.GetFileAtRef(org, repo, e.Path, sha)
		if err != nil {
			log.Printf("skipping %s/%s/%s@%s: %v", org, repo, e.Path, sha, err)
			continue
		}
		desc, err := descriptor.Parse(body, model.Source{Remote: src.URI + "/" + e.Path})
		if err != nil {
			log.Printf("skipping %s/%s/%s@%s: %v", org, repo, e.Path, sha, err)
			continue
		}
		if err := r.add(desc); err != nil {
			log.Printf("skipping %s/%s/%s@%s: %v", org, repo, e.Path, sha, err)
		}
	}
	return nil
}

// treeFor resolves branch to a SHA and lists its tree, cached per
// <owner>/<repo>/<branch> with TTL per §4.4.
func (r *Registry) treeFor(org, repo, branch string) ([]githost.TreeEntry, string, error) {
	key := org + "/" + repo + "/" + branch

	r.treeMu.Lock()
	if entry, ok := r.treeCache[key]; ok && time.Since(entry.insertedAt) <= r.opts.TreeCacheTTL {
		r.treeMu.Unlock()
		return entry.entries, entry.sha, nil
	}
	r.treeMu.Unlock()

	sha, err := r.host.GetRefSHA(org, repo, branch)
	if err != nil {
		return nil, "", direrr.Wrap(direrr.KindResourceFetchFailed, err, "resolving %s branch", key)
	}
	entries, err := r.host.GetTreeRecursive(org, repo, sha)
	if err != nil {
		return nil, "", direrr.Wrap(direrr.KindResourceFetchFailed, err, "listing %s tree", key)
	}

	r.treeMu.Lock()
	r.treeCache[key] = treeCacheEntry{entries: entries, sha: sha, insertedAt: time.Now()}
	r.treeMu.Unlock()
	return entries, sha, nil
}

// add inserts desc into the registry, rejecting a duplicate id per
// invariant 1.
func (r *Registry) add(desc *model.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[desc.ID]; exists {
		return direrr.New(direrr.KindInvalidDescriptor, "duplicate descriptor id %q", desc.ID)
	}
	r.descriptors[desc.ID] = desc
	r.order = append(r.order, desc.ID)
	return nil
}

// All returns every unresolved descriptor, in registration order.
func (r *Registry) All() []*model.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.descriptors[id])
	}
	return out
}

// Resolve returns the inheritance-resolved form of the descriptor with the
// given id, resolving and caching it on first access.
func (r *Registry) Resolve(id string) (*model.Descriptor, error) {
	r.mu.Lock()
	if resolved, ok := r.resolved[id]; ok {
		r.mu.Unlock()
		return resolved, nil
	}
	unresolved, ok := r.descriptors[id]
	r.mu.Unlock()
	if !ok {
		return nil, direrr.New(direrr.KindBaseNotFound, "no descriptor registered with id %q", id)
	}

	resolved, err := r.resolver.Resolve(unresolved, nil)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.resolved[id] = resolved
	r.mu.Unlock()
	return resolved, nil
}

// Discover implements the §4.4 discovery query: up to
// current.AgentDiscovery.MaxInContext peer summaries, selected by same
// category/source (if IncludeSameDirectory) unioned with IncludeExternal,
// excluding current itself.
func (r *Registry) Discover(current *model.Descriptor) []model.DiscoverySummary {
	if !current.AgentDiscovery.Enabled {
		return nil
	}

	r.mu.Lock()
	candidates := make(map[string]*model.Descriptor, len(r.descriptors))
	for id, d := range r.descriptors {
		if id == current.ID {
			continue
		}
		candidates[id] = d
	}
	r.mu.Unlock()

	var picked []*model.Descriptor
	seen := map[string]bool{}

	if current.AgentDiscovery.IncludeSameDirectory {
		for _, id := range r.order {
			d, ok := candidates[id]
			if !ok || seen[id] {
				continue
			}
			if (d.Category != "" && d.Category == current.Category) || d.Source == current.Source {
				picked = append(picked, d)
				seen[id] = true
			}
		}
	}
	for _, id := range current.AgentDiscovery.IncludeExternal {
		if seen[id] {
			continue
		}
		if d, ok := candidates[id]; ok {
			picked = append(picked, d)
			seen[id] = true
		}
	}

	sort.SliceStable(picked, func(i, j int) bool { return picked[i].ID < picked[j].ID })

	limit := current.AgentDiscovery.MaxInContext
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}

	out := make([]model.DiscoverySummary, 0, len(picked))
	for _, d := range picked {
		out = append(out, model.DiscoverySummary{
			ID:                d.ID,
			Name:              d.Name,
			Category:          d.Category,
			Description:       d.Description,
			UsageContext:      d.UsageContext,
			InvocationContext: d.InvocationContext,
			Mentions:          d.Mentions,
			Events:            d.Events,
			Labels:            d.Labels,
			Paths:             d.Paths,
			PeerProvenance:    d.Source.String(),
		})
	}
	return out
}
