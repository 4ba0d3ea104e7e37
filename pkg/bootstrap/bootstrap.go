// Package bootstrap wires C1-C4 the same way for every cmd/ entry point:
// a resource loader, a repo-host client, merged configuration, and a
// populated registry. cmd/dispatch and cmd/dispatch-tick both start here so
// the two binaries never drift on how a dispatch run is assembled.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/a5c-ai/agentdispatch/pkg/dispatchconfig"
	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/ratelimit"
	"github.com/a5c-ai/agentdispatch/pkg/registry"
	"github.com/a5c-ai/agentdispatch/pkg/resource"
)

var log = logger.New("bootstrap:wiring")

// Options mirrors the flags every cmd/ entry point exposes for assembling a
// dispatch run.
type Options struct {
	AgentsDir   string
	ConfigPath  string
	RemoteCfg   string
	WorkDir     string
	GitHubToken string
}

// Environment bundles the wired C1/C4 components plus the merged
// configuration a dispatcher needs.
type Environment struct {
	Loader   *resource.Loader
	Host     githost.Client
	Config   *model.Config
	Registry *registry.Registry
}

// Build loads configuration, constructs the repo-host client and resource
// loader, and populates the registry from the local scan plus any
// configured remote sources.
func Build(opts Options) (*Environment, error) {
	limiter := ratelimit.New(ratelimit.DefaultConfig)
	loader := resource.New(resource.Options{
		WorkDir:     opts.WorkDir,
		GitHubToken: opts.GitHubToken,
		Limiter:     limiter,
	})

	host, err := githost.NewRESTClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: no repo-host client available: %v\n", err)
		host = githost.NewFake()
	}

	cfg, err := dispatchconfig.Load(dispatchconfig.Options{
		LocalPath: opts.ConfigPath,
		RemoteURI: opts.RemoteCfg,
		Loader:    loader,
	})
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	reg := registry.New(loader, host, registry.Options{
		LocalRoot:    opts.AgentsDir,
		Individual:   individualSources(cfg),
		Repositories: repositorySources(cfg),
		TreeCacheTTL: time.Duration(cfg.RemoteAgents.CacheTimeoutMin) * time.Minute,
	})
	if err := reg.LoadLocal(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", opts.AgentsDir, err)
	}
	if err := reg.LoadRemote(cfg.RemoteAgents.Enabled); err != nil {
		log.Printf("loading remote agent sources: %v", err)
	}

	return &Environment{Loader: loader, Host: host, Config: cfg, Registry: reg}, nil
}

func individualSources(cfg *model.Config) []registry.IndividualSource {
	out := make([]registry.IndividualSource, 0, len(cfg.RemoteAgents.Individual))
	for _, s := range cfg.RemoteAgents.Individual {
		out = append(out, registry.IndividualSource{URI: s.URI, Alias: s.Alias})
	}
	return out
}

func repositorySources(cfg *model.Config) []registry.RepositorySource {
	out := make([]registry.RepositorySource, 0, len(cfg.RemoteAgents.Repositories))
	for _, s := range cfg.RemoteAgents.Repositories {
		out = append(out, registry.RepositorySource{URI: s.URI, Pattern: s.Pattern, Branch: s.Branch})
	}
	return out
}
