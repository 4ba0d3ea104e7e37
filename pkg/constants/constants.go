// Package constants holds shared literal values used across the dispatcher:
// default allow-listed hosts, the descriptor file suffix, default timeouts
// and cache lifetimes. Centralizing them keeps the resource loader, the
// registry, and the execution orchestrator from disagreeing about defaults.
package constants

import "time"

// DescriptorSuffix is the filename suffix the registry's local scan looks for.
const DescriptorSuffix = ".agent.md"

// DescriptorConventionalPaths lists where a bare identifier reference in
// `from` is searched, in order, before giving up with BaseNotFound.
var DescriptorConventionalPaths = []string{
	".a5c/agents/%s.agent.md",
	".a5c/agents/examples/%s.agent.md",
	"%s.agent.md",
}

// DefaultAllowedHosts is the default URI allow-list for the resource loader.
var DefaultAllowedHosts = []string{
	"github.com",
	"raw.githubusercontent.com",
	"api.github.com",
}

// DeniedPathPrefixes are filesystem path prefixes the path-traversal guard
// always rejects outright.
var DeniedPathPrefixes = []string{
	"/etc",
	"/proc",
	"/sys",
}

// DeniedPathInfixes mark a fetch as targeting sensitive repository state,
// rejected regardless of where they appear in a normalized path.
var DeniedPathInfixes = []string{
	".git",
	".env",
	".ssh",
	".aws",
}

const (
	// DefaultResourceCacheTTL is the default cache lifetime for fetched resource bytes.
	DefaultResourceCacheTTL = 60 * time.Minute

	// DefaultRetryAttempts is the default number of attempts for a resource fetch.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the fixed delay between resource fetch retries.
	DefaultRetryDelay = time.Second

	// DefaultHTTPTimeout bounds a single HTTP request made by the resource loader.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultTimeoutMinutes is the subprocess timeout when no descriptor or
	// global default overrides it.
	DefaultTimeoutMinutes = 30

	// DefaultPriority is the descriptor priority used when one is not set.
	DefaultPriority = 50

	// MaxIncludeDepth bounds C6 include/rawInclude recursion.
	MaxIncludeDepth = 10

	// MaxInheritanceDepth bounds C3's chain walk as a hard backstop in
	// addition to the cycle-set check (belt and suspenders against a very
	// long, genuinely acyclic chain).
	MaxInheritanceDepth = 64

	// ChangedFilesCacheTTL is how long a PR's file list is cached, keyed by PR number.
	ChangedFilesCacheTTL = 5 * time.Minute

	// RateLimitWindow is the sliding window used by the per-host rate limiter.
	RateLimitWindow = 60 * time.Second

	// RateLimitMaxRequests is the max requests per host allowed within RateLimitWindow.
	RateLimitMaxRequests = 60
)

// DefaultAcceptHeader is sent on every resource-loader HTTP GET.
const DefaultAcceptHeader = "text/plain, text/markdown, application/json, */*"

// UserAgent identifies this dispatcher to HTTP peers.
const UserAgent = "agentdispatch-cli"
