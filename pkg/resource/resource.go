// Package resource implements the loader shared by the descriptor parser,
// the inheritance resolver, and the prompt assembler (C1): fetching bytes
// from file://, http(s)://, or plain filesystem paths, behind a URI
// allow-list, a path-traversal guard, a TTL cache, and fixed-delay retry.
package resource

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/a5c-ai/agentdispatch/pkg/constants"
	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/httputil"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/ratelimit"
)

var log = logger.New("resource:loader")

// Options configures a Loader.
type Options struct {
	// WorkDir is the directory relative and file:// paths are resolved
	// against, and the boundary the path-traversal guard enforces.
	WorkDir string
	// AllowedHosts overrides constants.DefaultAllowedHosts.
	AllowedHosts []string
	// GitHubToken is attached as an Authorization header on GitHub-host requests.
	GitHubToken string
	// CacheTTL overrides constants.DefaultResourceCacheTTL.
	CacheTTL time.Duration
	// RetryAttempts overrides constants.DefaultRetryAttempts.
	RetryAttempts int
	// RetryDelay overrides constants.DefaultRetryDelay.
	RetryDelay time.Duration
	// Limiter is the rate limiter to consult for HTTP fetches. A Loader does
	// not own one by default: the caller constructs it once per dispatch run
	// per §9 (no module-level mutable state) and passes it in.
	Limiter *ratelimit.Limiter
}

// FetchOpts are per-call overrides to Loader.Load.
type FetchOpts struct {
	// Base is used to resolve a relative path/URI when the input is not
	// already absolute.
	Base string
}

type cacheEntry struct {
	body      []byte
	insertedAt time.Time
}

// Loader fetches and caches resource bytes for one dispatch run.
type Loader struct {
	opts   Options
	client *httputil.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs a Loader. Defaults are applied for any zero-valued field in opts.
func New(opts Options) *Loader {
	if len(opts.AllowedHosts) == 0 {
		opts.AllowedHosts = constants.DefaultAllowedHosts
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = constants.DefaultResourceCacheTTL
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = constants.DefaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = constants.DefaultRetryDelay
	}
	return &Loader{
		opts: opts,
		client: httputil.NewClient(&httputil.ClientOptions{
			Timeout:     constants.DefaultHTTPTimeout,
			UserAgent:   constants.UserAgent,
			GitHubToken: opts.GitHubToken,
		}),
		cache: make(map[string]cacheEntry),
	}
}

// ResolveRelative resolves uri against base following C1's scheme rules:
// an absolute URI (carrying a scheme) is returned unchanged; otherwise it
// is joined with base the way a relative filesystem path would be.
func ResolveRelative(uri, base string) string {
	if hasScheme(uri) {
		return uri
	}
	if base == "" {
		return uri
	}
	baseDir := base
	if !hasScheme(base) {
		baseDir = filepath.Dir(base)
	} else if u, err := url.Parse(base); err == nil {
		u.Path = path_Dir(u.Path)
		baseDir = u.String()
	}
	if hasScheme(baseDir) {
		return strings.TrimSuffix(baseDir, "/") + "/" + uri
	}
	return filepath.Join(baseDir, uri)
}

func path_Dir(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	return p[:idx]
}

func hasScheme(uri string) bool {
	idx := strings.Index(uri, "://")
	return idx > 0 && !strings.Contains(uri[:idx], "/")
}

// Load fetches uri (a file://, http(s)://, or plain path, absolute or
// relative to opts.WorkDir / fo.Base) and returns its bytes. A 404 response
// is reported as (nil, nil, absent=true) rather than as an error.
func (l *Loader) Load(uri string, fo FetchOpts) (body []byte, absent bool, err error) {
	resolved := uri
	if fo.Base != "" {
		resolved = ResolveRelative(uri, fo.Base)
	}

	if cached, ok := l.fromCache(resolved); ok {
		return cached, false, nil
	}

	if hasScheme(resolved) {
		scheme := resolved[:strings.Index(resolved, "://")]
		switch scheme {
		case "http", "https":
			return l.loadHTTP(resolved)
		case "file":
			return l.loadFile(strings.TrimPrefix(resolved, "file://"))
		default:
			return nil, false, direrr.New(direrr.KindUriNotAllowed, "unsupported scheme %q in %q", scheme, resolved)
		}
	}
	return l.loadFile(resolved)
}

func (l *Loader) fromCache(key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.cache[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.insertedAt) > l.opts.CacheTTL {
		delete(l.cache, key)
		return nil, false
	}
	return entry.body, true
}

func (l *Loader) toCache(key string, body []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[key] = cacheEntry{body: body, insertedAt: time.Now()}
}

func (l *Loader) loadFile(p string) ([]byte, bool, error) {
	full := p
	if !filepath.IsAbs(full) && l.opts.WorkDir != "" {
		full = filepath.Join(l.opts.WorkDir, p)
	}
	if err := guardPath(full, l.opts.WorkDir); err != nil {
		return nil, false, err
	}

	body, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, true, nil
		}
		return nil, false, direrr.Wrap(direrr.KindResourceFetchFailed, err, "reading %s", full)
	}
	l.toCache(p, body)
	return body, false, nil
}

func (l *Loader) loadHTTP(rawURL string) ([]byte, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false, direrr.Wrap(direrr.KindUriNotAllowed, err, "parsing %s", rawURL)
	}
	if !l.hostAllowed(u.Hostname()) {
		return nil, false, direrr.New(direrr.KindUriNotAllowed, "host %q is not in the allow-list", u.Hostname())
	}

	var lastErr error
	for attempt := 0; attempt < l.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(l.opts.RetryDelay)
		}
		body, absent, err := l.doFetch(u, rawURL)
		if absent {
			return nil, true, nil
		}
		if err == nil {
			l.toCache(rawURL, body)
			return body, false, nil
		}
		if direrr.Is(err, direrr.KindUriNotAllowed) || direrr.Is(err, direrr.KindRateLimited) {
			return nil, false, err
		}
		lastErr = err
		log.Printf("fetch attempt %d/%d for %s failed: %v", attempt+1, l.opts.RetryAttempts, rawURL, err)
	}
	return nil, false, direrr.Wrap(direrr.KindResourceFetchFailed, lastErr, "fetching %s after %d attempts", rawURL, l.opts.RetryAttempts)
}

func (l *Loader) doFetch(u *url.URL, rawURL string) (body []byte, absent bool, err error) {
	fetch := func() error {
		req, rerr := l.client.NewRequest("GET", rawURL, u.Hostname())
		if rerr != nil {
			err = rerr
			return rerr
		}
		resp, rerr := l.client.Do(req)
		if rerr != nil {
			err = rerr
			return rerr
		}
		defer resp.Body.Close()

		if resp.StatusCode == 404 {
			absent = true
			return nil
		}
		if resp.StatusCode == 429 {
			err = direrr.New(direrr.KindRateLimited, "host %s returned 429", u.Hostname())
			return err
		}
		respBody, rerr := httputil.ReadResponseBody(resp)
		if rerr != nil {
			err = rerr
			return rerr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err = direrr.Wrap(direrr.KindHTTPStatus, httputil.FormatHTTPError(resp.StatusCode, respBody, "resource fetch"), rawURL)
			return err
		}
		body = respBody
		return nil
	}

	if l.opts.Limiter != nil {
		if rlErr := l.opts.Limiter.Execute(u.Hostname(), fetch); rlErr != nil {
			if rlErr == ratelimit.ErrRateLimitExceeded {
				return nil, false, direrr.New(direrr.KindRateLimited, "host %s is over its request budget", u.Hostname())
			}
			return nil, false, err
		}
	} else if ferr := fetch(); ferr != nil && err == nil {
		err = ferr
	}
	return body, absent, err
}

func (l *Loader) hostAllowed(host string) bool {
	for _, h := range l.opts.AllowedHosts {
		if host == h {
			return true
		}
	}
	return false
}

// guardPath enforces §4's path-traversal guard: no ".." segment, no system
// path prefix, no sensitive infix, and (when workDir is set) the resolved
// path must stay inside it.
func guardPath(p, workDir string) error {
	clean := filepath.Clean(p)
	for _, seg := range strings.Split(clean, string(filepath.Separator)) {
		if seg == ".." {
			return direrr.New(direrr.KindPathTraversal, "path %q contains a .. segment", p)
		}
	}
	for _, prefix := range constants.DeniedPathPrefixes {
		if strings.HasPrefix(clean, prefix) {
			return direrr.New(direrr.KindPathTraversal, "path %q has a denied prefix %q", p, prefix)
		}
	}
	for _, infix := range constants.DeniedPathInfixes {
		if strings.Contains(clean, infix) {
			return direrr.New(direrr.KindPathTraversal, "path %q contains a denied infix %q", p, infix)
		}
	}
	if workDir != "" {
		absWork, err := filepath.Abs(workDir)
		if err != nil {
			return direrr.Wrap(direrr.KindPathTraversal, err, "resolving work dir %q", workDir)
		}
		absPath, err := filepath.Abs(clean)
		if err != nil {
			return direrr.Wrap(direrr.KindPathTraversal, err, "resolving path %q", clean)
		}
		if absPath != absWork && !strings.HasPrefix(absPath, absWork+string(filepath.Separator)) {
			return direrr.New(direrr.KindPathTraversal, "path %q escapes the working directory %q", p, workDir)
		}
	}
	return nil
}

// ReadAll is a small helper used by callers that already hold an io.Reader
// (e.g. a temp file created while resolving an a5c:// reference).
func ReadAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
