// Package httputil wraps net/http with the conventions the resource loader
// (C1) needs: a shared Accept header, GitHub token attachment, and automatic
// redirect following with the final status and body handed back to the
// caller for interpretation (2xx/404/other are different outcomes to C1).
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the default timeout for HTTP clients.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the default User-Agent header for HTTP requests.
const DefaultUserAgent = "agentdispatch-cli"

// DefaultAccept is the Accept header sent on every resource fetch: plain
// text and markdown for descriptor/prompt bodies, JSON for API responses,
// and a wildcard fallback.
const DefaultAccept = "text/plain, text/markdown, application/json, */*"

// GitHubHostSuffixes identifies hostnames that should receive a GitHub
// Authorization header when a token is configured.
var GitHubHostSuffixes = []string{"github.com", "githubusercontent.com"}

// ClientOptions configures the HTTP client behavior.
type ClientOptions struct {
	// Timeout is the request timeout. Defaults to DefaultTimeout if zero.
	Timeout time.Duration
	// UserAgent is the User-Agent header. Defaults to DefaultUserAgent if empty.
	UserAgent string
	// GitHubToken, if set, is attached as "Authorization: token <T>" when
	// the request host is a GitHub host.
	GitHubToken string
}

// Client wraps http.Client with common configuration and utilities.
type Client struct {
	httpClient *http.Client
	userAgent  string
	token      string
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts *ClientOptions) *Client {
	timeout := DefaultTimeout
	userAgent := DefaultUserAgent
	token := ""

	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.UserAgent != "" {
			userAgent = opts.UserAgent
		}
		token = opts.GitHubToken
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		token:      token,
	}
}

// IsGitHubHost reports whether host matches one of GitHubHostSuffixes.
func IsGitHubHost(host string) bool {
	for _, suffix := range GitHubHostSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// NewRequest creates an HTTP request with the given method, carrying the standard Accept,
// User-Agent, and (when the host is a GitHub host and a token is
// configured) Authorization headers.
func (c *Client) NewRequest(method, url, host string) (*http.Request, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", DefaultAccept)
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" && IsGitHubHost(host) {
		req.Header.Set("Authorization", "token "+c.token)
	}

	return req, nil
}

// Do executes the HTTP request. The standard library client already
// follows redirects (up to 10 hops), matching the "3xx -> loop" behavior C1
// requires.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// FormatHTTPError returns a descriptive error message for common HTTP status codes.
func FormatHTTPError(statusCode int, body []byte, context string) error {
	bodyStr := string(body)

	switch statusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%s access forbidden (403): %s", context, bodyStr)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s access unauthorized (401): %s", context, bodyStr)
	case http.StatusNotFound:
		return fmt.Errorf("%s endpoint not found (404): %s", context, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s rate limit exceeded (429): %s", context, bodyStr)
	default:
		return fmt.Errorf("%s returned status %d: %s", context, statusCode, bodyStr)
	}
}

// ReadResponseBody reads and returns the response body.
// The caller is responsible for closing resp.Body.
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
