package resource

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/testutil"
	"github.com/stretchr/testify/require"
)

func TestLoadLocalFile(t *testing.T) {
	dir := testutil.TempDir(t, "resource")
	path := filepath.Join(dir, "reviewer.agent.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	l := New(Options{WorkDir: dir})
	body, absent, err := l.Load("reviewer.agent.md", FetchOpts{})
	require.NoError(t, err)
	require.False(t, absent)
	require.Equal(t, "hello", string(body))
}

func TestLoadLocalFileAbsent(t *testing.T) {
	dir := testutil.TempDir(t, "resource")
	l := New(Options{WorkDir: dir})
	_, absent, err := l.Load("missing.agent.md", FetchOpts{})
	require.NoError(t, err)
	require.True(t, absent)
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	dir := testutil.TempDir(t, "resource")
	l := New(Options{WorkDir: dir})
	_, _, err := l.Load("../../../etc/passwd", FetchOpts{})
	require.Error(t, err)
	require.True(t, direrr.Is(err, direrr.KindPathTraversal))
}

func TestLoadRejectsDeniedInfix(t *testing.T) {
	dir := testutil.TempDir(t, "resource")
	l := New(Options{WorkDir: dir})
	_, _, err := l.Load(".git/config", FetchOpts{})
	require.Error(t, err)
	require.True(t, direrr.Is(err, direrr.KindPathTraversal))
}

func TestLoadHTTPRejectsDisallowedHost(t *testing.T) {
	l := New(Options{AllowedHosts: []string{"github.com"}})
	_, _, err := l.Load("https://evil.example.com/x", FetchOpts{})
	require.Error(t, err)
	require.True(t, direrr.Is(err, direrr.KindUriNotAllowed))
}

func TestLoadHTTPCachesAndDeduplicates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("content"))
	}))
	defer server.Close()

	host := server.Listener.Addr().String()
	hostname, _, _ := net.SplitHostPort(host)
	l := New(Options{AllowedHosts: []string{hostname}})

	url := "http://" + host + "/resource"
	body1, _, err := l.Load(url, FetchOpts{})
	require.NoError(t, err)
	body2, _, err := l.Load(url, FetchOpts{})
	require.NoError(t, err)

	require.Equal(t, body1, body2)
	require.Equal(t, 1, calls)
}

func TestLoadHTTP404IsAbsentNotCached(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	host := server.Listener.Addr().String()
	hostname, _, _ := net.SplitHostPort(host)
	l := New(Options{AllowedHosts: []string{hostname}, RetryAttempts: 1})

	url := "http://" + host + "/missing"
	_, absent, err := l.Load(url, FetchOpts{})
	require.NoError(t, err)
	require.True(t, absent)

	_, absent, err = l.Load(url, FetchOpts{})
	require.NoError(t, err)
	require.True(t, absent)
	require.Equal(t, 2, calls, "a 404 must not be cached")
}

func TestResolveRelative(t *testing.T) {
	require.Equal(t, "https://example.com/a", ResolveRelative("https://example.com/a", "anything"))
	require.Equal(t, filepath.Join("dir", "b.md"), ResolveRelative("b.md", filepath.Join("dir", "a.md")))
}
