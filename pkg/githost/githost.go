// Package githost is the thin interface the dispatcher uses to reach the
// repo host: listing tags for a5c:// version resolution and fetching a file
// at a given ref. The concrete implementation wraps cli/go-gh/v2's REST
// client rather than shelling out to the gh binary.
package githost

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/gitutil"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
)

var log = logger.New("githost:client")

// TreeEntry is one blob/tree entry from a recursive git tree listing.
type TreeEntry struct {
	Path string
	Type string // "blob" or "tree"
	SHA  string
}

// CommitFiles is the file-level detail of a single commit, used to resolve
// ctx.changed_files (§4.5.1) and the last-N-commits diff text (§4.5.3).
type CommitFiles struct {
	SHA     string
	Message string
	Files   []string
	Patches map[string]string
}

// Client is the repo-host surface §6.5 requires: pkg/inherit consumes
// ListTags/GetFileAtRef for a5c:// resolution, pkg/registry consumes the
// branch/tree methods for repository sources, pkg/trigger consumes the
// PR/commit methods for the path matcher, and pkg/dispatch consumes the
// membership methods for the authorization filter. Depending on an
// interface rather than *RESTClient keeps every consumer testable without a
// live host.
type Client interface {
	ListTags(org, repo string) ([]string, error)
	GetFileAtRef(org, repo, path, ref string) ([]byte, error)
	GetRefSHA(org, repo, branch string) (string, error)
	GetTreeRecursive(org, repo, sha string) ([]TreeEntry, error)
	ListPRFiles(org, repo string, number int) ([]string, error)
	GetCommit(org, repo, sha string) (CommitFiles, error)
	ListOrgMembers(org string) ([]string, error)
	ListRepoCollaborators(org, repo string) ([]string, error)
	UserExists(login string) (bool, error)
}

// RESTClient implements Client against the GitHub REST API via go-gh's
// authenticated HTTP transport, so it inherits the user's existing gh CLI
// credentials without re-implementing OAuth.
type RESTClient struct {
	rest *api.RESTClient
}

// NewRESTClient builds a Client using go-gh's ambient authentication
// (GH_TOKEN, gh config, or an attached gh CLI session).
func NewRESTClient() (*RESTClient, error) {
	rest, err := api.DefaultRESTClient()
	if err != nil {
		return nil, direrr.Wrap(direrr.KindNoCliConfigured, err, "constructing go-gh REST client")
	}
	return &RESTClient{rest: rest}, nil
}

type tagEntry struct {
	Name string `json:"name"`
}

// ListTags returns every tag name on org/repo, for semver-range resolution.
func (c *RESTClient) ListTags(org, repo string) ([]string, error) {
	var tags []tagEntry
	path := fmt.Sprintf("repos/%s/%s/tags?per_page=100", org, repo)
	if err := c.rest.Get(path, &tags); err != nil {
		if gitutil.IsAuthError(err.Error()) {
			return nil, direrr.Wrap(direrr.KindUnauthorized, err, "listing tags for %s/%s", org, repo)
		}
		return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "listing tags for %s/%s", org, repo)
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names, nil
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

// GetFileAtRef fetches a single file's decoded contents at a tag or SHA ref.
func (c *RESTClient) GetFileAtRef(org, repo, path, ref string) ([]byte, error) {
	var resp contentsResponse
	apiPath := fmt.Sprintf("repos/%s/%s/contents/%s?ref=%s", org, repo, path, ref)
	if err := c.rest.Get(apiPath, &resp); err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, direrr.New(direrr.KindResourceFetchFailed, "%s/%s/%s@%s not found", org, repo, path, ref)
		}
		if !gitutil.IsHexString(ref) {
			log.Printf("ref %q is not a raw sha; relying on host-side tag resolution", ref)
		}
		return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "fetching %s/%s/%s@%s", org, repo, path, ref)
	}
	return decodeContents(resp)
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// GetRefSHA resolves a branch name to its current commit SHA.
func (c *RESTClient) GetRefSHA(org, repo, branch string) (string, error) {
	var resp refResponse
	path := fmt.Sprintf("repos/%s/%s/git/ref/heads/%s", org, repo, branch)
	if err := c.rest.Get(path, &resp); err != nil {
		return "", direrr.Wrap(direrr.KindResourceFetchFailed, err, "resolving ref %s/%s@%s", org, repo, branch)
	}
	return resp.Object.SHA, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// GetTreeRecursive lists every blob/tree entry reachable from sha.
func (c *RESTClient) GetTreeRecursive(org, repo, sha string) ([]TreeEntry, error) {
	var resp treeResponse
	path := fmt.Sprintf("repos/%s/%s/git/trees/%s?recursive=1", org, repo, sha)
	if err := c.rest.Get(path, &resp); err != nil {
		return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "listing tree %s/%s@%s", org, repo, sha)
	}
	if resp.Truncated {
		log.Printf("tree listing for %s/%s@%s was truncated by the host API", org, repo, sha)
	}
	entries := make([]TreeEntry, 0, len(resp.Tree))
	for _, e := range resp.Tree {
		entries = append(entries, TreeEntry{Path: e.Path, Type: e.Type, SHA: e.SHA})
	}
	return entries, nil
}

type prFileEntry struct {
	Filename string `json:"filename"`
}

// ListPRFiles returns the changed-file paths of a pull request.
func (c *RESTClient) ListPRFiles(org, repo string, number int) ([]string, error) {
	var files []prFileEntry
	path := fmt.Sprintf("repos/%s/%s/pulls/%d/files?per_page=100", org, repo, number)
	if err := c.rest.Get(path, &files); err != nil {
		return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "listing files for %s/%s#%d", org, repo, number)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	return names, nil
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
	} `json:"commit"`
	Files []struct {
		Filename string `json:"filename"`
		Patch    string `json:"patch"`
	} `json:"files"`
}

// GetCommit fetches a single commit with its changed files and patches.
func (c *RESTClient) GetCommit(org, repo, sha string) (CommitFiles, error) {
	var resp commitResponse
	path := fmt.Sprintf("repos/%s/%s/commits/%s", org, repo, sha)
	if err := c.rest.Get(path, &resp); err != nil {
		return CommitFiles{}, direrr.Wrap(direrr.KindResourceFetchFailed, err, "fetching commit %s/%s@%s", org, repo, sha)
	}
	out := CommitFiles{SHA: resp.SHA, Message: resp.Commit.Message, Patches: map[string]string{}}
	for _, f := range resp.Files {
		out.Files = append(out.Files, f.Filename)
		if f.Patch != "" {
			out.Patches[f.Filename] = f.Patch
		}
	}
	return out, nil
}

type userEntry struct {
	Login string `json:"login"`
}

// ListOrgMembers lists the login names of an organization's members.
func (c *RESTClient) ListOrgMembers(org string) ([]string, error) {
	var members []userEntry
	path := fmt.Sprintf("orgs/%s/members?per_page=100", org)
	if err := c.rest.Get(path, &members); err != nil {
		return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "listing members of org %s", org)
	}
	return loginsOf(members), nil
}

// ListRepoCollaborators lists the login names of a repo's collaborators.
func (c *RESTClient) ListRepoCollaborators(org, repo string) ([]string, error) {
	var collabs []userEntry
	path := fmt.Sprintf("repos/%s/%s/collaborators?per_page=100", org, repo)
	if err := c.rest.Get(path, &collabs); err != nil {
		return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "listing collaborators of %s/%s", org, repo)
	}
	return loginsOf(collabs), nil
}

// UserExists reports whether login resolves to a real user account.
func (c *RESTClient) UserExists(login string) (bool, error) {
	var u userEntry
	err := c.rest.Get(fmt.Sprintf("users/%s", login), &u)
	if err == nil {
		return true, nil
	}
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, direrr.Wrap(direrr.KindResourceFetchFailed, err, "looking up user %s", login)
}

func loginsOf(entries []userEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Login)
	}
	return names
}

func decodeContents(resp contentsResponse) ([]byte, error) {
	if resp.Encoding != "base64" {
		return []byte(resp.Content), nil
	}
	cleaned := strings.ReplaceAll(resp.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, direrr.Wrap(direrr.KindResourceFetchFailed, err, "decoding base64 file contents")
	}
	return decoded, nil
}
