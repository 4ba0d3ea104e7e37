package githost

import (
	"fmt"

	"github.com/a5c-ai/agentdispatch/pkg/direrr"
)

// Fake is an in-memory Client used by tests across pkg/inherit, pkg/registry,
// pkg/trigger, and pkg/dispatch so host-dependent behavior can be exercised
// without a live repo host.
type Fake struct {
	Tags          map[string][]string          // "org/repo" -> tags
	Files         map[string]map[string][]byte // "org/repo@ref" -> path -> contents
	Refs          map[string]string            // "org/repo@branch" -> sha
	Trees         map[string][]TreeEntry        // "org/repo@sha" -> entries
	PRFiles       map[string][]string           // "org/repo#n" -> files
	Commits       map[string]CommitFiles        // "org/repo@sha" -> commit
	OrgMembers    map[string][]string           // "org" -> logins
	Collaborators map[string][]string           // "org/repo" -> logins
	Users         map[string]bool               // login -> exists
}

// NewFake returns an empty Fake ready for its maps to be populated.
func NewFake() *Fake {
	return &Fake{
		Tags:          map[string][]string{},
		Files:         map[string]map[string][]byte{},
		Refs:          map[string]string{},
		Trees:         map[string][]TreeEntry{},
		PRFiles:       map[string][]string{},
		Commits:       map[string]CommitFiles{},
		OrgMembers:    map[string][]string{},
		Collaborators: map[string][]string{},
		Users:         map[string]bool{},
	}
}

func (f *Fake) ListTags(org, repo string) ([]string, error) {
	return f.Tags[org+"/"+repo], nil
}

func (f *Fake) GetFileAtRef(org, repo, path, ref string) ([]byte, error) {
	files, ok := f.Files[org+"/"+repo+"@"+ref]
	if !ok {
		return nil, errNotFound(org, repo, path, ref)
	}
	body, ok := files[path]
	if !ok {
		return nil, errNotFound(org, repo, path, ref)
	}
	return body, nil
}

func (f *Fake) GetRefSHA(org, repo, branch string) (string, error) {
	sha, ok := f.Refs[org+"/"+repo+"@"+branch]
	if !ok {
		return "", direrr.New(direrr.KindResourceFetchFailed, "no ref %s/%s@%s in fake host", org, repo, branch)
	}
	return sha, nil
}

func (f *Fake) GetTreeRecursive(org, repo, sha string) ([]TreeEntry, error) {
	return f.Trees[org+"/"+repo+"@"+sha], nil
}

func (f *Fake) ListPRFiles(org, repo string, number int) ([]string, error) {
	return f.PRFiles[fmt.Sprintf("%s/%s#%d", org, repo, number)], nil
}

func (f *Fake) GetCommit(org, repo, sha string) (CommitFiles, error) {
	c, ok := f.Commits[org+"/"+repo+"@"+sha]
	if !ok {
		return CommitFiles{}, direrr.New(direrr.KindResourceFetchFailed, "no commit %s/%s@%s in fake host", org, repo, sha)
	}
	return c, nil
}

func (f *Fake) ListOrgMembers(org string) ([]string, error) {
	return f.OrgMembers[org], nil
}

func (f *Fake) ListRepoCollaborators(org, repo string) ([]string, error) {
	return f.Collaborators[org+"/"+repo], nil
}

func (f *Fake) UserExists(login string) (bool, error) {
	return f.Users[login], nil
}

func errNotFound(org, repo, path, ref string) error {
	return direrr.New(direrr.KindResourceFetchFailed, "%s/%s/%s@%s not found in fake host", org, repo, path, ref)
}
