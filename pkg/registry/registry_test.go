package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/agentdispatch/pkg/githost"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/resource"
	"github.com/a5c-ai/agentdispatch/pkg/testutil"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadLocalScansAndSkipsBadDescriptors(t *testing.T) {
	dir := testutil.TempDir(t, "registry")
	writeFile(t, dir, "reviewer.agent.md", "---\nid: reviewer\nname: reviewer\nevents: [pull_request]\n---\nReview it.\n")
	writeFile(t, dir, "sub/triager.agent.md", "---\nid: triager\nname: triager\n---\nTriage it.\n")
	writeFile(t, dir, "broken.agent.md", "no header here")
	writeFile(t, dir, "readme.md", "not a descriptor")

	reg := New(resource.New(resource.Options{WorkDir: dir}), githost.NewFake(), Options{LocalRoot: dir})
	require.NoError(t, reg.LoadLocal())

	all := reg.All()
	ids := make([]string, len(all))
	for i, d := range all {
		ids[i] = d.ID
	}
	require.ElementsMatch(t, []string{"reviewer", "triager"}, ids)
}

func TestAddRejectsDuplicateID(t *testing.T) {
	dir := testutil.TempDir(t, "registry")
	writeFile(t, dir, "a.agent.md", "---\nid: dup\nname: a\n---\nA\n")
	writeFile(t, dir, "b.agent.md", "---\nid: dup\nname: b\n---\nB\n")

	reg := New(resource.New(resource.Options{WorkDir: dir}), githost.NewFake(), Options{LocalRoot: dir})
	require.NoError(t, reg.LoadLocal())
	require.Len(t, reg.All(), 1)
}

func TestResolveCachesAcrossCalls(t *testing.T) {
	dir := testutil.TempDir(t, "registry")
	writeFile(t, dir, "base.agent.md", "---\nid: base\nname: base\n---\nBASE\n")
	writeFile(t, dir, "child.agent.md", "---\nid: child\nname: child\nfrom: ./base.agent.md\n---\n{{base-prompt}}\nEXTRA\n")

	reg := New(resource.New(resource.Options{WorkDir: dir}), githost.NewFake(), Options{LocalRoot: dir})
	require.NoError(t, reg.LoadLocal())

	resolved1, err := reg.Resolve("child")
	require.NoError(t, err)
	resolved2, err := reg.Resolve("child")
	require.NoError(t, err)
	require.Same(t, resolved1, resolved2, "Resolve must cache the resolved descriptor")
	require.Contains(t, resolved1.PromptBody, "BASE")
	require.Contains(t, resolved1.PromptBody, "EXTRA")
}

func TestDiscoverExcludesSelfAndRespectsLimit(t *testing.T) {
	dir := testutil.TempDir(t, "registry")
	writeFile(t, dir, "a.agent.md", "---\nid: a\nname: a\ncategory: review\n---\nA\n")
	writeFile(t, dir, "b.agent.md", "---\nid: b\nname: b\ncategory: review\n---\nB\n")
	writeFile(t, dir, "c.agent.md", "---\nid: c\nname: c\ncategory: review\n---\nC\n")

	reg := New(resource.New(resource.Options{WorkDir: dir}), githost.NewFake(), Options{LocalRoot: dir})
	require.NoError(t, reg.LoadLocal())

	self := &model.Descriptor{ID: "a", Category: "review", AgentDiscovery: model.AgentDiscovery{
		Enabled:              true,
		IncludeSameDirectory: true,
		MaxInContext:         1,
	}}
	summaries := reg.Discover(self)
	require.Len(t, summaries, 1)
	require.NotEqual(t, "a", summaries[0].ID)
}

func TestDiscoverDisabledReturnsNothing(t *testing.T) {
	reg := New(resource.New(resource.Options{}), githost.NewFake(), Options{})
	require.Empty(t, reg.Discover(&model.Descriptor{ID: "a"}))
}

func TestLoadRepositoryFiltersBySuffixAndPattern(t *testing.T) {
	fake := githost.NewFake()
	fake.Refs["acme/agents@main"] = "deadbeef"
	fake.Trees["acme/agents@deadbeef"] = []githost.TreeEntry{
		{Path: "reviewer.agent.md", Type: "blob"},
		{Path: "docs/readme.md", Type: "blob"},
		{Path: "examples/triager.agent.md", Type: "blob"},
	}
	fake.Files["acme/agents@deadbeef"] = map[string][]byte{
		"reviewer.agent.md":           []byte("---\nid: reviewer\nname: reviewer\n---\nReview.\n"),
		"examples/triager.agent.md":   []byte("---\nid: triager\nname: triager\n---\nTriage.\n"),
	}

	reg := New(resource.New(resource.Options{}), fake, Options{
		Repositories: []RepositorySource{{URI: "acme/agents", Pattern: "*.agent.md"}},
	})
	require.NoError(t, reg.LoadRemote(true))

	all := reg.All()
	ids := make([]string, len(all))
	for i, d := range all {
		ids[i] = d.ID
	}
	require.ElementsMatch(t, []string{"reviewer"}, ids, "pattern *.agent.md should not match the nested examples/ entry")
}
