package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkglab/pkglab/internal/config"
	"github.com/pkglab/pkglab/internal/fingerprint"
	"github.com/pkglab/pkglab/internal/store"
)

type fakeVCS struct {
	branch string
	err    error
}

func (f fakeVCS) CurrentBranch(string) (string, error) { return f.branch, f.err }

func writeJSON(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// newFixture builds a two-package producer workspace: @acme/a with no
// deps, @acme/b depending on @acme/a.
func newFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "package.json"), `{"name":"root","workspaces":["packages/*"]}`)
	writeJSON(t, filepath.Join(root, "packages", "a", "package.json"), `{"name":"@acme/a","version":"0.0.1"}`)
	writeJSON(t, filepath.Join(root, "packages", "b", "package.json"),
		`{"name":"@acme/b","version":"0.0.1","dependencies":{"@acme/a":"0.0.1"}}`)
	return root
}

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	root := t.TempDir()
	return Dependencies{
		VCS: fakeVCS{branch: "main"},
		Paths: store.Paths{
			Root:     root,
			Catalog:  filepath.Join(root, "catalog.json"),
			Lock:     filepath.Join(root, "catalog.lock"),
			Registry: filepath.Join(root, "registry"),
			Backups:  filepath.Join(root, "backups"),
		},
		Cfg: config.Defaults(),
	}
}

func TestRun_DryRunPublishesAllOnFirstRun(t *testing.T) {
	root := newFixture(t)
	deps := testDeps(t)

	res, err := Run(context.Background(), Request{ProducerDir: root, DryRun: true}, deps)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"@acme/a", "@acme/b"}, res.Published)
	require.Equal(t, untagged, res.Tag)
}

func TestRun_UnchangedNoPublish(t *testing.T) {
	root := newFixture(t)
	deps := testDeps(t)

	// Simulate a prior publish by writing catalog entries matching the
	// fixture's current fingerprints directly (bypassing pack/publish,
	// which would require real package-manager binaries).
	res, err := Run(context.Background(), Request{ProducerDir: root, DryRun: true}, deps)
	require.NoError(t, err)
	require.Len(t, res.Published, 2)

	aFP, err := fingerprint.Compute(filepath.Join(root, "packages", "a"), nil)
	require.NoError(t, err)
	bFP, err := fingerprint.Compute(filepath.Join(root, "packages", "b"), []fingerprint.Dep{{Name: "@acme/a", Fingerprint: aFP}})
	require.NoError(t, err)
	fps := map[string]string{"@acme/a": aFP, "@acme/b": bFP}

	require.NoError(t, store.WithLock(deps.Paths, time.Second, func(c *store.Catalog) error {
		for name, fp := range fps {
			c.Published[store.PublishKey(name, untagged)] = store.PublishRecord{
				Version:     "0.0.0-pkglab.1",
				Fingerprint: fp,
				N:           1,
			}
		}
		return nil
	}))

	res2, err := Run(context.Background(), Request{ProducerDir: root, DryRun: true}, deps)
	require.NoError(t, err)
	require.Empty(t, res2.Published, "no files changed since the simulated publish, so nothing should republish")
}

func TestRun_TagConflict(t *testing.T) {
	root := newFixture(t)
	deps := testDeps(t)

	_, err := Run(context.Background(), Request{ProducerDir: root, Tag: "foo", Worktree: true, DryRun: true}, deps)
	require.Error(t, err)
}

func TestRun_WorktreeDerivesSanitizedTag(t *testing.T) {
	root := newFixture(t)
	deps := testDeps(t)
	deps.VCS = fakeVCS{branch: "feat/x-y"}

	res, err := Run(context.Background(), Request{ProducerDir: root, Worktree: true, DryRun: true}, deps)
	require.NoError(t, err)
	require.Equal(t, "feat-x-y", res.Tag)
}

func TestRun_UnknownSelector(t *testing.T) {
	root := newFixture(t)
	deps := testDeps(t)

	_, err := Run(context.Background(), Request{ProducerDir: root, Selector: "@acme/nope", DryRun: true}, deps)
	require.Error(t, err)
}

func TestRun_SelectorClosureOnlyPublishesClosure(t *testing.T) {
	root := newFixture(t)
	deps := testDeps(t)

	// Selecting the leaf "a" still pulls in "b" (b depends on a, so b is one
	// of a's ancestors), matching the ancestors ∪ self ∪ descendants rule.
	res, err := Run(context.Background(), Request{ProducerDir: root, Selector: "@acme/a", DryRun: true}, deps)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"@acme/a", "@acme/b"}, res.Published)
}

func TestCountLine(t *testing.T) {
	require.Equal(t, "2 packages", CountLine(2))
	require.Equal(t, "0 packages", CountLine(0))
}
