package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/catalog"
)

func writeFixture(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	all := append([]string{"header"}, lines...)
	content := ""
	for _, l := range all {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func openTestCatalog(t *testing.T, accounts, repos, commits []string) (*catalog.Catalog, catalog.Config) {
	t.Helper()
	root := t.TempDir()
	entrada := filepath.Join(root, "entrada")
	saida := filepath.Join(root, "saida")
	require.NoError(t, os.MkdirAll(entrada, 0o755))

	writeFixture(t, entrada, "accounts.csv", accounts)
	writeFixture(t, entrada, "repositories.csv", repos)
	writeFixture(t, entrada, "commits.csv", commits)

	cfg := catalog.Config{
		CachePages:     256,
		SortRunEntries: 4,
		EntradaDir:     entrada,
		SaidaDir:       saida,
	}
	cat, err := catalog.Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat, cfg
}

// TestBuildThenReopenIsIdempotent covers spec.md §8 property 8: a second
// Open against an already-built saida directory must reload without
// re-running ingestion, and must agree with the freshly built catalogue.
func TestBuildThenReopenIsIdempotent(t *testing.T) {
	accounts := []string{
		"1;alice;User;2015-01-01 00:00:00;0;[];0;[];0;0",
		"2;bob;Organization;2015-01-01 00:00:00;0;[];0;[];0;0",
	}
	repos := []string{
		"10;1;alice/repo;MIT;True;a repo;Go;main;2015-01-01 00:00:00;2015-01-01 00:00:00;0;0;0;0",
	}
	commits := []string{
		"10;1;2;2020-01-01 00:00:00;initial commit",
	}

	cat, cfg := openTestCatalog(t, accounts, repos, commits)
	require.Equal(t, int32(1), cat.Static.UserCount)
	require.Equal(t, int32(1), cat.Static.OrganizationCount)
	require.NoError(t, cat.Close())

	reopened, err := catalog.Open(cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, cat.Static, reopened.Static)
	require.Equal(t, 2, reopened.AccountsByID.ElementCount())
	require.Equal(t, 1, reopened.ReposByID.ElementCount())
}

// TestFriendFixtureBuildSmoke builds a catalogue from a small
// mutual-follow fixture and checks that all three users are counted and
// that no repository is tallied as bot-touched. It does not read back the
// friends lists or the persisted per-commit friend flags.
func TestFriendFixtureBuildSmoke(t *testing.T) {
	// 10 and 20 mutually follow each other, so ComputeFriends makes each
	// a friend of the other; 30 only follows 10 one-way.
	accounts := []string{
		"10;owner10;User;2015-01-01 00:00:00;1;[20];1;[20];0;0",
		"20;owner20;User;2015-01-01 00:00:00;1;[10];1;[10];0;0",
		"30;stranger;User;2015-01-01 00:00:00;0;[];1;[10];0;0",
	}
	repos := []string{
		"1;10;owner10/repo;MIT;True;desc;Go;main;2015-01-01 00:00:00;2015-01-01 00:00:00;0;0;0;0",
	}
	commits := []string{
		"1;20;30;2020-01-01 00:00:00;commit by a friend and a stranger",
	}

	cat, _ := openTestCatalog(t, accounts, repos, commits)
	require.True(t, cat.Static.UserCount >= 3)
	// Q3 tallies bot-touched repos; none here are bots.
	require.Equal(t, float64(0), cat.Static.Q3)
}
