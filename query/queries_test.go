package query_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/catalog"
	"github.com/ghcatalog/engine/format"
	"github.com/ghcatalog/engine/query"
)

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	all := append([]string{"header"}, lines...)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(all, "\n")+"\n"), 0o644))
}

func buildCatalog(t *testing.T, accounts, repos, commits []string) *catalog.Catalog {
	t.Helper()
	root := t.TempDir()
	entrada := filepath.Join(root, "entrada")
	require.NoError(t, os.MkdirAll(entrada, 0o755))

	writeLines(t, filepath.Join(entrada, "accounts.csv"), accounts)
	writeLines(t, filepath.Join(entrada, "repositories.csv"), repos)
	writeLines(t, filepath.Join(entrada, "commits.csv"), commits)

	cfg := catalog.Config{
		CachePages:     512,
		SortRunEntries: 4,
		EntradaDir:     entrada,
		SaidaDir:       filepath.Join(root, "saida"),
	}
	cat, err := catalog.Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func userLine(id int, login string) string {
	return strings.Join([]string{
		itoa(id), login, "User", "2015-01-01 00:00:00", "0", "[]", "0", "[]", "0", "0",
	}, ";")
}

func itoa(n int) string {
	// small helper to avoid importing strconv at every call site below
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func repoLine(id, owner int, desc, language string) string {
	return strings.Join([]string{
		itoa(id), itoa(owner), "owner/repo" + itoa(id), "MIT", "True", desc, language, "main",
		"2015-01-01 00:00:00", "2015-01-01 00:00:00", "0", "0", "0", "0",
	}, ";")
}

func commitLine(repoID, author, committer int, date, message string) string {
	return strings.Join([]string{itoa(repoID), itoa(author), itoa(committer), date, message}, ";")
}

// TestQ1KindCounts covers scenario S1: Bot=2, Organization=1, User=5.
func TestQ1KindCounts(t *testing.T) {
	accounts := []string{
		"1;u1;User;2015-01-01 00:00:00;0;[];0;[];0;0",
		"2;u2;User;2015-01-01 00:00:00;0;[];0;[];0;0",
		"3;u3;User;2015-01-01 00:00:00;0;[];0;[];0;0",
		"4;u4;User;2015-01-01 00:00:00;0;[];0;[];0;0",
		"5;u5;User;2015-01-01 00:00:00;0;[];0;[];0;0",
		"6;o1;Organization;2015-01-01 00:00:00;0;[];0;[];0;0",
		"7;b1;Bot;2015-01-01 00:00:00;0;[];0;[];0;0",
		"8;b2;Bot;2015-01-01 00:00:00;0;[];0;[];0;0",
	}
	cat := buildCatalog(t, accounts, nil, nil)

	got := query.Q1(cat)
	require.Equal(t, query.KindCounts{Bot: 2, Organization: 1, User: 5}, got)
}

// TestQ2AverageCollaborators covers scenario S2: three repositories with
// 4, 6 and 2 distinct collaborators average to 4.00.
func TestQ2AverageCollaborators(t *testing.T) {
	var accounts, repos, commits []string
	for id := 1; id <= 4; id++ {
		accounts = append(accounts, userLine(id, "u"+itoa(id)))
	}
	for id := 5; id <= 10; id++ {
		accounts = append(accounts, userLine(id, "u"+itoa(id)))
	}
	for id := 11; id <= 12; id++ {
		accounts = append(accounts, userLine(id, "u"+itoa(id)))
	}
	repos = append(repos,
		repoLine(101, 1, "repo with 4 collaborators", "go"),
		repoLine(102, 5, "repo with 6 collaborators", "go"),
		repoLine(103, 11, "repo with 2 collaborators", "go"),
	)
	date := "2020-01-01 00:00:00"
	for id := 1; id <= 4; id++ {
		commits = append(commits, commitLine(101, id, id, date, "m"))
	}
	for id := 5; id <= 10; id++ {
		commits = append(commits, commitLine(102, id, id, date, "m"))
	}
	for id := 11; id <= 12; id++ {
		commits = append(commits, commitLine(103, id, id, date, "m"))
	}

	cat := buildCatalog(t, accounts, repos, commits)
	require.InDelta(t, 4.0, query.Q2(cat), 1e-9)
}

// TestQ5TopAuthorsInRange covers scenario S3: within 2020, account 20
// commits 5 times and account 10 commits 3 times; both outrank account
// 30's single commit, and N=2 caps the result at the top two.
func TestQ5TopAuthorsInRange(t *testing.T) {
	accounts := []string{
		userLine(10, "user10"),
		userLine(20, "user20"),
		userLine(30, "user30"),
		userLine(99, "owner99"),
	}
	repos := []string{repoLine(500, 99, "shared repo", "go")}

	var commits []string
	dates10 := []string{"2020-02-01 00:00:00", "2020-03-01 00:00:00", "2020-04-01 00:00:00"}
	for _, d := range dates10 {
		commits = append(commits, commitLine(500, 10, 10, d, "m"))
	}
	dates20 := []string{
		"2020-05-01 00:00:00", "2020-05-02 00:00:00", "2020-05-03 00:00:00",
		"2020-05-04 00:00:00", "2020-05-05 00:00:00",
	}
	for _, d := range dates20 {
		commits = append(commits, commitLine(500, 20, 20, d, "m"))
	}
	commits = append(commits, commitLine(500, 30, 30, "2020-10-01 00:00:00", "m"))

	cat := buildCatalog(t, accounts, repos, commits)

	rows, err := query.Q5(cat, 2,
		format.DateTime{Year: 2020, Month: 1, Day: 1},
		format.DateTime{Year: 2020, Month: 12, Day: 31})
	require.NoError(t, err)
	want := []query.AccountCount{
		{ID: 20, Login: "user20", Count: 5},
		{ID: 10, Login: "user10", Count: 3},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("Q5 rows mismatch (-want +got):\n%s", diff)
	}
}

// TestQ7RepositoriesNotCommittedSince covers scenario S4: of two
// repositories, only the one last committed to before the cutoff date
// is returned.
func TestQ7RepositoriesNotCommittedSince(t *testing.T) {
	accounts := []string{userLine(1, "owner")}
	repos := []string{
		repoLine(1, 1, "old", "go"),
		repoLine(2, 1, "new", "go"),
	}
	commits := []string{
		commitLine(1, 1, 1, "2020-05-01 00:00:00", "m"),
		commitLine(2, 1, 1, "2022-01-01 00:00:00", "m"),
	}
	cat := buildCatalog(t, accounts, repos, commits)

	rows, err := query.Q7(cat, format.DateTime{Year: 2021, Month: 6, Day: 1})
	require.NoError(t, err)
	require.Equal(t, []query.RepoDescription{{ID: 1, Description: "old"}}, rows)
}

// TestQ8TopLanguagesSkipsNone covers scenario S5: commits touch
// languages c, python, none and c again; "none" is skipped without
// consuming the N=2 cap, leaving c then python.
func TestQ8TopLanguagesSkipsNone(t *testing.T) {
	accounts := []string{userLine(1, "owner")}
	repos := []string{
		repoLine(1, 1, "c repo", "c"),
		repoLine(2, 1, "python repo", "python"),
		repoLine(3, 1, "unlabeled repo", "none"),
	}
	commits := []string{
		commitLine(1, 1, 1, "2021-02-01 00:00:00", "m"),
		commitLine(2, 1, 1, "2021-02-02 00:00:00", "m"),
		commitLine(3, 1, 1, "2021-02-03 00:00:00", "m"),
		commitLine(1, 1, 1, "2021-02-04 00:00:00", "m"),
	}
	cat := buildCatalog(t, accounts, repos, commits)

	langs, err := query.Q8(cat, 2, format.DateTime{Year: 2021, Month: 1, Day: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "python"}, langs)
}

// TestQ10TopContributorByMessageLength covers scenario S6: within a
// single repository, the commit with the longer message determines the
// top N=1 contributor.
func TestQ10TopContributorByMessageLength(t *testing.T) {
	accounts := []string{userLine(100, "user100"), userLine(200, "user200")}
	repos := []string{repoLine(7, 100, "repo seven", "go")}
	commits := []string{
		commitLine(7, 100, 100, "2021-01-01 00:00:00", strings.Repeat("a", 20)),
		commitLine(7, 200, 200, "2021-01-02 00:00:00", strings.Repeat("b", 30)),
	}
	cat := buildCatalog(t, accounts, repos, commits)

	rows, err := query.Q10(cat, 1)
	require.NoError(t, err)
	want := []query.RepoContributorMax{
		{RepoID: 7, AccountID: 200, Login: "user200", MaxLength: 30},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("Q10 rows mismatch (-want +got):\n%s", diff)
	}
}
