package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/catalog"
)

func buildFixtureCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	root := t.TempDir()
	entrada := filepath.Join(root, "entrada")
	require.NoError(t, os.MkdirAll(entrada, 0o755))

	write := func(name string, lines ...string) {
		content := strings.Join(append([]string{"header"}, lines...), "\n") + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(entrada, name), []byte(content), 0o644))
	}
	write("accounts.csv",
		"1;alice;User;2015-01-01 00:00:00;0;[];0;[];0;0",
		"2;bob;Bot;2015-01-01 00:00:00;0;[];0;[];0;0",
	)
	write("repositories.csv",
		"10;1;alice/repo;MIT;True;a repo;Go;main;2015-01-01 00:00:00;2015-01-01 00:00:00;0;0;0;0",
	)
	write("commits.csv",
		"10;1;2;2020-01-01 00:00:00;initial commit",
	)

	cfg := catalog.Config{CachePages: 64, SortRunEntries: 4, EntradaDir: entrada, SaidaDir: filepath.Join(root, "saida")}
	cat, err := catalog.Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestRunQueryLineQ1(t *testing.T) {
	cat := buildFixtureCatalog(t)
	out, err := runQueryLine(cat, "Q1")
	require.NoError(t, err)
	require.Equal(t, "Bot: 1\nOrganization: 0\nUser: 1\n", out)
}

func TestRunQueryLineQ7(t *testing.T) {
	cat := buildFixtureCatalog(t)
	out, err := runQueryLine(cat, "Q7 2021-01-01")
	require.NoError(t, err)
	require.Equal(t, "10;a repo\n", out)
}

func TestRunQueryLineUnknown(t *testing.T) {
	cat := buildFixtureCatalog(t)
	_, err := runQueryLine(cat, "Q99")
	require.Error(t, err)
}
