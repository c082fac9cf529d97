package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/catalog"
)

// TestAccountTextRoundTrip covers spec.md §8 property 1 against the real
// Account format: every column, including the ones with no binary form
// (creation_date_time, public_gists, public_repos), must survive
// print_text(parse(t)) == t.
func TestAccountTextRoundTrip(t *testing.T) {
	fmtr, err := catalog.AccountTextFormat()
	require.NoError(t, err)

	lines := []string{
		"1;alice;User;2015-06-01 12:30:45;2;[10, 20];1;[30];7;12",
		"2;bob;Organization;2020-01-01 00:00:00;0;[];0;[];0;0",
	}
	for _, line := range lines {
		rec, ok := fmtr.Parse(line)
		require.True(t, ok, "line %q failed to validate", line)
		require.Equal(t, line, fmtr.Print(rec))
	}
}
