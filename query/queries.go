// Package query implements the ten aggregation primitives of spec.md
// §4.6 as ordered scans and grouped iterations over a built
// *catalog.Catalog. It returns structured rows; rendering them to the
// `saida/commandN_output.txt` files named by spec.md §6 is a CLI
// concern left to cmd/ghcatalog (spec.md §1's "query printers" are
// explicitly out of scope here).
package query

import (
	"sort"
	"strings"

	"github.com/ghcatalog/engine/catalog"
	"github.com/ghcatalog/engine/format"
	"github.com/ghcatalog/engine/index"
	"github.com/ghcatalog/engine/lazy"
)

// KindCounts is Q1's result: the three account-kind totals tallied
// during ingestion and persisted in staticQueries.dat.
type KindCounts struct {
	Bot          int32
	Organization int32
	User         int32
}

// Q1 returns the three kind counts straight from the catalogue's header
// (spec.md §4.6 Q1).
func Q1(cat *catalog.Catalog) KindCounts {
	return KindCounts{
		Bot:          cat.Static.BotCount,
		Organization: cat.Static.OrganizationCount,
		User:         cat.Static.UserCount,
	}
}

// Q2 returns total collaborator-appearances divided by the number of
// commits-by-repository groups, precomputed during the friend-flag pass
// (spec.md §4.6 Q2). Collaborator appearances are deduplicated per
// (repo, account) pair, per DESIGN.md's resolution of spec.md §9 open
// question 1.
func Q2(cat *catalog.Catalog) float64 {
	return cat.Static.Q2
}

// Q3 returns the count of commits-by-repository groups containing at
// least one commit whose author or committer is a BOT (spec.md §4.6
// Q3), persisted as a double in staticQueries.dat.
func Q3(cat *catalog.Catalog) int {
	return int(cat.Static.Q3)
}

// Q4 returns total commit count divided by account count (spec.md §4.6
// Q4).
func Q4(cat *catalog.Catalog) float64 {
	return cat.Static.Q4
}

// AccountCount pairs an account with a commit tally, the shared result
// row shape of Q5, Q6 and Q9.
type AccountCount struct {
	ID    int32
	Login string
	Count int
}

// RepoDescription is Q7's result row: a repository that has not been
// committed to since the query's cutoff date.
type RepoDescription struct {
	ID          int32
	Description string
}

// RepoContributorMax is Q10's result row: one account's maximum
// commit-message length within one repository.
type RepoContributorMax struct {
	RepoID    int32
	AccountID int32
	Login     string
	MaxLength int
}

// counter accumulates per-account tallies while remembering each
// account's first-seen order, so ties can be broken deterministically
// (spec.md §4.6: "ties MAY be broken in any stable order but must be
// deterministic").
type counter struct {
	counts map[int32]int
	order  []int32
}

func newCounter() *counter {
	return &counter{counts: make(map[int32]int)}
}

func (c *counter) add(id int32) {
	if _, ok := c.counts[id]; !ok {
		c.order = append(c.order, id)
	}
	c.counts[id]++
}

// topN returns the ids sorted by descending count, first-seen order
// breaking ties, capped at n (n<=0 yields everything).
func (c *counter) topN(n int) []int32 {
	ids := append([]int32(nil), c.order...)
	sort.SliceStable(ids, func(i, j int) bool { return c.counts[ids[i]] > c.counts[ids[j]] })
	if n > 0 && n < len(ids) {
		ids = ids[:n]
	}
	return ids
}

func (c *counter) accountCounts(cat *catalog.Catalog, n int) ([]AccountCount, error) {
	view := lazy.New(cat.AccountFmt, cat.Cache())
	ids := c.topN(n)
	out := make([]AccountCount, 0, len(ids))
	for _, id := range ids {
		login, err := lookupLogin(cat, view, id)
		if err != nil {
			return nil, err
		}
		out = append(out, AccountCount{ID: id, Login: login, Count: c.counts[id]})
	}
	return out, nil
}

func lookupLogin(cat *catalog.Catalog, view *lazy.View[catalog.Account], id int32) (string, error) {
	found, err := index.FindValueAsView(cat.AccountsByID, uint64(uint32(id)), cat.AccountsFile, view)
	if err != nil || !found {
		return "", err
	}
	rec, err := view.Get(catalog.AccountFieldLogin)
	if err != nil {
		return "", err
	}
	return rec.Login, nil
}

// Q5 returns the top n accounts by commit count within [start, end]
// inclusive, end's time-of-day pinned to 23:59:59 before comparison
// (spec.md §4.6 Q5).
func Q5(cat *catalog.Catalog, n int, start, end format.DateTime) ([]AccountCount, error) {
	startPacked, err := format.Pack(start)
	if err != nil {
		return nil, err
	}
	endPacked, err := format.Pack(end.EndOfDay())
	if err != nil {
		return nil, err
	}

	c := newCounter()
	commitView := lazy.New(cat.CommitFmt, cat.Cache())
	total := cat.CommitsByDate.ElementCount()
	for ord := cat.CommitsByDate.LowerBound(uint64(startPacked)); ord < total; ord++ {
		key, err := cat.CommitsByDate.KeyAt(ord)
		if err != nil {
			return nil, err
		}
		if key > uint64(endPacked) {
			break
		}
		off, err := cat.CommitsByDate.ValueAt(ord)
		if err != nil {
			return nil, err
		}
		commitView.Rebind(cat.CommitsFile, int64(off))
		rec, err := commitView.Get(catalog.CommitFieldCommitterID)
		if err != nil {
			return nil, err
		}
		c.add(rec.AuthorID)
		if rec.CommitterID != rec.AuthorID {
			c.add(rec.CommitterID)
		}
	}
	return c.accountCounts(cat, n)
}

// findLanguageGroup binary searches repositories-by-language for
// language (case-insensitive) and returns its posting-list offset,
// honoring spec.md §9 open question 3's byte-ASCII comparison.
func findLanguageGroup(cat *catalog.Catalog, language string) (uint64, bool, error) {
	target := strings.ToLower(language)
	ix := cat.ReposByLanguage
	lo, hi := 0, ix.ElementCount()
	for lo < hi {
		mid := (lo + hi) / 2
		key, err := ix.KeyAt(mid)
		if err != nil {
			return 0, false, err
		}
		s, err := catalog.LanguageAt(cat.Cache(), cat.ReposFile, key)
		if err != nil {
			return 0, false, err
		}
		if s < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= ix.ElementCount() {
		return 0, false, nil
	}
	key, err := ix.KeyAt(lo)
	if err != nil {
		return 0, false, err
	}
	s, err := catalog.LanguageAt(cat.Cache(), cat.ReposFile, key)
	if err != nil {
		return 0, false, err
	}
	if s != target {
		return 0, false, nil
	}
	v, err := ix.ValueAt(lo)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Q6 returns the top n accounts by commits in repositories of the given
// language, matched case-insensitively (spec.md §4.6 Q6).
func Q6(cat *catalog.Catalog, n int, language string) ([]AccountCount, error) {
	groupOffset, ok, err := findLanguageGroup(cat, language)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	size, err := cat.ReposByLanguage.GroupSize(groupOffset)
	if err != nil {
		return nil, err
	}

	c := newCounter()
	repoView := lazy.New(cat.RepoFmt, cat.Cache())
	commitView := lazy.New(cat.CommitFmt, cat.Cache())
	for i := 0; i < size; i++ {
		repoOffset, err := cat.ReposByLanguage.GroupElem(groupOffset, i)
		if err != nil {
			return nil, err
		}
		repoView.Rebind(cat.ReposFile, int64(repoOffset))
		repoRec, err := repoView.Get(catalog.RepositoryFieldID)
		if err != nil {
			return nil, err
		}

		ord, found := cat.CommitsByRepo.FindKey(uint64(uint32(repoRec.ID)))
		if !found {
			continue
		}
		commitGroupOffset, err := cat.CommitsByRepo.ValueAt(ord)
		if err != nil {
			return nil, err
		}
		commitCount, err := cat.CommitsByRepo.GroupSize(commitGroupOffset)
		if err != nil {
			return nil, err
		}
		for j := 0; j < commitCount; j++ {
			commitOffset, err := cat.CommitsByRepo.GroupElem(commitGroupOffset, j)
			if err != nil {
				return nil, err
			}
			commitView.Rebind(cat.CommitsFile, int64(commitOffset))
			rec, err := commitView.Get(catalog.CommitFieldCommitterID)
			if err != nil {
				return nil, err
			}
			c.add(rec.AuthorID)
			if rec.CommitterID != rec.AuthorID {
				c.add(rec.CommitterID)
			}
		}
	}
	return c.accountCounts(cat, n)
}

// Q7 returns every repository whose last-commit date-time precedes
// before, in repositories-by-last-commit-date order (spec.md §4.6 Q7).
func Q7(cat *catalog.Catalog, before format.DateTime) ([]RepoDescription, error) {
	packed, err := format.Pack(before)
	if err != nil {
		return nil, err
	}
	lb := cat.ReposByLastCommit.LowerBound(uint64(packed))

	out := make([]RepoDescription, 0, lb)
	repoView := lazy.New(cat.RepoFmt, cat.Cache())
	for ord := 0; ord < lb; ord++ {
		off, err := cat.ReposByLastCommit.ValueAt(ord)
		if err != nil {
			return nil, err
		}
		repoView.Rebind(cat.ReposFile, int64(off))
		rec, err := repoView.Get(catalog.RepositoryFieldDescription)
		if err != nil {
			return nil, err
		}
		out = append(out, RepoDescription{ID: rec.ID, Description: rec.Description})
	}
	return out, nil
}

// Q8 returns the top n languages among repositories committed to since
// since, skipping the literal language "none" without consuming a slot
// in the cap (spec.md §4.6 Q8). Ties are broken by first-encountered
// order, per DESIGN.md's resolution of spec.md §9 open question 2.
func Q8(cat *catalog.Catalog, n int, since format.DateTime) ([]string, error) {
	packed, err := format.Pack(since)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string

	commitView := lazy.New(cat.CommitFmt, cat.Cache())
	repoView := lazy.New(cat.RepoFmt, cat.Cache())
	total := cat.CommitsByDate.ElementCount()
	for ord := cat.CommitsByDate.LowerBound(uint64(packed)); ord < total; ord++ {
		off, err := cat.CommitsByDate.ValueAt(ord)
		if err != nil {
			return nil, err
		}
		commitView.Rebind(cat.CommitsFile, int64(off))
		rec, err := commitView.Get(catalog.CommitFieldRepoID)
		if err != nil {
			return nil, err
		}

		found, err := index.FindValueAsView(cat.ReposByID, uint64(uint32(rec.RepoID)), cat.ReposFile, repoView)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		repoRec, err := repoView.Get(catalog.RepositoryFieldLanguage)
		if err != nil {
			return nil, err
		}
		if _, ok := counts[repoRec.Language]; !ok {
			order = append(order, repoRec.Language)
		}
		counts[repoRec.Language]++
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	var out []string
	for _, lang := range order {
		if lang == "none" {
			continue
		}
		out = append(out, lang)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

// Q9 returns the top n accounts by commits into repositories owned by a
// friend, using the persisted per-commit friend flags (spec.md §4.6
// Q9).
func Q9(cat *catalog.Catalog, n int) ([]AccountCount, error) {
	c := newCounter()
	commitView := lazy.New(cat.CommitFmt, cat.Cache())
	total := cat.CommitsByDate.ElementCount()
	for ord := 0; ord < total; ord++ {
		off, err := cat.CommitsByDate.ValueAt(ord)
		if err != nil {
			return nil, err
		}
		commitView.Rebind(cat.CommitsFile, int64(off))
		rec, err := commitView.Get(catalog.CommitFieldCommitterIsFriend)
		if err != nil {
			return nil, err
		}
		if rec.AuthorIsFriend {
			c.add(rec.AuthorID)
		}
		if rec.CommitterIsFriend {
			c.add(rec.CommitterID)
		}
	}
	return c.accountCounts(cat, n)
}

// Q10 returns, for every commits-by-repository group, the top n
// accounts by maximum commit-message length observed in that repo
// (spec.md §4.6 Q10). An account's length is considered for a commit
// whether it appears as author or committer.
func Q10(cat *catalog.Catalog, n int) ([]RepoContributorMax, error) {
	commitView := lazy.New(cat.CommitFmt, cat.Cache())
	accountView := lazy.New(cat.AccountFmt, cat.Cache())

	var out []RepoContributorMax
	groupCount := cat.CommitsByRepo.ElementCount()
	for i := 0; i < groupCount; i++ {
		repoKey, err := cat.CommitsByRepo.KeyAt(i)
		if err != nil {
			return nil, err
		}
		repoID := int32(uint32(repoKey))

		groupOffset, err := cat.CommitsByRepo.ValueAt(i)
		if err != nil {
			return nil, err
		}
		size, err := cat.CommitsByRepo.GroupSize(groupOffset)
		if err != nil {
			return nil, err
		}

		maxLen := make(map[int32]int)
		var order []int32
		see := func(id int32, length int) {
			if _, ok := maxLen[id]; !ok {
				order = append(order, id)
			}
			if length > maxLen[id] {
				maxLen[id] = length
			}
		}

		for j := 0; j < size; j++ {
			commitOffset, err := cat.CommitsByRepo.GroupElem(groupOffset, j)
			if err != nil {
				return nil, err
			}
			commitView.Rebind(cat.CommitsFile, int64(commitOffset))
			rec, err := commitView.Get(catalog.CommitFieldMessage)
			if err != nil {
				return nil, err
			}
			length := len(rec.Message)
			see(rec.AuthorID, length)
			if rec.CommitterID != rec.AuthorID {
				see(rec.CommitterID, length)
			}
		}

		sort.SliceStable(order, func(a, b int) bool { return maxLen[order[a]] > maxLen[order[b]] })
		if n > 0 && n < len(order) {
			order = order[:n]
		}
		for _, id := range order {
			login, err := lookupLogin(cat, accountView, id)
			if err != nil {
				return nil, err
			}
			out = append(out, RepoContributorMax{RepoID: repoID, AccountID: id, Login: login, MaxLength: maxLen[id]})
		}
	}
	return out, nil
}
