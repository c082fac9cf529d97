package catalog

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ghcatalog/engine/block"
	"github.com/ghcatalog/engine/format"
	"github.com/ghcatalog/engine/index"
	"github.com/ghcatalog/engine/lazy"
)

// Builder runs the build pipeline of spec.md §4.5: ingest the three text
// inputs, emit the compressed record files, build and sort/group the
// seven secondary indexes, then run the friend-flag pass that backfills
// the two per-commit friend flags and the four scalar aggregates.
type Builder struct {
	cfg    Config
	logger *zap.Logger
	names  fileNames
	cache  *block.Cache

	accountTextFmt *format.Format[Account]
	repoTextFmt    *format.Format[Repository]
	commitTextFmt  *format.Format[Commit]

	accountFmt *format.Format[Account]
	repoFmt    *format.Format[Repository]
	commitFmt  *format.Format[Commit]

	accountsFile *block.File
	reposFile    *block.File
	commitsFile  *block.File

	accountsByID      *index.Indexer
	reposByID         *index.Indexer
	commitsByRepo     *index.Indexer
	commitsByDate     *index.Indexer
	collaborators     *index.Indexer
	reposByLastCommit *index.Indexer
	reposByLanguage   *index.Indexer

	accountIDs *idSet // reused bitmap shape; holds known account ids
	repoIDs    *idSet

	repoMaxCommit map[int32]format.DateTime

	static StaticQueries
}

// NewBuilder prepares a Builder rooted at cfg's entrada/saida directories.
// It creates saida if necessary and stamps it with a UUID build marker
// that is removed only once Build completes successfully, so a crashed
// or killed build is never mistaken for a complete one by a later Open
// (spec.md §4.5's idempotence contract).
func NewBuilder(cfg Config, logger *zap.Logger) (*Builder, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.SaidaDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "catalog: create %s", cfg.SaidaDir)
	}
	names := newFileNames(cfg.SaidaDir)
	if err := os.WriteFile(names.buildMarker, []byte(uuid.New().String()), 0o644); err != nil {
		return nil, errors.Wrapf(err, "catalog: write build marker %s", names.buildMarker)
	}

	accountTextFmt, err := AccountTextFormat()
	if err != nil {
		return nil, err
	}
	repoTextFmt, err := RepositoryTextFormat()
	if err != nil {
		return nil, err
	}
	commitTextFmt, err := CommitTextFormat()
	if err != nil {
		return nil, err
	}
	accountFmt, err := AccountBinaryFormat()
	if err != nil {
		return nil, err
	}
	repoFmt, err := RepositoryBinaryFormat()
	if err != nil {
		return nil, err
	}
	commitFmt, err := CommitBinaryFormat()
	if err != nil {
		return nil, err
	}

	cache := block.New(cfg.CachePages, logger)

	b := &Builder{
		cfg:            cfg,
		logger:         logger.With(zap.String("component", "catalog.Builder")),
		names:          names,
		cache:          cache,
		accountTextFmt: accountTextFmt,
		repoTextFmt:    repoTextFmt,
		commitTextFmt:  commitTextFmt,
		accountFmt:     accountFmt,
		repoFmt:        repoFmt,
		commitFmt:      commitFmt,
		accountIDs:     newIDSet(),
		repoIDs:        newIDSet(),
		repoMaxCommit:  make(map[int32]format.DateTime),
	}

	if b.accountsFile, err = cache.Open(names.users); err != nil {
		return nil, err
	}
	if b.reposFile, err = cache.Open(names.repos); err != nil {
		return nil, err
	}
	if b.commitsFile, err = cache.Open(names.commits); err != nil {
		return nil, err
	}
	if b.accountsByID, err = index.Open(cache, names.accountsByID, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if b.reposByID, err = index.Open(cache, names.reposByID, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if b.commitsByRepo, err = index.Open(cache, names.commitsByRepo, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if b.commitsByDate, err = index.Open(cache, names.commitsByDate, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if b.collaborators, err = index.Open(cache, names.collaborators, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if b.reposByLastCommit, err = index.Open(cache, names.reposByLastCom, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if b.reposByLanguage, err = index.Open(cache, names.reposByLanguage, b.reposFile, newLanguageComparator(logger), logger); err != nil {
		return nil, err
	}

	for _, ix := range []*index.Indexer{
		b.accountsByID, b.reposByID, b.commitsByRepo, b.commitsByDate,
		b.collaborators, b.reposByLastCommit, b.reposByLanguage,
	} {
		ix.SetRunCapacity(cfg.SortRunEntries)
	}

	return b, nil
}

// entradaPath joins name under cfg's input directory.
func (b *Builder) entradaPath(name string) string {
	return filepath.Join(b.cfg.EntradaDir, name)
}

// Build runs the full seven-step pipeline of spec.md §4.5 and returns
// the resulting Catalog.
func (b *Builder) Build() (*Catalog, error) {
	var g errgroup.Group
	g.Go(func() error {
		return b.parseAccounts()
	})
	g.Go(func() error {
		return b.prescanRepoIDs()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := b.accountsByID.Sort(); err != nil {
		return nil, errors.Wrap(err, "catalog: sort accounts-by-id")
	}

	if err := b.filterCommits(); err != nil {
		return nil, err
	}

	if err := b.parseRepos(); err != nil {
		return nil, err
	}

	if err := b.indexCommits(); err != nil {
		return nil, err
	}

	if err := b.sortAndGroupIndexes(); err != nil {
		return nil, err
	}

	if err := b.computeFriendFlagsAndAggregates(); err != nil {
		return nil, err
	}

	if err := b.writeStaticQueries(); err != nil {
		return nil, err
	}

	if err := b.cache.FlushAll(); err != nil {
		b.logger.Warn("flush after build reported an error", zap.Error(err))
	}

	if err := os.Remove(b.names.buildMarker); err != nil {
		return nil, errors.Wrap(err, "catalog: remove build marker after successful build")
	}

	return &Catalog{
		cache:             b.cache,
		logger:            b.logger,
		names:             b.names,
		AccountsFile:      b.accountsFile,
		ReposFile:         b.reposFile,
		CommitsFile:       b.commitsFile,
		AccountFmt:        b.accountFmt,
		RepoFmt:           b.repoFmt,
		CommitFmt:         b.commitFmt,
		AccountsByID:      b.accountsByID,
		ReposByID:         b.reposByID,
		CommitsByRepo:     b.commitsByRepo,
		CommitsByDate:     b.commitsByDate,
		Collaborators:     b.collaborators,
		ReposByLastCommit: b.reposByLastCommit,
		ReposByLanguage:   b.reposByLanguage,
		Static:            b.static,
	}, nil
}

// forEachDataLine opens path, skips its header line, and invokes fn with
// every subsequent non-empty line, per spec.md §6's "header line
// skipped" rule.
func forEachDataLine(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return errors.Wrapf(sc.Err(), "catalog: scan %s", path)
}

// parseAccounts is step 1 of spec.md §4.5: validate+parse each text
// account, compute its friends list, emit the compressed record, insert
// it into accounts-by-id, and tally kind counts. Input validation
// failures are dropped per spec.md §7 rather than aborting ingestion.
func (b *Builder) parseAccounts() error {
	var userCount, orgCount, botCount int32
	offset := int64(0)

	err := forEachDataLine(b.entradaPath("accounts.csv"), func(line string) error {
		acc, ok := b.accountTextFmt.Parse(line)
		if !ok {
			b.logger.Debug("dropping malformed account record", zap.String("line", line))
			return nil
		}
		acc.ComputeFriends()

		switch acc.Kind {
		case KindUser:
			userCount++
		case KindOrganization:
			orgCount++
		case KindBot:
			botCount++
		}

		buf := b.accountFmt.WriteBinary(acc)
		if err := b.cache.SetBytes(b.accountsFile, offset, buf); err != nil {
			return err
		}
		if err := b.accountsByID.Insert(uint64(acc.ID), uint64(offset)); err != nil {
			return err
		}
		b.accountIDs.Add(acc.ID)
		offset += int64(len(buf))
		return nil
	})
	if err != nil {
		return err
	}

	b.static.UserCount = userCount
	b.static.OrganizationCount = orgCount
	b.static.BotCount = botCount
	return nil
}

// prescanRepoIDs is step 2 of spec.md §4.5: a membership-only pass over
// the unfiltered text repositories, recording every repo id so the
// commit filter can check repo existence without re-reading the
// repositories file.
func (b *Builder) prescanRepoIDs() error {
	return forEachDataLine(b.entradaPath("repositories.csv"), func(line string) error {
		repo, ok := b.repoTextFmt.Parse(line)
		if !ok {
			return nil
		}
		b.repoIDs.Add(repo.ID)
		return nil
	})
}

// filterCommits is step 3 of spec.md §4.5: accept a commit only if its
// author and committer are known accounts and its repo id survived the
// pre-scan; emit the compressed record (friend flags default false,
// backfilled in the friend-flag pass) and track each repo's maximum
// observed commit date-time for the repository backfill in step 4.
func (b *Builder) filterCommits() error {
	offset := int64(0)
	return forEachDataLine(b.entradaPath("commits.csv"), func(line string) error {
		c, ok := b.commitTextFmt.Parse(line)
		if !ok {
			b.logger.Debug("dropping malformed commit record", zap.String("line", line))
			return nil
		}
		if !b.accountIDs.Contains(c.AuthorID) || !b.accountIDs.Contains(c.CommitterID) || !b.repoIDs.Contains(c.RepoID) {
			b.logger.Debug("dropping commit referencing unknown account or repo",
				zap.Int32("repo_id", c.RepoID), zap.Int32("author_id", c.AuthorID), zap.Int32("committer_id", c.CommitterID))
			return nil
		}

		if prev, ok := b.repoMaxCommit[c.RepoID]; !ok || format.Compare(c.CommitDate, prev) > 0 {
			b.repoMaxCommit[c.RepoID] = c.CommitDate
		}

		buf := b.commitFmt.WriteBinary(c)
		if err := b.cache.SetBytes(b.commitsFile, offset, buf); err != nil {
			return err
		}
		packed, err := format.Pack(c.CommitDate)
		if err != nil {
			return err
		}
		if err := b.commitsByDate.Insert(uint64(packed), uint64(offset)); err != nil {
			return err
		}
		offset += int64(len(buf))
		return nil
	})
}

// parseRepos is step 4 of spec.md §4.5: accept a repository only if its
// owner exists, lowercase its language, backfill last-commit date-time
// from the map built in step 3, emit the compressed record, and insert
// it into repositories-by-id, repositories-by-last-commit-date, and
// repositories-by-language.
func (b *Builder) parseRepos() error {
	offset := int64(0)
	return forEachDataLine(b.entradaPath("repositories.csv"), func(line string) error {
		repo, ok := b.repoTextFmt.Parse(line)
		if !ok {
			b.logger.Debug("dropping malformed repository record", zap.String("line", line))
			return nil
		}
		if !b.accountIDs.Contains(repo.OwnerID) {
			b.logger.Debug("dropping repository with unknown owner", zap.Int32("repo_id", repo.ID), zap.Int32("owner_id", repo.OwnerID))
			return nil
		}

		repo.Language = strings.ToLower(repo.Language)
		if last, ok := b.repoMaxCommit[repo.ID]; ok {
			repo.LastCommit = last
			repo.LastCommitValid = true
		} else {
			repo.LastCommit = epochLastCommit
		}

		recOffset := offset
		buf := b.repoFmt.WriteBinary(repo)
		if err := b.cache.SetBytes(b.reposFile, recOffset, buf); err != nil {
			return err
		}
		if err := b.reposByID.Insert(uint64(repo.ID), uint64(recOffset)); err != nil {
			return err
		}
		lastPacked, err := format.Pack(repo.LastCommit)
		if err != nil {
			return err
		}
		if err := b.reposByLastCommit.Insert(uint64(lastPacked), uint64(recOffset)); err != nil {
			return err
		}
		if err := b.reposByLanguage.Insert(languageKey(recOffset), uint64(recOffset)); err != nil {
			return err
		}
		offset += int64(len(buf))
		return nil
	})
}

// indexCommits is step 5 of spec.md §4.5: scan the already-written
// compressed commits linearly through a Lazy view, inserting
// commits-by-repository and collaborators entries. Collaborators'
// payload is the account's record offset in users.dat, found via the
// now-sorted accounts-by-id index.
func (b *Builder) indexCommits() error {
	view := lazy.New(b.commitFmt, b.cache)
	size := b.cache.Size(b.commitsFile)

	var offset int64
	for offset < size {
		view.Rebind(b.commitsFile, offset)

		rec, err := view.Get(CommitFieldCommitterID)
		if err != nil {
			return err
		}
		repoKey := uint64(uint32(rec.RepoID))

		if err := b.commitsByRepo.Insert(repoKey, uint64(offset)); err != nil {
			return err
		}

		authorOffset, ok, err := b.accountOffset(rec.AuthorID)
		if err != nil {
			return err
		}
		if ok {
			if err := b.collaborators.Insert(repoKey, uint64(authorOffset)); err != nil {
				return err
			}
		}
		if rec.CommitterID != rec.AuthorID {
			committerOffset, ok, err := b.accountOffset(rec.CommitterID)
			if err != nil {
				return err
			}
			if ok {
				if err := b.collaborators.Insert(repoKey, uint64(committerOffset)); err != nil {
					return err
				}
			}
		}

		next, err := view.PositionAfter()
		if err != nil {
			return err
		}
		offset = next
	}
	return nil
}

func (b *Builder) accountOffset(id int32) (int64, bool, error) {
	ord, ok := b.accountsByID.FindKey(uint64(uint32(id)))
	if !ok {
		return 0, false, nil
	}
	v, err := b.accountsByID.ValueAt(ord)
	if err != nil {
		return 0, false, err
	}
	return int64(v), true, nil
}

// sortAndGroupIndexes is step 6 of spec.md §4.5: the three independent
// groups named in spec.md §9 ("Parallel initialization") are dispatched
// to an errgroup; accounts-by-id was already sorted ahead of the
// commit filter pass.
func (b *Builder) sortAndGroupIndexes() error {
	var g errgroup.Group
	g.Go(func() error {
		return b.reposByID.Sort()
	})
	g.Go(func() error {
		return b.reposByLastCommit.Sort()
	})
	g.Go(func() error {
		if err := b.commitsByRepo.Sort(); err != nil {
			return err
		}
		if err := b.commitsByRepo.Group(b.names.commitsByRepoV, false); err != nil {
			return err
		}
		if err := b.collaborators.Sort(); err != nil {
			return err
		}
		return b.collaborators.Group(b.names.collaboratorsV, true)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := b.commitsByDate.Sort(); err != nil {
		return err
	}
	if err := b.reposByLanguage.Sort(); err != nil {
		return err
	}
	return b.reposByLanguage.Group(b.names.reposByLangV, true)
}

// computeFriendFlagsAndAggregates is step 7 of spec.md §4.5: for each
// repo group in commits-by-repository, load the owner's friends list
// once and backfill every commit's two friend flags; simultaneously
// accumulate the Q2 (average collaborators per repo) and Q3 (repos with
// a bot commit) scalar aggregates. Q4 (average commits per account) is a
// closed-form ratio of the two already-built indexes' element counts.
func (b *Builder) computeFriendFlagsAndAggregates() error {
	ownerView := lazy.New(b.accountFmt, b.cache)
	authorView := lazy.New(b.accountFmt, b.cache)
	committerView := lazy.New(b.accountFmt, b.cache)
	repoView := lazy.New(b.repoFmt, b.cache)
	commitView := lazy.New(b.commitFmt, b.cache)

	var totalCollaborators int64
	var botRepos int64
	groupCount := b.commitsByRepo.ElementCount()

	for i := 0; i < groupCount; i++ {
		repoKey, err := b.commitsByRepo.KeyAt(i)
		if err != nil {
			return err
		}
		repoOrd := mustFindOrd(b.reposByID, repoKey)
		if repoOrd >= b.reposByID.ElementCount() {
			continue // repository dropped at ingestion (unknown owner)
		}
		if err := index.ValueAsView(b.reposByID, repoOrd, b.reposFile, repoView); err != nil {
			return err
		}
		repoRec, err := repoView.Get(RepositoryFieldOwnerID)
		if err != nil {
			return err
		}
		ownerID := repoRec.OwnerID

		found, err := index.FindValueAsView(b.accountsByID, uint64(uint32(ownerID)), b.accountsFile, ownerView)
		if err != nil {
			return err
		}
		if !found {
			continue // owner existence is already an insertion-time invariant; defensive only
		}
		ownerRec, err := ownerView.Get(AccountFieldFriends)
		if err != nil {
			return err
		}

		groupOffset, err := b.commitsByRepo.ValueAt(i)
		if err != nil {
			return err
		}
		n, err := b.commitsByRepo.GroupSize(groupOffset)
		if err != nil {
			return err
		}

		hasBot := false
		for j := 0; j < n; j++ {
			if err := index.GroupElemAsView(b.commitsByRepo, groupOffset, j, b.commitsFile, commitView); err != nil {
				return err
			}
			cRec, err := commitView.Get(CommitFieldCommitDate)
			if err != nil {
				return err
			}

			authorIsFriend := cRec.AuthorID != ownerID && ownerRec.IsFriend(cRec.AuthorID)
			committerIsFriend := cRec.CommitterID != ownerID && ownerRec.IsFriend(cRec.CommitterID)
			if err := commitView.Mutate(CommitFieldAuthorIsFriend, func(rec *Commit) { rec.AuthorIsFriend = authorIsFriend }); err != nil {
				return err
			}
			if err := commitView.Mutate(CommitFieldCommitterIsFriend, func(rec *Commit) { rec.CommitterIsFriend = committerIsFriend }); err != nil {
				return err
			}
			if err := commitView.FlushToFile(); err != nil {
				return err
			}

			if !hasBot {
				if isBot, err := b.accountIsBot(authorView, cRec.AuthorID); err != nil {
					return err
				} else if isBot {
					hasBot = true
				}
			}
			if !hasBot {
				if isBot, err := b.accountIsBot(committerView, cRec.CommitterID); err != nil {
					return err
				} else if isBot {
					hasBot = true
				}
			}
		}
		if hasBot {
			botRepos++
		}

		if collabOrd, ok := b.collaborators.FindKey(repoKey); ok {
			collabGroupOffset, err := b.collaborators.ValueAt(collabOrd)
			if err != nil {
				return err
			}
			size, err := b.collaborators.GroupSize(collabGroupOffset)
			if err != nil {
				return err
			}
			totalCollaborators += int64(size)
		}
	}

	if groupCount > 0 {
		b.static.Q2 = float64(totalCollaborators) / float64(groupCount)
	}
	b.static.Q3 = float64(botRepos)

	accountCount := b.accountsByID.ElementCount()
	if accountCount > 0 {
		b.static.Q4 = float64(b.commitsByDate.ElementCount()) / float64(accountCount)
	}
	return nil
}

func (b *Builder) accountIsBot(view *lazy.View[Account], id int32) (bool, error) {
	found, err := index.FindValueAsView(b.accountsByID, uint64(uint32(id)), b.accountsFile, view)
	if err != nil || !found {
		return false, err
	}
	rec, err := view.Get(AccountFieldKind)
	if err != nil {
		return false, err
	}
	return rec.Kind == KindBot, nil
}

// mustFindOrd binary searches ix for key and returns its ordinal, or
// ElementCount (an out-of-range ordinal) when key is absent. A
// commits-by-repository key can be absent from repositories-by-id:
// commits are kept when their repository id appears anywhere in the
// repository input, while a repository with an unknown owner is dropped.
// The caller checks the result before using it.
func mustFindOrd(ix *index.Indexer, key uint64) int {
	ord, ok := ix.FindKey(key)
	if !ok {
		return ix.ElementCount()
	}
	return ord
}

// writeStaticQueries persists the four scalar aggregates in the exact
// 36-byte layout of spec.md §6.
func (b *Builder) writeStaticQueries() error {
	f, err := b.cache.Open(b.names.staticQueries)
	if err != nil {
		return err
	}
	defer b.cache.Close(f)

	fmtr, err := staticQueriesFormat()
	if err != nil {
		return err
	}
	buf := fmtr.WriteBinary(b.static)
	if len(buf) != staticQueriesSize {
		return errors.Errorf("catalog: staticQueries.dat encoded to unexpected width %d", len(buf))
	}
	return b.cache.SetBytes(f, 0, buf)
}
