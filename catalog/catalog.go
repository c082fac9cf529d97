// Package catalog implements the catalogue builder of spec.md §4.5: it
// ingests the three delimited text inputs, materializes the compressed
// record files and the seven secondary indexes of spec.md §4.5's table,
// and persists the four scalar aggregates so a later process can reopen
// the catalogue without re-ingesting (spec.md §8 property 8).
package catalog

import (
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ghcatalog/engine/block"
	"github.com/ghcatalog/engine/format"
	"github.com/ghcatalog/engine/index"
)

// Catalog is a fully built, sorted and grouped dataset, ready to answer
// the query package's Q1–Q10 primitives.
type Catalog struct {
	cache  *block.Cache
	logger *zap.Logger
	names  fileNames

	AccountsFile *block.File
	ReposFile    *block.File
	CommitsFile  *block.File

	AccountFmt *format.Format[Account]
	RepoFmt    *format.Format[Repository]
	CommitFmt  *format.Format[Commit]

	AccountsByID      *index.Indexer
	ReposByID         *index.Indexer
	CommitsByRepo     *index.Indexer
	CommitsByDate     *index.Indexer
	Collaborators     *index.Indexer
	ReposByLastCommit *index.Indexer
	ReposByLanguage   *index.Indexer

	Static StaticQueries
}

// Cache exposes the shared block cache for query primitives that need
// to bind their own *lazy.View.
func (c *Catalog) Cache() *block.Cache { return c.cache }

// Open loads a catalogue from saidaDir if a complete, consistent build
// is already present there; otherwise it builds one from cfg's
// EntradaDir, per spec.md §4.5's idempotence contract.
func Open(cfg Config, logger *zap.Logger) (*Catalog, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	names := newFileNames(cfg.SaidaDir)

	if existingCatalogueIsUsable(names) {
		cat, err := reopen(cfg, names, logger)
		if err == nil {
			return cat, nil
		}
		logger.Warn("failed to reopen existing catalogue, rebuilding", zap.Error(err))
	}

	b, err := NewBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// existingCatalogueIsUsable applies spec.md §7's file-I/O-error rule:
// a missing build marker and every expected file present is necessary
// before attempting to reopen without rebuilding.
func existingCatalogueIsUsable(names fileNames) bool {
	if _, err := os.Stat(names.buildMarker); err == nil {
		return false // an earlier build did not complete
	}
	required := []string{
		names.users, names.repos, names.commits, names.staticQueries,
		names.accountsByID, names.reposByID,
		names.commitsByRepo, names.commitsByRepoV,
		names.commitsByDate,
		names.collaborators, names.collaboratorsV,
		names.reposByLastCom,
		names.reposByLanguage, names.reposByLangV,
	}
	for _, p := range required {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	info, err := os.Stat(names.staticQueries)
	return err == nil && info.Size() == staticQueriesSize
}

func reopen(cfg Config, names fileNames, logger *zap.Logger) (*Catalog, error) {
	cache := block.New(cfg.CachePages, logger)

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

	accountsFile, err := cache.Open(names.users)
	if err != nil {
		return nil, err
	}
	reposFile, err := cache.Open(names.repos)
	if err != nil {
		return nil, err
	}
	commitsFile, err := cache.Open(names.commits)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		cache:        cache,
		logger:       logger,
		names:        names,
		AccountsFile: accountsFile,
		ReposFile:    reposFile,
		CommitsFile:  commitsFile,
		AccountFmt:   accountFmt,
		RepoFmt:      repoFmt,
		CommitFmt:    commitFmt,
	}

	if cat.AccountsByID, err = index.Open(cache, names.accountsByID, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if err := cat.AccountsByID.Reopen(""); err != nil {
		return nil, err
	}
	if cat.ReposByID, err = index.Open(cache, names.reposByID, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if err := cat.ReposByID.Reopen(""); err != nil {
		return nil, err
	}
	if cat.CommitsByRepo, err = index.Open(cache, names.commitsByRepo, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if err := cat.CommitsByRepo.Reopen(names.commitsByRepoV); err != nil {
		return nil, err
	}
	if cat.CommitsByDate, err = index.Open(cache, names.commitsByDate, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if err := cat.CommitsByDate.Reopen(""); err != nil {
		return nil, err
	}
	if cat.Collaborators, err = index.Open(cache, names.collaborators, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if err := cat.Collaborators.Reopen(names.collaboratorsV); err != nil {
		return nil, err
	}
	if cat.ReposByLastCommit, err = index.Open(cache, names.reposByLastCom, nil, index.CompareEmbedded, logger); err != nil {
		return nil, err
	}
	if err := cat.ReposByLastCommit.Reopen(""); err != nil {
		return nil, err
	}
	if cat.ReposByLanguage, err = index.Open(cache, names.reposByLanguage, reposFile, newLanguageComparator(logger), logger); err != nil {
		return nil, err
	}
	if err := cat.ReposByLanguage.Reopen(names.reposByLangV); err != nil {
		return nil, err
	}

	if err := cat.readStaticQueries(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) readStaticQueries() error {
	f, err := c.cache.Open(c.names.staticQueries)
	if err != nil {
		return err
	}
	defer c.cache.Close(f)

	buf := make([]byte, staticQueriesSize)
	if err := c.cache.ReadBytes(f, 0, buf); err != nil {
		return err
	}
	fmtr, err := staticQueriesFormat()
	if err != nil {
		return err
	}
	rec, n := fmtr.ReadBinary(buf)
	if n != staticQueriesSize {
		return errors.Errorf("catalog: staticQueries.dat has unexpected width %d", n)
	}
	c.Static = rec
	return nil
}

// Close releases every file handle the catalogue holds open,
// aggregating per-handle errors the way the teacher's shutdown paths
// do with go-multierror.
func (c *Catalog) Close() error {
	var merr *multierror.Error
	for _, ix := range []*index.Indexer{
		c.AccountsByID, c.ReposByID, c.CommitsByRepo, c.CommitsByDate,
		c.Collaborators, c.ReposByLastCommit, c.ReposByLanguage,
	} {
		if ix == nil {
			continue
		}
		if err := ix.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	for _, f := range []*block.File{c.AccountsFile, c.ReposFile, c.CommitsFile} {
		if f == nil {
			continue
		}
		if err := c.cache.Close(f); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
