package catalog

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config bounds the catalogue's resident working set and tunes the
// external-memory indexer, per spec.md §1's "roughly one gigabyte of
// resident memory regardless of input size" budget. Zero-value fields
// fall back to DefaultConfig's values.
type Config struct {
	// CachePages is the number of 1024-byte frames the shared block
	// cache holds resident.
	CachePages int `toml:"cache_pages"`

	// SortRunEntries caps an external-sort run, per spec.md §4.4's
	// "default cap 128 MiB of entries".
	SortRunEntries int `toml:"sort_run_entries"`

	// EntradaDir and SaidaDir name the input/output directories of
	// spec.md §6's environment contract.
	EntradaDir string `toml:"entrada_dir"`
	SaidaDir   string `toml:"saida_dir"`
}

// DefaultConfig targets roughly one gigabyte of resident cache memory:
// 1<<20 pages * 1024 bytes/page == 1 GiB.
func DefaultConfig() Config {
	return Config{
		CachePages:     1 << 20,
		SortRunEntries: 128 * 1024 * 1024 / 16,
		EntradaDir:     "entrada",
		SaidaDir:       "saida",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CachePages <= 0 {
		c.CachePages = d.CachePages
	}
	if c.SortRunEntries <= 0 {
		c.SortRunEntries = d.SortRunEntries
	}
	if c.EntradaDir == "" {
		c.EntradaDir = d.EntradaDir
	}
	if c.SaidaDir == "" {
		c.SaidaDir = d.SaidaDir
	}
	return c
}

// LoadConfig reads an optional TOML configuration file; a missing file
// is not an error and yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "catalog: decode config %s", path)
	}
	return cfg.withDefaults(), nil
}
