package catalog

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/ghcatalog/engine/block"
	"github.com/ghcatalog/engine/index"
)

// languageKey returns the repositories-by-language index's indirect key
// for a repository record at recordOffset in repos.dat: the absolute
// offset of that record's language_len prefix.
func languageKey(recordOffset int64) uint64 {
	return uint64(recordOffset + languageFieldOffset)
}

// newLanguageComparator returns the repositories-by-language comparator
// of spec.md §4.5: each key word is an offset into reposFile at a
// language_len prefix, and two keys are ordered by a case-insensitive
// byte compare of the language text they point to (byte-ASCII, per
// spec.md §9 open question 3 — languages are already lowercased at
// ingestion, so this degenerates to a plain byte compare, but the
// lowering is kept so the comparator holds even if that invariant ever
// slips). A read fault on either side is logged and treated as equal,
// since a Comparator has no error return.
func newLanguageComparator(logger *zap.Logger) index.Comparator {
	return func(cache *block.Cache, reposFile *block.File, a, b uint64) int {
		la, err := readLanguageAt(cache, reposFile, int64(a))
		if err != nil {
			logger.Warn("repositories-by-language comparator: read failed", zap.Error(err), zap.Uint64("key", a))
			return 0
		}
		lb, err := readLanguageAt(cache, reposFile, int64(b))
		if err != nil {
			logger.Warn("repositories-by-language comparator: read failed", zap.Error(err), zap.Uint64("key", b))
			return 0
		}
		return bytes.Compare(toLowerASCII(la), toLowerASCII(lb))
	}
}

// LanguageAt returns the lowercase language text whose language_len
// prefix sits at the repositories-by-language key offset keyOffset (an
// absolute offset into reposFile, as produced by languageKey). Query
// primitives use it to resolve a posting-list key's text without
// needing a repo record at hand.
func LanguageAt(cache *block.Cache, reposFile *block.File, keyOffset uint64) (string, error) {
	b, err := readLanguageAt(cache, reposFile, int64(keyOffset))
	if err != nil {
		return "", err
	}
	return string(toLowerASCII(b)), nil
}

func readLanguageAt(cache *block.Cache, reposFile *block.File, offset int64) ([]byte, error) {
	n, err := cache.GetUint32(reposFile, offset)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := cache.ReadBytes(reposFile, offset+4, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func toLowerASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

