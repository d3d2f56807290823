package version

import (
	"fmt"

	"github.com/golang/groupcache/lru"

	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

var _ page.Source = (*Version)(nil)

const defaultPageCacheEntries = 256

// Version is one node of the chain: either the base snapshot (Commit nil)
// or one WAL commit layered on the Version immediately before it
// (Previous). This is a sum type by construction rather than by
// inheritance — callers branch on IsBase(), never on a type hierarchy.
type Version struct {
	Index    int // 0 for the base snapshot, 1.. for each WAL commit in order
	Base     *Database
	Commit   *WalCommit
	Previous *Version

	cache *lru.Cache
}

// IsBase reports whether this version is the original on-disk snapshot.
func (v *Version) IsBase() bool { return v.Commit == nil }

// UsableSize implements page.Source by delegating to the base snapshot,
// which every version in a chain shares (a WAL never changes the page
// size of the database it belongs to).
func (v *Version) UsableSize() int {
	if v.Base != nil {
		return v.Base.UsableSize()
	}
	return v.Previous.UsableSize()
}

type cacheKey struct {
	version int
	page    uint32
}

// PageBytes implements page.Source: it checks this version's own WAL
// frames first, falling back through Previous, and finally to the base
// snapshot — the overlay resolution described in spec.md §4.5. Results
// are cached per (version, page) so repeated lookups (schema decode,
// history diffing, carving) don't re-walk the chain.
func (v *Version) PageBytes(number uint32) ([]byte, error) {
	key := cacheKey{v.Index, number}
	if cached, ok := v.cache.Get(key); ok {
		return cached.([]byte), nil
	}
	data, err := v.pageBytesUncached(number)
	if err != nil {
		return nil, err
	}
	v.cache.Add(key, data)
	return data, nil
}

func (v *Version) pageBytesUncached(number uint32) ([]byte, error) {
	if v.Commit != nil {
		if f, ok := v.Commit.byPage[number]; ok {
			return f.Data, nil
		}
		if v.Previous != nil {
			return v.Previous.PageBytes(number)
		}
	}
	if v.Base != nil {
		return v.Base.PageBytes(number)
	}
	return nil, sqliteerr.NewParsingError(sqliteerr.ErrWalCommitRecordParsing, "page", int64(number),
		fmt.Errorf("page %d not present in any version of the chain", number))
}

// PageCount resolves this version's page count: the base snapshot uses
// the header's trust rule (Database.PageCount); a WAL commit uses its
// own committing frame's db_size_after_commit field, which SQLite writes
// for exactly this purpose.
func (v *Version) PageCount() uint32 {
	if v.Commit != nil {
		return v.Commit.DBSizeAfterCommit
	}
	return v.Base.PageCount()
}

// Header decodes this version's page 1, which carries the schema-cookie,
// freelist, and incremental-vacuum fields that are authoritative as of
// this version, per spec.md §4.5's "resolved from the newest version of
// page 1" rule.
func (v *Version) Header(strict bool) (*fileformat.Header, []fileformat.Warning, error) {
	page1, err := v.PageBytes(1)
	if err != nil {
		return nil, nil, err
	}
	return fileformat.ParseHeader(page1, strict)
}

// BuildChain assembles the full version chain for a database plus its
// (possibly nil) WAL: the base snapshot followed by one Version per
// committed WAL transaction, sharing a single page cache across the
// chain.
func BuildChain(db *Database, wal *Wal) []*Version {
	cache := lru.New(defaultPageCacheEntries)
	base := &Version{Index: 0, Base: db, cache: cache}
	chain := []*Version{base}
	if wal == nil {
		return chain
	}
	prev := base
	for i, commit := range wal.Commits {
		v := &Version{Index: i + 1, Commit: commit, Previous: prev, cache: cache}
		chain = append(chain, v)
		prev = v
	}
	return chain
}

// Latest returns the most recent version in chain.
func Latest(chain []*Version) *Version { return chain[len(chain)-1] }
