package wacz

import (
	"sort"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
)

// Index maps canonical keys to their captures.
type Index struct {
	byKey   map[string][]*cdxj.Entry
	entries []*cdxj.Entry
}

// NewIndex builds an index over entries. Candidates for a key are kept
// oldest first: by capture time, then with later-listed sources before
// earlier ones, then by file position. The last candidate wins.
func NewIndex(entries []*cdxj.Entry) *Index {
	all := make([]*cdxj.Entry, len(entries))
	copy(all, entries)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.SURT != b.SURT {
			return a.SURT < b.SURT
		}
		return candidateLess(a, b)
	})

	byKey := make(map[string][]*cdxj.Entry)
	for _, e := range all {
		byKey[e.SURT] = append(byKey[e.SURT], e)
	}
	return &Index{byKey: byKey, entries: all}
}

func candidateLess(a, b *cdxj.Entry) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.Source != b.Source {
		return a.Source > b.Source
	}
	if a.Locator.Filename != b.Locator.Filename {
		return a.Locator.Filename < b.Locator.Filename
	}
	return a.Locator.Offset < b.Locator.Offset
}

// Merge combines several indexes into one.
func Merge(indexes ...*Index) *Index {
	var all []*cdxj.Entry
	for _, x := range indexes {
		all = append(all, x.entries...)
	}
	return NewIndex(all)
}

// Candidates returns the captures stored under key, oldest first.
func (x *Index) Candidates(key string) []*cdxj.Entry {
	return x.byKey[key]
}

// Newest returns the winning capture for key.
func (x *Index) Newest(key string) (*cdxj.Entry, bool) {
	c := x.byKey[key]
	if len(c) == 0 {
		return nil, false
	}
	return c[len(c)-1], true
}

// Entries returns every entry in index order. The slice must not be modified.
func (x *Index) Entries() []*cdxj.Entry {
	return x.entries
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// Keys returns the number of distinct keys.
func (x *Index) Keys() int {
	return len(x.byKey)
}
