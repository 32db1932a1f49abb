package parse

import (
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Cache collects the values produced during extraction, grouped by
// parser. Entries are keyed by explored file ID, so the merge phase can
// intersect a parser's coverage with path constraints as bitmap
// operations. With a store attached, values are written through on
// insert and loaded back on first use instead of staying resident.
type Cache struct {
	mu      sync.RWMutex
	store   *Store
	order   []string
	parsers map[string]*ParserCache
}

// ParserCache holds one parser's results.
type ParserCache struct {
	name    string
	files   *roaring.Bitmap
	entries map[uint32]*CacheEntry
}

// CacheEntry is one parsed file's result.
type CacheEntry struct {
	ID     uint32
	Parser string
	Path   string
	Parts  []string

	store  *Store
	value  any
	loaded bool
}

// Dir returns the directory segments of the source file.
func (e *CacheEntry) Dir() []string { return e.Parts[:len(e.Parts)-1] }

// Name returns the file name without its directory.
func (e *CacheEntry) Name() string { return e.Parts[len(e.Parts)-1] }

// Value returns the parsed value, loading it from the store when the
// cache runs in write-through mode.
func (e *CacheEntry) Value() (any, error) {
	if e.loaded {
		return e.value, nil
	}
	v, err := e.store.Get(e.Parser, e.Path)
	if err != nil {
		return nil, err
	}
	e.value = v
	e.loaded = true
	return v, nil
}

// NewCache returns a result cache. A nil store keeps every value in
// memory.
func NewCache(store *Store) *Cache {
	return &Cache{store: store, parsers: make(map[string]*ParserCache)}
}

// Add records the value a parser produced for one explored file.
func (c *Cache) Add(parser string, id uint32, parts []string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.parsers[parser]
	if !ok {
		pc = &ParserCache{name: parser, files: roaring.New(), entries: make(map[uint32]*CacheEntry)}
		c.parsers[parser] = pc
		c.order = append(c.order, parser)
	}
	entry := &CacheEntry{
		ID:     id,
		Parser: parser,
		Path:   strings.Join(parts, "/"),
		Parts:  parts,
	}
	if c.store != nil {
		if err := c.store.Put(parser, entry.Path, value); err != nil {
			return err
		}
		entry.store = c.store
	} else {
		entry.value = value
		entry.loaded = true
	}
	pc.files.Add(id)
	pc.entries[id] = entry
	return nil
}

// Parser returns one parser's cached results.
func (c *Cache) Parser(name string) (*ParserCache, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pc, ok := c.parsers[name]
	return pc, ok
}

// Parsers returns the parser names present in the cache, in first-insert
// order.
func (c *Cache) Parsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Entries returns every cache entry, grouped by parser in first-insert
// order and by file ID within a parser.
func (c *Cache) Entries() []*CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*CacheEntry
	for _, name := range c.order {
		pc := c.parsers[name]
		it := pc.files.Iterator()
		for it.HasNext() {
			out = append(out, pc.entries[it.Next()])
		}
	}
	return out
}

// Files returns the set of file IDs this parser produced results for.
// The caller owns the returned bitmap.
func (pc *ParserCache) Files() *roaring.Bitmap {
	return pc.files.Clone()
}

// Entry returns the cached result for one file ID.
func (pc *ParserCache) Entry(id uint32) (*CacheEntry, bool) {
	e, ok := pc.entries[id]
	return e, ok
}
