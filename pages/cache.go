package pages

import "sync"

// Cache weight constants a caller picks from when reading or writing a
// page, per spec.md §4.1/§4.5. Weights aren't derived from page content;
// the caller knows the access pattern the cache entry itself can't see.
const (
	// CacheWeightDedupScan is for one-shot page reads made while
	// searching for a dedup match: the page is unlikely to be read
	// again soon, so it should be the first thing evicted.
	CacheWeightDedupScan int64 = 0
	// CacheWeightSingleEntry is for a page referenced by exactly one
	// file entry's blocks.
	CacheWeightSingleEntry int64 = 0
	// CacheWeightShared is for a page referenced by more than one file
	// entry's blocks, or packed from more than one small file.
	CacheWeightShared int64 = 1
	// CacheWeightAsyncPreload is for a page just materialized by an
	// AsyncWriteHandle.Finalize, biasing it to survive until whatever
	// triggered the preload actually reads it.
	CacheWeightAsyncPreload int64 = 1000
)

// cacheMaxAge and cacheAgePenalty implement spec.md §4.1's eviction rule:
// score = weight - (age > cacheMaxAge ? large-penalty : 0). Neither
// constant is specified numerically by the spec; cacheMaxAge is picked
// to keep a handful of read generations' worth of pages immune to the
// penalty, and cacheAgePenalty is chosen far larger than the largest
// defined weight (CacheWeightAsyncPreload) so that once an entry is
// stale enough, it's evicted before any fresh entry regardless of
// weight (see DESIGN.md).
const (
	cacheMaxAge     = 32
	cacheAgePenalty = int64(1) << 30
)

// Cache is a fixed-slot-count, weighted, age-aware page cache (spec.md
// §4.1). Each slot carries a weight set by the caller and an age that
// grows every time any slot is inserted or touched; eviction picks the
// slot with the lowest score, where score = weight - (age > cacheMaxAge
// ? cacheAgePenalty : 0), breaking ties by highest age then lowest page
// index. There's no off-the-shelf Go library for this weight+age
// eviction policy, so it's hand-rolled (see DESIGN.md).
type Cache struct {
	mu      sync.Mutex
	size    int
	tick    int64
	entries map[int]*cacheEntry
}

type cacheEntry struct {
	index  int
	data   []byte
	weight int64
	tickAt int64 // c.tick's value when this entry was last inserted or touched
}

func newCache(size int) *Cache {
	if size < 1 {
		size = 1
	}
	return &Cache{size: size, entries: make(map[int]*cacheEntry, size)}
}

func (c *Cache) get(index int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[index]
	if !ok {
		return nil, false
	}
	c.tick++
	e.tickAt = c.tick
	return e.data, true
}

func (c *Cache) put(index int, data []byte, weight int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	if e, ok := c.entries[index]; ok {
		e.data = data
		e.weight = weight
		e.tickAt = c.tick
		return
	}
	c.entries[index] = &cacheEntry{index: index, data: data, weight: weight, tickAt: c.tick}
	c.evictLocked()
}

func (c *Cache) remove(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, index)
}

// has reports whether index is cached, without affecting its age.
func (c *Cache) has(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[index]
	return ok
}

// tickTock bumps the logical clock without touching any entry, aging
// every cached page by one step without resetting any of them. The
// channel reader calls this before its first read of a file whose first
// block isn't already cached, biasing eviction away from pages a
// concurrent async preload just materialized (spec.md §4.5).
func (c *Cache) tickTock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
}

// score returns e's current (score, age) pair under the running tick.
func (c *Cache) score(e *cacheEntry) (score, age int64) {
	age = c.tick - e.tickAt
	score = e.weight
	if age > cacheMaxAge {
		score -= cacheAgePenalty
	}
	return score, age
}

// evictLocked drops entries until the cache fits within its fixed slot
// count, each time picking the entry with the lowest score, breaking
// ties by highest age then lowest index.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.size {
		var victim *cacheEntry
		var victimScore, victimAge int64
		for _, e := range c.entries {
			score, age := c.score(e)
			worse := victim == nil ||
				score < victimScore ||
				(score == victimScore && age > victimAge) ||
				(score == victimScore && age == victimAge && e.index < victim.index)
			if worse {
				victim, victimScore, victimAge = e, score, age
			}
		}
		if victim == nil {
			return
		}
		delete(c.entries, victim.index)
	}
}

// Len reports the number of cached entries, mostly for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
