package syntax

import (
	"container/list"
	"hash/fnv"
	"sync"
)

const defaultVerdictEntries = 256

// verdictCache is a small LRU keyed by content hash. Only syntax verdicts
// are cached, never trees: tree-sitter trees hold C resources and have a
// single owner who must Close them.
type verdictCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[uint64]*list.Element
}

type verdictEntry struct {
	key   uint64
	issue *Issue
}

func newVerdictCache(max int) *verdictCache {
	if max < 1 {
		max = 1
	}
	return &verdictCache{
		max:     max,
		order:   list.New(),
		entries: make(map[uint64]*list.Element, max),
	}
}

func hashCode(code string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(code))
	return h.Sum64()
}

func (c *verdictCache) get(code string) (*Issue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[hashCode(code)]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*verdictEntry).issue, true
}

func (c *verdictCache) put(code string, issue *Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := hashCode(code)
	if el, ok := c.entries[key]; ok {
		el.Value.(*verdictEntry).issue = issue
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&verdictEntry{key: key, issue: issue})
	c.entries[key] = el

	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*verdictEntry).key)
	}
}
