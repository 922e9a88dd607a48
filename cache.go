package rewind

import "container/list"

type (
	lruCache[K comparable, T any] struct {
		cache   map[K]*list.Element
		lru     *list.List
		maxSize int
	}

	cacheEntry[K comparable, T any] struct {
		value T
		key   K
	}
)

func newLRUCache[K comparable, T any](maxSize int) *lruCache[K, T] {
	return &lruCache[K, T]{
		cache:   map[K]*list.Element{},
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func (c *lruCache[K, T]) Get(key K) (T, bool) {
	elem, ok := c.cache[key]
	if !ok {
		var zero T
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry[K, T]).value, true
}

func (c *lruCache[K, T]) Put(key K, value T) {
	if c.maxSize <= 0 {
		return
	}

	if elem, ok := c.cache[key]; ok {
		elem.Value.(*cacheEntry[K, T]).value = value
		c.lru.MoveToFront(elem)
		return
	}

	entry := &cacheEntry[K, T]{key: key, value: value}
	c.cache[key] = c.lru.PushFront(entry)

	if c.lru.Len() > c.maxSize {
		c.evictLast()
	}
}

func (c *lruCache[K, T]) Len() int {
	return c.lru.Len()
}

func (c *lruCache[K, T]) evictLast() {
	back := c.lru.Back()
	if back != nil {
		c.lru.Remove(back)
		backEntry := back.Value.(*cacheEntry[K, T])
		delete(c.cache, backEntry.key)
	}
}
