package fetcher

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/golang/groupcache/lru"
)

// bodyCache holds fetched response bodies and their validators within a byte budget.
// Small bodies live in a freecache ring buffer. freecache refuses entries above 1/1024 of its
// size, so bodies past that limit go to a size-weighted LRU that evicts the least recently
// used bodies until the large budget holds.
type bodyCache struct {
	small      *freecache.Cache
	smallLimit int
	ttl        time.Duration
	now        func() time.Time

	mu          *sync.Mutex
	large       *lru.Cache
	largeBytes  int
	largeBudget int
}

type largeBody struct {
	body         []byte
	etag         string
	lastModified string
	expires      time.Time
}

// newBodyCache splits size between the freecache store (a quarter) and the large-body LRU.
func newBodyCache(size int, ttl time.Duration) *bodyCache {
	smallSize := size / 4
	c := &bodyCache{
		small:       freecache.NewCache(smallSize),
		smallLimit:  smallSize / 1024,
		ttl:         ttl,
		now:         time.Now,
		mu:          &sync.Mutex{},
		large:       lru.New(0),
		largeBudget: size - smallSize,
	}
	c.large.OnEvicted = func(_ lru.Key, value interface{}) {
		c.largeBytes -= len(value.(*largeBody).body)
	}
	return c
}

func bodyKey(url string) []byte      { return []byte("b:" + url) }
func validatorKey(url string) []byte { return []byte("v:" + url) }

// get returns the cached body of url and its ETag / Last-Modified validators.
func (c *bodyCache) get(url string) (body []byte, etag, lastModified string, ok bool) {
	if b, err := c.small.Get(bodyKey(url)); err == nil {
		if v, err := c.small.Get(validatorKey(url)); err == nil {
			etag, lastModified, _ = strings.Cut(string(v), "\x00")
		}
		return b, etag, lastModified, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.large.Get(url)
	if !ok {
		return nil, "", "", false
	}
	e := v.(*largeBody)
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.large.Remove(url)
		return nil, "", "", false
	}
	return e.body, e.etag, e.lastModified, true
}

// set stores body under url, replacing any earlier entry.
//
// Returns:
//   - bool: false when the body exceeds the large budget and was not stored
func (c *bodyCache) set(url string, body []byte, etag, lastModified string) bool {
	c.del(url)

	if len(body) < c.smallLimit {
		ttl := int(c.ttl / time.Second)
		err := c.small.Set(bodyKey(url), body, ttl)
		if err == nil {
			if etag != "" || lastModified != "" {
				c.small.Set(validatorKey(url), []byte(etag+"\x00"+lastModified), ttl)
			}
			return true
		}
		if !errors.Is(err, freecache.ErrLargeEntry) {
			return false
		}
	}

	if len(body) > c.largeBudget {
		return false
	}
	e := &largeBody{body: body, etag: etag, lastModified: lastModified}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.large.Remove(url)
	c.large.Add(url, e)
	c.largeBytes += len(body)
	for c.largeBytes > c.largeBudget && c.large.Len() > 0 {
		c.large.RemoveOldest()
	}
	return true
}

func (c *bodyCache) del(url string) {
	c.small.Del(bodyKey(url))
	c.small.Del(validatorKey(url))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.large.Remove(url)
}
