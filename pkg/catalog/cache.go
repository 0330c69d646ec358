package catalog

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// resultCaches holds the TTL'd per-query search results and per-URL comment
// results. go-cache handles expiry: a stale entry is treated as a miss and
// swept by the janitor.
type resultCaches struct {
	search   *gocache.Cache
	comments *gocache.Cache
}

func newResultCaches() *resultCaches {
	return &resultCaches{
		search:   gocache.New(gocache.NoExpiration, 5*time.Minute),
		comments: gocache.New(gocache.NoExpiration, 5*time.Minute),
	}
}

// SearchCacheEntry is one persisted search-cache item.
type SearchCacheEntry struct {
	Animes    []*Anime  `json:"animes"`
	Timestamp time.Time `json:"timestamp"`
}

// CommentCacheEntry is one persisted comment-cache item. Comments are kept in
// their serialized form so the catalog doesn't depend on the pipeline types.
type CommentCacheEntry struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SetSearchCache caches a merged search result under its keyword for ttl.
func (c *Catalog) SetSearchCache(keyword string, animes []*Anime, ttl time.Duration) {
	c.caches.search.Set(keyword, SearchCacheEntry{Animes: animes, Timestamp: time.Now()}, ttl)
}

// GetSearchCache returns a live cached result for the keyword.
func (c *Catalog) GetSearchCache(keyword string) ([]*Anime, bool) {
	v, ok := c.caches.search.Get(keyword)
	if !ok {
		return nil, false
	}
	entry, ok := v.(SearchCacheEntry)
	if !ok {
		c.caches.search.Delete(keyword)
		return nil, false
	}
	return entry.Animes, true
}

// SetCommentCache caches a raw comment payload under its video URL for ttl.
func (c *Catalog) SetCommentCache(url string, data []byte, ttl time.Duration) {
	c.caches.comments.Set(url, CommentCacheEntry{Data: data, Timestamp: time.Now()}, ttl)
}

// GetCommentCache returns a live cached comment payload for the URL.
func (c *Catalog) GetCommentCache(url string) ([]byte, bool) {
	v, ok := c.caches.comments.Get(url)
	if !ok {
		return nil, false
	}
	entry, ok := v.(CommentCacheEntry)
	if !ok {
		c.caches.comments.Delete(url)
		return nil, false
	}
	return entry.Data, true
}
