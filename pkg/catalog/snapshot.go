package catalog

import "time"

// Snapshot is the JSON-serializable catalog state the persistence tier writes
// behind and rehydrates from at cold start. Cache maps carry their own
// timestamps so a rehydrate can filter entries that expired while the process
// was down.
type Snapshot struct {
	Animes        []*Anime                     `json:"animes"`
	Episodes      []Episode                    `json:"episodeIds"`
	EpisodeNum    int                          `json:"episodeNum"`
	LastSelectMap map[string]*LastSelect       `json:"lastSelectMap"`
	SearchCache   map[string]SearchCacheEntry  `json:"searchCache"`
	CommentCache  map[string]CommentCacheEntry `json:"commentCache"`
}

// Export captures the full catalog state.
func (c *Catalog) Export() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Animes:        append([]*Anime(nil), c.animes...),
		EpisodeNum:    c.episodeNum,
		LastSelectMap: map[string]*LastSelect{},
		SearchCache:   map[string]SearchCacheEntry{},
		CommentCache:  map[string]CommentCacheEntry{},
	}
	for _, idx := range c.episodeByID {
		snap.Episodes = append(snap.Episodes, c.episodes[idx])
	}
	for query, entry := range c.lastSelect {
		snap.LastSelectMap[query] = entry
	}
	for key, item := range c.caches.search.Items() {
		if entry, ok := item.Object.(SearchCacheEntry); ok {
			snap.SearchCache[key] = entry
		}
	}
	for key, item := range c.caches.comments.Items() {
		if entry, ok := item.Object.(CommentCacheEntry); ok {
			snap.CommentCache[key] = entry
		}
	}
	return snap
}

// Import restores a snapshot, filtering TTL'd cache entries that expired while
// the process was down. It replaces the current state and is meant to run once
// at cold start, before the catalog takes traffic.
func (c *Catalog) Import(snap Snapshot, searchTTL, commentTTL time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.animes = append([]*Anime(nil), snap.Animes...)
	c.episodes = c.episodes[:0]
	c.episodeByURL = map[string]int{}
	c.episodeByID = map[int]int{}
	for _, ep := range snap.Episodes {
		c.episodes = append(c.episodes, ep)
		c.episodeByURL[ep.URL] = len(c.episodes) - 1
		c.episodeByID[ep.ID] = len(c.episodes) - 1
	}
	if snap.EpisodeNum >= FirstEpisodeID {
		c.episodeNum = snap.EpisodeNum
	}

	c.lastSelect = map[string]*LastSelect{}
	c.lastSelectOrder = c.lastSelectOrder[:0]
	for query, entry := range snap.LastSelectMap {
		c.lastSelect[query] = entry
		c.lastSelectOrder = append(c.lastSelectOrder, query)
	}

	now := time.Now()
	for key, entry := range snap.SearchCache {
		if remaining := searchTTL - now.Sub(entry.Timestamp); remaining > 0 {
			c.caches.search.Set(key, entry, remaining)
		}
	}
	for key, entry := range snap.CommentCache {
		if remaining := commentTTL - now.Sub(entry.Timestamp); remaining > 0 {
			c.caches.comments.Set(key, entry, remaining)
		}
	}
}
