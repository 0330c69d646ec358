// Package catalog holds the process-wide anime/episode identity state: the
// bounded recency-ordered anime list, the integer episode index the player
// calls back with, and the per-query selection memory.
package catalog

import (
	"sync"
	"time"
)

const (
	// DefaultMaxAnimes bounds the anime list; the oldest entry is evicted
	// beyond it.
	DefaultMaxAnimes = 100
	// DefaultMaxLastSelect bounds the per-query selection memory (FIFO).
	DefaultMaxLastSelect = 1000
	// FirstEpisodeID seeds the global episode counter.
	FirstEpisodeID = 10001
)

// Episode is one playable video, identified to the player by an integer ID.
// URL is either an upstream page URL or an opaque provider ID the owning
// source's comment fetcher understands.
type Episode struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Anime is one title from one source.
type Anime struct {
	AnimeID         int       `json:"animeId"`
	BangumiID       string    `json:"bangumiId"`
	AnimeTitle      string    `json:"animeTitle"`
	Type            string    `json:"type"`
	TypeDescription string    `json:"typeDescription"`
	ImageURL        string    `json:"imageUrl"`
	StartDate       string    `json:"startDate"`
	EpisodeCount    int       `json:"episodeCount"`
	Rating          float64   `json:"rating"`
	IsFavorited     bool      `json:"isFavorited"`
	Source          string    `json:"source"`
	Links           []Episode `json:"links"`
}

// LastSelect records which anime IDs a query produced and which one the user
// (or matcher) ultimately picked.
type LastSelect struct {
	AnimeIDs  []int     `json:"animeIds"`
	Prefer    int       `json:"prefer,omitempty"` // 0 = no preference yet
	Timestamp time.Time `json:"timestamp"`
}

// Catalog is safe for concurrent use. One instance per process.
type Catalog struct {
	mu sync.RWMutex

	animes     []*Anime // insertion order = recency, head is the oldest
	maxAnimes  int
	episodeNum int

	episodes      []Episode
	episodeByURL  map[string]int // url -> index into episodes
	episodeByID   map[int]int    // id -> index into episodes

	lastSelect      map[string]*LastSelect
	lastSelectOrder []string
	maxLastSelect   int

	caches *resultCaches
}

// Option tweaks a Catalog at construction time.
type Option func(*Catalog)

func WithMaxAnimes(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.maxAnimes = n
		}
	}
}

func WithMaxLastSelect(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.maxLastSelect = n
		}
	}
}

func New(opts ...Option) *Catalog {
	c := &Catalog{
		maxAnimes:     DefaultMaxAnimes,
		episodeNum:    FirstEpisodeID,
		episodeByURL:  map[string]int{},
		episodeByID:   map[int]int{},
		lastSelect:    map[string]*LastSelect{},
		maxLastSelect: DefaultMaxLastSelect,
		caches:        newResultCaches(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AsciiSum derives the stable 32-bit anime ID from a source's native ID.
func AsciiSum(bangumiID string) int {
	var sum int32
	for i := 0; i < len(bangumiID); i++ {
		sum += int32(bangumiID[i])
	}
	return int(sum)
}

// AddEpisode returns the existing episode when the URL is already known (the
// integer ID must stay stable so players can call back with it), otherwise it
// assigns the next counter value and appends.
func (c *Catalog) AddEpisode(url, title string) Episode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addEpisodeLocked(url, title)
}

func (c *Catalog) addEpisodeLocked(url, title string) Episode {
	if idx, ok := c.episodeByURL[url]; ok {
		return c.episodes[idx]
	}
	ep := Episode{ID: c.episodeNum, URL: url, Title: title}
	c.episodeNum++
	c.episodes = append(c.episodes, ep)
	c.episodeByURL[url] = len(c.episodes) - 1
	c.episodeByID[ep.ID] = len(c.episodes) - 1
	return ep
}

// AddAnime inserts an anime at the recency tail and returns the canonical
// record. A duplicate animeId moves the existing entry to the tail and
// returns it instead of the argument, since only the existing record carries
// the already-assigned episode IDs. Beyond capacity the oldest anime is
// evicted together with its URLs in the episode index.
func (c *Catalog) AddAnime(anime *Anime) *Anime {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.animes {
		if existing.AnimeID == anime.AnimeID {
			c.animes = append(append(c.animes[:i:i], c.animes[i+1:]...), existing)
			return existing
		}
	}

	for i := range anime.Links {
		ep := c.addEpisodeLocked(anime.Links[i].URL, anime.Links[i].Title)
		anime.Links[i].ID = ep.ID
		anime.Links[i].Title = ep.Title
	}
	anime.EpisodeCount = len(anime.Links)
	c.animes = append(c.animes, anime)

	for len(c.animes) > c.maxAnimes {
		evicted := c.animes[0]
		c.animes = c.animes[1:]
		c.removeEpisodesLocked(evicted)
	}
	return anime
}

// removeEpisodesLocked drops the evicted anime's URLs from the index, unless
// another live anime still references them.
func (c *Catalog) removeEpisodesLocked(evicted *Anime) {
	stillUsed := map[string]bool{}
	for _, a := range c.animes {
		for _, ep := range a.Links {
			stillUsed[ep.URL] = true
		}
	}
	for _, ep := range evicted.Links {
		if stillUsed[ep.URL] {
			continue
		}
		idx, ok := c.episodeByURL[ep.URL]
		if !ok {
			continue
		}
		delete(c.episodeByURL, ep.URL)
		delete(c.episodeByID, c.episodes[idx].ID)
	}
}

// FindURLByID resolves a player-facing episode ID back to its upstream URL.
func (c *Catalog) FindURLByID(id int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx, ok := c.episodeByID[id]; ok {
		return c.episodes[idx].URL, true
	}
	return "", false
}

// FindTitleByID resolves an episode ID to its display title.
func (c *Catalog) FindTitleByID(id int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx, ok := c.episodeByID[id]; ok {
		return c.episodes[idx].Title, true
	}
	return "", false
}

// FindAnimeByID returns the anime with the given ID.
func (c *Catalog) FindAnimeByID(animeID int) (*Anime, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.animes {
		if a.AnimeID == animeID {
			return a, true
		}
	}
	return nil, false
}

// FindAnimeIDByCommentID returns the anime owning the given episode ID.
func (c *Catalog) FindAnimeIDByCommentID(episodeID int) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.animes {
		for _, ep := range a.Links {
			if ep.ID == episodeID {
				return a.AnimeID, true
			}
		}
	}
	return 0, false
}

// StoreAnimeIDs records the anime IDs a query produced, preserving a prior
// preference. Beyond capacity the oldest query key is evicted (FIFO).
func (c *Catalog) StoreAnimeIDs(animeIDs []int, query string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &LastSelect{AnimeIDs: animeIDs, Timestamp: time.Now()}
	if prior, ok := c.lastSelect[query]; ok {
		entry.Prefer = prior.Prefer
	} else {
		c.lastSelectOrder = append(c.lastSelectOrder, query)
	}
	c.lastSelect[query] = entry

	for len(c.lastSelectOrder) > c.maxLastSelect {
		oldest := c.lastSelectOrder[0]
		c.lastSelectOrder = c.lastSelectOrder[1:]
		delete(c.lastSelect, oldest)
	}
}

// PreferredAnimeID returns the remembered selection for a query, if any.
func (c *Catalog) PreferredAnimeID(query string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.lastSelect[query]; ok && entry.Prefer != 0 {
		return entry.Prefer, true
	}
	return 0, false
}

// SetPreferByAnimeID marks an anime ID as the selection for whichever query
// produced it, and returns that query.
func (c *Catalog) SetPreferByAnimeID(animeID int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for query, entry := range c.lastSelect {
		for _, id := range entry.AnimeIDs {
			if id == animeID {
				entry.Prefer = animeID
				return query, true
			}
		}
	}
	return "", false
}

// Animes returns a snapshot copy of the anime list, oldest first.
func (c *Catalog) Animes() []*Anime {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Anime, len(c.animes))
	copy(out, c.animes)
	return out
}

// Len returns the number of catalogued animes.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.animes)
}

// EpisodeNum returns the current value of the episode ID counter.
func (c *Catalog) EpisodeNum() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.episodeNum
}
