package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestAsciiSum(t *testing.T) {
	require.Equal(t, int('a')+int('b'), AsciiSum("ab"))
	require.Equal(t, 0, AsciiSum(""))
}

func TestAddEpisodeStableID(t *testing.T) {
	c := New()
	ep1 := c.AddEpisode("https://example.com/v1", "first title")
	ep2 := c.AddEpisode("https://example.com/v1", "second title")
	require.Equal(t, ep1.ID, ep2.ID)
	// The title of the first call is preserved
	require.Equal(t, "first title", ep2.Title)

	url, ok := c.FindURLByID(ep1.ID)
	require.True(t, ok)
	require.Equal(t, "https://example.com/v1", url)
}

func TestAddEpisodeMonotonicIDs(t *testing.T) {
	c := New()
	ep1 := c.AddEpisode("u1", "t1")
	ep2 := c.AddEpisode("u2", "t2")
	require.Equal(t, FirstEpisodeID, ep1.ID)
	require.Equal(t, FirstEpisodeID+1, ep2.ID)
}

func TestAddAnimeDuplicateMovesToTail(t *testing.T) {
	c := New()
	a1 := &Anime{AnimeID: 1, Links: []Episode{{URL: "u1", Title: "t1"}}}
	a2 := &Anime{AnimeID: 2, Links: []Episode{{URL: "u2", Title: "t2"}}}
	c.AddAnime(a1)
	c.AddAnime(a2)
	episodeNum := c.EpisodeNum()

	dup := &Anime{AnimeID: 1, Links: []Episode{{URL: "u3", Title: "t3"}}}
	c.AddAnime(dup)

	require.Equal(t, 2, c.Len())
	// No episodes re-added
	require.Equal(t, episodeNum, c.EpisodeNum())
	// Entry moved to the tail
	animes := c.Animes()
	require.Equal(t, 2, animes[0].AnimeID)
	require.Equal(t, 1, animes[1].AnimeID)
}

func TestAddAnimeDuplicateReturnsCanonical(t *testing.T) {
	c := New()
	first := c.AddAnime(&Anime{AnimeID: 1, Links: []Episode{
		{URL: "u1", Title: "t1"},
		{URL: "u2", Title: "t2"},
	}})
	require.Equal(t, FirstEpisodeID, first.Links[0].ID)
	require.Equal(t, 2, first.EpisodeCount)

	// A re-built record for the same animeId has no episode IDs assigned;
	// callers must get back the catalogued one.
	again := c.AddAnime(&Anime{AnimeID: 1, Links: []Episode{{URL: "u1", Title: "t1"}}})
	require.Same(t, first, again)
	require.Equal(t, FirstEpisodeID, again.Links[0].ID)
	require.Equal(t, 2, again.EpisodeCount)
}

func TestAddAnimeEviction(t *testing.T) {
	c := New(WithMaxAnimes(3))
	var firstEpisodeID int
	for i := 1; i <= 5; i++ {
		a := &Anime{
			AnimeID: i,
			Links:   []Episode{{URL: fmt.Sprintf("u%d", i), Title: fmt.Sprintf("t%d", i)}},
		}
		c.AddAnime(a)
		if i == 1 {
			firstEpisodeID = a.Links[0].ID
		}
	}
	require.Equal(t, 3, c.Len())

	// Evicted animes' episode URLs are gone from the index
	_, ok := c.FindURLByID(firstEpisodeID)
	require.False(t, ok)
	// Survivors stay resolvable
	animes := c.Animes()
	for _, a := range animes {
		url, ok := c.FindURLByID(a.Links[0].ID)
		require.True(t, ok)
		require.Equal(t, a.Links[0].URL, url)
	}
}

func TestEpisodeIDsUniqueAcrossCatalog(t *testing.T) {
	c := New()
	seen := map[int]bool{}
	for i := 0; i < 10; i++ {
		a := &Anime{AnimeID: i + 1}
		for j := 0; j < 5; j++ {
			a.Links = append(a.Links, Episode{URL: fmt.Sprintf("u-%d-%d", i, j), Title: "t"})
		}
		c.AddAnime(a)
		for _, ep := range a.Links {
			require.False(t, seen[ep.ID])
			seen[ep.ID] = true
		}
	}
}

func TestLastSelectPreservesPrefer(t *testing.T) {
	c := New()
	c.StoreAnimeIDs([]int{11, 22}, "some show")

	query, ok := c.SetPreferByAnimeID(22)
	require.True(t, ok)
	require.Equal(t, "some show", query)

	// A later store for the same query keeps the preference
	c.StoreAnimeIDs([]int{11, 22, 33}, "some show")
	prefer, ok := c.PreferredAnimeID("some show")
	require.True(t, ok)
	require.Equal(t, 22, prefer)
}

func TestLastSelectFIFOEviction(t *testing.T) {
	c := New(WithMaxLastSelect(2))
	c.StoreAnimeIDs([]int{1}, "q1")
	c.StoreAnimeIDs([]int{2}, "q2")
	c.StoreAnimeIDs([]int{3}, "q3")

	_, ok := c.PreferredAnimeID("q1")
	require.False(t, ok)
	_, ok = c.SetPreferByAnimeID(1)
	require.False(t, ok)
	_, ok = c.SetPreferByAnimeID(3)
	require.True(t, ok)
}

func TestSearchCacheRoundTrip(t *testing.T) {
	c := New()
	animes := []*Anime{{AnimeID: 7, AnimeTitle: "Arcane(2021)【drama】from tencent"}}
	c.SetSearchCache("arcane", animes, time.Minute)

	got, ok := c.GetSearchCache("arcane")
	require.True(t, ok)
	require.True(t, cmp.Equal(animes, got))

	_, ok = c.GetSearchCache("unknown")
	require.False(t, ok)
}

func TestSearchCacheExpiry(t *testing.T) {
	c := New()
	c.SetSearchCache("k", nil, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.GetSearchCache("k")
	require.False(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := New()
	c.AddAnime(&Anime{AnimeID: 1, BangumiID: "x", Links: []Episode{{URL: "u1", Title: "t1"}}})
	c.StoreAnimeIDs([]int{1}, "q")
	c.SetPreferByAnimeID(1)
	c.SetSearchCache("q", c.Animes(), time.Hour)
	c.SetCommentCache("u1", []byte(`[]`), time.Hour)

	snap := c.Export()

	restored := New()
	restored.Import(snap, time.Hour, time.Hour)

	require.Equal(t, c.Len(), restored.Len())
	require.Equal(t, c.EpisodeNum(), restored.EpisodeNum())
	url, ok := restored.FindURLByID(FirstEpisodeID)
	require.True(t, ok)
	require.Equal(t, "u1", url)
	prefer, ok := restored.PreferredAnimeID("q")
	require.True(t, ok)
	require.Equal(t, 1, prefer)
	_, ok = restored.GetSearchCache("q")
	require.True(t, ok)
	data, ok := restored.GetCommentCache("u1")
	require.True(t, ok)
	require.Equal(t, []byte(`[]`), data)
}

func TestSnapshotImportFiltersExpired(t *testing.T) {
	c := New()
	c.SetSearchCache("stale", nil, time.Hour)
	snap := c.Export()
	entry := snap.SearchCache["stale"]
	entry.Timestamp = time.Now().Add(-2 * time.Hour)
	snap.SearchCache["stale"] = entry

	restored := New()
	restored.Import(snap, time.Minute, time.Minute)
	_, ok := restored.GetSearchCache("stale")
	require.False(t, ok)
}
