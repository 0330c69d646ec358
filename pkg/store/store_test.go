package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
)

func testSnapshot() catalog.Snapshot {
	c := catalog.New()
	c.AddAnime(&catalog.Anime{
		AnimeID:   42,
		BangumiID: "cover/abc",
		Links:     []catalog.Episode{{URL: "https://v.example.com/1", Title: "【tencent】第1集"}},
	})
	c.StoreAnimeIDs([]int{42}, "some show")
	return c.Export()
}

func drain(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.Close())
}

func TestSQLTierRoundTrip(t *testing.T) {
	tier, err := NewSQLTier(filepath.Join(t.TempDir(), "danmu.db"))
	require.NoError(t, err)
	defer tier.Close()

	require.NoError(t, tier.SaveCache(KeyEpisodeNum, []byte("10005")))
	value, found, err := tier.LoadCache(KeyEpisodeNum)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("10005"), value)

	// Upsert overwrites
	require.NoError(t, tier.SaveCache(KeyEpisodeNum, []byte("10009")))
	value, _, err = tier.LoadCache(KeyEpisodeNum)
	require.NoError(t, err)
	require.Equal(t, []byte("10009"), value)

	_, found, err = tier.LoadCache("unknown")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, tier.SaveConfig(map[string]string{"TOKEN": "abc"}))
	overlay, err := tier.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "abc", overlay["TOKEN"])
}

func TestRedisTierRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	tier, err := NewRedisTier(mr.Addr(), "", "")
	require.NoError(t, err)
	defer tier.Close()

	require.NoError(t, tier.SaveCache(KeySearchCache, []byte(`{"k":1}`)))
	value, found, err := tier.LoadCache(KeySearchCache)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte(`{"k":1}`), value)

	require.NoError(t, tier.SaveConfig(map[string]string{"WHITE_RATIO": "20"}))
	overlay, err := tier.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "20", overlay["WHITE_RATIO"])
}

func TestBadgerTierRoundTrip(t *testing.T) {
	tier, err := NewBadgerTier(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer tier.Close()

	require.NoError(t, tier.SaveCache(KeyAnimes, []byte(`[]`)))
	value, found, err := tier.LoadCache(KeyAnimes)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte(`[]`), value)

	_, found, err = tier.LoadCache("nothing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreSnapshotRehydrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "danmu.db")
	tier, err := NewSQLTier(dbPath)
	require.NoError(t, err)

	s := New([]Tier{tier}, zap.NewNop())
	snap := testSnapshot()
	s.SaveSnapshot(snap)
	drain(t, s)

	tier, err = NewSQLTier(dbPath)
	require.NoError(t, err)
	s = New([]Tier{tier}, zap.NewNop())
	restored, found := s.LoadSnapshot()
	require.True(t, found)
	require.Len(t, restored.Animes, 1)
	require.Equal(t, 42, restored.Animes[0].AnimeID)
	require.Equal(t, snap.EpisodeNum, restored.EpisodeNum)
	require.Contains(t, restored.LastSelectMap, "some show")
	drain(t, s)
}

func TestStoreHashGuardSkipsUnchanged(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "danmu.db")
	tier, err := NewSQLTier(dbPath)
	require.NoError(t, err)
	s := New([]Tier{tier}, zap.NewNop())

	s.enqueue(KeyEpisodeNum, []byte("10001"))
	s.enqueue(KeyEpisodeNum, []byte("10001")) // skipped by the hash guard
	s.enqueue(KeyEpisodeNum, []byte("10002"))
	drain(t, s)

	tier, err = NewSQLTier(dbPath)
	require.NoError(t, err)
	defer tier.Close()
	value, found, err := tier.LoadCache(KeyEpisodeNum)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("10002"), value)
}

func TestStoreDualTierFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	redisTier, err := NewRedisTier(mr.Addr(), "", "")
	require.NoError(t, err)
	sqlTier, err := NewSQLTier(filepath.Join(t.TempDir(), "danmu.db"))
	require.NoError(t, err)

	s := New([]Tier{sqlTier, redisTier}, zap.NewNop())
	s.SaveSnapshot(testSnapshot())
	drain(t, s)

	// Both tiers carry the value; the KV tier alone can rehydrate.
	s2 := New([]Tier{redisTier2(t, mr)}, zap.NewNop())
	restored, found := s2.LoadSnapshot()
	require.True(t, found)
	require.Len(t, restored.Animes, 1)
	drain(t, s2)
}

func redisTier2(t *testing.T, mr *miniredis.Miniredis) *RedisTier {
	t.Helper()
	tier, err := NewRedisTier(mr.Addr(), "", "")
	require.NoError(t, err)
	return tier
}

func TestStoreCheckOnce(t *testing.T) {
	s := New(nil, zap.NewNop())
	s.Check()
	s.Check() // second call is a no-op; must not panic or re-log
	require.False(t, s.Available())
	drain(t, s)
}

func TestConfigOverlayAsync(t *testing.T) {
	tier, err := NewSQLTier(filepath.Join(t.TempDir(), "danmu.db"))
	require.NoError(t, err)
	s := New([]Tier{tier}, zap.NewNop())
	s.SaveConfigOverlay(map[string]string{"TOKEN": "xyz"})

	require.Eventually(t, func() bool {
		overlay := s.LoadConfigOverlay()
		return overlay["TOKEN"] == "xyz"
	}, 2*time.Second, 10*time.Millisecond)
	drain(t, s)
}
