package match

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
	"github.com/weilazy/danmu-proxy/pkg/config"
)

func TestParseFileNameMovie(t *testing.T) {
	parsed := ParseFileName("Blood.River.2023.1080p.BluRay.x264.mkv")
	require.Equal(t, "Blood River", parsed.Title)
	require.Zero(t, parsed.Season)
	require.Zero(t, parsed.Episode)
}

func TestParseFileNameSeries(t *testing.T) {
	parsed := ParseFileName("亲爱的X.S02E07.2160p.WEB-DL.mkv")
	require.Equal(t, "亲爱的X", parsed.Title)
	require.Equal(t, 2, parsed.Season)
	require.Equal(t, 7, parsed.Episode)
}

func TestParseFileNamePlatformTag(t *testing.T) {
	parsed := ParseFileName("[bilibili]某某动画.S01E03.1080p.mkv")
	require.Equal(t, "bilibili", parsed.Platform)
	require.Equal(t, "某某动画", parsed.Title)
	require.Equal(t, 3, parsed.Episode)
}

func TestParseFileNameLatinNoYear(t *testing.T) {
	parsed := ParseFileName("Some_Show.1080p.WEB.mkv")
	require.Equal(t, "Some Show", parsed.Title)
}

func TestParseFileNameTrailingYear(t *testing.T) {
	parsed := ParseFileName("Arcane.2021.mkv")
	require.Equal(t, "Arcane", parsed.Title)
}

// stubSearcher hands back a canned catalog answer and records the keyword.
type stubSearcher struct {
	animes  []*catalog.Anime
	keyword string
}

func (s *stubSearcher) Search(ctx context.Context, keyword string) ([]*catalog.Anime, error) {
	s.keyword = keyword
	return s.animes, nil
}

type stubTranslator struct{ translated string }

func (s stubTranslator) TranslateToChinese(ctx context.Context, title string) (string, error) {
	if s.translated == "" {
		return "", fmt.Errorf("no hit")
	}
	return s.translated, nil
}

func buildAnime(cat *catalog.Catalog, source, title string, animeType string, episodeCount int) *catalog.Anime {
	anime := &catalog.Anime{
		AnimeID:    catalog.AsciiSum(source + "/" + title),
		BangumiID:  source + "/" + title,
		AnimeTitle: fmt.Sprintf("%v【%v】from %v", title, animeType, source),
		Type:       animeType,
		Source:     source,
	}
	for i := 1; i <= episodeCount; i++ {
		anime.Links = append(anime.Links, catalog.Episode{
			URL:   fmt.Sprintf("https://%v.example/%v/%v", source, title, i),
			Title: fmt.Sprintf("【%v】第%v集", source, i),
		})
	}
	cat.AddAnime(anime)
	return anime
}

func newTestEngine(t *testing.T, overlay map[string]string, searcher Searcher, cat *catalog.Catalog) *Engine {
	t.Helper()
	cfg, err := config.Load("", overlay, zap.NewNop())
	require.NoError(t, err)
	return NewEngine(cfg, cat, searcher, zap.NewNop())
}

func TestMatchSeriesEpisode(t *testing.T) {
	cat := catalog.New()
	anime := buildAnime(cat, "tencent", "亲爱的X 2", "drama", 10)
	engine := newTestEngine(t, nil, &stubSearcher{animes: []*catalog.Anime{anime}}, cat)

	result, err := engine.Match(context.Background(), "亲爱的X.S02E07.2160p.WEB-DL.mkv")
	require.NoError(t, err)
	require.True(t, result.IsMatched)
	require.Len(t, result.Matches, 1)
	require.Equal(t, anime.Links[6].ID, result.Matches[0].EpisodeID)
	require.Equal(t, "【tencent】第7集", result.Matches[0].EpisodeTitle)
}

func TestMatchMovie(t *testing.T) {
	cat := catalog.New()
	anime := buildAnime(cat, "tencent", "Blood River", "movie", 1)
	engine := newTestEngine(t, nil, &stubSearcher{animes: []*catalog.Anime{anime}}, cat)

	result, err := engine.Match(context.Background(), "Blood.River.2023.1080p.BluRay.x264.mkv")
	require.NoError(t, err)
	require.True(t, result.IsMatched)
	require.Equal(t, anime.Links[0].ID, result.Matches[0].EpisodeID)
}

func TestMatchPlatformOrder(t *testing.T) {
	cat := catalog.New()
	tencent := buildAnime(cat, "tencent", "某剧", "drama", 10)
	youku := buildAnime(cat, "youku", "某剧", "drama", 10)
	searcher := &stubSearcher{animes: []*catalog.Anime{tencent, youku}}
	engine := newTestEngine(t, map[string]string{"PLATFORM_ORDER": "youku,tencent"}, searcher, cat)

	result, err := engine.Match(context.Background(), "某剧.S01E02.1080p.mkv")
	require.NoError(t, err)
	require.True(t, result.IsMatched)
	require.Equal(t, youku.AnimeID, result.Matches[0].AnimeID)
}

func TestMatchFileNameTagBeatsPlatformOrder(t *testing.T) {
	cat := catalog.New()
	tencent := buildAnime(cat, "tencent", "某剧", "drama", 10)
	youku := buildAnime(cat, "youku", "某剧", "drama", 10)
	searcher := &stubSearcher{animes: []*catalog.Anime{tencent, youku}}
	engine := newTestEngine(t, map[string]string{"PLATFORM_ORDER": "youku"}, searcher, cat)

	result, err := engine.Match(context.Background(), "[tencent]某剧.S01E02.1080p.mkv")
	require.NoError(t, err)
	require.Equal(t, tencent.AnimeID, result.Matches[0].AnimeID)
}

func TestMatchFallbackFirstResult(t *testing.T) {
	cat := catalog.New()
	// Too few episodes for E07 under every platform: fall back to first.
	anime := buildAnime(cat, "tencent", "短剧", "drama", 3)
	engine := newTestEngine(t, nil, &stubSearcher{animes: []*catalog.Anime{anime}}, cat)

	result, err := engine.Match(context.Background(), "短剧.S01E07.1080p.mkv")
	require.NoError(t, err)
	require.True(t, result.IsMatched)
	require.Equal(t, anime.Links[0].ID, result.Matches[0].EpisodeID)
}

func TestMatchNoResults(t *testing.T) {
	engine := newTestEngine(t, nil, &stubSearcher{}, catalog.New())
	result, err := engine.Match(context.Background(), "不存在的剧.S01E01.mkv")
	require.NoError(t, err)
	require.False(t, result.IsMatched)
	require.Empty(t, result.Matches)
}

func TestMatchRemembersSelection(t *testing.T) {
	cat := catalog.New()
	tencent := buildAnime(cat, "tencent", "某剧", "drama", 10)
	youku := buildAnime(cat, "youku", "某剧", "drama", 10)
	cat.StoreAnimeIDs([]int{tencent.AnimeID, youku.AnimeID}, "某剧")

	searcher := &stubSearcher{animes: []*catalog.Anime{tencent, youku}}
	engine := newTestEngine(t, map[string]string{"PLATFORM_ORDER": "youku,tencent"}, searcher, cat)

	// First match lands on youku per platform order and is remembered.
	result, err := engine.Match(context.Background(), "某剧.S01E02.1080p.mkv")
	require.NoError(t, err)
	require.Equal(t, youku.AnimeID, result.Matches[0].AnimeID)

	preferred, ok := cat.PreferredAnimeID("某剧")
	require.True(t, ok)
	require.Equal(t, youku.AnimeID, preferred)

	// With the preference pinned, even a tencent-first order sticks to youku.
	engine2 := newTestEngine(t, map[string]string{"PLATFORM_ORDER": "tencent,youku"}, searcher, cat)
	result, err = engine2.Match(context.Background(), "某剧.S01E03.1080p.mkv")
	require.NoError(t, err)
	require.Equal(t, youku.AnimeID, result.Matches[0].AnimeID)
}

func TestMatchTranslatesTitle(t *testing.T) {
	cat := catalog.New()
	anime := buildAnime(cat, "tencent", "奥术", "drama", 9)
	searcher := &stubSearcher{animes: []*catalog.Anime{anime}}
	cfg, err := config.Load("", map[string]string{"TITLE_TO_CHINESE": "true"}, zap.NewNop())
	require.NoError(t, err)
	engine := NewEngine(cfg, cat, searcher, zap.NewNop(),
		stubTranslator{}, stubTranslator{translated: "奥术"})

	result, err := engine.Match(context.Background(), "Arcane.S01E02.1080p.mkv")
	require.NoError(t, err)
	require.True(t, result.IsMatched)
	require.Equal(t, "奥术", searcher.keyword)
}
