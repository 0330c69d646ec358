package main

import (
	"context"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/danmaku"
	"github.com/weilazy/danmu-proxy/pkg/match"
	"github.com/weilazy/danmu-proxy/pkg/sources"
	"github.com/weilazy/danmu-proxy/pkg/store"
)

// fakeTencent plays the Tencent source with canned data.
type fakeTencent struct {
	comments []danmaku.Comment
}

func (f *fakeTencent) Name() string { return "tencent" }

func (f *fakeTencent) Search(ctx context.Context, keyword string) ([]sources.RawAnime, error) {
	return []sources.RawAnime{
		{ID: "cover/abc", Title: "Arcane", Year: 2021, Type: sources.TypeDrama},
	}, nil
}

func (f *fakeTencent) Episodes(ctx context.Context, id string) ([]sources.RawEpisode, error) {
	return []sources.RawEpisode{
		{URL: "https://v.qq.com/x/cover/abc/v1.html", Title: "第1集"},
		{URL: "https://v.qq.com/x/cover/abc/v2.html", Title: "第2集"},
	}, nil
}

func (f *fakeTencent) Comments(ctx context.Context, url string) ([]danmaku.Comment, error) {
	return f.comments, nil
}

type testServer struct {
	app *fiber.App
	cat *catalog.Catalog
}

func newTestServer(t *testing.T, overlay map[string]string, srcs ...sources.Source) *testServer {
	t.Helper()
	if overlay == nil {
		overlay = map[string]string{}
	}
	if _, ok := overlay["SOURCE_ORDER"]; !ok {
		overlay["SOURCE_ORDER"] = "tencent"
	}
	cfg, err := config.Load("", overlay, zap.NewNop())
	require.NoError(t, err)
	cat := catalog.New()
	db := store.New(nil, zap.NewNop())
	t.Cleanup(func() { db.Close() })
	orch := sources.NewOrchestrator(cfg, cat, db, zap.NewNop(), srcs...)
	engine := match.NewEngine(cfg, cat, orch, zap.NewNop())
	return &testServer{
		app: newApp(cfg, cat, orch, engine, db, zap.NewNop()),
		cat: cat,
	}
}

func TestSearchAnimeEndpoint(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/search/anime?keyword=Arcane", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	require.Equal(t, int64(0), gjson.GetBytes(body, "errorCode").Int())
	require.True(t, gjson.GetBytes(body, "success").Bool())
	anime := gjson.GetBytes(body, "animes.0")
	require.Equal(t, int64(catalog.AsciiSum("cover/abc")), anime.Get("animeId").Int())
	require.Equal(t, "Arcane(2021)【drama】from tencent", anime.Get("animeTitle").String())
	require.Equal(t, int64(2), anime.Get("episodeCount").Int())
}

func TestSearchAnimeMissingKeyword(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/search/anime", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	require.Equal(t, int64(400), gjson.GetBytes(body, "errorCode").Int())
	require.False(t, gjson.GetBytes(body, "success").Bool())
}

func TestSearchEpisodesEndpoint(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/search/episodes?anime=Arcane&episode=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	episodes := gjson.GetBytes(body, "animes.0.episodes")
	require.Len(t, episodes.Array(), 1)
	require.Equal(t, "【tencent】第2集", episodes.Get("0.episodeTitle").String())
}

func TestMatchEndpoint(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	payload, _ := json.Marshal(map[string]string{"fileName": "Arcane.S01E02.1080p.WEB.mkv"})
	req := httptest.NewRequest("POST", "/api/v2/match", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	res, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	require.True(t, gjson.GetBytes(body, "isMatched").Bool())
	require.Equal(t, "【tencent】第2集", gjson.GetBytes(body, "matches.0.episodeTitle").String())
}

func TestBangumiEndpoint(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	// Populate the catalog first.
	_, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/search/anime?keyword=Arcane", nil))
	require.NoError(t, err)

	animeID := catalog.AsciiSum("cover/abc")
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/bangumi/"+itoa(animeID), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	require.Equal(t, int64(animeID), gjson.GetBytes(body, "bangumi.animeId").Int())
	require.Len(t, gjson.GetBytes(body, "bangumi.episodes").Array(), 2)
	require.Equal(t, int64(2), gjson.GetBytes(body, "bangumi.seasons.0.episodeCount").Int())
}

func TestBangumiUnknown(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/bangumi/424242", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, res.StatusCode)
}

func TestCommentByIDEndpoint(t *testing.T) {
	src := &fakeTencent{comments: []danmaku.Comment{
		{Time: 3.5, Mode: danmaku.ModeScroll, Color: danmaku.ColorWhite, Text: "hello", Platform: "tencent"},
		{Time: 1.0, Mode: danmaku.ModeTop, Color: 255, Text: "world", Platform: "tencent"},
	}}
	s := newTestServer(t, nil, src)
	_, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/search/anime?keyword=Arcane", nil))
	require.NoError(t, err)

	episodeID := catalog.FirstEpisodeID
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/comment/"+itoa(episodeID), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	require.Equal(t, int64(2), gjson.GetBytes(body, "count").Int())
	// output is time sorted, cid 1-based
	first := gjson.GetBytes(body, "comments.0")
	require.Equal(t, int64(1), first.Get("cid").Int())
	require.Equal(t, "world", first.Get("m").String())
	require.True(t, strings.HasPrefix(first.Get("p").String(), "1.00,5,255,[tencent]"))
}

func TestCommentByIDUnknown(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/comment/99999", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, res.StatusCode)
}

func TestCommentByURLEndpointXML(t *testing.T) {
	src := &fakeTencent{comments: []danmaku.Comment{
		{Time: 1.0, Mode: danmaku.ModeScroll, Color: danmaku.ColorWhite, Text: "弹幕", Platform: "tencent"},
	}}
	s := newTestServer(t, nil, src)

	res, err := s.app.Test(httptest.NewRequest("GET",
		"/api/v2/comment?url=https://v.qq.com/x/cover/abc/v1.html&format=xml", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "xml")

	body, _ := io.ReadAll(res.Body)
	require.Contains(t, string(body), "<d p=\"1.00,1,25,16777215,1751533608,0,0,")
	require.Contains(t, string(body), ">弹幕</d>")
}

func TestCommentByURLMissingParam(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	res, err := s.app.Test(httptest.NewRequest("GET", "/api/v2/comment", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, res.StatusCode)
}

func TestCommentRateLimitExactRejections(t *testing.T) {
	src := &fakeTencent{comments: []danmaku.Comment{{Time: 1, Text: "x", Platform: "tencent"}}}
	s := newTestServer(t, map[string]string{"RATE_LIMIT_MAX_REQUESTS": "3"}, src)

	rejected := 0
	for i := 0; i < 5; i++ {
		res, err := s.app.Test(httptest.NewRequest("GET",
			"/api/v2/comment?url=https://v.qq.com/x/cover/abc/v1.html", nil))
		require.NoError(t, err)
		if res.StatusCode == fiber.StatusTooManyRequests {
			rejected++
		}
	}
	require.Equal(t, 2, rejected)
}

func TestConfigEndpointPatch(t *testing.T) {
	s := newTestServer(t, nil, &fakeTencent{})
	payload := `{"danmuLimit":"200"}`
	req := httptest.NewRequest("POST", "/api/config", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	res, err = s.app.Test(httptest.NewRequest("GET", "/api/config", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	require.Equal(t, int64(200), gjson.GetBytes(body, "settings.DanmuLimit").Int())
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
