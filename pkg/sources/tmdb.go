package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const tmdbSearchURL = "https://api.themoviedb.org/3/search/multi?api_key=%v&language=zh-CN&query=%v"

// Translator turns a foreign title into its Chinese release title. The match
// engine uses it when TITLE_TO_CHINESE is on.
type Translator interface {
	TranslateToChinese(ctx context.Context, title string) (string, error)
}

// TMDB is a metadata source: its hits carry Chinese titles and artwork but no
// playable episodes, so it contributes title translation rather than streams.
type TMDB struct {
	cfg        *config.Registry
	httpClient *http.Client
	logger     *zap.Logger
}

func NewTMDB(cfg *config.Registry, timeout time.Duration, logger *zap.Logger) *TMDB {
	return &TMDB{cfg: cfg, httpClient: newHTTPClient(timeout), logger: logger}
}

func (t *TMDB) Name() string { return "tmdb" }

func (t *TMDB) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	apiKey := t.cfg.Current().TmdbAPIKey
	if apiKey == "" {
		return nil, nil
	}
	result, err := fetchJSON(ctx, t.httpClient, fmt.Sprintf(tmdbSearchURL, apiKey, url.QueryEscape(keyword)))
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.Get("results").ForEach(func(_, item gjson.Result) bool {
		mediaType := item.Get("media_type").String()
		if mediaType != "movie" && mediaType != "tv" {
			return true
		}
		title := item.Get("title").String()
		date := item.Get("release_date").String()
		animeType := TypeMovie
		if mediaType == "tv" {
			title = item.Get("name").String()
			date = item.Get("first_air_date").String()
			animeType = TypeDrama
		}
		year := 0
		if len(date) >= 4 {
			fmt.Sscanf(date[:4], "%d", &year)
		}
		imageURL := ""
		if poster := item.Get("poster_path").String(); poster != "" {
			imageURL = "https://image.tmdb.org/t/p/w500" + poster
		}
		out = append(out, RawAnime{
			ID:       fmt.Sprintf("%v:%v", mediaType, item.Get("id").Int()),
			Title:    title,
			Year:     year,
			Type:     animeType,
			ImageURL: imageURL,
			Rating:   item.Get("vote_average").Float(),
		})
		return true
	})
	return out, nil
}

// Episodes is empty on purpose: TMDB has nothing playable, so the
// orchestrator drops its hits from search responses.
func (t *TMDB) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	return nil, nil
}

func (t *TMDB) Comments(ctx context.Context, url string) ([]danmaku.Comment, error) {
	return nil, fmt.Errorf("tmdb has no danmaku stream")
}

func (t *TMDB) TranslateToChinese(ctx context.Context, title string) (string, error) {
	hits, err := t.Search(ctx, title)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", fmt.Errorf("tmdb found nothing for %v", title)
	}
	translated := hits[0].Title
	if translated == "" {
		return "", fmt.Errorf("tmdb hit for %v carries no Chinese title", title)
	}
	return translated, nil
}
