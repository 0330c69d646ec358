package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const doubanSuggestURL = "https://movie.douban.com/j/subject_suggest?q=%v"

// Douban is the second metadata source: no playable episodes, but its
// suggest endpoint knows the Chinese release titles of foreign shows, which
// makes it the translation fallback when TMDB has no key or no answer.
type Douban struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewDouban(timeout time.Duration, logger *zap.Logger) *Douban {
	return &Douban{httpClient: newHTTPClient(timeout), logger: logger}
}

func (d *Douban) Name() string { return "douban" }

func (d *Douban) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	result, err := fetchJSON(ctx, d.httpClient,
		fmt.Sprintf(doubanSuggestURL, url.QueryEscape(keyword)),
		"Referer", "https://movie.douban.com/")
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "movie" {
			return true
		}
		year := 0
		fmt.Sscanf(item.Get("year").String(), "%d", &year)
		out = append(out, RawAnime{
			ID:       item.Get("id").String(),
			Title:    item.Get("title").String(),
			Year:     year,
			Type:     TypeMovie,
			ImageURL: item.Get("img").String(),
		})
		return true
	})
	return out, nil
}

// Episodes is empty on purpose, as with TMDB.
func (d *Douban) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	return nil, nil
}

func (d *Douban) Comments(ctx context.Context, url string) ([]danmaku.Comment, error) {
	return nil, fmt.Errorf("douban has no danmaku stream")
}

func (d *Douban) TranslateToChinese(ctx context.Context, title string) (string, error) {
	hits, err := d.Search(ctx, title)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 || hits[0].Title == "" {
		return "", fmt.Errorf("douban found nothing for %v", title)
	}
	return hits[0].Title, nil
}
