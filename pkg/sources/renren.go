package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	renrenSearchURL  = "https://api.rrmj.plus/m-station/search/drama?keywords=%v&size=20&order=MATCH&search_after=&isExecuteVipActivity=true"
	renrenDetailURL  = "https://api.rrmj.plus/m-station/drama/page?hsdrOpen=0&isAgeLimit=0&dramaId=%v&hevcOpen=1"
	renrenDanmuURL   = "https://static-dm.rrmj.plus/v1/produce/danmu/EPISODE/%v"
	renrenClientType = "web_pc"
)

var renrenEpisodeRegex = regexp.MustCompile(`/video/(\d+)`)

// Renren covers rrmj.plus / rrsp.com.cn, the subtitle-group streaming site.
type Renren struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRenren(timeout time.Duration, logger *zap.Logger) *Renren {
	return &Renren{httpClient: newHTTPClient(timeout), logger: logger}
}

func (r *Renren) Name() string { return "renren" }

func (r *Renren) headers() []string {
	return []string{
		"clientType", renrenClientType,
		"clientVersion", "1.0.0",
		"deviceId", "danmu-proxy",
		"Referer", "https://rrsp.com.cn/",
	}
}

func (r *Renren) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	result, err := fetchJSON(ctx, r.httpClient, fmt.Sprintf(renrenSearchURL, url.QueryEscape(keyword)), r.headers()...)
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.Get("data.searchDramaList").ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id").String()
		if id == "" {
			return true
		}
		out = append(out, RawAnime{
			ID:       id,
			Title:    stripEmTags(item.Get("title").String()),
			Year:     int(item.Get("year").Int()),
			Type:     TypeDrama,
			ImageURL: item.Get("cover").String(),
			Rating:   item.Get("score").Float(),
		})
		return true
	})
	return out, nil
}

func (r *Renren) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	result, err := fetchJSON(ctx, r.httpClient, fmt.Sprintf(renrenDetailURL, id), r.headers()...)
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	result.Get("data.episodeList").ForEach(func(_, item gjson.Result) bool {
		sid := item.Get("sid").String()
		if sid == "" {
			return true
		}
		title := item.Get("title").String()
		if title == "" {
			title = fmt.Sprintf("第%v集", item.Get("episodeNo").String())
		}
		out = append(out, RawEpisode{
			URL:   fmt.Sprintf("https://rrsp.com.cn/video/%v", sid),
			Title: title,
		})
		return true
	})
	return out, nil
}

func (r *Renren) Comments(ctx context.Context, pageURL string) ([]danmaku.Comment, error) {
	m := renrenEpisodeRegex.FindStringSubmatch(pageURL)
	if m == nil {
		return nil, fmt.Errorf("couldn't extract episode id from %v", pageURL)
	}
	body, err := fetch(ctx, r.httpClient, fmt.Sprintf(renrenDanmuURL, m[1]), r.headers()...)
	if err != nil {
		return nil, err
	}
	return danmaku.ParseJSON(body, r.Name()), nil
}
