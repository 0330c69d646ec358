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
	mangoSearchURL = "https://mobileso.bz.mgtv.com/msite/search/v2?q=%v&pc=30&pn=1"
	mangoListURL   = "https://pcweb.api.mgtv.com/episode/list?video_id=%v&page=1&size=100"
	mangoInfoURL   = "https://pcweb.api.mgtv.com/video/info?vid=%v"
	mangoDanmuURL  = "https://galaxy.bz.mgtv.com/rdbarrage?vid=%v&cid=%v&time=%v"
)

var mangoURLRegex = regexp.MustCompile(`mgtv\.com/b/(\d+)/(\d+)\.html`)

// Mango searches mgtv.com ("imgo") and fetches its per-minute barrage JSON.
type Mango struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewMango(timeout time.Duration, logger *zap.Logger) *Mango {
	return &Mango{httpClient: newHTTPClient(timeout), logger: logger}
}

func (m *Mango) Name() string { return "imgo" }

func (m *Mango) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	result, err := fetchJSON(ctx, m.httpClient, fmt.Sprintf(mangoSearchURL, url.QueryEscape(keyword)))
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.Get("data.contents").ForEach(func(_, content gjson.Result) bool {
		if content.Get("type").String() != "media" {
			return true
		}
		content.Get("data").ForEach(func(_, item gjson.Result) bool {
			// The playable ID hides in the first source's URL.
			playURL := item.Get("yearList.0.sourceList.0.url").String()
			if playURL == "" {
				playURL = item.Get("url").String()
			}
			um := mangoURLRegex.FindStringSubmatch(playURL)
			if um == nil {
				return true
			}
			out = append(out, RawAnime{
				ID:       um[2],
				Title:    stripEmTags(item.Get("title").String()),
				Year:     int(item.Get("year").Int()),
				Type:     mangoType(item.Get("typeName").String()),
				ImageURL: item.Get("img").String(),
			})
			return true
		})
		return true
	})
	return out, nil
}

func (m *Mango) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	result, err := fetchJSON(ctx, m.httpClient, fmt.Sprintf(mangoListURL, id))
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	result.Get("data.list").ForEach(func(_, item gjson.Result) bool {
		videoURL := item.Get("url").String()
		if videoURL == "" {
			return true
		}
		title := item.Get("t2").String()
		if title == "" {
			title = item.Get("t1").String()
		}
		out = append(out, RawEpisode{
			URL:   "https://www.mgtv.com" + videoURL,
			Title: title,
		})
		return true
	})
	return out, nil
}

func (m *Mango) Comments(ctx context.Context, pageURL string) ([]danmaku.Comment, error) {
	um := mangoURLRegex.FindStringSubmatch(pageURL)
	if um == nil {
		return nil, fmt.Errorf("couldn't extract cid/vid from %v", pageURL)
	}
	cid, vid := um[1], um[2]

	info, err := fetchJSON(ctx, m.httpClient, fmt.Sprintf(mangoInfoURL, vid))
	if err != nil {
		return nil, err
	}
	totalMinutes := int(info.Get("data.info.time_length").Int())/60 + 1
	if totalMinutes <= 1 {
		totalMinutes = 120
	}

	var comments []danmaku.Comment
	for minute := 0; minute < totalMinutes; minute++ {
		seg, err := fetchJSON(ctx, m.httpClient, fmt.Sprintf(mangoDanmuURL, vid, cid, minute*60*1000))
		if err != nil {
			m.logger.Debug("Couldn't fetch barrage minute",
				zap.String("vid", vid), zap.Int("minute", minute), zap.Error(err))
			break
		}
		items := seg.Get("data.items")
		if !items.Exists() || len(items.Array()) == 0 {
			continue
		}
		items.ForEach(func(_, item gjson.Result) bool {
			c, ok := danmaku.ParseObject(item, m.Name())
			if ok {
				comments = append(comments, c)
			}
			return true
		})
	}
	return comments, nil
}

func mangoType(typeName string) string {
	switch typeName {
	case "电视剧":
		return TypeDrama
	case "电影":
		return TypeMovie
	case "综艺":
		return TypeVariety
	case "动漫":
		return TypeAnime
	default:
		return TypeOther
	}
}
