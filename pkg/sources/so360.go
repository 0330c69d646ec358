package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	so360SearchURL   = "https://api.so.360kan.com/index?force_v=1&kw=%v&from=&pageno=1&v_ap=1&tab=all"
	so360EpisodesURL = "https://api.so.360kan.com/episodesv2?v_ap=1&s=%v"
)

// platforms 360 links out to, in the order we probe them for episode lists
var so360Sites = []string{"qq", "qiyi", "youku", "imgo", "bilibili1"}

var so360SiteHosts = map[string]string{
	"qq":        "v.qq.com",
	"qiyi":      "iqiyi.com",
	"youku":     "youku.com",
	"imgo":      "mgtv.com",
	"bilibili1": "bilibili.com",
}

type so360Entry struct {
	catID     string
	entID     string
	playlinks map[string]string
}

// So360 wraps the 360kan aggregator. It has no danmaku of its own: its
// episode URLs point at the big platforms and get routed there by host.
type So360 struct {
	httpClient *http.Client
	logger     *zap.Logger

	// search results carry the playlink map the episode listing needs;
	// keyed by entity ID, safe for concurrent searches
	entries sync.Map
}

func NewSo360(timeout time.Duration, logger *zap.Logger) *So360 {
	return &So360{httpClient: newHTTPClient(timeout), logger: logger}
}

func (s *So360) Name() string { return "360" }

func (s *So360) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	result, err := fetchJSON(ctx, s.httpClient, fmt.Sprintf(so360SearchURL, url.QueryEscape(keyword)))
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.Get("data.longData.rows").ForEach(func(_, item gjson.Result) bool {
		entID := item.Get("en_id").String()
		if entID == "" {
			entID = item.Get("id").String()
		}
		if entID == "" {
			return true
		}

		playlinks := map[string]string{}
		item.Get("playlinks").ForEach(func(site, link gjson.Result) bool {
			if link.Type == gjson.String && link.String() != "" {
				playlinks[site.String()] = link.String()
			}
			return true
		})
		if len(playlinks) == 0 {
			return true
		}
		s.entries.Store(entID, so360Entry{
			catID:     item.Get("cat_id").String(),
			entID:     entID,
			playlinks: playlinks,
		})

		year := 0
		fmt.Sscanf(item.Get("year").String(), "%d", &year)
		out = append(out, RawAnime{
			ID:       entID,
			Title:    stripEmTags(item.Get("titleTxt").String()),
			Year:     year,
			Type:     so360Type(item.Get("cat_name").String()),
			ImageURL: item.Get("cover").String(),
		})
		return true
	})
	return out, nil
}

func (s *So360) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	value, ok := s.entries.Load(id)
	if !ok {
		return nil, fmt.Errorf("unknown 360 entity %v, search first", id)
	}
	entry := value.(so360Entry)

	// Series get a real per-site episode list; everything else falls back to
	// one link per platform.
	for _, site := range so360Sites {
		if _, ok := entry.playlinks[site]; !ok {
			continue
		}
		episodes, err := s.siteEpisodes(ctx, entry, site)
		if err != nil {
			s.logger.Debug("Couldn't list 360 episodes",
				zap.String("entity", id), zap.String("site", site), zap.Error(err))
			continue
		}
		if len(episodes) > 0 {
			return episodes, nil
		}
	}

	var out []RawEpisode
	for _, site := range so360Sites {
		if link, ok := entry.playlinks[site]; ok {
			out = append(out, RawEpisode{URL: link, Title: "正片"})
		}
	}
	return out, nil
}

func (s *So360) siteEpisodes(ctx context.Context, entry so360Entry, site string) ([]RawEpisode, error) {
	selector, _ := json.Marshal([]map[string]string{{
		"cat_id": entry.catID,
		"ent_id": entry.entID,
		"site":   site,
	}})
	result, err := fetchJSON(ctx, s.httpClient, fmt.Sprintf(so360EpisodesURL, url.QueryEscape(string(selector))))
	if err != nil {
		return nil, err
	}

	host := so360SiteHosts[site]
	var out []RawEpisode
	result.Get("data.0.seriesHTML.seriesPlaylinks").ForEach(func(_, item gjson.Result) bool {
		link := item.Get("url").String()
		if link == "" || (host != "" && !strings.Contains(link, host)) {
			return true
		}
		title := item.Get("name").String()
		if title == "" {
			title = fmt.Sprintf("第%v集", len(out)+1)
		}
		out = append(out, RawEpisode{URL: link, Title: title})
		return true
	})
	return out, nil
}

// Comments never routes here: 360's episode URLs belong to other platforms.
func (s *So360) Comments(ctx context.Context, url string) ([]danmaku.Comment, error) {
	return nil, fmt.Errorf("360 has no danmaku stream of its own")
}

func so360Type(catName string) string {
	switch catName {
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
