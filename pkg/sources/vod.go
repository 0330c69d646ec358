package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

// VOD aggregates a configurable family of Apple-CMS style collection sites
// (VOD_SERVERS). Their listings carry play URLs on the big platforms, so the
// episodes route to those platforms' danmaku by host. VOD_RETURN_MODE picks
// between merging every server's answer and taking the fastest one.
type VOD struct {
	cfg    *config.Registry
	logger *zap.Logger
}

func NewVOD(cfg *config.Registry, logger *zap.Logger) *VOD {
	return &VOD{cfg: cfg, logger: logger}
}

func (v *VOD) Name() string { return "vod" }

func (v *VOD) client() *http.Client {
	timeout := time.Duration(v.cfg.Current().VodRequestTimeout) * time.Millisecond
	return newHTTPClient(timeout)
}

func (v *VOD) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	servers := v.cfg.Derived().VODServers
	if len(servers) == 0 {
		return nil, nil
	}
	client := v.client()
	fastest := v.cfg.Current().VodReturnMode == "fastest"

	type serverResult struct {
		index int
		hits  []RawAnime
	}
	resultChan := make(chan serverResult, len(servers))
	for i, server := range servers {
		go func(index int, server config.VODServer) {
			hits, err := v.searchServer(ctx, client, server, keyword)
			if err != nil {
				v.logger.Debug("VOD server search failed",
					zap.String("server", server.Name), zap.Error(err))
			}
			resultChan <- serverResult{index: index, hits: hits}
		}(i, server)
	}

	byIndex := make([][]RawAnime, len(servers))
	for range servers {
		res := <-resultChan
		byIndex[res.index] = res.hits
		if fastest && len(res.hits) > 0 {
			return res.hits, nil
		}
	}

	var out []RawAnime
	for _, hits := range byIndex {
		out = append(out, hits...)
	}
	return out, nil
}

func (v *VOD) searchServer(ctx context.Context, client *http.Client, server config.VODServer, keyword string) ([]RawAnime, error) {
	reqURL := fmt.Sprintf("%v/api.php/provide/vod/?ac=detail&wd=%v", strings.TrimSuffix(server.URL, "/"), url.QueryEscape(keyword))
	result, err := fetchJSON(ctx, client, reqURL)
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.Get("list").ForEach(func(_, item gjson.Result) bool {
		vodID := item.Get("vod_id").String()
		if vodID == "" {
			return true
		}
		year := 0
		fmt.Sscanf(item.Get("vod_year").String(), "%d", &year)
		out = append(out, RawAnime{
			// the owning server rides along in the ID
			ID:       server.Name + "|" + vodID,
			Title:    stripEmTags(item.Get("vod_name").String()),
			Year:     year,
			Type:     vodType(item.Get("type_name").String()),
			ImageURL: item.Get("vod_pic").String(),
		})
		return true
	})
	return out, nil
}

func (v *VOD) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	parts := strings.SplitN(id, "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed vod id %v", id)
	}
	serverName, vodID := parts[0], parts[1]

	var server *config.VODServer
	for i, s := range v.cfg.Derived().VODServers {
		if s.Name == serverName {
			server = &v.cfg.Derived().VODServers[i]
			break
		}
	}
	if server == nil {
		return nil, fmt.Errorf("vod server %v no longer configured", serverName)
	}

	reqURL := fmt.Sprintf("%v/api.php/provide/vod/?ac=detail&ids=%v", strings.TrimSuffix(server.URL, "/"), url.QueryEscape(vodID))
	result, err := fetchJSON(ctx, v.client(), reqURL)
	if err != nil {
		return nil, err
	}

	item := result.Get("list.0")
	if !item.Exists() {
		return nil, fmt.Errorf("vod server %v has no entry %v", serverName, vodID)
	}
	return parsePlayURL(item.Get("vod_play_url").String()), nil
}

// parsePlayURL unpacks the Apple-CMS play list encoding: play groups joined
// by $$$, episodes by #, each episode "title$url". Only groups whose URLs we
// can route to a danmaku platform survive.
func parsePlayURL(playURL string) []RawEpisode {
	groups := strings.Split(playURL, "$$$")

	var out []RawEpisode
	for _, group := range groups {
		var groupEpisodes []RawEpisode
		routable := false
		for _, episode := range strings.Split(group, "#") {
			parts := strings.SplitN(episode, "$", 2)
			if len(parts) != 2 || parts[1] == "" {
				continue
			}
			if _, ok := PlatformForURL(parts[1]); ok {
				routable = true
			}
			groupEpisodes = append(groupEpisodes, RawEpisode{URL: parts[1], Title: parts[0]})
		}
		if routable {
			out = append(out, groupEpisodes...)
		}
	}
	return out
}

// Comments never routes here: VOD episode URLs belong to other platforms.
func (v *VOD) Comments(ctx context.Context, url string) ([]danmaku.Comment, error) {
	return nil, fmt.Errorf("vod has no danmaku stream of its own")
}

func vodType(typeName string) string {
	switch {
	case strings.Contains(typeName, "剧"):
		return TypeDrama
	case strings.Contains(typeName, "电影"), strings.Contains(typeName, "片"):
		return TypeMovie
	case strings.Contains(typeName, "综艺"):
		return TypeVariety
	case strings.Contains(typeName, "动漫"), strings.Contains(typeName, "动画"):
		return TypeAnime
	default:
		return TypeOther
	}
}
