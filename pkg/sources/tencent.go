package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	tencentSearchURL  = "https://pbaccess.video.qq.com/trpc.videosearch.mobile_search.MultiTerminalSearch/MbSearch?vplatform=2"
	tencentDetailURL  = "https://pbaccess.video.qq.com/trpc.universal_backend_service.page_server_rpc.PageServer/GetPageData?video_appid=3000010"
	tencentBarrageURL = "https://dm.video.qq.com/barrage/segment/%v/%v"
	tencentIndexURL   = "https://dm.video.qq.com/barrage/base/%v"
)

var tencentVidRegex = regexp.MustCompile(`/([a-zA-Z0-9]+)\.html`)

// Tencent searches v.qq.com and fetches its segmented barrage streams.
type Tencent struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewTencent(timeout time.Duration, logger *zap.Logger) *Tencent {
	return &Tencent{httpClient: newHTTPClient(timeout), logger: logger}
}

func (t *Tencent) Name() string { return "tencent" }

func (t *Tencent) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"version":  "",
		"query":    keyword,
		"filterValue": "firstTabid=150",
		"retry":    0,
		"pagenum":  0,
		"pagesize": 20,
	})
	body, err := t.post(ctx, tencentSearchURL, payload)
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result := gjson.ParseBytes(body)
	result.Get("data.normalList.itemList").ForEach(func(_, item gjson.Result) bool {
		doc := item.Get("videoInfo")
		cid := doc.Get("coverId").String()
		if cid == "" {
			return true
		}
		out = append(out, RawAnime{
			ID:       cid,
			Title:    stripEmTags(doc.Get("title").String()),
			Year:     int(doc.Get("year").Int()),
			Type:     tencentType(doc.Get("typeName").String()),
			ImageURL: doc.Get("imgUrl").String(),
			Rating:   doc.Get("score.score").Float(),
		})
		return true
	})
	return out, nil
}

func (t *Tencent) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"page_params": map[string]string{
			"req_from":     "web_vsite",
			"page_id":      "vsite_episode_list",
			"page_type":    "detail_operation",
			"id_type":      "1",
			"cid":          id,
			"page_size":    "100",
			"page_context": "",
		},
	})
	body, err := t.post(ctx, tencentDetailURL, payload)
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	result := gjson.ParseBytes(body)
	result.Get("data.module_list_datas.0.module_datas.0.item_data_lists.item_datas").ForEach(func(_, item gjson.Result) bool {
		params := item.Get("item_params")
		vid := params.Get("vid").String()
		if vid == "" || params.Get("is_trailer").String() == "1" {
			return true
		}
		title := params.Get("play_title").String()
		if title == "" {
			title = params.Get("title").String()
		}
		out = append(out, RawEpisode{
			URL:   fmt.Sprintf("https://v.qq.com/x/cover/%v/%v.html", id, vid),
			Title: title,
		})
		return true
	})
	return out, nil
}

func (t *Tencent) Comments(ctx context.Context, url string) ([]danmaku.Comment, error) {
	m := tencentVidRegex.FindStringSubmatch(url)
	if m == nil {
		return nil, fmt.Errorf("couldn't extract vid from %v", url)
	}
	vid := m[1]

	index, err := fetchJSON(ctx, t.httpClient, fmt.Sprintf(tencentIndexURL, vid))
	if err != nil {
		return nil, err
	}

	var comments []danmaku.Comment
	index.Get("segment_index").ForEach(func(_, seg gjson.Result) bool {
		name := seg.Get("segment_name").String()
		if name == "" {
			return true
		}
		segData, err := fetchJSON(ctx, t.httpClient, fmt.Sprintf(tencentBarrageURL, vid, name))
		if err != nil {
			t.logger.Debug("Couldn't fetch barrage segment", zap.String("vid", vid), zap.Error(err))
			return true
		}
		segData.Get("barrage_list").ForEach(func(_, item gjson.Result) bool {
			c, ok := danmaku.ParseObject(item, t.Name())
			if ok {
				comments = append(comments, c)
			}
			return true
		})
		return true
	})
	return comments, nil
}

func (t *Tencent) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("couldn't create request for %v: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", "https://v.qq.com/")
	res, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't POST %v: %w", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad POST response for %v: %v", url, res.StatusCode)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, fmt.Errorf("couldn't read response body of %v: %w", url, err)
	}
	return buf.Bytes(), nil
}

func tencentType(typeName string) string {
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

var emTagRegex = regexp.MustCompile(`</?em[^>]*>`)

func stripEmTags(s string) string {
	return strings.TrimSpace(emTagRegex.ReplaceAllString(s, ""))
}
