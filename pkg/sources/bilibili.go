package sources

import (
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	bilibiliSearchURL = "https://api.bilibili.com/x/web-interface/search/type?search_type=media_ft&keyword=%v"
	bilibiliBangumiURL = "https://api.bilibili.com/x/web-interface/search/type?search_type=media_bangumi&keyword=%v"
	bilibiliSeasonURL = "https://api.bilibili.com/pgc/view/web/season?season_id=%v"
	bilibiliViewURL   = "https://api.bilibili.com/x/web-interface/view?bvid=%v"
	bilibiliDanmuURL  = "https://comment.bilibili.com/%v.xml"
)

var (
	bilibiliBvidRegex = regexp.MustCompile(`(BV[a-zA-Z0-9]+)`)
	bilibiliEpRegex   = regexp.MustCompile(`/bangumi/play/(ep|ss)(\d+)`)
	bilibiliPageRegex = regexp.MustCompile(`[?&]p=(\d+)`)
)

// Bilibili searches both the bangumi and the film index and fetches the
// deflate-compressed danmaku XML. Search quality improves a lot with a logged
// in SESSDATA cookie, configured via BILIBILI_COOKIE.
type Bilibili struct {
	cfg        *config.Registry
	httpClient *http.Client
	logger     *zap.Logger
}

func NewBilibili(cfg *config.Registry, timeout time.Duration, logger *zap.Logger) *Bilibili {
	return &Bilibili{cfg: cfg, httpClient: newHTTPClient(timeout), logger: logger}
}

func (b *Bilibili) Name() string { return "bilibili" }

func (b *Bilibili) headers() []string {
	h := []string{"Referer", "https://www.bilibili.com/"}
	if cookie := b.cfg.Current().BilibiliCookie; cookie != "" {
		h = append(h, "Cookie", cookie)
	}
	return h
}

func (b *Bilibili) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	escaped := url.QueryEscape(keyword)
	var out []RawAnime
	for _, searchURL := range []string{
		fmt.Sprintf(bilibiliBangumiURL, escaped),
		fmt.Sprintf(bilibiliSearchURL, escaped),
	} {
		result, err := fetchJSON(ctx, b.httpClient, searchURL, b.headers()...)
		if err != nil {
			return out, err
		}
		result.Get("data.result").ForEach(func(_, item gjson.Result) bool {
			seasonID := item.Get("season_id").String()
			if seasonID == "" || seasonID == "0" {
				return true
			}
			year := 0
			if pubtime := item.Get("pubtime").Int(); pubtime > 0 {
				year = time.Unix(pubtime, 0).Year()
			}
			out = append(out, RawAnime{
				ID:       seasonID,
				Title:    stripEmTags(item.Get("title").String()),
				Year:     year,
				Type:     bilibiliType(item.Get("season_type_name").String()),
				ImageURL: item.Get("cover").String(),
				Rating:   item.Get("media_score.score").Float(),
			})
			return true
		})
	}
	return out, nil
}

func (b *Bilibili) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	result, err := fetchJSON(ctx, b.httpClient, fmt.Sprintf(bilibiliSeasonURL, id), b.headers()...)
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	result.Get("result.episodes").ForEach(func(_, item gjson.Result) bool {
		link := item.Get("link").String()
		if link == "" {
			return true
		}
		title := item.Get("long_title").String()
		if title == "" {
			title = item.Get("title").String()
		}
		out = append(out, RawEpisode{URL: link, Title: title})
		return true
	})
	return out, nil
}

func (b *Bilibili) Comments(ctx context.Context, pageURL string) ([]danmaku.Comment, error) {
	cid, err := b.resolveCid(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	raw, err := fetch(ctx, b.httpClient, fmt.Sprintf(bilibiliDanmuURL, cid), b.headers()...)
	if err != nil {
		return nil, err
	}
	// comment.bilibili.com serves raw deflate without a zlib header.
	if inflated, err := inflate(raw); err == nil {
		raw = inflated
	}
	return danmaku.ParseXML(raw, b.Name())
}

// ResolveShortURL expands a b23.tv link by following its redirect.
func (b *Bilibili) ResolveShortURL(ctx context.Context, shortURL string) (string, error) {
	client := &http.Client{
		Timeout: b.httpClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't follow short URL %v: %w", shortURL, err)
	}
	defer res.Body.Close()
	location := res.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("short URL %v didn't redirect", shortURL)
	}
	return location, nil
}

// resolveCid maps a play URL (video page or bangumi episode) to the cid of
// the danmaku stream.
func (b *Bilibili) resolveCid(ctx context.Context, pageURL string) (string, error) {
	if m := bilibiliEpRegex.FindStringSubmatch(pageURL); m != nil {
		return b.cidFromBangumi(ctx, m[1], m[2])
	}
	m := bilibiliBvidRegex.FindStringSubmatch(pageURL)
	if m == nil {
		return "", fmt.Errorf("couldn't extract bvid from %v", pageURL)
	}
	result, err := fetchJSON(ctx, b.httpClient, fmt.Sprintf(bilibiliViewURL, m[1]), b.headers()...)
	if err != nil {
		return "", err
	}

	page := int64(1)
	if pm := bilibiliPageRegex.FindStringSubmatch(pageURL); pm != nil {
		fmt.Sscanf(pm[1], "%d", &page)
	}
	pages := result.Get("data.pages").Array()
	if page >= 1 && int(page) <= len(pages) {
		return pages[page-1].Get("cid").String(), nil
	}
	cid := result.Get("data.cid").String()
	if cid == "" {
		return "", fmt.Errorf("view API returned no cid for %v", pageURL)
	}
	return cid, nil
}

func (b *Bilibili) cidFromBangumi(ctx context.Context, kind, id string) (string, error) {
	var seasonURL string
	if kind == "ss" {
		seasonURL = fmt.Sprintf(bilibiliSeasonURL, id)
	} else {
		seasonURL = "https://api.bilibili.com/pgc/view/web/season?ep_id=" + id
	}
	result, err := fetchJSON(ctx, b.httpClient, seasonURL, b.headers()...)
	if err != nil {
		return "", err
	}
	cid := ""
	result.Get("result.episodes").ForEach(func(_, item gjson.Result) bool {
		// For a season link the first episode wins; for an ep link we need
		// the matching one.
		if kind == "ss" || item.Get("id").String() == id {
			cid = item.Get("cid").String()
			return false
		}
		return true
	})
	if cid == "" {
		return "", fmt.Errorf("season API returned no cid for %v%v", kind, id)
	}
	return cid, nil
}

func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

func bilibiliType(typeName string) string {
	switch typeName {
	case "番剧", "国创":
		return TypeAnime
	case "电影":
		return TypeMovie
	case "电视剧":
		return TypeDrama
	case "综艺":
		return TypeVariety
	default:
		return TypeOther
	}
}
