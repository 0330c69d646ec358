package sources

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	youkuSearchURL = "https://search.youku.com/api/search?keyword=%v"
	youkuShowURL   = "https://openapi.youku.com/v2/shows/videos.json?client_id=53e6cc67237fc59a&package=com.huawei.hwvplayer.youku&ext=show&show_id=%v"
	youkuTokenURL  = "https://acs.youku.com/h5/mtop.com.youku.aplatform.weakget/1.0/?jsv=2.5.1&appKey=" + youkuAppKey
	youkuDanmuURL  = "https://acs.youku.com/h5/mopen.youku.danmu.list/1.0/"
	youkuAppKey    = "24679788"

	youkuWaveDelay = 100 * time.Millisecond
)

var youkuVidRegex = regexp.MustCompile(`id_([a-zA-Z0-9=]+)`)

// Youku searches youku.com and fetches danmaku through the signed mtop
// gateway: a token handshake first, then per-minute segments in bounded
// concurrent waves.
type Youku struct {
	cfg        *config.Registry
	httpClient *http.Client
	logger     *zap.Logger

	tokenMu    sync.Mutex
	token      string
	tokenEnc   string
	cookie     string
	tokenFetch time.Time
}

func NewYouku(cfg *config.Registry, timeout time.Duration, logger *zap.Logger) *Youku {
	client := newHTTPClient(timeout)
	// The handshake relies on Set-Cookie round trips; don't follow redirects
	// into the anti-bot interstitial.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Youku{cfg: cfg, httpClient: client, logger: logger}
}

func (y *Youku) Name() string { return "youku" }

func (y *Youku) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	result, err := fetchJSON(ctx, y.httpClient, fmt.Sprintf(youkuSearchURL, url.QueryEscape(keyword)))
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.Get("pageComponentList").ForEach(func(_, item gjson.Result) bool {
		doc := item.Get("commonData")
		showID := doc.Get("showId").String()
		if showID == "" {
			return true
		}
		year := 0
		if feature := doc.Get("feature").String(); len(feature) >= 4 {
			fmt.Sscanf(feature[:4], "%d", &year)
		}
		out = append(out, RawAnime{
			ID:       showID,
			Title:    stripEmTags(doc.Get("titleDTO.displayName").String()),
			Year:     year,
			Type:     youkuType(doc.Get("cats").String()),
			ImageURL: doc.Get("posterDTO.vThumbUrl").String(),
		})
		return true
	})
	return out, nil
}

func (y *Youku) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	result, err := fetchJSON(ctx, y.httpClient, fmt.Sprintf(youkuShowURL, id))
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	result.Get("videos").ForEach(func(_, item gjson.Result) bool {
		link := item.Get("link").String()
		if link == "" {
			link = fmt.Sprintf("https://v.youku.com/v_show/id_%v.html", item.Get("id").String())
		}
		out = append(out, RawEpisode{
			URL:   link,
			Title: item.Get("title").String(),
		})
		return true
	})
	return out, nil
}

func (y *Youku) Comments(ctx context.Context, pageURL string) ([]danmaku.Comment, error) {
	m := youkuVidRegex.FindStringSubmatch(pageURL)
	if m == nil {
		return nil, fmt.Errorf("couldn't extract vid from %v", pageURL)
	}
	vid := m[1]

	duration, err := y.videoDuration(ctx, pageURL)
	if err != nil {
		// Without a duration, probe a generous fixed window.
		duration = 120 * 60
	}
	totalMinutes := duration/60 + 1

	if err := y.ensureToken(ctx); err != nil {
		return nil, err
	}

	concurrency := y.cfg.Current().YoukuConcurrency
	var (
		mu       sync.Mutex
		comments []danmaku.Comment
	)
	// Batched waves: one errgroup per chunk of minutes, a short breather
	// between chunks so the gateway doesn't throttle us.
	for start := 0; start < totalMinutes; start += concurrency {
		end := start + concurrency
		if end > totalMinutes {
			end = totalMinutes
		}
		g, waveCtx := errgroup.WithContext(ctx)
		for minute := start; minute < end; minute++ {
			minute := minute
			g.Go(func() error {
				segment, err := y.fetchMinute(waveCtx, vid, minute)
				if err != nil {
					y.logger.Debug("Couldn't fetch danmu minute",
						zap.String("vid", vid), zap.Int("minute", minute), zap.Error(err))
					return nil
				}
				mu.Lock()
				comments = append(comments, segment...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return comments, err
		}
		if end < totalMinutes {
			time.Sleep(youkuWaveDelay)
		}
	}
	return comments, nil
}

// videoDuration scrapes the seconds count out of the episode page meta data.
func (y *Youku) videoDuration(ctx context.Context, pageURL string) (int, error) {
	body, err := fetch(ctx, y.httpClient, pageURL)
	if err != nil {
		return 0, err
	}
	m := regexp.MustCompile(`"seconds":"?(\d+)`).FindSubmatch(body)
	if m == nil {
		return 0, fmt.Errorf("couldn't find duration in %v", pageURL)
	}
	seconds := 0
	fmt.Sscanf(string(m[1]), "%d", &seconds)
	return seconds, nil
}

// ensureToken performs the mtop handshake once and caches the _m_h5_tk pair
// for 20 minutes.
func (y *Youku) ensureToken(ctx context.Context) error {
	y.tokenMu.Lock()
	defer y.tokenMu.Unlock()
	if y.token != "" && time.Since(y.tokenFetch) < 20*time.Minute {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, youkuTokenURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't perform token handshake: %w", err)
	}
	defer res.Body.Close()

	var cookies []string
	for _, c := range res.Cookies() {
		switch c.Name {
		case "_m_h5_tk":
			y.token = strings.SplitN(c.Value, "_", 2)[0]
			cookies = append(cookies, c.Name+"="+c.Value)
		case "_m_h5_tk_enc":
			y.tokenEnc = c.Value
			cookies = append(cookies, c.Name+"="+c.Value)
		}
	}
	if y.token == "" {
		return fmt.Errorf("token handshake returned no _m_h5_tk cookie")
	}
	y.cookie = strings.Join(cookies, "; ")
	y.tokenFetch = time.Now()
	return nil
}

// fetchMinute fetches one 60-second danmaku segment through the signed
// gateway. sign = md5(token & timestamp & appKey & data).
func (y *Youku) fetchMinute(ctx context.Context, vid string, minute int) ([]danmaku.Comment, error) {
	msg := map[string]interface{}{
		"ctime":  time.Now().UnixMilli(),
		"ctype":  10004,
		"cver":   "v1.0",
		"guid":   "0",
		"mat":    minute,
		"mcount": 1,
		"pid":    0,
		"sver":   "3.1.0",
		"type":   1,
		"vid":    vid,
	}
	msgJSON, _ := json.Marshal(msg)
	msgEnc := base64.StdEncoding.EncodeToString(msgJSON)
	msg["msg"] = msgEnc
	msg["sign"] = md5Hex(msgEnc + "MkmC9SoIw6xCkSKHhJ7b5D2r51kBiREr")
	dataJSON, _ := json.Marshal(msg)

	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	sign := md5Hex(strings.Join([]string{y.token, timestamp, youkuAppKey, string(dataJSON)}, "&"))

	form := url.Values{}
	form.Set("data", string(dataJSON))
	reqURL := fmt.Sprintf("%v?jsv=2.5.6&appKey=%v&t=%v&sign=%v&api=mopen.youku.danmu.list&v=1.0&type=originaljson&dataType=jsonp&timeout=20000&jsonpIncPrefix=utility",
		youkuDanmuURL, youkuAppKey, timestamp, sign)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "https://v.youku.com")
	req.Header.Set("Cookie", y.cookie)
	res, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't POST danmu segment: %w", err)
	}
	defer res.Body.Close()
	body, err := readAll(res.Body)
	if err != nil {
		return nil, err
	}

	inner := gjson.GetBytes(body, "data.result")
	if !inner.Exists() {
		return nil, fmt.Errorf("danmu response carries no result: %v", gjson.GetBytes(body, "ret").String())
	}
	var comments []danmaku.Comment
	gjson.Parse(inner.String()).Get("data.result").ForEach(func(_, item gjson.Result) bool {
		c, ok := danmaku.ParseObject(item, y.Name())
		if ok {
			comments = append(comments, c)
		}
		return true
	})
	return comments, nil
}

func md5Hex(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

func youkuType(cats string) string {
	switch cats {
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
