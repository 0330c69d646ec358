package sources

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	bahamutBaseURL   = "https://ani.gamer.com.tw"
	bahamutSearchURL = bahamutBaseURL + "/search.php?keyword=%v"
	bahamutDanmuURL  = bahamutBaseURL + "/ajax/danmuGet.php"
)

var bahamutSnRegex = regexp.MustCompile(`sn=(\d+)`)

// Bahamut scrapes ani.gamer.com.tw, the Taiwanese anime platform. The site is
// region locked, so the adapter optionally tunnels through a SOCKS5 proxy.
type Bahamut struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBahamut builds the adapter. socksProxy may be empty (direct connection)
// or a host:port to tunnel through.
func NewBahamut(timeout time.Duration, socksProxy string, logger *zap.Logger) *Bahamut {
	client := newHTTPClient(timeout)
	if socksProxy != "" {
		dialer, err := proxy.SOCKS5("tcp", socksProxy, nil, proxy.Direct)
		if err != nil {
			logger.Warn("Couldn't create SOCKS5 dialer, connecting directly",
				zap.String("proxy", socksProxy), zap.Error(err))
		} else {
			client.Transport = &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					if cd, ok := dialer.(proxy.ContextDialer); ok {
						return cd.DialContext(ctx, network, addr)
					}
					return dialer.Dial(network, addr)
				},
			}
		}
	}
	return &Bahamut{httpClient: client, logger: logger}
}

func (b *Bahamut) Name() string { return "bahamut" }

func (b *Bahamut) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	doc, err := fetchDoc(ctx, b.httpClient, fmt.Sprintf(bahamutSearchURL, url.QueryEscape(keyword)))
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	doc.Find("a.theme-list-main").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(s.Find(".theme-name").Text())
		if title == "" {
			return
		}
		year := 0
		if info := s.Find(".theme-time").Text(); info != "" {
			fmt.Sscanf(strings.TrimSpace(info), "年份：%d", &year)
		}
		imageURL, _ := s.Find("img.theme-img").Attr("data-src")
		if imageURL == "" {
			imageURL, _ = s.Find("img.theme-img").Attr("src")
		}
		out = append(out, RawAnime{
			ID:       strings.TrimPrefix(href, "animeRef.php?sn="),
			Title:    title,
			Year:     year,
			Type:     TypeAnime,
			ImageURL: imageURL,
		})
	})
	return out, nil
}

func (b *Bahamut) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	doc, err := fetchDoc(ctx, b.httpClient, bahamutBaseURL+"/animeRef.php?sn="+id)
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	doc.Find(".season ul li a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		out = append(out, RawEpisode{
			URL:   bahamutBaseURL + "/" + strings.TrimPrefix(href, "?"),
			Title: fmt.Sprintf("第%v集", strings.TrimSpace(s.Text())),
		})
	})
	if len(out) > 0 {
		return out, nil
	}

	// Movies and single-episode shows have no season list; the page itself
	// is the episode.
	if canonical, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		title := strings.TrimSpace(doc.Find(".anime_name h1").Text())
		out = append(out, RawEpisode{URL: canonical, Title: title})
	}
	return out, nil
}

func (b *Bahamut) Comments(ctx context.Context, pageURL string) ([]danmaku.Comment, error) {
	m := bahamutSnRegex.FindStringSubmatch(pageURL)
	if m == nil {
		return nil, fmt.Errorf("couldn't extract sn from %v", pageURL)
	}

	form := url.Values{}
	form.Set("sn", m[1])
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bahamutDanmuURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", bahamutBaseURL)
	res, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't POST danmu request: %w", err)
	}
	defer res.Body.Close()
	body, err := readAll(res.Body)
	if err != nil {
		return nil, err
	}

	var comments []danmaku.Comment
	gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
		// time arrives in deciseconds, color as #rrggbb
		comments = append(comments, danmaku.Comment{
			Time:     item.Get("time").Float() / 10,
			Mode:     bahamutMode(item.Get("position").Int()),
			Color:    parseHexColor(item.Get("color").String()),
			Text:     danmaku.NormalizeText(item.Get("text").String()),
			Platform: b.Name(),
		})
		return true
	})
	return comments, nil
}

func bahamutMode(position int64) int {
	switch position {
	case 1:
		return danmaku.ModeTop
	case 2:
		return danmaku.ModeBottom
	default:
		return danmaku.ModeScroll
	}
}

func parseHexColor(s string) int {
	s = strings.TrimPrefix(s, "#")
	color := 0
	if _, err := fmt.Sscanf(s, "%06x", &color); err != nil {
		return danmaku.ColorWhite
	}
	return color
}
