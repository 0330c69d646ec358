package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	hanjutvBaseURL   = "https://www.hanjutv.com"
	hanjutvSearchURL = hanjutvBaseURL + "/search?wd=%v"
	hanjutvDanmuURL  = hanjutvBaseURL + "/api/danmu/%v"
)

var (
	hanjutvDramaRegex   = regexp.MustCompile(`/drama/(\d+)`)
	hanjutvPlayRegex    = regexp.MustCompile(`/play/(\d+)-(\d+)`)
	hanjutvYearRegex    = regexp.MustCompile(`(19|20)\d{2}`)
)

// Hanjutv scrapes hanjutv.com, the Korean-drama site.
type Hanjutv struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHanjutv(timeout time.Duration, logger *zap.Logger) *Hanjutv {
	return &Hanjutv{httpClient: newHTTPClient(timeout), logger: logger}
}

func (h *Hanjutv) Name() string { return "hanjutv" }

func (h *Hanjutv) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	doc, err := fetchDoc(ctx, h.httpClient, fmt.Sprintf(hanjutvSearchURL, url.QueryEscape(keyword)))
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	doc.Find(".public-list-box").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		m := hanjutvDramaRegex.FindStringSubmatch(href)
		if m == nil {
			return
		}
		title := strings.TrimSpace(s.Find(".time-title").Text())
		if title == "" {
			title = strings.TrimSpace(link.AttrOr("title", ""))
		}
		if title == "" {
			return
		}
		year := 0
		if ym := hanjutvYearRegex.FindString(s.Find(".public-list-subtitle").Text()); ym != "" {
			fmt.Sscanf(ym, "%d", &year)
		}
		imageURL := s.Find("img").AttrOr("data-src", "")
		out = append(out, RawAnime{
			ID:       m[1],
			Title:    title,
			Year:     year,
			Type:     TypeDrama,
			ImageURL: imageURL,
		})
	})
	return out, nil
}

func (h *Hanjutv) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	doc, err := fetchDoc(ctx, h.httpClient, fmt.Sprintf("%v/drama/%v", hanjutvBaseURL, id))
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	doc.Find(".anthology-list-play a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || hanjutvPlayRegex.FindStringSubmatch(href) == nil {
			return
		}
		out = append(out, RawEpisode{
			URL:   hanjutvBaseURL + href,
			Title: strings.TrimSpace(s.Text()),
		})
	})
	return out, nil
}

func (h *Hanjutv) Comments(ctx context.Context, pageURL string) ([]danmaku.Comment, error) {
	m := hanjutvPlayRegex.FindStringSubmatch(pageURL)
	if m == nil {
		return nil, fmt.Errorf("couldn't extract episode from %v", pageURL)
	}
	body, err := fetch(ctx, h.httpClient, fmt.Sprintf(hanjutvDanmuURL, m[1]+"-"+m[2]))
	if err != nil {
		return nil, err
	}
	return danmaku.ParseJSON(body, h.Name()), nil
}
