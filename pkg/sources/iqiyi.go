package sources

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

const (
	iqiyiSearchURL = "https://search.video.iqiyi.com/o?if=html5&key=%v&pageNum=1&pageSize=20"
	iqiyiAlbumURL  = "https://pcw-api.iqiyi.com/albums/album/avlistinfo?aid=%v&page=1&size=200"
	// Danmaku arrives as zlib-deflated XML in 300-second segments.
	iqiyiBulletURL = "https://cmts.iqiyi.com/bullet/%v/%v/%v_300_%v.z"
)

var iqiyiTvidRegex = regexp.MustCompile(`"tvId":\s*(\d+)`)

// Iqiyi searches iqiyi.com and fetches its zlib-compressed bullet segments.
type Iqiyi struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewIqiyi(timeout time.Duration, logger *zap.Logger) *Iqiyi {
	return &Iqiyi{httpClient: newHTTPClient(timeout), logger: logger}
}

func (i *Iqiyi) Name() string { return "iqiyi" }

func (i *Iqiyi) Search(ctx context.Context, keyword string) ([]RawAnime, error) {
	result, err := fetchJSON(ctx, i.httpClient, fmt.Sprintf(iqiyiSearchURL, url.QueryEscape(keyword)))
	if err != nil {
		return nil, err
	}

	var out []RawAnime
	result.Get("data.docinfos").ForEach(func(_, item gjson.Result) bool {
		doc := item.Get("albumDocInfo")
		albumID := doc.Get("albumId").String()
		// Entries without an album are loose videos, not series.
		if albumID == "" || albumID == "0" {
			return true
		}
		out = append(out, RawAnime{
			ID:       albumID,
			Title:    stripEmTags(doc.Get("albumTitle").String()),
			Year:     int(doc.Get("releaseDate").Int() / 10000),
			Type:     iqiyiType(doc.Get("channel").String()),
			ImageURL: doc.Get("albumImg").String(),
			Rating:   doc.Get("score").Float(),
		})
		return true
	})
	return out, nil
}

func (i *Iqiyi) Episodes(ctx context.Context, id string) ([]RawEpisode, error) {
	result, err := fetchJSON(ctx, i.httpClient, fmt.Sprintf(iqiyiAlbumURL, id))
	if err != nil {
		return nil, err
	}

	var out []RawEpisode
	result.Get("data.epsodelist").ForEach(func(_, item gjson.Result) bool {
		playURL := item.Get("playUrl").String()
		if playURL == "" {
			return true
		}
		title := item.Get("subtitle").String()
		if title == "" {
			title = fmt.Sprintf("第%v集", item.Get("order").Int())
		}
		out = append(out, RawEpisode{URL: playURL, Title: title})
		return true
	})
	return out, nil
}

func (i *Iqiyi) Comments(ctx context.Context, pageURL string) ([]danmaku.Comment, error) {
	tvid, err := i.resolveTvid(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if len(tvid) < 4 {
		return nil, fmt.Errorf("tvid %v too short", tvid)
	}
	dir1, dir2 := tvid[len(tvid)-4:len(tvid)-2], tvid[len(tvid)-2:]

	var comments []danmaku.Comment
	// Segments are numbered from 1; a missing segment ends the stream.
	for page := 1; page <= 200; page++ {
		segURL := fmt.Sprintf(iqiyiBulletURL, dir1, dir2, tvid, page)
		data, err := i.fetchBullet(ctx, segURL)
		if err != nil {
			break
		}
		segment, err := danmaku.ParseXML(data, i.Name())
		if err != nil {
			i.logger.Debug("Couldn't parse bullet segment", zap.String("url", segURL), zap.Error(err))
			break
		}
		if len(segment) == 0 {
			break
		}
		comments = append(comments, segment...)
	}
	return comments, nil
}

// resolveTvid loads the episode page and scrapes the numeric tvid out of the
// embedded player state.
func (i *Iqiyi) resolveTvid(ctx context.Context, pageURL string) (string, error) {
	body, err := fetch(ctx, i.httpClient, pageURL)
	if err != nil {
		return "", err
	}
	m := iqiyiTvidRegex.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("couldn't find tvid in %v", pageURL)
	}
	return string(m[1]), nil
}

func (i *Iqiyi) fetchBullet(ctx context.Context, url string) ([]byte, error) {
	raw, err := fetch(ctx, i.httpClient, url)
	if err != nil {
		return nil, err
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("couldn't open zlib stream of %v: %w", url, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("couldn't inflate %v: %w", url, err)
	}
	return data, nil
}

func iqiyiType(channel string) string {
	switch channel {
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
