// Package sources defines the upstream platform contract and the fan-out
// orchestrator that merges their results into the catalog.
package sources

import (
	"context"
	"regexp"
	"strings"

	"github.com/weilazy/danmu-proxy/pkg/danmaku"
)

// Anime types used across sources.
const (
	TypeDrama   = "drama"
	TypeMovie   = "movie"
	TypeVariety = "variety"
	TypeAnime   = "anime"
	TypeOther   = "other"
)

// RawAnime is one search hit in a source's native terms, before
// normalization.
type RawAnime struct {
	ID       string // the source's native ID, opaque
	Title    string
	Year     int
	Type     string // one of the Type* constants
	ImageURL string
	Rating   float64
}

// RawEpisode is one episode in a source's native terms. URL may be an opaque
// provider ID that only the owning source's comment fetcher understands.
type RawEpisode struct {
	URL   string
	Title string
}

// Source is the capability every upstream adapter implements. Search and
// Episodes return empty slices on non-fatal upstream trouble; the
// orchestrator treats errors and empty results the same way and never fails
// the enclosing request over one source.
type Source interface {
	// Name is the stable identifier, e.g. "tencent".
	Name() string
	// Search finds animes matching the keyword.
	Search(ctx context.Context, keyword string) ([]RawAnime, error)
	// Episodes lists the episodes of one anime by its native ID.
	Episodes(ctx context.Context, id string) ([]RawEpisode, error)
	// Comments fetches and normalizes the danmaku stream of one episode URL.
	Comments(ctx context.Context, url string) ([]danmaku.Comment, error)
}

// ShortURLResolver is implemented by sources whose episode URLs may arrive
// shortened (Bilibili's b23.tv).
type ShortURLResolver interface {
	ResolveShortURL(ctx context.Context, shortURL string) (string, error)
}

// urlRegex decides whether a search keyword is really a video page URL.
var urlRegex = regexp.MustCompile(`^(https?://)?([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,6}(:\d+)?(/[^\s]*)?$`)

// IsURL reports whether the keyword looks like a URL rather than a title.
func IsURL(keyword string) bool {
	return strings.Contains(keyword, ".") && urlRegex.MatchString(keyword)
}

// hostPlatforms routes a video URL to the source that owns its comments.
var hostPlatforms = []struct {
	host     string
	platform string
}{
	{"v.qq.com", "tencent"},
	{"iqiyi.com", "iqiyi"},
	{"iq.com", "iqiyi"},
	{"youku.com", "youku"},
	{"bilibili.com", "bilibili"},
	{"b23.tv", "bilibili"},
	{"mgtv.com", "imgo"},
	{"gamer.com.tw", "bahamut"},
	{"rrsp.com.cn", "renren"},
	{"rrmj.tv", "renren"},
	{"hanjutv", "hanjutv"},
}

// PlatformForURL infers the owning platform from a URL's host. The second
// return is false for unrecognized hosts.
func PlatformForURL(url string) (string, bool) {
	for _, entry := range hostPlatforms {
		if strings.Contains(url, entry.host) {
			return entry.platform, true
		}
	}
	return "", false
}
