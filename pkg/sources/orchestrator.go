package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/danmaku"
	"github.com/weilazy/danmu-proxy/pkg/store"
)

const sourceCallTimeout = 10 * time.Second

// Orchestrator fans a search out to every enabled source, merges the results
// in the configured order, and keeps the catalog and the persistence tier in
// step. One instance per process.
type Orchestrator struct {
	cfg     *config.Registry
	catalog *catalog.Catalog
	db      *store.Store
	sources map[string]Source
	logger  *zap.Logger
	flight  singleflight.Group
}

func NewOrchestrator(cfg *config.Registry, cat *catalog.Catalog, db *store.Store, logger *zap.Logger, srcs ...Source) *Orchestrator {
	byName := make(map[string]Source, len(srcs))
	for _, s := range srcs {
		byName[s.Name()] = s
	}
	return &Orchestrator{
		cfg:     cfg,
		catalog: cat,
		db:      db,
		sources: byName,
		logger:  logger,
	}
}

// Source returns the adapter registered under name.
func (o *Orchestrator) Source(name string) (Source, bool) {
	s, ok := o.sources[name]
	return s, ok
}

// Search runs the full fan-out for a keyword. Concurrent identical searches
// collapse into one upstream round trip. Per-source failures degrade to empty
// results and never fail the request.
func (o *Orchestrator) Search(ctx context.Context, keyword string) ([]*catalog.Anime, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("empty keyword")
	}

	if animes, ok := o.catalog.GetSearchCache(keyword); ok {
		o.logger.Debug("Search cache hit", zap.String("keyword", keyword))
		return animes, nil
	}

	result, err, _ := o.flight.Do(keyword, func() (interface{}, error) {
		return o.searchUpstream(ctx, keyword), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*catalog.Anime), nil
}

func (o *Orchestrator) searchUpstream(ctx context.Context, keyword string) []*catalog.Anime {
	settings := o.cfg.Current()
	derived := o.cfg.Derived()

	var merged []*catalog.Anime
	if IsURL(keyword) {
		merged = o.animeFromURL(keyword)
	} else {
		merged = o.fanOut(ctx, keyword, settings, derived)
	}

	ids := make([]int, 0, len(merged))
	for _, a := range merged {
		ids = append(ids, a.AnimeID)
	}
	o.catalog.StoreAnimeIDs(ids, keyword)

	ttl := time.Duration(settings.SearchCacheMinutes) * time.Minute
	o.catalog.SetSearchCache(keyword, merged, ttl)
	o.db.SaveSnapshot(o.catalog.Export())

	return merged
}

// animeFromURL synthesizes a single-episode anime for a keyword that is
// really a video page URL; no network calls involved.
func (o *Orchestrator) animeFromURL(rawURL string) []*catalog.Anime {
	platform, ok := PlatformForURL(rawURL)
	if !ok {
		platform = "other"
	}
	anime := &catalog.Anime{
		AnimeID:         catalog.AsciiSum(rawURL),
		BangumiID:       rawURL,
		AnimeTitle:      fmt.Sprintf("%v【%v】from %v", rawURL, TypeOther, platform),
		Type:            TypeOther,
		TypeDescription: TypeOther,
		Source:          platform,
		Links: []catalog.Episode{
			{URL: rawURL, Title: fmt.Sprintf("【%v】%v", platform, rawURL)},
		},
	}
	return []*catalog.Anime{o.catalog.AddAnime(anime)}
}

// fanOut queries every enabled source in parallel and merges the raw results
// serially in SOURCE_ORDER, so earlier sources appear first in the response.
func (o *Orchestrator) fanOut(ctx context.Context, keyword string, settings config.Settings, derived *config.Derived) []*catalog.Anime {
	type sourceResult struct {
		name string
		raw  []RawAnime
	}

	enabled := make([]Source, 0, len(derived.SourceOrder))
	for _, name := range derived.SourceOrder {
		if src, ok := o.sources[name]; ok {
			enabled = append(enabled, src)
		}
	}

	resultChan := make(chan sourceResult, len(enabled))
	for _, src := range enabled {
		go func(src Source) {
			callCtx, cancel := context.WithTimeout(ctx, sourceCallTimeout)
			defer cancel()
			raw, err := src.Search(callCtx, keyword)
			if err != nil {
				o.logger.Warn("Source search failed, continuing without it",
					zap.String("source", src.Name()), zap.Error(err))
				raw = nil
			}
			resultChan <- sourceResult{name: src.Name(), raw: raw}
		}(src)
	}

	bySource := make(map[string][]RawAnime, len(enabled))
	for range enabled {
		res := <-resultChan
		bySource[res.name] = res.raw
	}

	var merged []*catalog.Anime
	for _, src := range enabled {
		merged = append(merged, o.handleAnimes(ctx, src, bySource[src.Name()], keyword, settings, derived)...)
	}
	return merged
}

// handleAnimes filters one source's raw hits by title, fetches episode lists,
// normalizes everything into catalog records and registers them. This is the
// serial merge step, so catalog episode IDs are assigned in display order.
func (o *Orchestrator) handleAnimes(ctx context.Context, src Source, raw []RawAnime, query string, settings config.Settings, derived *config.Derived) []*catalog.Anime {
	var out []*catalog.Anime
	for _, ra := range raw {
		if !TitleMatches(ra.Title, query, settings.StrictTitleMatch, 0) {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, sourceCallTimeout)
		episodes, err := src.Episodes(callCtx, ra.ID)
		cancel()
		if err != nil {
			o.logger.Warn("Couldn't list episodes, skipping anime",
				zap.String("source", src.Name()), zap.String("id", ra.ID), zap.Error(err))
			continue
		}

		links := make([]catalog.Episode, 0, len(episodes))
		for _, ep := range episodes {
			if settings.EnableEpisodeFilter && derived.EpisodeFilter != nil && derived.EpisodeFilter.MatchString(ep.Title) {
				continue
			}
			links = append(links, catalog.Episode{
				URL:   ep.URL,
				Title: fmt.Sprintf("【%v】%v", src.Name(), ep.Title),
			})
		}
		if len(links) == 0 {
			continue
		}

		animeType := ra.Type
		if animeType == "" {
			animeType = TypeOther
		}
		anime := &catalog.Anime{
			AnimeID:         catalog.AsciiSum(ra.ID),
			BangumiID:       ra.ID,
			AnimeTitle:      formatAnimeTitle(ra, src.Name()),
			Type:            animeType,
			TypeDescription: animeType,
			ImageURL:        ra.ImageURL,
			Rating:          ra.Rating,
			Source:          src.Name(),
			Links:           links,
		}
		if ra.Year > 0 {
			anime.StartDate = fmt.Sprintf("%d-01-01T00:00:00", ra.Year)
		}
		// On a re-search of a known animeId the catalog hands back the
		// existing record, which is the one carrying the stable episode IDs.
		out = append(out, o.catalog.AddAnime(anime))
	}
	return out
}

func formatAnimeTitle(ra RawAnime, sourceName string) string {
	animeType := ra.Type
	if animeType == "" {
		animeType = TypeOther
	}
	year := ""
	if ra.Year > 0 {
		year = fmt.Sprintf("(%d)", ra.Year)
	}
	return fmt.Sprintf("%v%v【%v】from %v", StripParens(ra.Title), year, animeType, sourceName)
}

// Comments resolves a video URL to its owning source, fetches the raw stream
// and caches it. Short links are expanded first.
func (o *Orchestrator) Comments(ctx context.Context, videoURL string) ([]danmaku.Comment, error) {
	settings := o.cfg.Current()

	if data, ok := o.catalog.GetCommentCache(videoURL); ok {
		var comments []danmaku.Comment
		if err := json.Unmarshal(data, &comments); err == nil {
			o.logger.Debug("Comment cache hit", zap.String("url", videoURL))
			return comments, nil
		}
	}

	platform, ok := PlatformForURL(videoURL)
	if !ok {
		return nil, fmt.Errorf("no source for URL %v", videoURL)
	}
	src, ok := o.sources[platform]
	if !ok {
		return nil, fmt.Errorf("source %v not registered", platform)
	}

	resolvedURL := videoURL
	if resolver, ok := src.(ShortURLResolver); ok && strings.Contains(videoURL, "b23.tv") {
		expanded, err := resolver.ResolveShortURL(ctx, videoURL)
		if err != nil {
			return nil, fmt.Errorf("couldn't resolve short URL %v: %w", videoURL, err)
		}
		resolvedURL = expanded
	}

	comments, err := src.Comments(ctx, resolvedURL)
	if err != nil {
		// Upstream trouble degrades to an empty stream, not a failed request.
		o.logger.Warn("Couldn't fetch comments",
			zap.String("source", platform), zap.String("url", resolvedURL), zap.Error(err))
		return nil, nil
	}

	if data, err := json.Marshal(comments); err == nil {
		ttl := time.Duration(settings.CommentCacheMinutes) * time.Minute
		o.catalog.SetCommentCache(videoURL, data, ttl)
		o.db.SaveSnapshot(o.catalog.Export())
	}
	return comments, nil
}
