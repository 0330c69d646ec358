package match

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/sources"
)

// Searcher is the slice of the orchestrator the engine needs.
type Searcher interface {
	Search(ctx context.Context, keyword string) ([]*catalog.Anime, error)
}

// Match is one resolved (anime, episode) pair in the response shape the
// player expects.
type Match struct {
	EpisodeID    int     `json:"episodeId"`
	AnimeID      int     `json:"animeId"`
	AnimeTitle   string  `json:"animeTitle"`
	EpisodeTitle string  `json:"episodeTitle"`
	Type         string  `json:"type"`
	Shift        float64 `json:"shift"`
	ImageURL     string  `json:"imageUrl"`
}

// Result is the /match response body.
type Result struct {
	ErrorCode    int     `json:"errorCode"`
	Success      bool    `json:"success"`
	ErrorMessage string  `json:"errorMessage"`
	IsMatched    bool    `json:"isMatched"`
	Matches      []Match `json:"matches"`
}

// Engine resolves filenames against the catalog via the orchestrator.
type Engine struct {
	cfg         *config.Registry
	catalog     *catalog.Catalog
	searcher    Searcher
	translators []sources.Translator
	logger      *zap.Logger
}

func NewEngine(cfg *config.Registry, cat *catalog.Catalog, searcher Searcher, logger *zap.Logger, translators ...sources.Translator) *Engine {
	return &Engine{
		cfg:         cfg,
		catalog:     cat,
		searcher:    searcher,
		translators: translators,
		logger:      logger,
	}
}

// Match runs the full pipeline: parse the filename, translate the title if
// configured, search, and walk the results in platform preference order.
func (e *Engine) Match(ctx context.Context, fileName string) (Result, error) {
	settings := e.cfg.Current()
	parsed := ParseFileName(fileName)
	if parsed.Title == "" {
		return Result{Success: true}, nil
	}

	title := parsed.Title
	if settings.TitleToChinese && !containsCJK(title) {
		title = e.translate(ctx, title)
	}

	preferID := 0
	if settings.RememberLastSelect {
		if id, ok := e.catalog.PreferredAnimeID(title); ok {
			preferID = id
		}
	}

	animes, err := e.searcher.Search(ctx, title)
	if err != nil {
		return Result{}, err
	}
	if len(animes) == 0 {
		return Result{Success: true}, nil
	}

	if m, ok := e.selectEpisode(animes, parsed, preferID); ok {
		e.rememberSelection(m.AnimeID)
		return Result{Success: true, IsMatched: true, Matches: []Match{m}}, nil
	}

	// No platform preference produced a hit: fall back to the first result.
	if m, ok := e.fallback(animes, parsed); ok {
		e.rememberSelection(m.AnimeID)
		return Result{Success: true, IsMatched: true, Matches: []Match{m}}, nil
	}
	return Result{Success: true}, nil
}

func (e *Engine) translate(ctx context.Context, title string) string {
	for _, tr := range e.translators {
		translated, err := tr.TranslateToChinese(ctx, title)
		if err != nil {
			e.logger.Debug("Couldn't translate title", zap.String("title", title), zap.Error(err))
			continue
		}
		if translated != "" {
			return translated
		}
	}
	return title
}

// selectEpisode walks platforms in preference order (the filename's tag
// first, then PLATFORM_ORDER, then everything else) and picks the first anime
// under each that satisfies the parsed season/episode.
func (e *Engine) selectEpisode(animes []*catalog.Anime, parsed ParsedFile, preferID int) (Match, bool) {
	for _, platform := range e.platformOrder(animes, parsed.Platform) {
		for _, anime := range animes {
			if anime.Source != platform {
				continue
			}
			if preferID != 0 && anime.AnimeID != preferID {
				continue
			}
			if m, ok := e.episodeFromAnime(anime, parsed); ok {
				return m, true
			}
		}
	}
	return Match{}, false
}

func (e *Engine) fallback(animes []*catalog.Anime, parsed ParsedFile) (Match, bool) {
	anime := animes[0]
	episodes := dedupeEpisodes(anime.Links)
	if len(episodes) == 0 {
		return Match{}, false
	}
	ep := episodes[0]
	if parsed.Episode > 0 && len(episodes) >= parsed.Episode {
		ep = episodes[parsed.Episode-1]
	}
	return buildMatch(anime, ep), true
}

func (e *Engine) episodeFromAnime(anime *catalog.Anime, parsed ParsedFile) (Match, bool) {
	episodes := dedupeEpisodes(anime.Links)
	if len(episodes) == 0 {
		return Match{}, false
	}

	if parsed.Season > 0 && parsed.Episode > 0 {
		if !sources.TitleMatches(anime.AnimeTitle, parsed.Title, false, parsed.Season) {
			return Match{}, false
		}
		if len(episodes) < parsed.Episode {
			return Match{}, false
		}
		return buildMatch(anime, episodes[parsed.Episode-1]), true
	}

	// Movie: type must say movie, or the title must be an exact match.
	if anime.Type == sources.TypeMovie || exactTitle(anime.AnimeTitle, parsed.Title) {
		return buildMatch(anime, episodes[0]), true
	}
	return Match{}, false
}

// platformOrder builds the dynamic order: preferred tag, PLATFORM_ORDER,
// then any remaining platforms present in the results.
func (e *Engine) platformOrder(animes []*catalog.Anime, preferred string) []string {
	var order []string
	seen := map[string]bool{}
	push := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			order = append(order, p)
		}
	}
	push(preferred)
	for _, p := range e.cfg.Derived().PlatformOrder {
		push(p)
	}
	for _, anime := range animes {
		push(anime.Source)
	}
	return order
}

func (e *Engine) rememberSelection(animeID int) {
	if !e.cfg.Current().RememberLastSelect {
		return
	}
	e.catalog.SetPreferByAnimeID(animeID)
}

// dedupeEpisodes drops repeated titles, keeping the first occurrence.
func dedupeEpisodes(episodes []catalog.Episode) []catalog.Episode {
	seen := map[string]bool{}
	out := make([]catalog.Episode, 0, len(episodes))
	for _, ep := range episodes {
		if seen[ep.Title] {
			continue
		}
		seen[ep.Title] = true
		out = append(out, ep)
	}
	return out
}

func exactTitle(animeTitle, query string) bool {
	cleaned := sources.NormalizeTitle(sources.StripParens(animeTitle))
	// the display title carries a "from <source>" suffix
	if idx := strings.Index(cleaned, "from "); idx > 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	return cleaned == sources.NormalizeTitle(query)
}

func buildMatch(anime *catalog.Anime, ep catalog.Episode) Match {
	return Match{
		EpisodeID:    ep.ID,
		AnimeID:      anime.AnimeID,
		AnimeTitle:   anime.AnimeTitle,
		EpisodeTitle: ep.Title,
		Type:         anime.Type,
		ImageURL:     anime.ImageURL,
	}
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}
