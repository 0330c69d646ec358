package main

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/danmaku"
	"github.com/weilazy/danmu-proxy/pkg/match"
	"github.com/weilazy/danmu-proxy/pkg/sources"
	"github.com/weilazy/danmu-proxy/pkg/store"
)

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"errorCode":    status,
		"success":      false,
		"errorMessage": message,
	})
}

func createSearchAnimeHandler(orch *sources.Orchestrator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		keyword := strings.TrimSpace(c.Query("keyword"))
		if keyword == "" {
			return errorResponse(c, fiber.StatusBadRequest, "keyword is required")
		}
		animes, err := orch.Search(c.Context(), keyword)
		if err != nil {
			logger.Error("Search failed", zap.String("keyword", keyword), zap.Error(err))
			return errorResponse(c, fiber.StatusInternalServerError, "search failed")
		}
		if animes == nil {
			animes = []*catalog.Anime{}
		}
		return c.JSON(fiber.Map{
			"errorCode":    0,
			"success":      true,
			"errorMessage": "",
			"animes":       animes,
		})
	}
}

func createSearchEpisodesHandler(orch *sources.Orchestrator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		keyword := strings.TrimSpace(c.Query("anime"))
		if keyword == "" {
			return errorResponse(c, fiber.StatusBadRequest, "anime is required")
		}
		episodeQuery := strings.TrimSpace(c.Query("episode"))

		animes, err := orch.Search(c.Context(), keyword)
		if err != nil {
			logger.Error("Search failed", zap.String("keyword", keyword), zap.Error(err))
			return errorResponse(c, fiber.StatusInternalServerError, "search failed")
		}

		type episodeEntry struct {
			EpisodeID    int    `json:"episodeId"`
			EpisodeTitle string `json:"episodeTitle"`
		}
		type animeEntry struct {
			AnimeID    int            `json:"animeId"`
			AnimeTitle string         `json:"animeTitle"`
			Type       string         `json:"type"`
			Episodes   []episodeEntry `json:"episodes"`
		}

		out := []animeEntry{}
		for _, anime := range animes {
			links := anime.Links
			switch {
			case episodeQuery == "movie":
				if anime.Type != sources.TypeMovie || len(links) == 0 {
					continue
				}
				links = links[:1]
			case episodeQuery != "":
				n, err := strconv.Atoi(episodeQuery)
				if err != nil || n < 1 {
					return errorResponse(c, fiber.StatusBadRequest, "episode must be an integer or \"movie\"")
				}
				if len(links) < n {
					continue
				}
				links = links[n-1 : n]
			}
			entry := animeEntry{AnimeID: anime.AnimeID, AnimeTitle: anime.AnimeTitle, Type: anime.Type}
			for _, link := range links {
				entry.Episodes = append(entry.Episodes, episodeEntry{EpisodeID: link.ID, EpisodeTitle: link.Title})
			}
			out = append(out, entry)
		}
		return c.JSON(fiber.Map{
			"errorCode":    0,
			"success":      true,
			"errorMessage": "",
			"animes":       out,
		})
	}
}

func createMatchHandler(engine *match.Engine, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			FileName string `json:"fileName"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil || strings.TrimSpace(body.FileName) == "" {
			return errorResponse(c, fiber.StatusBadRequest, "fileName is required")
		}
		result, err := engine.Match(c.Context(), body.FileName)
		if err != nil {
			logger.Error("Match failed", zap.String("fileName", body.FileName), zap.Error(err))
			return errorResponse(c, fiber.StatusInternalServerError, "match failed")
		}
		if result.Matches == nil {
			result.Matches = []match.Match{}
		}
		return c.JSON(result)
	}
}

func createBangumiHandler(cat *catalog.Catalog, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		animeID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "anime id must be an integer")
		}
		anime, ok := cat.FindAnimeByID(animeID)
		if !ok {
			return errorResponse(c, fiber.StatusNotFound, "unknown anime")
		}

		type episodeEntry struct {
			SeasonID      string `json:"seasonId"`
			EpisodeID     int    `json:"episodeId"`
			EpisodeTitle  string `json:"episodeTitle"`
			EpisodeNumber string `json:"episodeNumber"`
		}
		episodes := make([]episodeEntry, 0, len(anime.Links))
		for i, link := range anime.Links {
			episodes = append(episodes, episodeEntry{
				SeasonID:      "1",
				EpisodeID:     link.ID,
				EpisodeTitle:  link.Title,
				EpisodeNumber: strconv.Itoa(i + 1),
			})
		}
		return c.JSON(fiber.Map{
			"errorCode":    0,
			"success":      true,
			"errorMessage": "",
			"bangumi": fiber.Map{
				"animeId":         anime.AnimeID,
				"bangumiId":       anime.BangumiID,
				"animeTitle":      anime.AnimeTitle,
				"type":            anime.Type,
				"typeDescription": anime.TypeDescription,
				"imageUrl":        anime.ImageURL,
				"rating":          anime.Rating,
				"isFavorited":     anime.IsFavorited,
				"seasons": []fiber.Map{{
					"id":           "1",
					"airDate":      anime.StartDate,
					"name":         anime.AnimeTitle,
					"episodeCount": len(anime.Links),
				}},
				"episodes": episodes,
			},
		})
	}
}

type commentDeps struct {
	cfg     *config.Registry
	catalog *catalog.Catalog
	orch    *sources.Orchestrator
	db      *store.Store
	logger  *zap.Logger
}

func createCommentByIDHandler(deps commentDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		episodeID, err := strconv.Atoi(c.Params("episodeId"))
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "episode id must be an integer")
		}
		url, ok := deps.catalog.FindURLByID(episodeID)
		if !ok {
			return errorResponse(c, fiber.StatusNotFound, "unknown episode")
		}
		// The player calling back for this episode is the selection signal
		// the matcher remembers.
		if deps.cfg.Current().RememberLastSelect {
			if animeID, ok := deps.catalog.FindAnimeIDByCommentID(episodeID); ok {
				deps.catalog.SetPreferByAnimeID(animeID)
				deps.db.SaveSnapshot(deps.catalog.Export())
			}
		}
		return serveComments(c, deps, url)
	}
}

func createCommentByURLHandler(deps commentDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		url := strings.TrimSpace(c.Query("url"))
		if url == "" {
			return errorResponse(c, fiber.StatusBadRequest, "url is required")
		}
		return serveComments(c, deps, url)
	}
}

func serveComments(c *fiber.Ctx, deps commentDeps, url string) error {
	comments, err := deps.orch.Comments(c.Context(), url)
	if err != nil {
		deps.logger.Warn("Couldn't serve comments", zap.String("url", url), zap.Error(err))
		return errorResponse(c, fiber.StatusNotFound, "no comment source for url")
	}

	settings := deps.cfg.Current()
	derived := deps.cfg.Derived()
	pipeline := danmaku.NewPipeline(danmaku.PipelineOptions{
		BlockedWords:     settings.BlockedWords,
		GroupMinutes:     settings.GroupMinute,
		Limit:            settings.DanmuLimit,
		WhiteRatio:       settings.WhiteRatio,
		Palette:          derived.Palette,
		ConvertTopBottom: settings.ConvertTopBottomToScroll,
		Simplified:       settings.DanmuSimplified,
	}, deps.logger)
	comments = pipeline.Process(comments)

	format := c.Query("format", settings.DanmuOutputFormat)
	if format == "xml" {
		c.Set(fiber.HeaderContentType, "text/xml; charset=utf-8")
		return c.Send(danmaku.ToXML(comments, settings.DanmuFontSize))
	}
	body, err := danmaku.ToJSON(comments)
	if err != nil {
		deps.logger.Error("Couldn't serialize comments", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "serialization failed")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(body)
}

// createConfigHandlers exposes the persisted overlay: GET returns the active
// settings, POST patches them and writes the overlay through the store.
func createConfigGetHandler(cfg *config.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"errorCode": 0,
			"success":   true,
			"settings":  cfg.Current(),
		})
	}
}

func createConfigPostHandler(cfg *config.Registry, db *store.Store, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		updates := map[string]string{}
		if err := json.Unmarshal(c.Body(), &updates); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "body must be a string map")
		}
		overlay, err := cfg.Patch(updates)
		if err != nil {
			logger.Error("Couldn't apply config patch", zap.Error(err))
			return errorResponse(c, fiber.StatusInternalServerError, "config reload failed")
		}
		db.SaveConfigOverlay(overlay)
		return c.JSON(fiber.Map{"errorCode": 0, "success": true})
	}
}
