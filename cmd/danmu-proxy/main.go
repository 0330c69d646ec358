package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/match"
	"github.com/weilazy/danmu-proxy/pkg/sources"
	"github.com/weilazy/danmu-proxy/pkg/store"
)

const version = "0.2.0"

var (
	bindAddr   = flag.String("bindAddr", "0.0.0.0", "Local interface address to bind to")
	port       = flag.Int("port", 9321, "Port to listen on")
	logLevel   = flag.String("logLevel", "info", `Log level: "debug", "info", "warn", "error"`)
	configFile = flag.String("configFile", "", "Optional YAML config file")
	socksProxy = flag.String("socksProxyAddrBahamut", "", "SOCKS5 proxy address (host:port) for the region-locked Bahamut source")
)

const sourceTimeout = 10 * time.Second

func main() {
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Couldn't create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("Starting danmu-proxy", zap.String("version", version))

	// Bootstrap pass: read env/YAML only, to learn the store credentials.
	bootCfg, err := config.Load(*configFile, nil, logger)
	if err != nil {
		logger.Fatal("Couldn't load config", zap.Error(err))
	}
	db := openStore(bootCfg.Current(), logger)

	// Real pass: the persisted overlay participates now.
	cfg, err := config.Load(*configFile, db.LoadConfigOverlay(), logger)
	if err != nil {
		logger.Fatal("Couldn't load config with persisted overlay", zap.Error(err))
	}
	settings := cfg.Current()

	cat := catalog.New(catalog.WithMaxLastSelect(settings.MaxLastSelectMap))
	if snap, ok := db.LoadSnapshot(); ok {
		cat.Import(snap,
			time.Duration(settings.SearchCacheMinutes)*time.Minute,
			time.Duration(settings.CommentCacheMinutes)*time.Minute)
		logger.Info("Rehydrated catalog from store",
			zap.Int("animes", cat.Len()), zap.Int("episodeNum", cat.EpisodeNum()))
	}

	orch := sources.NewOrchestrator(cfg, cat, db, logger, buildSources(cfg, logger)...)

	var translators []sources.Translator
	if tmdb, ok := orch.Source("tmdb"); ok {
		translators = append(translators, tmdb.(*sources.TMDB))
	}
	if douban, ok := orch.Source("douban"); ok {
		translators = append(translators, douban.(*sources.Douban))
	}
	engine := match.NewEngine(cfg, cat, orch, logger, translators...)

	app := newApp(cfg, cat, orch, engine, db, logger)

	// The write-behind store only sees explicit saves; a slow tick catches
	// anything that slipped through between requests.
	stopPersist := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				db.SaveSnapshot(cat.Export())
			case <-stopPersist:
				return
			}
		}
	}()

	logger.Info("Starting server", zap.String("addr", *bindAddr), zap.Int("port", *port))
	go func() {
		if err := app.Listen(fmt.Sprintf("%v:%v", *bindAddr, *port)); err != nil {
			logger.Fatal("Couldn't start server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down", zap.Stringer("signal", sig))

	close(stopPersist)
	if err := app.Shutdown(); err != nil {
		logger.Error("Couldn't shut down server gracefully", zap.Error(err))
	}
	db.SaveSnapshot(cat.Export())
	if err := db.Close(); err != nil {
		logger.Error("Couldn't close store", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		return nil, err
	}
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	logConfig.Encoding = "console"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return logConfig.Build()
}

// openStore builds the tier list in preference order: SQL database, Redis,
// local BadgerDB. No tier at all means in-memory only, which is fine.
func openStore(settings config.Settings, logger *zap.Logger) *store.Store {
	var tiers []store.Tier
	if settings.DatabaseURL != "" {
		tier, err := store.NewSQLTier(sqliteDSN(settings.DatabaseURL, settings.DatabaseAuthToken))
		if err != nil {
			logger.Warn("Couldn't open SQL tier, continuing without it", zap.Error(err))
		} else {
			tiers = append(tiers, tier)
		}
	}
	if settings.RedisURL != "" {
		tier, err := store.NewRedisTier(redisAddr(settings.RedisURL), "", settings.RedisToken)
		if err != nil {
			logger.Warn("Couldn't connect Redis tier, continuing without it", zap.Error(err))
		} else {
			tiers = append(tiers, tier)
		}
	}
	if settings.BadgerPath != "" {
		tier, err := store.NewBadgerTier(settings.BadgerPath, logger)
		if err != nil {
			logger.Warn("Couldn't open badger tier, continuing without it", zap.Error(err))
		} else {
			tiers = append(tiers, tier)
		}
	}
	if len(tiers) == 0 {
		logger.Info("No persistence configured, catalog state is in-memory only")
	}
	return store.New(tiers, logger)
}

func sqliteDSN(databaseURL, authToken string) string {
	dsn := strings.TrimPrefix(databaseURL, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "file:")
	if authToken != "" {
		dsn += "?authToken=" + url.QueryEscape(authToken)
	}
	return dsn
}

func redisAddr(redisURL string) string {
	addr := strings.TrimPrefix(redisURL, "redis://")
	addr = strings.TrimPrefix(addr, "rediss://")
	addr = strings.TrimPrefix(addr, "https://")
	return addr
}

func buildSources(cfg *config.Registry, logger *zap.Logger) []sources.Source {
	return []sources.Source{
		sources.NewSo360(sourceTimeout, logger),
		sources.NewVOD(cfg, logger),
		sources.NewTencent(sourceTimeout, logger),
		sources.NewIqiyi(sourceTimeout, logger),
		sources.NewYouku(cfg, sourceTimeout, logger),
		sources.NewBilibili(cfg, sourceTimeout, logger),
		sources.NewMango(sourceTimeout, logger),
		sources.NewBahamut(sourceTimeout, *socksProxy, logger),
		sources.NewRenren(sourceTimeout, logger),
		sources.NewHanjutv(sourceTimeout, logger),
		sources.NewTMDB(cfg, sourceTimeout, logger),
		sources.NewDouban(sourceTimeout, logger),
	}
}

func newApp(cfg *config.Registry, cat *catalog.Catalog, orch *sources.Orchestrator, engine *match.Engine, db *store.Store, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("Unhandled handler error", zap.String("path", c.Path()), zap.Error(err))
			return errorResponse(c, fiber.StatusInternalServerError, "internal error")
		},
	})

	app.Use(createGateMiddleware(cfg, logger))
	app.Use(createStorageCheckMiddleware(db))
	app.Use(createRateLimitMiddleware(cfg, newRateLimiter(), logger))

	registerRoutes(app, cfg, cat, orch, engine, db, logger)
	return app
}

func registerRoutes(app *fiber.App, cfg *config.Registry, cat *catalog.Catalog, orch *sources.Orchestrator, engine *match.Engine, db *store.Store, logger *zap.Logger) {
	deps := commentDeps{cfg: cfg, catalog: cat, orch: orch, db: db, logger: logger}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"name": "danmu-proxy", "version": version})
	})
	app.Get("/robots.txt", func(c *fiber.Ctx) error {
		return c.SendString("User-agent: *\nDisallow: /\n")
	})
	app.Get("/favicon.ico", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/api/config", createConfigGetHandler(cfg))
	app.Post("/api/config", createConfigPostHandler(cfg, db, logger))

	app.Get("/api/v2/search/anime", createSearchAnimeHandler(orch, logger))
	app.Get("/api/v2/search/episodes", createSearchEpisodesHandler(orch, logger))
	app.Post("/api/v2/match", createMatchHandler(engine, logger))
	app.Get("/api/v2/bangumi/:id", createBangumiHandler(cat, logger))
	app.Get("/api/v2/comment/:episodeId", createCommentByIDHandler(deps))
	app.Get("/api/v2/comment", createCommentByURLHandler(deps))
}
