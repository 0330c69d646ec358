// Package config is the single source of truth for the proxy's tunables.
// Values come from built-in defaults, an optional YAML file, the environment,
// and a persisted overlay written by the config endpoint, merged in that
// order. Reads see an atomic snapshot; writes swap in a new one.
package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// DefaultToken is the token that makes the URL token prefix optional.
const DefaultToken = "87654321"

// Settings are the recognized options, keyed by their canonical names.
type Settings struct {
	Token                    string  `koanf:"TOKEN"`
	SourceOrder              string  `koanf:"SOURCE_ORDER"`
	PlatformOrder            string  `koanf:"PLATFORM_ORDER"`
	VodServers               string  `koanf:"VOD_SERVERS"`
	VodReturnMode            string  `koanf:"VOD_RETURN_MODE"`
	VodRequestTimeout        int     `koanf:"VOD_REQUEST_TIMEOUT"` // milliseconds
	BilibiliCookie           string  `koanf:"BILIBILI_COOKIE"`
	TmdbAPIKey               string  `koanf:"TMDB_API_KEY"`
	TitleToChinese           bool    `koanf:"TITLE_TO_CHINESE"`
	StrictTitleMatch         bool    `koanf:"STRICT_TITLE_MATCH"`
	EnableEpisodeFilter      bool    `koanf:"ENABLE_EPISODE_FILTER"`
	EpisodeTitleFilter       string  `koanf:"EPISODE_TITLE_FILTER"`
	ConvertTopBottomToScroll bool    `koanf:"CONVERT_TOP_BOTTOM_TO_SCROLL"`
	DanmuSimplified          bool    `koanf:"DANMU_SIMPLIFIED"`
	RememberLastSelect       bool    `koanf:"REMEMBER_LAST_SELECT"`
	DanmuOutputFormat        string  `koanf:"DANMU_OUTPUT_FORMAT"` // json | xml
	DanmuLimit               int     `koanf:"DANMU_LIMIT"`         // -1 = unlimited
	DanmuFontSize            int     `koanf:"DANMU_FONT_SIZE"`
	DanmuColors              string  `koanf:"DANMU_COLORS"`
	BlockedWords             string  `koanf:"BLOCKED_WORDS"`
	GroupMinute              int     `koanf:"GROUP_MINUTE"`
	WhiteRatio               float64 `koanf:"WHITE_RATIO"`
	YoukuConcurrency         int     `koanf:"YOUKU_CONCURRENCY"`
	SearchCacheMinutes       int     `koanf:"SEARCH_CACHE_MINUTES"`
	CommentCacheMinutes      int     `koanf:"COMMENT_CACHE_MINUTES"`
	MaxLastSelectMap         int     `koanf:"MAX_LAST_SELECT_MAP"`
	RateLimitMaxRequests     int     `koanf:"RATE_LIMIT_MAX_REQUESTS"`
	DatabaseURL              string  `koanf:"DATABASE_URL"`
	DatabaseAuthToken        string  `koanf:"DATABASE_AUTH_TOKEN"`
	RedisURL                 string  `koanf:"UPSTASH_REDIS_REST_URL"`
	RedisToken               string  `koanf:"UPSTASH_REDIS_REST_TOKEN"`
	BadgerPath               string  `koanf:"BADGER_PATH"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"TOKEN":               DefaultToken,
		"VOD_RETURN_MODE":     "all",
		"VOD_REQUEST_TIMEOUT": 10000,
		"DANMU_OUTPUT_FORMAT": "json",
		"DANMU_LIMIT":         -1,
		"DANMU_FONT_SIZE":     25,
		"BLOCKED_WORDS":       "/^.{25,}$/",
		"GROUP_MINUTE":        0,
		"WHITE_RATIO":         -1.0,
		"YOUKU_CONCURRENCY":   8,
		// One file of the original hardcodes 1 minute, another 5; this
		// implementation settles on 1 for both caches.
		"SEARCH_CACHE_MINUTES":    1,
		"COMMENT_CACHE_MINUTES":   1,
		"MAX_LAST_SELECT_MAP":     1000,
		"RATE_LIMIT_MAX_REQUESTS": 0,
		"REMEMBER_LAST_SELECT":    true,
	}
}

// aliasKeys maps the lowercase camelCase aliases the config endpoint accepts
// to the canonical option names.
var aliasKeys = map[string]string{
	"token":                    "TOKEN",
	"sourceOrder":              "SOURCE_ORDER",
	"platformOrder":            "PLATFORM_ORDER",
	"vodServers":               "VOD_SERVERS",
	"vodReturnMode":            "VOD_RETURN_MODE",
	"vodRequestTimeout":        "VOD_REQUEST_TIMEOUT",
	"bilibiliCookie":           "BILIBILI_COOKIE",
	"tmdbApiKey":               "TMDB_API_KEY",
	"titleToChinese":           "TITLE_TO_CHINESE",
	"strictTitleMatch":         "STRICT_TITLE_MATCH",
	"enableEpisodeFilter":      "ENABLE_EPISODE_FILTER",
	"episodeTitleFilter":       "EPISODE_TITLE_FILTER",
	"convertTopBottomToScroll": "CONVERT_TOP_BOTTOM_TO_SCROLL",
	"danmuSimplified":          "DANMU_SIMPLIFIED",
	"rememberLastSelect":       "REMEMBER_LAST_SELECT",
	"danmuOutputFormat":        "DANMU_OUTPUT_FORMAT",
	"danmuLimit":               "DANMU_LIMIT",
	"danmuFontSize":            "DANMU_FONT_SIZE",
	"danmuColors":              "DANMU_COLORS",
	"blockedWords":             "BLOCKED_WORDS",
	"groupMinute":              "GROUP_MINUTE",
	"whiteRatio":               "WHITE_RATIO",
	"youkuConcurrency":         "YOUKU_CONCURRENCY",
	"searchCacheMinutes":       "SEARCH_CACHE_MINUTES",
	"commentCacheMinutes":      "COMMENT_CACHE_MINUTES",
	"maxLastSelectMap":         "MAX_LAST_SELECT_MAP",
	"rateLimitMaxRequests":     "RATE_LIMIT_MAX_REQUESTS",
}

// CanonicalKey resolves an alias to its canonical name. Unknown keys pass
// through unchanged.
func CanonicalKey(key string) string {
	if canonical, ok := aliasKeys[key]; ok {
		return canonical
	}
	return key
}

// snapshot bundles settings with their derived state; the two always change
// together.
type snapshot struct {
	settings Settings
	derived  *Derived
}

// Registry is the process-wide configuration object.
type Registry struct {
	mu       sync.Mutex // serializes reloads and patches
	current  atomic.Value
	yamlPath string
	overlay  map[string]interface{}
	logger   *zap.Logger
}

// Load builds a registry from defaults, the optional YAML file at yamlPath,
// the environment, and the persisted overlay.
func Load(yamlPath string, overlay map[string]string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		yamlPath: yamlPath,
		overlay:  map[string]interface{}{},
		logger:   logger,
	}
	for key, value := range overlay {
		r.overlay[CanonicalKey(key)] = value
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return fmt.Errorf("couldn't load config defaults: %w", err)
	}
	if r.yamlPath != "" {
		if err := k.Load(file.Provider(r.yamlPath), yaml.Parser()); err != nil {
			// A missing file is fine, a broken one is not.
			r.logger.Warn("Couldn't load YAML config file, continuing without it",
				zap.String("path", r.yamlPath), zap.Error(err))
		}
	}
	if err := k.Load(env.Provider("", ".", CanonicalKey), nil); err != nil {
		return fmt.Errorf("couldn't load config from environment: %w", err)
	}
	if len(r.overlay) > 0 {
		if err := k.Load(confmap.Provider(r.overlay, "."), nil); err != nil {
			return fmt.Errorf("couldn't load config overlay: %w", err)
		}
	}

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return fmt.Errorf("couldn't unmarshal config: %w", err)
	}
	clampSettings(&settings)
	r.current.Store(&snapshot{
		settings: settings,
		derived:  deriveState(&settings, r.logger),
	})
	return nil
}

func clampSettings(s *Settings) {
	if s.YoukuConcurrency < 1 {
		s.YoukuConcurrency = 1
	} else if s.YoukuConcurrency > 16 {
		s.YoukuConcurrency = 16
	}
	if s.WhiteRatio > 100 {
		s.WhiteRatio = 100
	} else if s.WhiteRatio < 0 {
		s.WhiteRatio = -1
	}
	if s.DanmuFontSize <= 0 {
		s.DanmuFontSize = 25
	}
	if s.VodRequestTimeout <= 0 {
		s.VodRequestTimeout = 10000
	}
}

// Current returns the active settings snapshot. The returned value must be
// treated as read-only.
func (r *Registry) Current() Settings {
	return r.current.Load().(*snapshot).settings
}

// Derived returns the derived state matching the active settings.
func (r *Registry) Derived() *Derived {
	return r.current.Load().(*snapshot).derived
}

// Patch applies config endpoint updates to the overlay and rebuilds the
// snapshot and all derived state. It returns the canonicalized overlay for
// persistence.
func (r *Registry) Patch(updates map[string]string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, value := range updates {
		r.overlay[CanonicalKey(key)] = value
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	persisted := make(map[string]string, len(r.overlay))
	for key, value := range r.overlay {
		persisted[key] = fmt.Sprintf("%v", value)
	}
	return persisted, nil
}
