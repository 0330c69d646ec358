package config

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// KnownSources is the whitelist of source names SOURCE_ORDER may contain.
var KnownSources = []string{
	"360", "vod", "tmdb", "douban", "tencent", "youku", "iqiyi",
	"imgo", "bilibili", "renren", "hanjutv", "bahamut",
}

// DefaultSourceOrder applies when SOURCE_ORDER is empty or yields nothing.
var DefaultSourceOrder = []string{"360", "vod", "renren", "hanjutv"}

// VODServer is one parsed VOD_SERVERS entry.
type VODServer struct {
	Name string
	URL  string
}

// Derived is the state computed from raw setting strings: parsed lists and
// compiled regexes. A Derived value is immutable once built.
type Derived struct {
	SourceOrder   []string
	PlatformOrder []string
	VODServers    []VODServer
	EpisodeFilter *regexp.Regexp
	Palette       []int
}

// derivedCache avoids recompiling when the underlying strings didn't change
// across a reload.
var derivedCache = struct {
	sync.Mutex
	hash  uint64
	value *Derived
}{}

func deriveState(s *Settings, logger *zap.Logger) *Derived {
	digest := xxhash.New()
	for _, raw := range []string{s.SourceOrder, s.PlatformOrder, s.VodServers, s.EpisodeTitleFilter, s.DanmuColors} {
		digest.WriteString(raw)
		digest.WriteString("\x00")
	}
	sum := digest.Sum64()

	derivedCache.Lock()
	defer derivedCache.Unlock()
	if derivedCache.value != nil && derivedCache.hash == sum {
		return derivedCache.value
	}

	d := &Derived{
		SourceOrder:   parseSourceOrder(s.SourceOrder),
		PlatformOrder: splitList(s.PlatformOrder),
		VODServers:    parseVODServers(s.VodServers),
		Palette:       parsePalette(s.DanmuColors, logger),
	}
	if s.EpisodeTitleFilter != "" {
		re, err := regexp.Compile(s.EpisodeTitleFilter)
		if err != nil {
			logger.Warn("Couldn't compile episode title filter, ignoring it",
				zap.String("filter", s.EpisodeTitleFilter), zap.Error(err))
		} else {
			d.EpisodeFilter = re
		}
	}

	derivedCache.hash = sum
	derivedCache.value = d
	return d
}

// parseSourceOrder keeps only whitelisted names and falls back to the default
// order when nothing survives.
func parseSourceOrder(raw string) []string {
	known := map[string]bool{}
	for _, name := range KnownSources {
		known[name] = true
	}
	var order []string
	seen := map[string]bool{}
	for _, name := range splitList(raw) {
		if known[name] && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	if len(order) == 0 {
		return append([]string(nil), DefaultSourceOrder...)
	}
	return order
}

// parseVODServers parses "name1@url1,name2@url2". A missing name becomes
// "vod-<N>".
func parseVODServers(raw string) []VODServer {
	var servers []VODServer
	for i, entry := range splitList(raw) {
		name, url, found := strings.Cut(entry, "@")
		if !found {
			url = name
			name = ""
		}
		if url == "" {
			continue
		}
		if name == "" {
			name = "vod-" + strconv.Itoa(i+1)
		}
		servers = append(servers, VODServer{Name: name, URL: url})
	}
	return servers
}

// parsePalette parses a comma list of hex colors ("#RRGGBB" or "RRGGBB").
func parsePalette(raw string, logger *zap.Logger) []int {
	var palette []int
	for _, entry := range splitList(raw) {
		entry = strings.TrimPrefix(entry, "#")
		color, err := strconv.ParseInt(entry, 16, 32)
		if err != nil || color < 0 || color > 0xFFFFFF {
			logger.Warn("Couldn't parse danmu color, dropping it", zap.String("color", entry))
			continue
		}
		palette = append(palette, int(color))
	}
	return palette
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
