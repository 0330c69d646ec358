// Package store is the write-behind persistence tier for catalog state and
// the config overlay. Tiers are tried in order (SQL first, then Redis, then
// a local BadgerDB); writes go to every configured tier and count as
// successful when at least one tier took them. Callers never block on
// persistence.
package store

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/catalog"
)

// Cache value names as persisted, matching the cache_data schema.
const (
	KeyAnimes        = "animes"
	KeyEpisodeIDs    = "episodeIds"
	KeyEpisodeNum    = "episodeNum"
	KeyLastSelectMap = "lastSelectMap"
	KeySearchCache   = "searchCache"
	KeyCommentCache  = "commentCache"
)

var cacheKeys = []string{
	KeyAnimes, KeyEpisodeIDs, KeyEpisodeNum,
	KeyLastSelectMap, KeySearchCache, KeyCommentCache,
}

// Tier is one persistence backend.
type Tier interface {
	Name() string
	LoadConfig() (map[string]string, error)
	SaveConfig(overlay map[string]string) error
	LoadCache(name string) ([]byte, bool, error)
	SaveCache(name string, value []byte) error
	Close() error
}

type writeJob struct {
	name  string
	value []byte
}

// Store fans writes out to all tiers through a single worker goroutine, so
// persistence writes are serialized without the caller blocking.
type Store struct {
	tiers  []Tier
	logger *zap.Logger

	checkOnce sync.Once

	hashMu     sync.Mutex
	lastHashes map[string]uint64

	jobs chan writeJob
	done chan struct{}
}

func New(tiers []Tier, logger *zap.Logger) *Store {
	s := &Store{
		tiers:      tiers,
		logger:     logger,
		lastHashes: map[string]uint64{},
		jobs:       make(chan writeJob, 64),
		done:       make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Available reports whether any durable tier is configured.
func (s *Store) Available() bool {
	return len(s.tiers) > 0
}

// Check logs the configured tiers exactly once per process lifetime. The
// router keeps favicon/robots requests away from this.
func (s *Store) Check() {
	s.checkOnce.Do(func() {
		if len(s.tiers) == 0 {
			s.logger.Info("No persistence tier configured, running in-memory only")
			return
		}
		names := make([]string, len(s.tiers))
		for i, tier := range s.tiers {
			names[i] = tier.Name()
		}
		s.logger.Info("Persistence tiers ready", zap.Strings("tiers", names))
	})
}

func (s *Store) writeLoop() {
	for job := range s.jobs {
		var errs error
		succeeded := 0
		for _, tier := range s.tiers {
			if err := tier.SaveCache(job.name, job.value); err != nil {
				errs = multierr.Append(errs, err)
			} else {
				succeeded++
			}
		}
		if succeeded == 0 && errs != nil {
			s.logger.Warn("Couldn't persist cache value to any tier",
				zap.String("name", job.name), zap.Error(errs))
		} else if errs != nil {
			s.logger.Debug("Partial persistence write",
				zap.String("name", job.name), zap.Error(errs))
		}
	}
	close(s.done)
}

// enqueue hash-guards and queues one value. A full queue drops the write;
// the next tick carries the same state again.
func (s *Store) enqueue(name string, value []byte) {
	sum := xxhash.Sum64(value)
	s.hashMu.Lock()
	if s.lastHashes[name] == sum {
		s.hashMu.Unlock()
		return
	}
	s.lastHashes[name] = sum
	s.hashMu.Unlock()

	select {
	case s.jobs <- writeJob{name: name, value: value}:
	default:
		s.logger.Warn("Persistence queue full, dropping write", zap.String("name", name))
	}
}

// SaveSnapshot persists the catalog snapshot, one value per key. It returns
// immediately; writes happen on the store's worker.
func (s *Store) SaveSnapshot(snap catalog.Snapshot) {
	if len(s.tiers) == 0 {
		return
	}
	parts := map[string]interface{}{
		KeyAnimes:        snap.Animes,
		KeyEpisodeIDs:    snap.Episodes,
		KeyEpisodeNum:    snap.EpisodeNum,
		KeyLastSelectMap: snap.LastSelectMap,
		KeySearchCache:   snap.SearchCache,
		KeyCommentCache:  snap.CommentCache,
	}
	for name, part := range parts {
		value, err := json.Marshal(part)
		if err != nil {
			s.logger.Warn("Couldn't marshal cache value", zap.String("name", name), zap.Error(err))
			continue
		}
		s.enqueue(name, value)
	}
}

// LoadSnapshot rehydrates the catalog snapshot from the first tier that has
// each value. Missing values are left zero; found == false means no tier had
// anything at all.
func (s *Store) LoadSnapshot() (catalog.Snapshot, bool) {
	var snap catalog.Snapshot
	found := false
	targets := map[string]interface{}{
		KeyAnimes:        &snap.Animes,
		KeyEpisodeIDs:    &snap.Episodes,
		KeyEpisodeNum:    &snap.EpisodeNum,
		KeyLastSelectMap: &snap.LastSelectMap,
		KeySearchCache:   &snap.SearchCache,
		KeyCommentCache:  &snap.CommentCache,
	}
	for _, name := range cacheKeys {
		value, ok := s.loadOne(name)
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, targets[name]); err != nil {
			s.logger.Warn("Couldn't unmarshal persisted cache value, skipping it",
				zap.String("name", name), zap.Error(err))
			continue
		}
		found = true
		// Remember what we read so unchanged state isn't written back.
		s.hashMu.Lock()
		s.lastHashes[name] = xxhash.Sum64(value)
		s.hashMu.Unlock()
	}
	return snap, found
}

func (s *Store) loadOne(name string) ([]byte, bool) {
	for _, tier := range s.tiers {
		value, ok, err := tier.LoadCache(name)
		if err != nil {
			s.logger.Warn("Couldn't read cache value from tier",
				zap.String("tier", tier.Name()), zap.String("name", name), zap.Error(err))
			continue
		}
		if ok {
			return value, true
		}
	}
	return nil, false
}

// SaveConfigOverlay persists the env_configs overlay to every tier.
func (s *Store) SaveConfigOverlay(overlay map[string]string) {
	go func() {
		var errs error
		succeeded := 0
		for _, tier := range s.tiers {
			if err := tier.SaveConfig(overlay); err != nil {
				errs = multierr.Append(errs, err)
			} else {
				succeeded++
			}
		}
		if succeeded == 0 && errs != nil {
			s.logger.Warn("Couldn't persist config overlay to any tier", zap.Error(errs))
		}
	}()
}

// LoadConfigOverlay reads the persisted overlay from the first tier that has
// one.
func (s *Store) LoadConfigOverlay() map[string]string {
	for _, tier := range s.tiers {
		overlay, err := tier.LoadConfig()
		if err != nil {
			s.logger.Warn("Couldn't read config overlay from tier",
				zap.String("tier", tier.Name()), zap.Error(err))
			continue
		}
		if len(overlay) > 0 {
			return overlay
		}
	}
	return nil
}

// Close drains pending writes and closes every tier.
func (s *Store) Close() error {
	close(s.jobs)
	<-s.done
	var errs error
	for _, tier := range s.tiers {
		errs = multierr.Append(errs, tier.Close())
	}
	return errs
}
