package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/pkg/logger"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

// LessonContent is what FetchLessonContent hands to the UI. IsFallback is
// the error flag: Content then holds the placeholder and Error the reason.
type LessonContent struct {
	Path       string       `json:"path"`
	Content    string       `json:"content"`
	Tier       content.Tier `json:"tier"`
	FetchedAt  time.Time    `json:"fetchedAt,omitempty"`
	IsFallback bool         `json:"isFallback"`
	Error      string       `json:"error,omitempty"`
}

// ContentServiceConfig wires a ContentService.
type ContentServiceConfig struct {
	Cache *content.Cache

	// Sources are tried in order after a cache miss, usually the local
	// mirror then the remote origin.
	Sources []content.Source

	Catalog *course.Catalog

	// Store persists the cache snapshot. Optional.
	Store shared.KVStore

	// Publisher is optional.
	Publisher shared.EventPublisher

	// MaxAge is the CleanOldCache threshold, content.DefaultMaxAge if zero.
	MaxAge time.Duration

	Clock  timeutil.Clock
	Logger *logger.Logger
}

// ContentService is the content loader: cache first, then each source,
// then the catalog placeholder. Concurrent fetches of one path share a
// single download.
type ContentService struct {
	cache     *content.Cache
	sources   []content.Source
	catalog   *course.Catalog
	store     shared.KVStore
	publisher shared.EventPublisher
	maxAge    time.Duration
	clock     timeutil.Clock
	log       *logger.Logger

	group singleflight.Group

	// persistMu orders snapshot writes.
	persistMu sync.Mutex

	errMu   sync.RWMutex
	lastErr error
}

// NewContentService creates the loader. It does not read the persisted
// cache; call Load for that.
func NewContentService(cfg ContentServiceConfig) *ContentService {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock{}
	}
	if cfg.Cache == nil {
		cfg.Cache = content.NewCache(content.DefaultMaxEntries, cfg.Clock)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = course.Default()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = content.DefaultMaxAge
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &ContentService{
		cache:     cfg.Cache,
		sources:   cfg.Sources,
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		maxAge:    cfg.MaxAge,
		clock:     cfg.Clock,
		log:       cfg.Logger.With(logger.Component("content")),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FETCH
// ══════════════════════════════════════════════════════════════════════════════

type fetchResult struct {
	entry content.Entry
	tier  content.Tier
}

// FetchLessonContent resolves path. It never fails: when every source
// fails it returns the placeholder with IsFallback set and records the
// error for LastError. The placeholder is never cached.
func (s *ContentService) FetchLessonContent(ctx context.Context, path string) LessonContent {
	path = strings.Trim(path, "/")

	if entry, ok := s.cache.Get(path); ok {
		s.log.Debug("content cache hit", logger.ContentPath(path))
		s.setLastError(nil)
		return LessonContent{Path: path, Content: entry.Content, Tier: content.TierCache, FetchedAt: entry.FetchedAt}
	}

	// The download outlives a caller that gives up, so a late result
	// still lands in the cache.
	ch := s.group.DoChan(path, func() (interface{}, error) {
		return s.fetchFromSources(context.WithoutCancel(ctx), path)
	})

	var (
		res fetchResult
		err error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case r := <-ch:
		err = r.Err
		if err == nil {
			res = r.Val.(fetchResult)
		}
	}

	if err != nil {
		s.setLastError(err)
		return s.fallback(path, err)
	}

	s.setLastError(nil)
	return LessonContent{Path: path, Content: res.entry.Content, Tier: res.tier, FetchedAt: res.entry.FetchedAt}
}

func (s *ContentService) fetchFromSources(ctx context.Context, path string) (fetchResult, error) {
	if path == "" {
		return fetchResult{}, shared.WrapError("content", "Fetch", shared.ErrInvalidInput, "empty content path", nil)
	}

	var errs []error
	for _, src := range s.sources {
		start := time.Now()
		body, err := src.Fetch(ctx, path)
		if err != nil {
			s.log.Debug("content source failed",
				logger.ContentPath(path),
				logger.ContentTier(string(src.Tier())),
				logger.Latency(time.Since(start)),
				logger.Err(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", src.Tier(), err))
			continue
		}

		entry := s.cache.Put(path, body)
		s.persist(ctx)
		s.log.Info("content fetched",
			logger.ContentPath(path),
			logger.ContentTier(string(src.Tier())),
			logger.Latency(time.Since(start)),
		)
		s.publish(shared.ContentFetchedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventContentFetched, shared.SystemProfile.String(), s.clock.Now()),
			Path:      path,
			Tier:      string(src.Tier()),
		})
		return fetchResult{entry: entry, tier: src.Tier()}, nil
	}

	if len(errs) == 0 {
		return fetchResult{}, shared.ErrContentUnavailable
	}
	return fetchResult{}, fmt.Errorf("%w: %w", shared.ErrContentUnavailable, errors.Join(errs...))
}

func (s *ContentService) fallback(path string, err error) LessonContent {
	s.log.Warn("serving placeholder content", logger.ContentPath(path), logger.Err(err))
	s.publish(shared.ContentFetchFailedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventContentFetchFailed, shared.SystemProfile.String(), s.clock.Now()),
		Path:      path,
		Error:     err.Error(),
	})
	return LessonContent{
		Path:       path,
		Content:    s.catalog.Fallback(languageOfPath(path)),
		Tier:       content.TierFallback,
		IsFallback: true,
		Error:      err.Error(),
	}
}

// languageOfPath reads the language from the first path segment, as in
// "en/Web3QuickStart/...".
func languageOfPath(path string) course.Language {
	first, _, _ := strings.Cut(path, "/")
	if lang, ok := course.ParseLanguage(first); ok {
		return lang
	}
	return course.DefaultLanguage
}

// LastError returns the error of the most recent fetch, nil after a
// success.
func (s *ContentService) LastError() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.lastErr
}

func (s *ContentService) setLastError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// GetCachedContent returns the cached entry without fetching.
func (s *ContentService) GetCachedContent(path string) (content.Entry, bool) {
	return s.cache.Get(strings.Trim(path, "/"))
}

// CleanOldCache drops entries older than the configured max age and
// returns how many were removed.
func (s *ContentService) CleanOldCache(ctx context.Context) int {
	removed := s.cache.EvictOlderThan(s.maxAge)
	if removed > 0 {
		s.persist(ctx)
	}
	s.log.Info("content cache cleaned", logger.F("removed", removed), logger.F("remaining", s.cache.Size()))
	s.publish(shared.CacheCleanedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventCacheCleaned, shared.SystemProfile.String(), s.clock.Now()),
		Removed:   removed,
		Remaining: s.cache.Size(),
	})
	return removed
}

// RemoveCached drops one path.
func (s *ContentService) RemoveCached(ctx context.Context, path string) bool {
	removed := s.cache.Remove(strings.Trim(path, "/"))
	if removed {
		s.persist(ctx)
	}
	return removed
}

// ClearCache drops every entry.
func (s *ContentService) ClearCache(ctx context.Context) {
	s.cache.Clear()
	s.persist(ctx)
}

// CacheSize returns the number of cached lessons.
func (s *ContentService) CacheSize() int {
	return s.cache.Size()
}

// CachedEntries lists the cache sorted by path.
func (s *ContentService) CachedEntries() []content.Entry {
	return s.cache.Snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ══════════════════════════════════════════════════════════════════════════════

func cacheKey() string {
	return shared.SystemProfile.Key(shared.RecordContentCache)
}

// Load restores the persisted cache snapshot. A missing record leaves the
// cache empty.
func (s *ContentService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var entries []content.Entry
	found, err := shared.LoadJSON(ctx, s.store, cacheKey(), &entries)
	if err != nil {
		return err
	}
	if found {
		s.cache.Restore(entries)
		s.log.Debug("content cache restored", logger.F("entries", s.cache.Size()))
	}
	return nil
}

// Save writes the cache snapshot wholesale.
func (s *ContentService) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	return shared.SaveJSON(ctx, s.store, cacheKey(), s.cache.Snapshot())
}

// persist saves and logs failures; the in-memory cache stays authoritative.
func (s *ContentService) persist(ctx context.Context) {
	if err := s.Save(ctx); err != nil {
		s.log.Warn("failed to persist content cache", logger.Err(err))
	}
}

func (s *ContentService) publish(e shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(e); err != nil {
		s.log.Warn("failed to publish event", logger.F("event_type", string(e.EventType())), logger.Err(err))
	}
}
