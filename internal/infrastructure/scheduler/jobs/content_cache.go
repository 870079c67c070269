// Package jobs contains the scheduled maintenance jobs of the learning hub.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/web3-hub/learning-hub/internal/application/service"
	"github.com/web3-hub/learning-hub/internal/domain/content"
)

// ContentCache is the part of the content service the jobs drive.
type ContentCache interface {
	CleanOldCache(ctx context.Context) int
	Save(ctx context.Context) error
	GetCachedContent(path string) (content.Entry, bool)
	FetchLessonContent(ctx context.Context, path string) service.LessonContent
}

// ══════════════════════════════════════════════════════════════════════════════
// CLEAN CONTENT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// CleanContentCacheJob drops cached lessons older than the cache max age.
type CleanContentCacheJob struct {
	cache  ContentCache
	logger *slog.Logger
}

// NewCleanContentCacheJob creates the job.
func NewCleanContentCacheJob(cache ContentCache, logger *slog.Logger) *CleanContentCacheJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanContentCacheJob{cache: cache, logger: logger.With("job", "clean_content_cache")}
}

func (j *CleanContentCacheJob) Name() string { return "clean_content_cache" }

func (j *CleanContentCacheJob) Description() string {
	return "Removes cached lesson content older than the cache max age"
}

func (j *CleanContentCacheJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed := j.cache.CleanOldCache(ctx)
	j.logger.Debug("stale lessons removed", "removed", removed)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSIST CONTENT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// PersistContentCacheJob writes the cache snapshot so a restart does not
// refetch every lesson.
type PersistContentCacheJob struct {
	cache ContentCache
}

// NewPersistContentCacheJob creates the job.
func NewPersistContentCacheJob(cache ContentCache) *PersistContentCacheJob {
	return &PersistContentCacheJob{cache: cache}
}

func (j *PersistContentCacheJob) Name() string { return "persist_content_cache" }

func (j *PersistContentCacheJob) Description() string {
	return "Saves the content cache snapshot to the store"
}

func (j *PersistContentCacheJob) Run(ctx context.Context) error {
	if err := j.cache.Save(ctx); err != nil {
		return fmt.Errorf("save content cache: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WARM CONTENT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// DefaultWarmConcurrency bounds parallel fetches while warming.
const DefaultWarmConcurrency = 4

// WarmContentCacheJob fetches every lesson that is not cached yet.
type WarmContentCacheJob struct {
	cache       ContentCache
	paths       []string
	concurrency int
	logger      *slog.Logger
}

// NewWarmContentCacheJob creates a job warming paths, typically every
// lesson path of the catalog.
func NewWarmContentCacheJob(cache ContentCache, paths []string, concurrency int, logger *slog.Logger) *WarmContentCacheJob {
	if concurrency <= 0 {
		concurrency = DefaultWarmConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WarmContentCacheJob{
		cache:       cache,
		paths:       paths,
		concurrency: concurrency,
		logger:      logger.With("job", "warm_content_cache"),
	}
}

func (j *WarmContentCacheJob) Name() string { return "warm_content_cache" }

func (j *WarmContentCacheJob) Description() string {
	return "Prefetches lessons missing from the content cache"
}

// Run fails only when every attempted lesson fell back to the placeholder,
// which means no content source is reachable.
func (j *WarmContentCacheJob) Run(ctx context.Context) error {
	var missing []string
	for _, p := range j.paths {
		if _, ok := j.cache.GetCachedContent(p); !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	results := make([]bool, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i, p := range missing {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = !j.cache.FetchLessonContent(gctx, p).IsFallback
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fetched := 0
	for _, ok := range results {
		if ok {
			fetched++
		}
	}
	j.logger.Info("content cache warmed", "attempted", len(missing), "fetched", fetched)

	if fetched == 0 {
		return fmt.Errorf("warm content cache: all %d lessons unavailable", len(missing))
	}
	return nil
}
