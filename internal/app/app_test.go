package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/config"
	"github.com/web3-hub/learning-hub/internal/application/service"
	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

const firstLesson = "zh/Web3QuickStart/01_FirstWeb3Identity"

func writeMirror(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	lessonDir := filepath.Join(dir, filepath.FromSlash(firstLesson))
	require.NoError(t, os.MkdirAll(lessonDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lessonDir, "README.md"), []byte("# Identity"), 0o644))
	return dir
}

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("FEATURE_CONTENT_REMOTE_ORIGIN", "false")
	t.Setenv("CONTENT_LOCAL_BASE", writeMirror(t))
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *App {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = timeutil.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	}
	opts.LogOutput = io.Discard
	a, err := New(context.Background(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_MemoryBackend(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"STORAGE_BACKEND": "memory"})
	a := newTestApp(t, cfg, Options{})
	ctx := context.Background()

	assert.Nil(t, a.Remote)
	assert.Nil(t, a.Pinger)

	profile, err := a.DefaultProfile()
	require.NoError(t, err)

	res, err := a.Progress.MarkLessonComplete(ctx, profile, "module-1-1-1")
	require.NoError(t, err)
	assert.True(t, res.Newly)

	lesson := a.Content.FetchLessonContent(ctx, firstLesson)
	assert.False(t, lesson.IsFallback)
	assert.Equal(t, content.TierLocal, lesson.Tier)
	assert.Equal(t, "# Identity", lesson.Content)
}

func TestNew_SQLiteBackendPersistsAcrossRestarts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "hub.db")
	cfg := loadConfig(t, map[string]string{
		"STORAGE_BACKEND":     "sqlite",
		"STORAGE_SQLITE_PATH": dbPath,
	})
	ctx := context.Background()

	first := newTestApp(t, cfg, Options{})
	require.NotNil(t, first.Pinger)
	require.NoError(t, first.Pinger.Ping(ctx))
	_, err := first.Progress.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	first.Content.FetchLessonContent(ctx, firstLesson)
	require.NoError(t, first.Content.Save(ctx))
	require.NoError(t, first.Close())

	second := newTestApp(t, cfg, Options{})
	done, err := second.Progress.GetLessonProgress(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, second.Content.CacheSize())
}

func TestNew_RedisBackendWithDistributedBus(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"STORAGE_BACKEND": "redis",
		"REDIS_URL":       "redis://" + mr.Addr() + "/0",
	})
	a := newTestApp(t, cfg, Options{Distributed: true})
	ctx := context.Background()

	require.NotNil(t, a.Pinger)
	require.NoError(t, a.Pinger.Ping(ctx))

	_, err := a.Progress.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())
}

func TestNew_UnreachableRedisFails(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"STORAGE_BACKEND":          "redis",
		"REDIS_URL":                "redis://127.0.0.1:1/0",
		"REDIS_DIAL_TIMEOUT":       "100ms",
		"STORAGE_CONNECT_ATTEMPTS": "2",
	})
	var logs bytes.Buffer
	_, err := New(context.Background(), cfg, Options{LogOutput: &logs})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
	assert.Equal(t, 1, strings.Count(logs.String(), "storage connection failed, retrying"))
}

func TestNew_RemoteOriginEnabled(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"STORAGE_BACKEND":               "memory",
		"FEATURE_CONTENT_REMOTE_ORIGIN": "true",
		"FEATURE_CONTENT_LOCAL_MIRROR":  "false",
	})
	a := newTestApp(t, cfg, Options{})
	require.NotNil(t, a.Remote)
	assert.Equal(t, "closed", a.Remote.BreakerState().String())
}

func TestFeatureGate(t *testing.T) {
	t.Setenv("FEATURE_GAMIFICATION_STREAKS", "false")
	flags := config.LoadFeatureFlags()
	flags.SetProfileOverride("alice", config.FeatureSpecialBadges, false)

	gate := FeatureGate(flags)
	assert.False(t, gate(service.FeatureStudyStreaks, shared.DefaultProfile))
	assert.True(t, gate(service.FeatureModuleBadges, shared.DefaultProfile))
	assert.True(t, gate(service.FeatureSpecialBadges, shared.DefaultProfile))
	assert.False(t, gate(service.FeatureSpecialBadges, "alice"))
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"STORAGE_BACKEND":    "memory",
		"JOBS_WARM_INTERVAL": "1h",
	})
	a := newTestApp(t, cfg, Options{})

	s, err := a.NewScheduler()
	require.NoError(t, err)

	var names []string
	for _, j := range s.ListJobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"clean_content_cache", "persist_content_cache", "warm_content_cache"}, names)

	result, err := s.RunNow(context.Background(), "warm_content_cache")
	require.NoError(t, err)
	assert.True(t, result.Success)
	_, cached := a.Content.GetCachedContent(firstLesson)
	assert.True(t, cached)
}

func TestLessonPaths(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"STORAGE_BACKEND": "memory"})
	a := newTestApp(t, cfg, Options{})

	paths := a.LessonPaths()
	assert.Len(t, paths, a.Catalog.LessonCount())
	assert.Equal(t, firstLesson, paths[0])
}
