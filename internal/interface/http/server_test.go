package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/internal/application/command"
	"github.com/web3-hub/learning-hub/internal/application/query"
	"github.com/web3-hub/learning-hub/internal/application/service"
	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/preferences"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/infrastructure/external/github"
	"github.com/web3-hub/learning-hub/internal/infrastructure/persistence/memory"
	"github.com/web3-hub/learning-hub/internal/interface/http/handlers"
	"github.com/web3-hub/learning-hub/pkg/logger"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

const mirroredPath = "zh/Web3QuickStart/01_FirstWeb3Identity"

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Meta      *ResponseMeta   `json:"meta"`
	RequestID string          `json:"request_id"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	clock   *timeutil.FakeClock
	checker *handlers.CompositeHealthChecker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mirror := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mirror, filepath.FromSlash(mirroredPath)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mirror, filepath.FromSlash(mirroredPath), "README.md"), []byte("# First Web3 Identity"), 0o644))
	dir, err := github.NewDirSource(mirror)
	require.NoError(t, err)

	store := memory.NewStore()
	catalog := course.Default()
	clock := timeutil.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	prefs := preferences.NewRepository(store)
	progressRepo := progress.NewKVRepository(store)

	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("store", handlers.NewStoreCheck(store))

	srv := NewServer(Config{Port: 0, EnableCORS: true, AllowedOrigins: []string{"*"}, MaxBodyBytes: 1 << 10}, Dependencies{
		Progress: service.NewProgressService(service.ProgressServiceConfig{
			Repository: progressRepo,
			Catalog:    catalog,
			Clock:      clock,
			Calendar:   timeutil.NewCalendar(time.UTC),
		}),
		Content: service.NewContentService(service.ContentServiceConfig{
			Cache:   content.NewCache(content.DefaultMaxEntries, clock),
			Sources: []content.Source{dir},
			Catalog: catalog,
			Store:   store,
			Clock:   clock,
		}),
		UpdatePreferencesHandler: command.NewUpdatePreferencesHandler(prefs),
		ResetPreferencesHandler:  command.NewResetPreferencesHandler(prefs),
		SearchHistoryHandler:     command.NewSearchHistoryHandler(prefs),
		SearchLessonsHandler:     query.NewSearchLessonsHandler(course.NewSearchIndex(catalog), prefs),
		GetLearnerStatsHandler:   query.NewGetLearnerStatsHandler(progressRepo, catalog),
		GetPreferencesHandler:    query.NewGetPreferencesHandler(prefs),
		Logger:                   logger.Nop(),
		HealthChecker:            checker,
	})
	return &testServer{t: t, handler: srv.Handler(), clock: clock, checker: checker}
}

func (ts *testServer) do(method, path, profile string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()

	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if profile != "" {
		req.Header.Set(handlers.HeaderProfileID, profile)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestServer_HealthAndRequestID(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get(handlers.HeaderRequestID))
	assert.Equal(t, rec.Header().Get(handlers.HeaderRequestID), env.RequestID)

	status := decode[handlers.HealthStatus](t, env)
	assert.True(t, status.Ready)
	assert.True(t, status.Checks["store"].Healthy)

	ts.checker.AddOptionalCheck("remote_origin", func(context.Context) error { return errors.New("down") })
	rec, env = ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "optional failures keep the service ready")
	status = decode[handlers.HealthStatus](t, env)
	assert.False(t, status.Healthy)

	ts.checker.AddCheck("store", func(context.Context) error { return errors.New("disk full") })
	rec, _ = ts.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_CompleteLessonFlow(t *testing.T) {
	ts := newTestServer(t)
	key := course.LessonKey("module-1", "1-1")

	rec, env := ts.do(http.MethodPost, "/api/v1/lessons/"+key+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[service.LessonCompletion](t, env)
	assert.True(t, done.Newly)
	assert.Equal(t, progress.LessonXP, done.TotalExperience)
	assert.Equal(t, "alice", env.Meta.Profile)

	// Idempotent.
	_, env = ts.do(http.MethodPost, "/api/v1/lessons/"+key+"/complete", "alice", nil)
	again := decode[service.LessonCompletion](t, env)
	assert.False(t, again.Newly)
	assert.Equal(t, progress.LessonXP, again.TotalExperience)

	_, env = ts.do(http.MethodGet, "/api/v1/lessons/"+key+"/progress", "alice", nil)
	assert.Equal(t, true, decode[map[string]interface{}](t, env)["completed"])

	// Another profile sees nothing.
	_, env = ts.do(http.MethodGet, "/api/v1/lessons/"+key+"/progress", "bob", nil)
	assert.Equal(t, false, decode[map[string]interface{}](t, env)["completed"])

	rec, env = ts.do(http.MethodGet, "/api/v1/modules/module-1/progress", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mp := decode[map[string]interface{}](t, env)
	assert.EqualValues(t, 1, mp["completed"])
	assert.EqualValues(t, 7, mp["total"])

	rec, _ = ts.do(http.MethodGet, "/api/v1/modules/module-99/progress", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_InvalidProfile(t *testing.T) {
	ts := newTestServer(t)

	for _, p := range []string{"system", "bad profile", strings.Repeat("x", 65)} {
		rec, env := ts.do(http.MethodGet, "/api/v1/stats", p, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, p)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_profile", env.Error.Code)
	}
}

func TestServer_Badges(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/badges/web3-pioneer", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	award := decode[service.BadgeAward](t, env)
	assert.Equal(t, progress.BadgeXP, award.TotalExperience)

	rec, _ = ts.do(http.MethodPost, "/api/v1/badges/web3-pioneer", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, env = ts.do(http.MethodGet, "/api/v1/badges/web3-pioneer", "", nil)
	assert.Equal(t, true, decode[map[string]interface{}](t, env)["earned"])

	_, env = ts.do(http.MethodGet, "/api/v1/badges", "", nil)
	views := decode[[]badgeView](t, env)
	require.Len(t, views, len(course.Default().Badges()))
	earned := 0
	for _, v := range views {
		if v.Earned {
			earned++
			assert.Equal(t, "web3-pioneer", v.ID)
			assert.NotNil(t, v.EarnedAt)
		}
	}
	assert.Equal(t, 1, earned)
	assert.Equal(t, 1, env.Meta.TotalCount)
}

func TestServer_Quiz(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/quiz/1-1", "", map[string]int{"score": 3, "total": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]interface{}](t, env)["isPerfect"])

	rec, env = ts.do(http.MethodPost, "/api/v1/quiz/1-1", "", map[string]int{"score": 4, "total": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, _ = ts.do(http.MethodPost, "/api/v1/quiz/1-1", "", map[string]int{"score": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ExperienceAndStats(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(http.MethodPost, "/api/v1/experience", "", map[string]interface{}{"amount": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := ts.do(http.MethodPost, "/api/v1/experience", "", map[string]interface{}{"amount": 600, "reason": "event"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 600, decode[map[string]interface{}](t, env)["totalExperience"])

	rec, env = ts.do(http.MethodGet, "/api/v1/stats?lang=en", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[query.LearnerStatsDTO](t, env)
	assert.Equal(t, progress.TitleApprentice, stats.Title)
	assert.Equal(t, "Web3 Apprentice", stats.TitleName)

	rec, _ = ts.do(http.MethodGet, "/api/v1/stats?lang=fr", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ResetKeepsWallet(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(http.MethodPut, "/api/v1/wallet", "", map[string]string{"address": "0xabc"})
	require.Equal(t, http.StatusOK, rec.Code)
	ts.do(http.MethodPost, "/api/v1/lessons/"+course.LessonKey("module-1", "1-1")+"/complete", "", nil)

	rec, _ = ts.do(http.MethodDelete, "/api/v1/progress", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, env := ts.do(http.MethodGet, "/api/v1/stats", "", nil)
	stats := decode[query.LearnerStatsDTO](t, env)
	assert.Zero(t, stats.TotalExperience)
	assert.Zero(t, stats.CompletedLessons)
	assert.Equal(t, "0xabc", stats.WalletAddress)
	assert.True(t, stats.Connected)
}

func TestServer_ContentAndCache(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodGet, "/api/v1/content/"+mirroredPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lc := decode[service.LessonContent](t, env)
	assert.Equal(t, "# First Web3 Identity", lc.Content)
	assert.Equal(t, content.TierLocal, lc.Tier)
	assert.False(t, lc.IsFallback)

	_, env = ts.do(http.MethodGet, "/api/v1/content/"+mirroredPath, "", nil)
	assert.Equal(t, content.TierCache, decode[service.LessonContent](t, env).Tier)

	// Catalog lessons that fail to load degrade to the placeholder.
	rec, env = ts.do(http.MethodGet, "/api/v1/content/en/Web3QuickStart/02_FirstWeb3Transaction", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	missing := decode[service.LessonContent](t, env)
	assert.True(t, missing.IsFallback)
	assert.Equal(t, course.Default().Fallback(course.LangEN), missing.Content)

	// Paths outside the catalog are rejected before any fetch.
	rec, _ = ts.do(http.MethodGet, "/api/v1/content/en/Missing/Lesson", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = ts.do(http.MethodGet, "/api/v1/cache/"+mirroredPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mirroredPath, decode[content.Entry](t, env).Path)

	rec, _ = ts.do(http.MethodGet, "/api/v1/cache/en/Missing/Lesson", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Entries age out after seven days.
	ts.clock.Advance(7*24*time.Hour + time.Second)
	rec, env = ts.do(http.MethodPost, "/api/v1/cache/clean", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, env)["removed"])

	ts.do(http.MethodGet, "/api/v1/lessons/"+course.LessonKey("module-1", "1-1")+"/content", "", nil)
	rec, env = ts.do(http.MethodDelete, "/api/v1/cache/entries/"+mirroredPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, env)["removed"])

	rec, env = ts.do(http.MethodDelete, "/api/v1/cache", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]interface{}](t, env)["size"])
}

func TestServer_SearchRecordsHistory(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodGet, "/api/v1/search?q=taproot&lang=en", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[query.SearchLessonsResult](t, env)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, course.LessonKey("module-2", "2-6"), res.Hits[0].Lesson.Key())

	ts.do(http.MethodGet, "/api/v1/search?q=segwit&lang=en&record=false", "", nil)
	ts.do(http.MethodPost, "/api/v1/search/history", "", map[string]string{"query": "multisig"})

	_, env = ts.do(http.MethodGet, "/api/v1/search/history", "", nil)
	assert.Equal(t, []interface{}{"multisig", "taproot"}, decode[map[string]interface{}](t, env)["searchHistory"])

	rec, env = ts.do(http.MethodDelete, "/api/v1/search/history/taproot", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"multisig"}, decode[command.SearchHistoryResult](t, env).Queries)

	rec, _ = ts.do(http.MethodPost, "/api/v1/search/history", "", map[string]string{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = ts.do(http.MethodDelete, "/api/v1/search/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[command.SearchHistoryResult](t, env).Queries)
}

func TestServer_Preferences(t *testing.T) {
	ts := newTestServer(t)

	_, env := ts.do(http.MethodGet, "/api/v1/preferences", "", nil)
	assert.Equal(t, course.DefaultLanguage, decode[query.PreferencesDTO](t, env).Language)

	rec, env := ts.do(http.MethodPut, "/api/v1/preferences", "", map[string]string{"language": "en", "geminiApiKey": "AIzaSecret1234"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "AIzaSecret1234")

	var updated struct {
		Preferences   preferences.View `json:"preferences"`
		ChangedFields []string         `json:"changedFields"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, course.LangEN, updated.Preferences.Language)
	assert.True(t, updated.Preferences.APIKeySet)
	assert.Equal(t, []string{"language", "tutor_api_key"}, updated.ChangedFields)

	rec, _ = ts.do(http.MethodPut, "/api/v1/preferences", "", map[string]string{"language": "fr"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Stats follow the stored language when no lang is given.
	ts.do(http.MethodPost, "/api/v1/experience", "", map[string]int{"amount": 500})
	_, env = ts.do(http.MethodGet, "/api/v1/stats", "", nil)
	assert.Equal(t, "Web3 Apprentice", decode[query.LearnerStatsDTO](t, env).TitleName)

	rec, env = ts.do(http.MethodDelete, "/api/v1/preferences", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.False(t, updated.Preferences.APIKeySet)
}

func TestServer_BodyLimitAndCORS(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPut, "/api/v1/preferences", "", map[string]string{"geminiApiKey": strings.Repeat("k", 2048)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "payload_too_large", env.Error.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", handlers.HeaderProfileID)
	out := httptest.NewRecorder()
	ts.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNoContent, out.Code)
	assert.Equal(t, "*", out.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
}
