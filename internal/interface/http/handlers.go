package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/web3-hub/learning-hub/internal/application/command"
	"github.com/web3-hub/learning-hub/internal/application/query"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"name":        "Web3 Learning Hub API",
		"version":     s.config.Version,
		"description": "Lesson progress, badges and content for the Web3 and Bitcoin course",
		"endpoints": gin.H{
			"health":      "/health",
			"catalog":     "/api/v1/catalog",
			"content":     "/api/v1/content/{path}",
			"stats":       "/api/v1/stats",
			"search":      "/api/v1/search?q=",
			"preferences": "/api/v1/preferences",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if status.Version == "" {
		status.Version = s.config.Version
	}
	if !status.Ready {
		writeJSON(c, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(c, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		writeJSON(c, http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "alive", "uptime": s.Uptime().Round(time.Second).String()})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG & CONTENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCatalog returns modules with their lessons and every badge.
func (s *Server) handleGetCatalog(c *gin.Context) {
	writeJSONWithMeta(c, http.StatusOK, gin.H{
		"modules": s.deps.Catalog.Modules(),
		"badges":  s.deps.Catalog.Badges(),
	}, &ResponseMeta{TotalCount: s.deps.Catalog.LessonCount()})
}

// handleGetContent serves lesson markdown by content path. Paths outside
// the catalog are 404; transport failures still answer 200 with the
// placeholder and isFallback set.
func (s *Server) handleGetContent(c *gin.Context) {
	path := pathParam(c, "path")
	if path == "" {
		writeJSONError(c, http.StatusBadRequest, "validation_error", "content path is required")
		return
	}
	if _, err := s.deps.Catalog.ResolveContentPath(path); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.deps.Content.FetchLessonContent(c.Request.Context(), path))
}

// handleGetLessonContent resolves a lesson key to its content path.
func (s *Server) handleGetLessonContent(c *gin.Context) {
	lesson, ok := s.deps.Catalog.LessonByKey(c.Param("key"))
	if !ok {
		writeJSONError(c, http.StatusNotFound, "lesson_not_found", "no lesson with this key")
		return
	}
	writeJSON(c, http.StatusOK, s.deps.Content.FetchLessonContent(c.Request.Context(), lesson.Path))
}

// handleGetCached returns a cache entry without fetching.
func (s *Server) handleGetCached(c *gin.Context) {
	path := pathParam(c, "path")
	if path == "" {
		writeJSONWithMeta(c, http.StatusOK, s.deps.Content.CachedEntries(), &ResponseMeta{TotalCount: s.deps.Content.CacheSize()})
		return
	}
	entry, ok := s.deps.Content.GetCachedContent(path)
	if !ok {
		writeJSONError(c, http.StatusNotFound, "not_cached", "no cached content for this path")
		return
	}
	writeJSON(c, http.StatusOK, entry)
}

// handleRemoveCached evicts one cache entry.
func (s *Server) handleRemoveCached(c *gin.Context) {
	path := pathParam(c, "path")
	removed := s.deps.Content.RemoveCached(c.Request.Context(), path)
	writeJSON(c, http.StatusOK, gin.H{"path": path, "removed": removed, "size": s.deps.Content.CacheSize()})
}

// handleClearCache empties the content cache.
func (s *Server) handleClearCache(c *gin.Context) {
	s.deps.Content.ClearCache(c.Request.Context())
	writeJSON(c, http.StatusOK, gin.H{"size": s.deps.Content.CacheSize()})
}

// handleCleanCache evicts entries older than the configured age.
func (s *Server) handleCleanCache(c *gin.Context) {
	removed := s.deps.Content.CleanOldCache(c.Request.Context())
	writeJSON(c, http.StatusOK, gin.H{"removed": removed, "size": s.deps.Content.CacheSize()})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCompleteLesson marks a lesson complete. Repeating it changes
// nothing and reports newly=false.
func (s *Server) handleCompleteLesson(c *gin.Context) {
	res, err := s.deps.Progress.MarkLessonComplete(c.Request.Context(), profileOf(c), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// handleGetLessonProgress reports whether a lesson is complete.
func (s *Server) handleGetLessonProgress(c *gin.Context) {
	key := c.Param("key")
	done, err := s.deps.Progress.GetLessonProgress(c.Request.Context(), profileOf(c), key)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"lessonKey": key, "completed": done})
}

// handleGetModuleProgress returns completion of one catalog module.
func (s *Server) handleGetModuleProgress(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.deps.Catalog.Module(id); !ok {
		writeJSONError(c, http.StatusNotFound, "module_not_found", "no module with this id")
		return
	}
	mp, err := s.deps.Progress.GetModuleProgressByID(c.Request.Context(), profileOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"moduleId":   id,
		"completed":  mp.Completed,
		"total":      mp.Total,
		"percentage": mp.Percentage,
	})
}

// handleGetStats returns the learner dashboard.
func (s *Server) handleGetStats(c *gin.Context) {
	profile := profileOf(c)
	lang, err := s.language(c, profile)
	if err != nil {
		writeError(c, err)
		return
	}
	dto, err := s.deps.GetLearnerStatsHandler.Handle(c.Request.Context(), query.GetLearnerStatsQuery{
		Profile:  profile,
		Language: lang,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dto)
}

// handleResetProgress wipes progress. The wallet stays connected.
func (s *Server) handleResetProgress(c *gin.Context) {
	if err := s.deps.Progress.ResetProgress(c.Request.Context(), profileOf(c)); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"reset": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE, QUIZ & EXPERIENCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type badgeView struct {
	course.BadgeDefinition
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earnedAt,omitempty"`
}

// handleListBadges lists every catalog badge with the learner's status.
func (s *Server) handleListBadges(c *gin.Context) {
	st, err := s.deps.Progress.Snapshot(c.Request.Context(), profileOf(c))
	if err != nil {
		writeError(c, err)
		return
	}

	defs := s.deps.Catalog.Badges()
	views := make([]badgeView, 0, len(defs))
	for _, def := range defs {
		v := badgeView{BadgeDefinition: def}
		if eb, ok := st.EarnedBadges[def.ID]; ok {
			at := eb.Timestamp
			v.Earned = true
			v.EarnedAt = &at
		}
		views = append(views, v)
	}
	writeJSONWithMeta(c, http.StatusOK, views, &ResponseMeta{TotalCount: st.GetBadgeCount()})
}

// handleGetBadge reports whether one badge was earned.
func (s *Server) handleGetBadge(c *gin.Context) {
	id := c.Param("id")
	earned, err := s.deps.Progress.HasBadge(c.Request.Context(), profileOf(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"badgeId": id, "earned": earned}
	if def, ok := s.deps.Catalog.Badge(id); ok {
		resp["badge"] = def
	}
	writeJSON(c, http.StatusOK, resp)
}

type earnBadgeRequest struct {
	ModuleID string `json:"moduleId"`
}

// handleEarnBadge grants a badge directly. 201 on the first grant, 200
// when it was already earned.
func (s *Server) handleEarnBadge(c *gin.Context) {
	var req earnBadgeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	id := c.Param("id")
	if req.ModuleID == "" {
		if def, ok := s.deps.Catalog.Badge(id); ok {
			req.ModuleID = def.ModuleID
		}
	}

	award, err := s.deps.Progress.EarnBadge(c.Request.Context(), profileOf(c), id, req.ModuleID, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if award.Newly {
		status = http.StatusCreated
	}
	writeJSON(c, status, award)
}

// handleCheckAchievements re-evaluates every badge condition.
func (s *Server) handleCheckAchievements(c *gin.Context) {
	awarded, err := s.deps.Progress.CheckAchievements(c.Request.Context(), profileOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if awarded == nil {
		awarded = []course.BadgeDefinition{}
	}
	writeJSON(c, http.StatusOK, gin.H{"badgesEarned": awarded})
}

type quizRequest struct {
	Score *int `json:"score"`
	Total *int `json:"total"`
}

// handleRecordQuiz stores the latest quiz attempt of a lesson.
func (s *Server) handleRecordQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONErrorWithDetails(c, http.StatusBadRequest, "invalid_body", "expected {\"score\":n,\"total\":n}", err.Error())
		return
	}
	if req.Score == nil || req.Total == nil {
		writeJSONError(c, http.StatusBadRequest, "validation_error", "score and total are required")
		return
	}

	lessonID := c.Param("lessonId")
	qs, awarded, err := s.deps.Progress.RecordQuizScore(c.Request.Context(), profileOf(c), lessonID, *req.Score, *req.Total)
	if err != nil {
		writeError(c, err)
		return
	}
	if awarded == nil {
		awarded = []course.BadgeDefinition{}
	}
	writeJSON(c, http.StatusOK, gin.H{
		"lessonId":     lessonID,
		"score":        qs.Score,
		"total":        qs.Total,
		"isPerfect":    qs.IsPerfect,
		"badgesEarned": awarded,
	})
}

type experienceRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// handleAddExperience adds XP outside of lessons and badges.
func (s *Server) handleAddExperience(c *gin.Context) {
	var req experienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONErrorWithDetails(c, http.StatusBadRequest, "invalid_body", "expected {\"amount\":n}", err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	total, err := s.deps.Progress.AddExperience(c.Request.Context(), profileOf(c), req.Amount, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"totalExperience": total})
}

type walletRequest struct {
	Address string `json:"address"`
}

// handleConnectWallet stores the learner's wallet address.
func (s *Server) handleConnectWallet(c *gin.Context) {
	var req walletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONErrorWithDetails(c, http.StatusBadRequest, "invalid_body", "expected {\"address\":\"...\"}", err.Error())
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" {
		writeJSONError(c, http.StatusBadRequest, "validation_error", "address is required")
		return
	}
	if err := s.deps.Progress.ConnectWallet(c.Request.Context(), profileOf(c), req.Address); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"walletAddress": req.Address, "connected": true})
}

// handleDisconnectWallet forgets the wallet address.
func (s *Server) handleDisconnectWallet(c *gin.Context) {
	if err := s.deps.Progress.ConnectWallet(c.Request.Context(), profileOf(c), ""); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"connected": false})
}

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSearch runs a fuzzy lesson search. Non-empty queries are added
// to the history unless record=false.
func (s *Server) handleSearch(c *gin.Context) {
	profile := profileOf(c)
	q := query.SearchLessonsQuery{
		Profile:  profile,
		Query:    getQueryParam(c, "q", ""),
		Language: getQueryParam(c, "lang", ""),
		Limit:    getQueryParamInt(c, "limit", query.DefaultSearchLimit),
		Grouped:  getQueryParamBool(c, "grouped", false),
	}

	res, err := s.deps.SearchLessonsHandler.Handle(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}

	if res.Query != "" && getQueryParamBool(c, "record", true) {
		if _, err := s.deps.SearchHistoryHandler.Handle(c.Request.Context(), command.SearchHistoryCommand{
			Profile: profile,
			Action:  command.SearchHistoryRecord,
			Query:   res.Query,
		}); err != nil {
			writeError(c, err)
			return
		}
	}

	writeJSONWithMeta(c, http.StatusOK, res, &ResponseMeta{TotalCount: res.Total})
}

// handleGetSearchHistory returns recent queries, newest first.
func (s *Server) handleGetSearchHistory(c *gin.Context) {
	dto, err := s.deps.GetPreferencesHandler.Handle(c.Request.Context(), query.GetPreferencesQuery{Profile: profileOf(c)})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"searchHistory": dto.SearchHistory})
}

type searchHistoryRequest struct {
	Query string `json:"query"`
}

// handleRecordSearch adds a query to the history.
func (s *Server) handleRecordSearch(c *gin.Context) {
	var req searchHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONErrorWithDetails(c, http.StatusBadRequest, "invalid_body", "expected {\"query\":\"...\"}", err.Error())
		return
	}
	s.changeSearchHistory(c, command.SearchHistoryRecord, req.Query)
}

// handleRemoveSearch removes one query from the history.
func (s *Server) handleRemoveSearch(c *gin.Context) {
	s.changeSearchHistory(c, command.SearchHistoryRemove, c.Param("query"))
}

// handleClearSearchHistory empties the history.
func (s *Server) handleClearSearchHistory(c *gin.Context) {
	s.changeSearchHistory(c, command.SearchHistoryClear, "")
}

func (s *Server) changeSearchHistory(c *gin.Context, action command.SearchHistoryAction, q string) {
	res, err := s.deps.SearchHistoryHandler.Handle(c.Request.Context(), command.SearchHistoryCommand{
		Profile: profileOf(c),
		Action:  action,
		Query:   q,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetPreferences returns preferences with the API key masked.
func (s *Server) handleGetPreferences(c *gin.Context) {
	dto, err := s.deps.GetPreferencesHandler.Handle(c.Request.Context(), query.GetPreferencesQuery{Profile: profileOf(c)})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dto)
}

type preferencesRequest struct {
	Language            *string `json:"language"`
	TutorAPIKey         *string `json:"geminiApiKey"`
	DismissPendingBadge bool    `json:"dismissPendingBadge"`
}

// handleUpdatePreferences applies the fields present in the body.
func (s *Server) handleUpdatePreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONErrorWithDetails(c, http.StatusBadRequest, "invalid_body", "request body must be a JSON object", err.Error())
		return
	}

	res, err := s.deps.UpdatePreferencesHandler.Handle(c.Request.Context(), command.UpdatePreferencesCommand{
		Profile: profileOf(c),
		Updates: command.PreferenceUpdates{
			Language:            req.Language,
			TutorAPIKey:         req.TutorAPIKey,
			DismissPendingBadge: req.DismissPendingBadge,
		},
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	changed := res.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	writeJSON(c, http.StatusOK, gin.H{"preferences": res.Preferences, "changedFields": changed})
}

// handleResetPreferences restores default preferences.
func (s *Server) handleResetPreferences(c *gin.Context) {
	res, err := s.deps.ResetPreferencesHandler.Handle(c.Request.Context(), command.ResetPreferencesCommand{
		Profile:       profileOf(c),
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"preferences": res.Preferences})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// language picks the display language: ?lang, then Accept-Language, then
// the profile's preference.
func (s *Server) language(c *gin.Context, profile shared.ProfileID) (course.Language, error) {
	if raw := c.Query("lang"); raw != "" {
		lang, ok := course.ParseLanguage(raw)
		if !ok {
			return "", shared.ErrUnsupportedLanguage
		}
		return lang, nil
	}
	if accept := c.GetHeader("Accept-Language"); accept != "" {
		return course.NegotiateLanguage(accept), nil
	}
	dto, err := s.deps.GetPreferencesHandler.Handle(c.Request.Context(), query.GetPreferencesQuery{Profile: profile})
	if err != nil {
		return "", err
	}
	return dto.Language, nil
}

// bindOptionalJSON decodes the body if there is one. It writes the error
// response itself and returns false on malformed JSON.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSONErrorWithDetails(c, http.StatusBadRequest, "invalid_body", "request body must be a JSON object", err.Error())
		return false
	}
	return true
}
