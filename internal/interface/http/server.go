// Package http implements the REST API of the learning hub: lesson
// progress, badges, lesson content, search and preferences.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/web3-hub/learning-hub/internal/application/command"
	"github.com/web3-hub/learning-hub/internal/application/query"
	"github.com/web3-hub/learning-hub/internal/application/service"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/internal/interface/http/handlers"
	"github.com/web3-hub/learning-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response. Must cover
	// a content fetch that walks every source.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies.
	MaxBodyBytes int64

	// EnableCORS - enable CORS headers.
	EnableCORS bool

	// AllowedOrigins - allowed origins for CORS. "*" allows any.
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// Version is reported in response metadata and health checks.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		MaxBodyBytes:       64 << 10,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 300,
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// State containers
	Progress *service.ProgressService
	Content  *service.ContentService

	// Catalog defaults to Progress.Catalog().
	Catalog *course.Catalog

	// Command Handlers (CQRS Write Side)
	UpdatePreferencesHandler *command.UpdatePreferencesHandler
	ResetPreferencesHandler  *command.ResetPreferencesHandler
	SearchHistoryHandler     *command.SearchHistoryHandler

	// Query Handlers (CQRS Read Side)
	SearchLessonsHandler   *query.SearchLessonsHandler
	GetLearnerStatsHandler *query.GetLearnerStatsHandler
	GetPreferencesHandler  *query.GetPreferencesHandler

	// Logger
	Logger *logger.Logger

	// Health Check Dependencies
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine
	logger     *logger.Logger

	// Middleware state
	rateLimiter *rateLimiter

	// Server state
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: gin.New(),
		logger: deps.Logger,
	}

	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if s.deps.Catalog == nil && s.deps.Progress != nil {
		s.deps.Catalog = s.deps.Progress.Catalog()
	}
	if s.deps.Catalog == nil {
		s.deps.Catalog = course.Default()
	}
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewNoopHealthChecker()
	}
	if s.config.Version == "" {
		s.config.Version = "v1"
	}

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/healthz", s.handleHealth) // Kubernetes alias
	s.router.GET("/ready", s.handleReady)
	s.router.GET("/live", s.handleLive)
	s.router.GET("/", s.handleRoot)

	api := s.router.Group("/api/v1")

	// ─────────────────────────────────────────────────────────────────────────
	// Course catalog and lesson content (shared by every profile)
	// ─────────────────────────────────────────────────────────────────────────
	public := api.Group("", handlers.CacheControl(5*time.Minute))
	public.GET("/catalog", s.handleGetCatalog)
	public.GET("/content/*path", s.handleGetContent)

	cache := api.Group("/cache", handlers.NoCache())
	cache.GET("/*path", s.handleGetCached)
	cache.DELETE("", s.handleClearCache)
	cache.DELETE("/entries/*path", s.handleRemoveCached)
	cache.POST("/clean", s.handleCleanCache)

	// ─────────────────────────────────────────────────────────────────────────
	// Learner endpoints (profile from X-Profile-ID)
	// ─────────────────────────────────────────────────────────────────────────
	learner := api.Group("", handlers.NoCache(), s.profileMiddleware())

	learner.POST("/lessons/:key/complete", s.handleCompleteLesson)
	learner.GET("/lessons/:key/progress", s.handleGetLessonProgress)
	learner.GET("/lessons/:key/content", s.handleGetLessonContent)
	learner.GET("/modules/:id/progress", s.handleGetModuleProgress)

	learner.GET("/badges", s.handleListBadges)
	learner.GET("/badges/:id", s.handleGetBadge)
	learner.POST("/badges/:id", s.handleEarnBadge)
	learner.POST("/achievements/check", s.handleCheckAchievements)

	learner.POST("/quiz/:lessonId", s.handleRecordQuiz)
	learner.POST("/experience", s.handleAddExperience)
	learner.PUT("/wallet", s.handleConnectWallet)
	learner.DELETE("/wallet", s.handleDisconnectWallet)

	learner.GET("/stats", s.handleGetStats)
	learner.DELETE("/progress", s.handleResetProgress)

	learner.GET("/search", s.handleSearch)
	learner.GET("/search/history", s.handleGetSearchHistory)
	learner.POST("/search/history", s.handleRecordSearch)
	learner.DELETE("/search/history", s.handleClearSearchHistory)
	learner.DELETE("/search/history/:query", s.handleRemoveSearch)

	learner.GET("/preferences", s.handleGetPreferences)
	learner.PUT("/preferences", s.handleUpdatePreferences)
	learner.DELETE("/preferences", s.handleResetPreferences)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// setupMiddleware installs the global middleware in order.
func (s *Server) setupMiddleware() {
	s.router.Use(
		handlers.RequestID(s.logger),
		handlers.Logging(s.logger),
		handlers.Recovery(s.logger, func(c *gin.Context) {
			writeJSONError(c, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		}),
	)

	if s.config.EnableCORS {
		s.router.Use(handlers.CORS(s.config.AllowedOrigins))
	}
	s.router.Use(handlers.SecurityHeaders())

	if s.config.MaxBodyBytes > 0 {
		s.router.Use(handlers.RequestSizeLimit(s.config.MaxBodyBytes, func(c *gin.Context) {
			writeJSONError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		}))
	}

	if s.rateLimiter != nil {
		s.router.Use(s.rateLimitMiddleware())
	}
}

// profileMiddleware resolves X-Profile-ID. A missing header selects the
// default profile.
func (s *Server) profileMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := shared.NewProfileID(strings.TrimSpace(c.GetHeader(handlers.HeaderProfileID)))
		if err != nil {
			writeJSONError(c, http.StatusBadRequest, "invalid_profile", "X-Profile-ID must be 1-64 letters, digits, '.', '_' or '-'")
			c.Abort()
			return
		}
		c.Set(handlers.ContextKeyProfile, profile.String())

		ctx := c.Request.Context()
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(logger.Profile(profile.String())))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// rateLimitMiddleware implements per-IP rate limiting.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			writeJSONError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	Profile    string    `json:"profile,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(c *gin.Context, status int, data interface{}) {
	writeJSONWithMeta(c, status, data, nil)
}

// writeJSONWithMeta writes a JSON response with custom metadata.
func writeJSONWithMeta(c *gin.Context, status int, data interface{}, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"
	meta.Profile = c.GetString(handlers.ContextKeyProfile)

	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: handlers.GetRequestID(c),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(c *gin.Context, status int, code, message string) {
	writeJSONErrorWithDetails(c, status, code, message, "")
}

// writeJSONErrorWithDetails writes an error JSON response with details.
func writeJSONErrorWithDetails(c *gin.Context, status int, code, message, details string) {
	c.JSON(status, JSONResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: &ResponseMeta{
			Timestamp: time.Now().UTC(),
		},
		RequestID: handlers.GetRequestID(c),
	})
}

// writeError maps an application error onto a status code. Storage and
// unknown failures are logged and reported without internals.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var de *shared.DomainError
	message := err.Error()
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}

	switch {
	case shared.IsValidation(err):
		writeJSONError(c, http.StatusBadRequest, "validation_error", message)
	case shared.IsNotFound(err):
		writeJSONError(c, http.StatusNotFound, "not_found", message)
	case shared.IsExternalService(err):
		writeJSONError(c, http.StatusServiceUnavailable, "service_unavailable", message)
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(c, http.StatusGatewayTimeout, "timeout", "Request timeout exceeded")
	case errors.Is(err, context.Canceled):
		// The client has gone; nothing is read.
		c.Status(499)
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", logger.Err(err), logger.String("path", c.FullPath()))
		writeJSONError(c, http.StatusInternalServerError, "internal_error", "The request could not be completed")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// profileOf returns the profile resolved by profileMiddleware.
func profileOf(c *gin.Context) shared.ProfileID {
	if p := c.GetString(handlers.ContextKeyProfile); p != "" {
		return shared.ProfileID(p)
	}
	return shared.DefaultProfile
}

// getQueryParam extracts a query parameter with a default value.
func getQueryParam(c *gin.Context, key, defaultValue string) string {
	return c.DefaultQuery(key, defaultValue)
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(c *gin.Context, key string, defaultValue int) int {
	value := c.Query(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

// getQueryParamBool extracts a boolean query parameter.
func getQueryParamBool(c *gin.Context, key string, defaultValue bool) bool {
	switch strings.ToLower(c.Query(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// pathParam returns a catch-all parameter without its leading slash.
func pathParam(c *gin.Context, name string) string {
	return strings.TrimPrefix(c.Param(name), "/")
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := pruneBefore(rl.requests[key], now.Add(-rl.window))

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		windowStart := time.Now().Add(-rl.window)
		for key, requests := range rl.requests {
			valid := pruneBefore(requests, windowStart)
			if len(valid) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = valid
			}
		}
		rl.mu.Unlock()
	}
}

func pruneBefore(times []time.Time, start time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if t.After(start) {
			valid = append(valid, t)
		}
	}
	return valid
}
