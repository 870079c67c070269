// Package handlers contains HTTP middleware and health checks shared by the
// API server.
//
// # Health Checks
//
// A CompositeHealthChecker runs named checks in parallel. Required checks
// decide readiness; optional ones only mark the service degraded:
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("store", handlers.NewStoreCheck(store))
//	checker.AddCheck("redis", handlers.NewPingCheck(redisStore))
//	checker.AddOptionalCheck("remote_origin", handlers.NewBreakerCheck(remote))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    log.Printf("not ready: %s", status.Message)
//	}
//
// # Middleware
//
// All middleware is gin.HandlerFunc:
//
//	r := gin.New()
//	r.Use(
//	    handlers.RequestID(log),
//	    handlers.Logging(log),
//	    handlers.Recovery(log, onPanic),
//	    handlers.CORS([]string{"http://localhost:5173"}),
//	    handlers.SecurityHeaders(),
//	)
//
// RequestID attaches a request-scoped *logger.Logger to the request
// context; handlers retrieve it with logger.FromContext.
package handlers
