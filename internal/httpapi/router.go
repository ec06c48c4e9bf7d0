// Package httpapi implements the HTTP control plane: gin router, Basic
// auth + rate limiting, and the list/logs/start/restart/kill handlers.
package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/oh-project/procd/internal/httpapi/middleware"
	"github.com/oh-project/procd/internal/logbuf"
	"github.com/oh-project/procd/internal/registry"
)

// Starter spawns a fresh supervisor goroutine for the named config entry,
// used by POST /api/process/:name/start. Implemented by cmd/procd, kept
// here as a narrow interface so this package doesn't depend on the
// supervisor package's goroutine-management details.
type Starter interface {
	StartProcess(name string) error
}

// Deps bundles everything the HTTP surface needs to read or act on.
type Deps struct {
	Reg     *registry.Registry
	Logs    *logbuf.Buffer
	Auth    middleware.Credentials
	Limiter *middleware.FailureLimiter
	Starter Starter
	Log     *zap.Logger
}

// zapRequestLogger logs method/route/status/client_ip/user_agent/latency
// for every request; errors escalate the log level.
func zapRequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// authMiddleware adapts middleware.Authenticate to gin, extracting the
// client IP and Basic-auth tuple from the real *http.Request.
func authMiddleware(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, hasAuth := c.Request.BasicAuth()
		if !middleware.Authenticate(c, c.ClientIP(), user, pass, hasAuth, deps.Auth, deps.Limiter) {
			return
		}
		c.Next()
	}
}

// NewRouter builds the gin engine and registers the control-plane routes.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})

	r.Use(gin.Recovery())

	if os.Getenv("PROCD_ENV") == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(zapRequestLogger(deps.Log))
	r.Use(middleware.RequestID())
	r.Use(authMiddleware(deps))

	r.GET("/", indexHandler)
	r.GET("/api/logs", logsHandler(deps))
	r.GET("/api/processes", processesHandler(deps))
	r.POST("/api/process/:name/start", startHandler(deps))
	r.POST("/api/process/:name/restart", restartHandler(deps))
	r.POST("/api/process/:name/kill", killHandler(deps))

	return r
}

// NewServer wraps r in an *http.Server with conservative timeouts
// (ReadTimeout/WriteTimeout/IdleTimeout/MaxHeaderBytes), logging through
// zap's stdlib adapter.
func NewServer(addr string, r http.Handler, log *zap.Logger) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}
}
