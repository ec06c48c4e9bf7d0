package middleware

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"
)

// failureWindow and maxFailures define the ban policy: 10 failed attempts
// from one client IP within 120s earns a 403 until the window empties out.
const (
	failureWindow = 120 * time.Second
	maxFailures   = 10
	sweepInterval = 60 * time.Second
)

// Credentials is the single configured Basic-auth identity. An empty
// Username disables authentication entirely (Enabled reports false).
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Enabled() bool { return c.Username != "" }

func (c Credentials) check(user, pass string) bool {
	// Constant-time compare on both fields to avoid timing side channels.
	okUser := subtle.ConstantTimeCompare([]byte(user), []byte(c.Username)) == 1
	okPass := subtle.ConstantTimeCompare([]byte(pass), []byte(c.Password)) == 1
	return okUser && okPass
}

// FailureLimiter tracks recent authentication failures per client IP,
// adapted from the original Rust AuthState/DashMap pattern to a single
// mutex-guarded map, matching the Registry's own concurrency idiom.
type FailureLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
}

// NewFailureLimiter constructs an empty limiter. Callers should run
// Sweep in a background goroutine for the daemon's lifetime.
func NewFailureLimiter() *FailureLimiter {
	return &FailureLimiter{history: make(map[string][]time.Time)}
}

// banned reports whether ip has reached maxFailures within failureWindow.
func (l *FailureLimiter) banned(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(ip, time.Now())) >= maxFailures
}

// recordFailure appends a failure timestamp for ip.
func (l *FailureLimiter) recordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	kept := l.prune(ip, now)
	l.history[ip] = append(kept, now)
}

// prune returns (and stores) ip's failures with anything older than
// failureWindow dropped. Caller must hold l.mu.
func (l *FailureLimiter) prune(ip string, now time.Time) []time.Time {
	kept := l.history[ip][:0]
	for _, t := range l.history[ip] {
		if now.Sub(t) < failureWindow {
			kept = append(kept, t)
		}
	}
	l.history[ip] = kept
	return kept
}

// Sweep runs forever, evicting empty per-IP windows every sweepInterval.
// Blocking: call it via `go limiter.Sweep()`.
func (l *FailureLimiter) Sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		l.mu.Lock()
		for ip := range l.history {
			if len(l.prune(ip, now)) == 0 {
				delete(l.history, ip)
			}
		}
		l.mu.Unlock()
	}
}

// responseContext is the minimal response surface this middleware needs,
// satisfied by *gin.Context without importing gin here, so the limiter
// and credential check stay framework-agnostic and independently
// testable.
type responseContext interface {
	Header(key, value string)
	AbortWithStatus(code int)
}

// Authenticate applies HTTP Basic auth + the per-IP failure limiter,
// given the already-extracted client IP and Basic-auth tuple (gin's
// ClientIP()/Request.BasicAuth() callers do this extraction). It returns
// true if the request may proceed; on failure it writes the appropriate
// status onto ctx.
func Authenticate(ctx responseContext, ip, user, pass string, hasAuth bool, creds Credentials, limiter *FailureLimiter) bool {
	if !creds.Enabled() {
		return true
	}

	if limiter.banned(ip) {
		ctx.AbortWithStatus(http.StatusForbidden)
		return false
	}

	if hasAuth && creds.check(user, pass) {
		return true
	}

	limiter.recordFailure(ip)
	ctx.Header("WWW-Authenticate", `Basic realm="procd"`)
	ctx.AbortWithStatus(http.StatusUnauthorized)
	return false
}
