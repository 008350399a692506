package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// staleAfter is how long an idle caller's limiter survives before the
// next sweep reclaims it.
const staleAfter = 10 * time.Minute

// RateLimit creates a per-caller rate limiting middleware. Limiters
// are keyed by client IP; entries idle past staleAfter are reclaimed
// on the next sweep.
func RateLimit(requestsPerSecond, burst int) gin.HandlerFunc {
	type caller struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu        sync.Mutex
		callers   = make(map[string]*caller)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > staleAfter {
			for key, entry := range callers {
				if now.Sub(entry.lastSeen) > staleAfter {
					delete(callers, key)
				}
			}
			lastSweep = now
		}
		entry, ok := callers[ip]
		if !ok {
			entry = &caller{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
			callers[ip] = entry
		}
		entry.lastSeen = now
		limiter := entry.limiter
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
