package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/ddevcap/seatgrid/config"
)

// limiterIdleTTL is how long a client's bucket is kept after its last
// request. A client returning after that starts with a full bucket, which is
// what it would have refilled to anyway.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter returns a per-client-IP token bucket middleware and a stop
// function that ends the background eviction of idle buckets.
// APIRateLimit <= 0 disables limiting.
func RateLimiter(cfg config.Config) (gin.HandlerFunc, func()) {
	if cfg.APIRateLimit <= 0 {
		return func(c *gin.Context) { c.Next() }, func() {}
	}

	limit := rate.Limit(cfg.APIRateLimit)
	burst := max(cfg.APIBurst, 1)
	buckets := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](limiterIdleTTL),
	)
	go buckets.Start()

	mw := func(c *gin.Context) {
		item, _ := buckets.GetOrSetFunc(ClientIP(c), func() *rate.Limiter {
			return rate.NewLimiter(limit, burst)
		})
		if !item.Value().Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
	return mw, buckets.Stop
}

// ClientIP extracts the client IP using Gin's built-in ClientIP method,
// which honours the engine's trusted-proxy configuration and safely handles
// X-Forwarded-For chains. Falls back to RemoteAddr when no proxy is trusted.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}
