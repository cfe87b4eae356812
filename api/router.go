package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ddevcap/seatgrid/api/handler"
	"github.com/ddevcap/seatgrid/api/middleware"
	"github.com/ddevcap/seatgrid/config"
	"github.com/ddevcap/seatgrid/upstream"
)

// corsMiddleware returns a gin-contrib/cors middleware. With no configured
// origins any origin may read the API; otherwise only the listed ones.
// The API is read-only and carries no credentials.
func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Accept", "Cache-Control", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		allowed := make(map[string]bool, len(cfg.CORSOrigins))
		for _, o := range cfg.CORSOrigins {
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
		}
		c.AllowOriginFunc = func(origin string) bool {
			return allowed[strings.ToLower(origin)]
		}
	}
	return cors.New(c)
}

// NewRouter builds the HTTP handler and returns it with a stop function
// for the rate limiter's background eviction.
func NewRouter(svc handler.LibraryService, cfg config.Config, health *upstream.HealthChecker, wsHub *handler.WSHub) (http.Handler, func()) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(), corsMiddleware(cfg))

	limitMW, stopLimiter := middleware.RateLimiter(cfg)

	libraryH := handler.NewLibraryHandler(svc, wsHub, cfg.WatchInterval)
	systemH := handler.NewSystemHandler(health)

	apiGroup := r.Group("/api", limitMW)
	{
		apiGroup.GET("/libraries", libraryH.ListLibraries)
		apiGroup.GET("/libraries/:libraryId/availability", libraryH.GetAvailability)
		apiGroup.GET("/libraries/:libraryId/availability/watch", libraryH.WatchAvailability)
		apiGroup.GET("/libraries/:libraryId/areas/map-urls", libraryH.GetAreaMapURLs)
	}

	// Health probes are not rate limited.
	r.GET("/health", systemH.HealthLive)
	r.GET("/ready", systemH.HealthReady)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return r, stopLimiter
}
