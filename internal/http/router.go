// Package httpapi serves thread transcripts and locally stored attachments
// over Gin, with tracing, request ids, access logs, panic recovery, metrics,
// rate limiting, CORS and security headers in front of the handlers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-modmail/internal/config"
	"github.com/tbourn/go-modmail/internal/http/handlers"
	"github.com/tbourn/go-modmail/internal/http/middleware"
)

// RegisterRoutes attaches middleware and endpoints to r. files may be nil
// when attachments are not stored on local disk.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: access logs with the request id
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Rate limiter (per IP)
//  7. CORS, security headers and compression
func RegisterRoutes(r *gin.Engine, threads handlers.ThreadReader, files handlers.FileResolver, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.HTTP.RateRPS > 0 {
		r.Use(middleware.NewRateLimiter(cfg.HTTP.RateRPS, cfg.HTTP.RateBurst, middleware.KeyByIP()).Handler())
	}

	r.Use(cors.New(corsConfig(cfg.HTTP.CORSOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.HTTP.EnableHSTS,
		NoStore:    true,
	}))
	// Attachments are mostly already-compressed media.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/attachments/"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(threads, files)
	r.GET("/health", h.Health)
	r.GET("/logs/:threadID", h.Transcript)
	r.GET("/attachments/:id/:filename", h.Attachment)
}

// corsConfig allows read-only cross-origin access, from anywhere when no
// origins are configured.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Accept"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
