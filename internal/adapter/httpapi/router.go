// Package httpapi exposes the relay over HTTP using gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"retryrelay/internal/adapter/scheduler"
	"retryrelay/internal/platform/httpclient"
)

// Relayer performs upstream requests with retries.
type Relayer interface {
	Request(ctx context.Context, cfg httpclient.RequestConfig) (*httpclient.Response, error)
}

// ProbeLister returns the latest probe outcomes.
type ProbeLister interface {
	Snapshot() []scheduler.ProbeResult
}

// Deps are the collaborators of the router.
type Deps struct {
	Relayer Relayer
	Probes  ProbeLister
	// NextProbe reports when the probe job fires next; zero or nil omits it
	NextProbe func() time.Time
	Log       *slog.Logger
	// Retry applies to relay requests that carry no retry block
	Retry httpclient.RetryOptions
	// AttemptTimeout bounds a single upstream attempt
	AttemptTimeout time.Duration
}

type handler struct {
	Deps
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(requestLogger(d.Log), gin.CustomRecovery(recovered(d.Log)))

	r.GET("/healthz", h.health)
	v1 := r.Group("/v1")
	v1.POST("/relay", h.relay)
	v1.GET("/probes", h.probes)
	return r
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) probes(c *gin.Context) {
	var out []scheduler.ProbeResult
	if h.Probes != nil {
		out = h.Probes.Snapshot()
	}
	if out == nil {
		out = []scheduler.ProbeResult{}
	}
	body := gin.H{"probes": out}
	if h.NextProbe != nil {
		if next := h.NextProbe(); !next.IsZero() {
			body["next_run"] = next.UTC()
		}
	}
	c.JSON(http.StatusOK, body)
}

// RequestIDHeader carries the request id, taken from the caller or generated.
const RequestIDHeader = "X-Request-ID"

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("request_id", id),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
