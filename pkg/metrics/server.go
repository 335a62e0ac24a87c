package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports whether a wired component is currently healthy; a
// non-nil error becomes part of the /healthz response body.
type HealthFunc func(ctx context.Context) error

// Server exposes /metrics (Prometheus exposition format) and /healthz
// (aggregate component health) over HTTP, a minimal observability
// surface for the supervisor process.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	checks map[string]HealthFunc
}

// NewServer builds a Server listening on addr. Pass gin.ReleaseMode via
// gin.SetMode before calling this in production; CAKE doesn't set it
// itself so callers retain control over the rest of their process.
func NewServer(addr string, checks map[string]HealthFunc) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, checks: checks}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", s.handleHealth)

	s.http = &http.Server{Addr: addr, Handler: engine, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"status": statusText(status), "components": results})
}

func statusText(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "degraded"
}

// ListenAndServe starts serving until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
