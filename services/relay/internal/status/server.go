package status

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/feed"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/scheduler"
)

// Info describes the running relay for the /status endpoint.
type Info struct {
	Version     string
	Mode        string
	Destination string
	Query       feed.Query
	RateSeconds int
}

// Server exposes health, last-cycle status and metrics over HTTP.
type Server struct {
	addr    string
	info    Info
	started time.Time
	engine  *gin.Engine

	mu     sync.RWMutex
	last   *scheduler.CycleResult
	cycles int
	failed int
}

// New constructs a server. metrics may be nil to omit /metrics.
func New(addr string, info Info, metrics http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{addr: addr, info: info, started: time.Now(), engine: engine}
	s.registerRoutes(metrics)
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ObserveCycle records the most recent scheduler cycle.
func (s *Server) ObserveCycle(r scheduler.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &r
	s.cycles++
	if r.Err != nil {
		s.failed++
	}
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
}

// handleHealth reports ok until a cycle has failed.
func (s *Server) handleHealth(c *gin.Context) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last != nil && last.Err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "failing", "error": last.Err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body := gin.H{
		"version":     s.info.Version,
		"mode":        s.info.Mode,
		"destination": s.info.Destination,
		"query": gin.H{
			"lat":       s.info.Query.Lat,
			"lon":       s.info.Query.Lon,
			"radius_nm": s.info.Query.RadiusNM,
		},
		"rate_seconds":   s.info.RateSeconds,
		"started_at":     s.started.UTC().Format(time.RFC3339),
		"cycles":         s.cycles,
		"failed_cycles":  s.failed,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}

	if s.last != nil {
		last := gin.H{
			"started_at":  s.last.Started.UTC().Format(time.RFC3339Nano),
			"duration_ms": s.last.Duration.Milliseconds(),
			"fetch_ms":    s.last.FetchDuration.Milliseconds(),
			"outcome":     s.last.Outcome(),
			"received":    s.last.Received,
			"skipped":     s.last.Skipped,
			"sent":        s.last.Sent,
			"bytes":       s.last.Bytes,
		}
		if s.last.Err != nil {
			last["error"] = s.last.Err.Error()
		}
		body["last_cycle"] = last
	}

	c.JSON(http.StatusOK, body)
}
