package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/halostencil/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// BranchInfo describes one registered stencil branch.
type BranchInfo struct {
	Disp   []int   `json:"disp"`
	Weight float64 `json:"weight"`
	Halos  int     `json:"halos"`
}

// RankStatus is the snapshot served on /stencil.
type RankStatus struct {
	Rank       int          `json:"rank"`
	Size       int          `json:"size"`
	LocalShape []int        `json:"local_shape"`
	Version    uint64       `json:"version"`
	Branches   []BranchInfo `json:"branches"`
}

// AdminServer exposes health, metrics and the stencil table of one rank.
type AdminServer struct {
	rank     int
	status   func() RankStatus
	guard    auth.Validator
	router   *gin.Engine
	appeared time.Time
}

type AdminOption func(*AdminServer)

// WithTokenGuard requires a bearer token accepted by v on every route except
// /health.
func WithTokenGuard(v auth.Validator) AdminOption {
	return func(s *AdminServer) { s.guard = v }
}

func NewAdminServer(rank int, status func() RankStatus, opts ...AdminOption) *AdminServer {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger))
	r.Use(RequestMetricsMiddleware(rank))

	s := &AdminServer{rank: rank, status: status, router: r, appeared: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *AdminServer) Handler() http.Handler {
	return s.router
}

func (s *AdminServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"rank":   s.rank,
			"uptime": time.Since(s.appeared).String(),
		})
	})

	guarded := s.router.Group("/")
	if s.guard != nil {
		guarded.Use(TokenGuard(s.guard))
	}

	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded.GET("/stencil", func(c *gin.Context) {
		if s.status == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no engine attached"})
			return
		}
		c.JSON(http.StatusOK, s.status())
	})
}

// Serve runs the admin server on ln until ctx is done.
func (s *AdminServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	served := make(chan struct{})
	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		select {
		case <-ctx.Done():
		case <-served:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Int("rank", s.rank).Str("addr", ln.Addr().String()).Msg("admin.serve")
	err := srv.Serve(ln)
	close(served)
	<-shutdown
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
