// Package server exposes a read-only HTTP view of the launcher: the state
// table, a health check, and Prometheus metrics. It never mutates
// processes; all lifecycle control stays on the launcher's control flow.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/icpac-igad/arco-ibf/internal/metrics"
	"github.com/icpac-igad/arco-ibf/internal/service"
)

// Source is what the router reads. Satisfied by the supervisor plus a
// sequencer-state accessor on the launcher.
type Source interface {
	Snapshot() []service.Status
	StartupState() string
}

// Router provides embeddable HTTP handlers.
// Endpoints:
//
//	GET {basePath}/status   full state table
//	GET {basePath}/healthz  200 once all services are up, 503 otherwise
//	GET {basePath}/metrics  Prometheus metrics
type Router struct {
	src      Source
	basePath string
}

func NewRouter(src Source, basePath string) *Router {
	return &Router{src: src, basePath: sanitizeBase(basePath)}
}

// Handler returns a gin-powered http.Handler that can be mounted anywhere.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone status server on addr.
func NewServer(addr, basePath string, src Source) *http.Server {
	r := NewRouter(src, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type statusResp struct {
	State    string           `json:"state"`
	Services []service.Status `json:"services"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResp{
		State:    r.src.StartupState(),
		Services: r.src.Snapshot(),
	})
}

func (r *Router) handleHealthz(c *gin.Context) {
	if r.src.StartupState() == "all_ready" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "state": r.src.StartupState()})
}

func sanitizeBase(bp string) string {
	bp = strings.TrimRight(bp, "/")
	if bp != "" && !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return bp
}
