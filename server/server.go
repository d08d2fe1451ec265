// Package server is an ambient, read-only status surface: a health
// check, a Prometheus scrape target, three read-only JSON listings,
// and an Atom feed of recent alerts. It carries no session auth and
// no mutation endpoints. Built on labstack/echo/v4.
package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/yuin/goldmark"

	"github.com/ivybound/taskrunner/internal/feed"
	"github.com/ivybound/taskrunner/internal/obsmetrics"
	"github.com/ivybound/taskrunner/internal/store"
)

// Server is the minimal operational surface fronting the Run Store.
type Server struct {
	echo *echo.Echo
	addr string
	st   *store.Store
	obs  *obsmetrics.Exporter
	base feed.BaseURL
}

// New builds a Server listening on addr (host:port), optionally rooted
// under rootPath (empty means "/").
func New(st *store.Store, obs *obsmetrics.Exporter, addr, rootPath, base string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{echo: e, addr: addr, st: st, obs: obs, base: feed.BaseURL(base)}

	group := e.Group(rootPath)
	group.GET("/healthz", s.handleHealthz)
	if obs != nil {
		group.GET("/metrics", echo.WrapHandler(obs.Handler()))
	}
	group.GET("/api/v1/tasks", s.handleListTasks)
	group.GET("/api/v1/runs", s.handleListRuns)
	group.GET("/api/v1/alerts", s.handleListAlerts)
	group.GET("/feed/alerts.atom", s.handleAlertsFeed)

	return s
}

// Handler exposes the underlying http.Handler for embedding behind a
// reverse proxy, or for driving the routes directly in tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start begins serving in the current goroutine; it returns
// http.ErrServerClosed on a graceful Shutdown, matching echo's own
// convention.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// taskView adds a sanitized HTML rendering of the free-text remark
// field, so the status surface can show operator notes without
// shipping raw Markdown to the browser.
type taskView struct {
	*store.Task
	RemarkHTML string `json:"remark_html"`
}

func (s *Server) handleListTasks(c echo.Context) error {
	tasks, err := s.st.ListTasks(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView{Task: t, RemarkHTML: renderRemark(t.Remark)})
	}
	return c.JSON(http.StatusOK, views)
}

func renderRemark(remark string) string {
	if remark == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(remark), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 100
	runs, err := s.st.ListRecentRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleListAlerts(c echo.Context) error {
	limit := 200
	alerts, err := s.st.ListRecentAlerts(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleAlertsFeed(c echo.Context) error {
	alerts, err := s.st.ListRecentAlerts(c.Request().Context(), 50)
	if err != nil {
		return c.String(http.StatusInternalServerError, fmt.Sprintf("building feed: %s", err))
	}
	xml, err := feed.BuildAlertsFeed(alerts, s.base)
	if err != nil {
		return c.String(http.StatusInternalServerError, fmt.Sprintf("rendering feed: %s", err))
	}
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(xml))
}
