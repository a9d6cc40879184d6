package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leafwise/leafwise/internal/agent/core"
	"github.com/leafwise/leafwise/session"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	echo     *echo.Echo
	orch     *core.Orchestrator
	sessions session.History
	logger   *log.Logger
}

// New wires the echo instance, middleware and routes.
func New(orch *core.Orchestrator, sessions session.History) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	s := &Server{echo: e, orch: orch, sessions: sessions, logger: logger}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/feedback", s.handleFeedback)
	api.GET("/turns/:id", s.handleTurn)
	api.GET("/sessions/:id/history", s.handleHistory)
	api.GET("/sessions/:id/stats", s.handleStats)

	return s
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	s.logger.Printf("listening on %s", addr)
	return s.echo.Start(addr)
}

type chatRequest struct {
	SessionID        string `json:"session_id"`
	Query            string `json:"query"`
	ImageBase64      string `json:"image_base64,omitempty"`
	ImageDescription string `json:"image_description,omitempty"`
	Location         string `json:"location,omitempty"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	result, err := s.orch.ProcessTurn(c.Request().Context(), core.TurnInput{
		SessionID:        req.SessionID,
		Query:            req.Query,
		ImageBase64:      req.ImageBase64,
		ImageDescription: req.ImageDescription,
		Location:         req.Location,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

type feedbackRequest struct {
	TurnID   string `json:"turn_id"`
	Score    int    `json:"score"`
	Comments string `json:"comments,omitempty"`
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TurnID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "turn_id is required")
	}

	result, err := s.orch.SubmitFeedback(c.Request().Context(), req.TurnID, req.Score, req.Comments)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleTurn(c echo.Context) error {
	result, ok := s.orch.Turn(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "turn not found")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleHistory(c echo.Context) error {
	entries, err := s.sessions.Entries(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.sessions.Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
